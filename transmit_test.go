package e1000

import (
	"encoding/binary"
	"testing"

	"github.com/slackhq/e1000/mbuf"
	"github.com/slackhq/e1000/regs"
	"github.com/slackhq/e1000/ring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const frameLen = 60

// frameBytes is a broadcast frame with seq in its payload.
func frameBytes(seq int) []byte {
	frame := make([]byte, frameLen)
	copy(frame[0:6], []byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff})
	copy(frame[6:12], DefaultMAC)
	binary.BigEndian.PutUint16(frame[12:14], 0x88b5)
	binary.BigEndian.PutUint32(frame[14:18], uint32(seq))
	return frame
}

func frameSeq(b []byte) int {
	return int(binary.BigEndian.Uint32(b[14:18]))
}

func newFrame(t *testing.T, p *mbuf.Pool, seq int) *mbuf.Buf {
	b, err := p.Alloc(0)
	require.NoError(t, err)
	copy(b.Put(frameLen), frameBytes(seq))
	return b
}

func TestTransmit(t *testing.T) {
	f := newFixture(t, 64, nil)
	d := f.newDriver(t)

	b := newFrame(t, f.pool, 7)
	require.NoError(t, d.Transmit(b))

	desc := d.tx.Descriptor(0)
	assert.Equal(t, b.PayloadAddr(), desc.Addr)
	assert.Equal(t, uint16(frameLen), desc.Length)
	assert.Equal(t, ring.CmdEndOfPacket|ring.CmdReportStatus, desc.Cmd)
	assert.Zero(t, desc.Status())
	assert.Same(t, b, d.tx.Buffer(0))
	assert.Equal(t, uint32(1), f.dev.Regs().Read(regs.TDT))

	var sent [][]byte
	f.dev.OnTransmit = func(frame []byte) {
		sent = append(sent, frame)
	}
	n, err := f.dev.CompleteTx(-1)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, [][]byte{frameBytes(7)}, sent)

	stats := d.Stats()
	assert.Equal(t, int64(1), stats.TxPackets)
	assert.Equal(t, int64(frameLen), stats.TxBytes)
}

// Sixteen transmits fill a sixteen slot ring, the seventeenth only fits once
// the device completed slot 0, and reusing slot 0 frees its old buffer.
func TestTransmit_FullRing(t *testing.T) {
	f := newFixture(t, 64, nil)
	d := f.newDriver(t, WithTxRingSize(16))

	var bufs []*mbuf.Buf
	for i := range 16 {
		b := newFrame(t, f.pool, i)
		require.NoError(t, d.Transmit(b))
		bufs = append(bufs, b)
	}
	for i := range 16 {
		assert.Zero(t, d.tx.SlotStatus(i)&ring.StatusDone, "slot %d", i)
	}

	extra := newFrame(t, f.pool, 16)
	assert.ErrorIs(t, d.Transmit(extra), ErrRingBusy)
	assert.True(t, f.pool.Allocated(extra))
	assert.Equal(t, int64(1), d.Stats().TxBusy)

	n, err := f.dev.CompleteTx(1)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	assert.Equal(t, ring.StatusDone, d.tx.SlotStatus(0)&ring.StatusDone)

	require.NoError(t, d.Transmit(extra))
	assert.Same(t, extra, d.tx.Buffer(0))
	assert.False(t, f.pool.Allocated(bufs[0]))
	for _, b := range bufs[1:] {
		assert.True(t, f.pool.Allocated(b))
	}
	assert.Equal(t, uint32(1), f.dev.Regs().Read(regs.TDT))

	// Slot 1 is still with the device.
	another := newFrame(t, f.pool, 17)
	assert.ErrorIs(t, d.Transmit(another), ErrRingBusy)
	f.pool.Free(another)
}

// A busy transmit touches neither the descriptors nor the buffer slots.
func TestTransmit_BusyLeavesRingUnchanged(t *testing.T) {
	f := newFixture(t, 64, nil)
	d := f.newDriver(t, WithTxRingSize(8))

	for i := range 8 {
		require.NoError(t, d.Transmit(newFrame(t, f.pool, i)))
	}

	type slot struct {
		desc ring.Descriptor
		buf  *mbuf.Buf
	}
	snapshot := func() []slot {
		s := make([]slot, d.tx.Size())
		for i := range s {
			s[i] = slot{desc: *d.tx.Descriptor(i), buf: d.tx.Buffer(i)}
		}
		return s
	}

	before := snapshot()
	tdt := f.dev.Regs().Read(regs.TDT)
	inUse := f.pool.InUse()

	b := newFrame(t, f.pool, 8)
	for range 3 {
		assert.ErrorIs(t, d.Transmit(b), ErrRingBusy)
	}

	assert.Equal(t, before, snapshot())
	assert.Equal(t, tdt, f.dev.Regs().Read(regs.TDT))
	assert.Equal(t, inUse+1, f.pool.InUse())
	assert.True(t, f.pool.Allocated(b))
	f.pool.Free(b)
}

// Every buffer handed to Transmit is freed exactly once, when its slot is
// reused after completion or when the driver closes.
func TestTransmit_NoLeak(t *testing.T) {
	f := newFixture(t, 64, nil)
	d := f.newDriver(t, WithTxRingSize(8))
	rxBuffers := f.pool.InUse()

	sent := 0
	for round := range 10 {
		for range 5 {
			require.NoError(t, d.Transmit(newFrame(t, f.pool, sent)))
			sent++
		}
		_, err := f.dev.CompleteTx(-1)
		require.NoError(t, err, "round %d", round)

		// Only completed buffers that were not reused yet are still held.
		held := 0
		for i := range d.tx.Size() {
			if d.tx.Buffer(i) != nil {
				held++
			}
		}
		assert.Equal(t, rxBuffers+held, f.pool.InUse())
		assert.LessOrEqual(t, held, d.tx.Size())
	}
	assert.Equal(t, int64(sent), d.Stats().TxPackets)
}
