package e1000

import (
	"github.com/slackhq/e1000/mbuf"
	"github.com/slackhq/e1000/regs"
	"github.com/slackhq/e1000/ring"
)

// Transmit queues the frame in b for sending. On success the driver owns b and
// frees it once the device reported the slot done and the slot is reused. On
// error the caller keeps b; [ErrRingBusy] means the device is still working on
// the next slot.
func (d *Driver) Transmit(b *mbuf.Buf) error {
	d.tx.Lock()
	defer d.tx.Unlock()

	if d.closed.Load() {
		return ErrClosed
	}

	i := int(d.regs.Read(regs.TDT))
	if d.tx.SlotStatus(i)&ring.StatusDone == 0 {
		d.metrics.txBusy.Inc(1)
		return ErrRingBusy
	}

	if prev := d.tx.InstallBuffer(i, b); prev != nil {
		d.pool.Free(prev)
	}
	d.tx.SetBuffer(i, b.PayloadAddr(), b.Len())
	d.tx.MarkHardwareOwned(i, ring.CmdTransmitFrame)

	// The tail store publishes the descriptor to the device.
	d.regs.Write(regs.TDT, uint32(d.tx.Next(i)))

	d.metrics.txPackets.Inc(1)
	d.metrics.txBytes.Inc(int64(b.Len()))
	return nil
}
