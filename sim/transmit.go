package sim

import (
	"fmt"

	"github.com/slackhq/e1000/regs"
	"github.com/slackhq/e1000/ring"
)

// CompleteTx sends up to n of the frames the driver queued, oldest first, and
// marks their descriptors done. It returns the number of frames sent. A
// negative n sends everything queued.
func (d *Device) CompleteTx(n int) (int, error) {
	frames, raise, err := d.completeTx(n)
	if raise {
		d.raise()
	}

	for _, f := range frames {
		d.txFrames.Inc(1)
		if d.OnTransmit != nil {
			d.OnTransmit(f)
		}
	}
	return len(frames), err
}

func (d *Device) completeTx(n int) ([][]byte, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.txPending == 0 || n == 0 {
		return nil, false, nil
	}
	if d.regs.Read(regs.TCTL)&regs.TctlEnable == 0 {
		return nil, false, nil
	}

	descs, err := d.descriptors(regs.TDBAL, regs.TDBAH, regs.TDLEN)
	if err != nil {
		return nil, false, fmt.Errorf("resolve transmit ring: %w", err)
	}

	var frames [][]byte
	size := len(descs)
	head := int(d.regs.Read(regs.TDH))
	for d.txPending > 0 && (n < 0 || len(frames) < n) {
		desc := &descs[head]
		buf, err := d.mem.Resolve(desc.Addr, int(desc.Length))
		if err != nil {
			return frames, d.interrupt(regs.IntTxDescWritten), fmt.Errorf("resolve transmit buffer of slot %d: %w", head, err)
		}
		frames = append(frames, append([]byte(nil), buf...))

		if desc.Cmd&ring.CmdReportStatus != 0 {
			desc.SetStatus(desc.Status() | ring.StatusDone)
		}
		head = (head + 1) % size
		d.regs.Poke(regs.TDH, uint32(head))
		d.txPending--
	}

	return frames, d.interrupt(regs.IntTxDescWritten), nil
}

// TxPending returns the number of queued frames not sent yet.
func (d *Device) TxPending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.txPending
}
