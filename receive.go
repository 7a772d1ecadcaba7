package e1000

import (
	"time"

	"github.com/sirupsen/logrus"
	"github.com/slackhq/e1000/regs"
	"github.com/slackhq/e1000/ring"
)

// drain hands every frame the device completed to the upstream stack, in ring
// order, and gives each slot back to the device with an empty buffer. It
// returns the number of frames delivered.
//
// The replacement buffer is allocated before a frame is delivered. When the
// pool is empty the frame is dropped and its buffer re-armed in place, so the
// ring never runs with a hole in it.
func (d *Driver) drain() int {
	d.rx.Lock()
	defer d.rx.Unlock()

	if d.closed.Load() {
		return 0
	}

	delivered := 0
	next := d.rx.Next(int(d.regs.Read(regs.RDT)))
	for d.rx.SlotStatus(next)&ring.StatusDone != 0 {
		desc := d.rx.Descriptor(next)
		length := int(desc.Length)

		fresh, err := d.pool.Alloc(0)
		if err != nil {
			d.dropped(next, length)
			d.rx.Buffer(next).Reset(0)
		} else {
			b := d.rx.InstallBuffer(next, fresh)
			b.Put(length)
			d.up.Deliver(b)

			d.rx.SetAddress(next, fresh.PayloadAddr())
			d.metrics.rxPackets.Inc(1)
			d.metrics.rxBytes.Inc(int64(length))
			delivered++
		}
		d.rx.MarkHardwareOwned(next, 0)

		d.regs.Write(regs.RDT, uint32(next))
		next = d.rx.Next(int(d.regs.Read(regs.RDT)))
	}

	return delivered
}

// dropped accounts for a frame lost to buffer exhaustion.
func (d *Driver) dropped(slot, length int) {
	d.metrics.rxDropped.Inc(1)
	d.dropsSince++

	now := time.Now()
	if now.Sub(d.lastDropWarn) < dropWarnInterval {
		return
	}
	d.l.WithFields(logrus.Fields{
		"slot":    slot,
		"length":  length,
		"dropped": d.dropsSince,
	}).Warn("Dropped received frame, no buffer to replace it")
	d.lastDropWarn = now
	d.dropsSince = 0
}
