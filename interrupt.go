package e1000

import (
	"context"
	"errors"

	"github.com/slackhq/e1000/irq"
	"github.com/slackhq/e1000/regs"
)

// Intr is the interrupt handler. It acknowledges every pending cause, which
// lets the device raise the next interrupt, and then drains the receive ring.
// It returns the number of frames delivered; with nothing completed it changes
// no ring state.
func (d *Driver) Intr() int {
	d.metrics.interrupts.Inc(1)
	d.regs.Write(regs.ICR, regs.IntAll)
	return d.drain()
}

// Line is an interrupt line the handler can wait on.
type Line interface {
	Wait() error
	Close() error
}

// ServeInterrupts runs [Driver.Intr] every time line fires until ctx is done,
// which closes line. It returns nil after a cancellation.
func (d *Driver) ServeInterrupts(ctx context.Context, line Line) error {
	stop := context.AfterFunc(ctx, func() {
		if err := line.Close(); err != nil {
			d.l.WithError(err).Error("Failed to close the interrupt line")
		}
	})
	defer stop()

	for {
		if err := line.Wait(); err != nil {
			if errors.Is(err, irq.ErrClosed) && ctx.Err() != nil {
				return nil
			}
			return err
		}
		if n := d.Intr(); n > 0 {
			d.l.WithField("frames", n).Trace("Interrupt drained the receive ring")
		}
	}
}
