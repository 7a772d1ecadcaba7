package irq

import (
	"context"
	"errors"
	"time"

	"github.com/slackhq/e1000/regs"
)

// Raiser is the signalling half of an interrupt line.
type Raiser interface {
	Raise() error
}

// Poll raises line whenever the device reports an interrupt cause that is
// enabled in the mask, for hardware whose interrupts are not routed to this
// process. It returns when ctx is done or raising fails.
//
// Reading ICR clears it on real hardware. That is fine, the handler drains the
// rings regardless of which cause fired.
func Poll(ctx context.Context, r *regs.File, interval time.Duration, line Raiser) error {
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}

		if r.Read(regs.ICR)&r.Read(regs.IMS) == 0 {
			continue
		}
		if err := line.Raise(); err != nil {
			if errors.Is(err, ErrClosed) && ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}
