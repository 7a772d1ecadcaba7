package sim

import (
	"context"
	"time"
)

// Loopback feeds every transmitted frame back into the receive side.
func (d *Device) Loopback() {
	d.OnTransmit = func(frame []byte) {
		if _, err := d.Receive(frame); err != nil {
			d.l.WithError(err).Debug("Failed to loop back frame")
		}
	}
}

// Run sends queued frames until ctx is done. Each doorbell is served after
// delay, which stands in for the time a frame spends on the wire.
func (d *Device) Run(ctx context.Context, delay time.Duration) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-d.wake:
		}

		if delay > 0 {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(delay):
			}
		}

		if _, err := d.CompleteTx(-1); err != nil {
			d.l.WithError(err).Error("Failed to process the transmit ring")
		}
	}
}
