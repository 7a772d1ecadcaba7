package e1000

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/slackhq/e1000/config"
	"github.com/slackhq/e1000/mbuf"
	"github.com/slackhq/e1000/regs"
	"github.com/slackhq/e1000/stack"
	"golang.org/x/sync/errgroup"
)

type runFunc func(ctx context.Context) error

// Control runs a driver built by [Main] along with everything feeding it.
type Control struct {
	l      *logrus.Logger
	c      *config.C
	d      *Driver
	regs   *regs.File
	line   Line
	pool   *mbuf.Pool
	queue  *stack.Queue
	decode stack.Deliverer

	// Started in Start, in this order.
	runners []runFunc

	cancel context.CancelFunc
	eg     *errgroup.Group
	done   chan struct{}
}

// Start runs the interrupt handler and the helpers around it. It does not
// block, use [Control.ShutdownBlock] for that.
func (c *Control) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.done = make(chan struct{})

	eg, ctx := errgroup.WithContext(ctx)
	c.eg = eg

	c.c.CatchHUP(ctx)
	eg.Go(func() error {
		return c.consume(ctx)
	})
	for _, run := range c.runners {
		eg.Go(func() error {
			return run(ctx)
		})
	}

	go func() {
		if err := eg.Wait(); err != nil {
			c.l.WithError(err).Error("Driver stopped")
		}
		close(c.done)
	}()
}

// consume hands delivered frames to the decoder.
func (c *Control) consume(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			c.queue.Drain(c.decode.Deliver)
			return nil
		case <-c.queue.Ready():
			c.queue.Drain(c.decode.Deliver)
		}
	}
}

// Stop shuts everything down and returns once the device is stopped and its
// memory released.
func (c *Control) Stop() {
	if c.cancel != nil {
		c.cancel()
		<-c.done
	}

	if err := c.d.Close(); err != nil {
		c.l.WithError(err).Error("Failed to close the driver")
	}
	c.queue.Drain(c.pool.Free)
	if err := errors.Join(c.line.Close(), c.regs.Close(), c.pool.Close()); err != nil {
		c.l.WithError(err).Error("Failed to release device memory")
	}
	c.l.Info("Goodbye")
}

// ShutdownBlock will listen for and block on term and interrupt signals, or an
// internal failure, calling Control.Stop() once signalled.
func (c *Control) ShutdownBlock() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigChan)

	select {
	case rawSig := <-sigChan:
		c.l.WithField("signal", rawSig.String()).Info("Caught signal, shutting down")
	case <-c.done:
		c.l.Info("Driver goroutines exited, shutting down")
	}
	c.Stop()
}

// Stats returns the driver counters.
func (c *Control) Stats() Stats {
	return c.d.Stats()
}

// Transmit queues a frame, see [Driver.Transmit].
func (c *Control) Transmit(b *mbuf.Buf) error {
	return c.d.Transmit(b)
}

// Pool returns the buffer pool frames for Transmit come from.
func (c *Control) Pool() *mbuf.Pool {
	return c.pool
}
