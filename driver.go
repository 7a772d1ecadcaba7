// Package e1000 drives an Intel 8254x class network controller through its
// legacy transmit and receive descriptor rings.
//
// A [Driver] owns both rings. [Driver.Transmit] may be called from any number
// of goroutines; the receive ring is drained by the interrupt handler,
// [Driver.Intr], which runs concurrently with transmits but never with itself.
package e1000

import (
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/slackhq/e1000/dma"
	"github.com/slackhq/e1000/mbuf"
	"github.com/slackhq/e1000/regs"
	"github.com/slackhq/e1000/ring"
	"github.com/slackhq/e1000/stack"
	"github.com/slackhq/e1000/util"
)

// Transmit control: enabled, short frames padded, collision threshold 0x10 and
// full duplex collision distance 0x40, [E1000 13.4.33].
const tctl = regs.TctlEnable | regs.TctlPadShortPackets |
	0x10<<regs.TctlCollisionThreshold | 0x40<<regs.TctlCollisionDistance

// Inter packet gap for IEEE 802.3, [E1000 13.4.34].
const tipg = 10 | 8<<10 | 6<<20

// Receive control: enabled, accept broadcast, 2048 byte buffers, strip the
// ethernet CRC.
const rctl = regs.RctlEnable | regs.RctlBroadcast | regs.RctlBufSize2048 | regs.RctlStripCRC

// dropWarnInterval limits how often replacement allocation failures are logged.
const dropWarnInterval = time.Second

// Driver is one initialized device.
type Driver struct {
	l    *logrus.Logger
	regs *regs.File
	pool *mbuf.Pool
	up   stack.Deliverer

	tx *ring.Ring
	rx *ring.Ring

	metrics *driverMetrics

	// Only touched with the rx ring locked.
	lastDropWarn time.Time
	dropsSince   int64

	closed atomic.Bool
}

// New resets the device behind r and brings up both rings. Descriptor memory
// comes from mem; every receive descriptor gets a buffer from pool. Received
// frames are handed to up.
//
// There are multiple options that can be passed to influence driver creation:
//   - [WithTxRingSize]
//   - [WithRxRingSize]
//   - [WithMAC]
//   - [WithMetricsRegistry]
//
// A failure leaves nothing allocated. The errors are fatal for the device and
// are returned as [util.ContextualError].
func New(l *logrus.Logger, r *regs.File, mem *dma.Allocator, pool *mbuf.Pool, up stack.Deliverer, options ...Option) (*Driver, error) {
	opts := optionDefaults
	opts.apply(options)
	if err := opts.validate(); err != nil {
		return nil, util.NewContextualError("Invalid driver options",
			map[string]any{"txSize": opts.txSize, "rxSize": opts.rxSize}, err)
	}

	return build(l, r, mem, pool, up, opts)
}

// build runs the device initialization sequence with already validated
// options.
func build(l *logrus.Logger, r *regs.File, mem *dma.Allocator, pool *mbuf.Pool, up stack.Deliverer, opts optionValues) (_ *Driver, err error) {
	d := &Driver{
		l:       l,
		regs:    r,
		pool:    pool,
		up:      up,
		metrics: newDriverMetrics(opts.registry),
	}

	// Clean up a partially initialized driver when something fails.
	defer func() {
		if err != nil {
			d.release()
		}
	}()

	// Reset the device with interrupts masked. The mask is cleared again since
	// the reset may have restored it.
	r.Write(regs.IMS, 0)
	r.Or(regs.CTL, regs.CtlReset)
	r.Write(regs.IMS, 0)

	if err = d.initTransmit(mem, opts.txSize); err != nil {
		return nil, err
	}
	if err = d.initReceive(mem, opts.rxSize); err != nil {
		return nil, err
	}

	d.initFilter(opts.mac)

	r.Write(regs.TCTL, tctl)
	r.Write(regs.TIPG, tipg)

	r.Write(regs.RCTL, rctl)
	// Interrupt on every received frame, without delay timers.
	r.Write(regs.RDTR, 0)
	r.Write(regs.RADV, 0)
	r.Write(regs.IMS, regs.IntRxTimer)

	l.WithFields(logrus.Fields{
		"txRing": opts.txSize,
		"rxRing": opts.rxSize,
		"mac":    opts.mac,
	}).Info("e1000 initialized")

	return d, nil
}

// initTransmit sets every transmit slot to completed and empty, so the first
// [Driver.Transmit] into each of them succeeds.
func (d *Driver) initTransmit(mem *dma.Allocator, n int) error {
	var err error
	d.tx, err = ring.New(mem, n)
	if err != nil {
		return util.NewContextualError("Failed to create the transmit ring", map[string]any{"size": n}, err)
	}
	for i := range n {
		d.tx.MarkDone(i)
	}

	addr := d.tx.Address()
	d.regs.Write(regs.TDBAL, uint32(addr))
	d.regs.Write(regs.TDBAH, uint32(addr>>32))
	d.regs.Write(regs.TDLEN, uint32(d.tx.ByteLen()))
	d.regs.Write(regs.TDH, 0)
	d.regs.Write(regs.TDT, 0)
	return nil
}

// initReceive fills every receive slot with a fresh buffer. The device owns
// all but the slot at the tail.
func (d *Driver) initReceive(mem *dma.Allocator, n int) error {
	var err error
	d.rx, err = ring.New(mem, n)
	if err != nil {
		return util.NewContextualError("Failed to create the receive ring", map[string]any{"size": n}, err)
	}
	for i := range n {
		b, err := d.pool.Alloc(0)
		if err != nil {
			return util.NewContextualError("Failed to populate the receive ring",
				map[string]any{"size": n, "slot": i},
				fmt.Errorf("%w: %w", ErrAllocationExhausted, err))
		}
		d.rx.InstallBuffer(i, b)
		d.rx.SetAddress(i, b.PayloadAddr())
	}

	addr := d.rx.Address()
	d.regs.Write(regs.RDBAL, uint32(addr))
	d.regs.Write(regs.RDBAH, uint32(addr>>32))
	d.regs.Write(regs.RDH, 0)
	d.regs.Write(regs.RDT, uint32(n-1))
	d.regs.Write(regs.RDLEN, uint32(d.rx.ByteLen()))
	return nil
}

// initFilter accepts unicast frames for mac only and no multicast.
func (d *Driver) initFilter(mac net.HardwareAddr) {
	d.regs.Write(regs.RA, uint32(mac[0])|uint32(mac[1])<<8|uint32(mac[2])<<16|uint32(mac[3])<<24)
	d.regs.Write(regs.RA+4, uint32(mac[4])|uint32(mac[5])<<8|regs.RAValid)
	for i := range regs.MTAWords {
		d.regs.Write(regs.MTA+regs.Reg(i*4), 0)
	}
}

// Close stops the device and returns every buffer still held by the rings to
// the pool.
func (d *Driver) Close() error {
	if !d.closed.CompareAndSwap(false, true) {
		return nil
	}

	d.regs.Write(regs.IMC, regs.IntAll)
	d.regs.Write(regs.TCTL, 0)
	d.regs.Write(regs.RCTL, 0)

	return d.release()
}

// release frees whatever part of the rings was set up. Callers racing with it
// observe the closed flag once they hold a ring lock.
func (d *Driver) release() error {
	var firstErr error
	for _, r := range []*ring.Ring{d.tx, d.rx} {
		if r == nil {
			continue
		}
		left, err := r.Close()
		for _, b := range left {
			d.pool.Free(b)
		}
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Stats is a snapshot of the driver counters.
type Stats struct {
	TxPackets int64
	TxBytes   int64
	TxBusy    int64
	RxPackets int64
	RxBytes   int64
	RxDropped int64
	Intr      int64
}

// Stats returns the current counters.
func (d *Driver) Stats() Stats {
	return Stats{
		TxPackets: d.metrics.txPackets.Count(),
		TxBytes:   d.metrics.txBytes.Count(),
		TxBusy:    d.metrics.txBusy.Count(),
		RxPackets: d.metrics.rxPackets.Count(),
		RxBytes:   d.metrics.rxBytes.Count(),
		RxDropped: d.metrics.rxDropped.Count(),
		Intr:      d.metrics.interrupts.Count(),
	}
}
