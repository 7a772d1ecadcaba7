// Package sim emulates the parts of an e1000 the driver talks to: the register
// block, descriptor processing on both rings and the receive interrupt. It
// reads and writes descriptors and buffers in the same memory the driver
// allocated, reached through the device addresses programmed into it.
package sim

import (
	"encoding/binary"
	"net"
	"sync"

	"github.com/rcrowley/go-metrics"
	"github.com/sirupsen/logrus"
	"github.com/slackhq/e1000/dma"
	"github.com/slackhq/e1000/irq"
	"github.com/slackhq/e1000/regs"
	"github.com/slackhq/e1000/ring"
)

// Device is an emulated e1000.
type Device struct {
	l    *logrus.Logger
	regs *regs.File
	mem  *dma.Allocator
	line irq.Raiser

	// OnTransmit, if set, is called with every frame the device sent. The
	// frame is a copy owned by the callee. It is called without any lock held,
	// so it may feed the frame back through [Device.Receive].
	OnTransmit func(frame []byte)

	mu sync.Mutex
	// txPending is the number of descriptors the driver handed over that were
	// not processed yet. Counting doorbells tells a full ring apart from an
	// empty one, both have head == tail.
	txPending int

	wake chan struct{}

	txFrames   metrics.Counter
	rxFrames   metrics.Counter
	rxMissed   metrics.Counter
	rxFiltered metrics.Counter
}

// New creates a device with a fresh register block. Device addresses are
// resolved through mem. Receive interrupts are raised on line, which may be
// nil. Metrics are registered with r, or the default registry when r is nil.
func New(l *logrus.Logger, mem *dma.Allocator, line irq.Raiser, r metrics.Registry) *Device {
	d := &Device{
		l:          l,
		mem:        mem,
		line:       line,
		wake:       make(chan struct{}, 1),
		txFrames:   metrics.GetOrRegisterCounter("sim.tx.frames", r),
		rxFrames:   metrics.GetOrRegisterCounter("sim.rx.frames", r),
		rxMissed:   metrics.GetOrRegisterCounter("sim.rx.missed", r),
		rxFiltered: metrics.GetOrRegisterCounter("sim.rx.filtered", r),
	}
	d.regs = regs.NewEmulated(regs.Size, trap{d})
	return d
}

// Regs returns the register block to hand to the driver.
func (d *Device) Regs() *regs.File {
	return d.regs
}

// trap implements the register side effects. It is a separate type so the
// trap methods are not part of the Device API.
type trap struct {
	d *Device
}

func (t trap) Filter(r regs.Reg, old, v uint32) uint32 {
	switch r {
	case regs.CTL:
		// Reset completes immediately.
		return v &^ regs.CtlReset
	case regs.ICR:
		return old &^ v
	case regs.IMS:
		return old | v
	case regs.IMC:
		return 0
	}
	return v
}

func (t trap) Written(r regs.Reg, old, v uint32) {
	d := t.d
	d.mu.Lock()
	defer d.mu.Unlock()

	switch r {
	case regs.CTL:
		if v&regs.CtlReset != 0 {
			d.reset()
		}
	case regs.IMC:
		d.regs.ClearBits(regs.IMS, v)
	case regs.TDLEN:
		d.txPending = 0
	case regs.TDT:
		if n := d.txSize(); n > 0 {
			d.txPending += (int(v) - int(old) + n) % n
			if d.txPending > n {
				d.l.WithField("pending", d.txPending).Warn("Transmit tail moved past the head")
				d.txPending = n
			}
			d.signal()
		}
	}
}

// reset puts the registers the driver relies on back to their power on
// values.
func (d *Device) reset() {
	for _, r := range []regs.Reg{regs.ICR, regs.IMS, regs.RCTL, regs.TCTL,
		regs.TDH, regs.TDT, regs.RDH, regs.RDT, regs.TDLEN, regs.RDLEN} {
		d.regs.Poke(r, 0)
	}
	d.txPending = 0
}

func (d *Device) signal() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

func (d *Device) txSize() int {
	return int(d.regs.Read(regs.TDLEN)) / ring.DescriptorSize
}

func (d *Device) rxSize() int {
	return int(d.regs.Read(regs.RDLEN)) / ring.DescriptorSize
}

// descriptors resolves the ring programmed into the given base and length
// registers.
func (d *Device) descriptors(lo, hi, length regs.Reg) ([]ring.Descriptor, error) {
	addr := uint64(d.regs.Read(hi))<<32 | uint64(d.regs.Read(lo))
	mem, err := d.mem.Resolve(addr, int(d.regs.Read(length)))
	if err != nil {
		return nil, err
	}
	return ring.View(mem), nil
}

// interrupt sets cause in ICR and reports whether the line should be raised.
func (d *Device) interrupt(cause uint32) bool {
	d.regs.SetBits(regs.ICR, cause)
	return d.regs.Read(regs.IMS)&cause != 0
}

func (d *Device) raise() {
	if d.line == nil {
		return
	}
	if err := d.line.Raise(); err != nil {
		d.l.WithError(err).Debug("Failed to raise the interrupt line")
	}
}

// accepts applies the receive address filter to the destination of frame.
func (d *Device) accepts(frame []byte) bool {
	rctl := d.regs.Read(regs.RCTL)
	if rctl&regs.RctlEnable == 0 || len(frame) < 6 {
		return false
	}

	dst := net.HardwareAddr(frame[:6])
	if isBroadcast(dst) {
		return rctl&regs.RctlBroadcast != 0
	}
	if dst[0]&1 != 0 {
		// Multicast, the hash table is left empty.
		return false
	}

	high := d.regs.Read(regs.RA + 4)
	if high&regs.RAValid == 0 {
		return false
	}
	var ra [8]byte
	binary.LittleEndian.PutUint32(ra[:4], d.regs.Read(regs.RA))
	binary.LittleEndian.PutUint32(ra[4:], high)
	return string(ra[:6]) == string(dst)
}

func isBroadcast(mac net.HardwareAddr) bool {
	for _, b := range mac {
		if b != 0xff {
			return false
		}
	}
	return true
}
