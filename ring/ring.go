package ring

import (
	"errors"
	"fmt"
	"sync"

	"github.com/slackhq/e1000/dma"
	"github.com/slackhq/e1000/mbuf"
)

// ErrGeometry is returned for a ring size the device cannot use.
var ErrGeometry = errors.New("invalid ring geometry")

// byteAlignment is the multiple the ring length in bytes must be, [E1000 3.3.3].
const byteAlignment = 128

// MaxSize is the largest number of descriptors the 16-bit index registers can
// address.
const MaxSize = 1 << 16

// CheckSize checks whether a ring of n descriptors satisfies the device's
// length constraints and returns an [ErrGeometry], if not.
func CheckSize(n int) error {
	if n <= 0 {
		return fmt.Errorf("%w: %d descriptors is too small", ErrGeometry, n)
	}
	if n*DescriptorSize%byteAlignment != 0 {
		return fmt.Errorf("%w: %d descriptors is not a multiple of %d bytes",
			ErrGeometry, n, byteAlignment)
	}
	if n > MaxSize {
		return fmt.Errorf("%w: %d descriptors is larger than the maximum %d",
			ErrGeometry, n, MaxSize)
	}
	return nil
}

// Ring is a descriptor ring and the buffers installed in it. All descriptor and
// buffer slot changes must happen with the ring locked.
type Ring struct {
	mu sync.Mutex

	region *dma.Region
	descs  []Descriptor
	bufs   []*mbuf.Buf
}

// New allocates a zeroed ring of n descriptors from mem. Only the index range
// is checked here, use [CheckSize] before programming a ring into a device.
func New(mem *dma.Allocator, n int) (*Ring, error) {
	if n <= 0 || n > MaxSize {
		return nil, fmt.Errorf("%w: %d descriptors", ErrGeometry, n)
	}

	region, err := mem.Alloc(n * DescriptorSize)
	if err != nil {
		return nil, fmt.Errorf("allocate descriptor memory: %w", err)
	}
	if !region.Contiguous() {
		_ = region.Release()
		return nil, fmt.Errorf("%w: %d descriptors do not fit into physically contiguous memory",
			ErrGeometry, n)
	}

	return &Ring{
		region: region,
		descs:  View(region.Bytes()[:n*DescriptorSize]),
		bufs:   make([]*mbuf.Buf, n),
	}, nil
}

// Lock takes the ring's exclusive lock.
func (r *Ring) Lock() {
	r.mu.Lock()
}

// Unlock releases the ring's exclusive lock.
func (r *Ring) Unlock() {
	r.mu.Unlock()
}

// Size returns the number of descriptors.
func (r *Ring) Size() int {
	return len(r.descs)
}

// ByteLen returns the length of the descriptor array in bytes, as programmed
// into the length register.
func (r *Ring) ByteLen() int {
	return len(r.descs) * DescriptorSize
}

// Address returns the device address of the first descriptor.
func (r *Ring) Address() uint64 {
	return r.region.Addr(0)
}

// Next returns the index following i, wrapping at the ring size.
func (r *Ring) Next(i int) int {
	return (i + 1) % len(r.descs)
}

// Descriptor returns the descriptor at index i.
func (r *Ring) Descriptor(i int) *Descriptor {
	return &r.descs[i]
}

// SlotStatus returns the status bits of descriptor i.
func (r *Ring) SlotStatus(i int) uint8 {
	return r.descs[i].Status()
}

// SetBuffer writes the buffer address and length of descriptor i.
func (r *Ring) SetBuffer(i int, addr uint64, length int) {
	d := &r.descs[i]
	d.Addr = addr
	d.Length = uint16(length)
}

// SetAddress writes the buffer address of descriptor i and leaves the length
// alone. Receive descriptors get their length from the device.
func (r *Ring) SetAddress(i int, addr uint64) {
	r.descs[i].Addr = addr
}

// MarkHardwareOwned sets the command bits of descriptor i and clears its
// status, so the Done bit is the device's to set. The slot changes hands once
// the tail register moves past it.
func (r *Ring) MarkHardwareOwned(i int, cmd uint8) {
	d := &r.descs[i]
	d.Cmd |= cmd
	d.SetStatus(0)
}

// MarkDone pre-sets the Done bit of descriptor i, which makes an unused
// transmit slot look completed.
func (r *Ring) MarkDone(i int) {
	r.descs[i].SetStatus(StatusDone)
}

// InstallBuffer puts b into slot i and returns the previous occupant, which is
// nil for an empty slot.
func (r *Ring) InstallBuffer(i int, b *mbuf.Buf) *mbuf.Buf {
	prev := r.bufs[i]
	r.bufs[i] = b
	return prev
}

// Buffer returns the buffer installed in slot i.
func (r *Ring) Buffer(i int) *mbuf.Buf {
	return r.bufs[i]
}

// Close releases the descriptor memory and returns the buffers that were still
// installed, for the caller to free. The device must be stopped.
func (r *Ring) Close() ([]*mbuf.Buf, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var left []*mbuf.Buf
	for i, b := range r.bufs {
		if b != nil {
			left = append(left, b)
			r.bufs[i] = nil
		}
	}

	r.descs = nil
	if err := r.region.Release(); err != nil {
		return left, fmt.Errorf("release descriptor memory: %w", err)
	}
	return left, nil
}
