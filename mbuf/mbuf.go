// Package mbuf implements the fixed pool of packet buffers shared with the
// device. Buffers are carved out of one DMA region, so their payload can be
// handed to the device by address.
package mbuf

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rcrowley/go-metrics"
	"github.com/slackhq/e1000/dma"
)

// Size is the capacity of every buffer. It matches the 2048 byte receive
// buffers the device is configured for.
const Size = 2048

// ErrExhausted is returned by [Pool.Alloc] when every buffer is in use.
var ErrExhausted = errors.New("packet buffers exhausted")

// Buf is one packet buffer. The payload is the window [head, head+len) of the
// buffer's memory.
type Buf struct {
	pool  *Pool
	index int
	data  []byte
	head  int
	len   int
}

// Bytes returns the payload.
func (b *Buf) Bytes() []byte {
	return b.data[b.head : b.head+b.len]
}

// Len returns the payload length.
func (b *Buf) Len() int {
	return b.len
}

// Headroom returns the bytes available in front of the payload.
func (b *Buf) Headroom() int {
	return b.head
}

// PayloadAddr returns the device address of the first payload byte.
func (b *Buf) PayloadAddr() uint64 {
	return b.pool.region.Addr(b.index*Size + b.head)
}

// Put extends the payload by n bytes at the tail and returns the new bytes.
// This is how a received length is applied to a buffer.
func (b *Buf) Put(n int) []byte {
	if n < 0 || b.head+b.len+n > Size {
		panic(fmt.Sprintf("mbuf: put %d bytes overflows buffer (head %d, len %d)", n, b.head, b.len))
	}
	tail := b.head + b.len
	b.len += n
	return b.data[tail : tail+n]
}

// Push prepends n bytes to the payload and returns the new front.
func (b *Buf) Push(n int) []byte {
	if n < 0 || n > b.head {
		panic(fmt.Sprintf("mbuf: push %d bytes with %d bytes of headroom", n, b.head))
	}
	b.head -= n
	b.len += n
	return b.data[b.head : b.head+n]
}

// Pull strips n bytes from the front of the payload and returns them, or nil
// if the payload is shorter than n.
func (b *Buf) Pull(n int) []byte {
	if n < 0 || n > b.len {
		return nil
	}
	front := b.data[b.head : b.head+n]
	b.head += n
	b.len -= n
	return front
}

// Trim strips n bytes from the tail of the payload and returns them, or nil if
// the payload is shorter than n.
func (b *Buf) Trim(n int) []byte {
	if n < 0 || n > b.len {
		return nil
	}
	b.len -= n
	tail := b.head + b.len
	return b.data[tail : tail+n]
}

// Reset empties the payload and reserves headroom bytes in front of it.
func (b *Buf) Reset(headroom int) {
	if headroom < 0 || headroom > Size {
		panic(fmt.Sprintf("mbuf: invalid headroom %d", headroom))
	}
	b.head = headroom
	b.len = 0
}

// Pool is a fixed set of buffers.
type Pool struct {
	region *dma.Region
	bufs   []Buf

	mu    sync.Mutex
	free  []int
	inUse []bool

	inUseGauge    metrics.Gauge
	allocFailures metrics.Counter
}

// NewPool allocates count buffers from mem. Metrics are registered with r, or
// the default registry when r is nil.
func NewPool(mem *dma.Allocator, count int, r metrics.Registry) (*Pool, error) {
	if count <= 0 {
		return nil, fmt.Errorf("invalid buffer count %d", count)
	}

	region, err := mem.Alloc(count * Size)
	if err != nil {
		return nil, fmt.Errorf("allocate buffer memory: %w", err)
	}

	p := &Pool{
		region:        region,
		bufs:          make([]Buf, count),
		free:          make([]int, count),
		inUse:         make([]bool, count),
		inUseGauge:    metrics.GetOrRegisterGauge("mbuf.in_use", r),
		allocFailures: metrics.GetOrRegisterCounter("mbuf.alloc_failures", r),
	}

	mb := region.Bytes()
	for i := range p.bufs {
		p.bufs[i] = Buf{
			pool:  p,
			index: i,
			data:  mb[i*Size : (i+1)*Size : (i+1)*Size],
		}
		// Hand out low indexes first.
		p.free[i] = count - 1 - i
	}

	return p, nil
}

// Alloc takes a buffer from the pool with headroom bytes reserved in front of
// its empty payload.
func (p *Pool) Alloc(headroom int) (*Buf, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.free) == 0 {
		p.allocFailures.Inc(1)
		return nil, ErrExhausted
	}

	i := p.free[len(p.free)-1]
	p.free = p.free[:len(p.free)-1]
	p.inUse[i] = true
	p.inUseGauge.Update(int64(len(p.bufs) - len(p.free)))

	b := &p.bufs[i]
	b.Reset(headroom)
	return b, nil
}

// Free returns b to the pool. Freeing a buffer twice, or a buffer of another
// pool, panics.
func (p *Pool) Free(b *Buf) {
	if b.pool != p {
		panic("mbuf: freeing a buffer of another pool")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.inUse[b.index] {
		panic(fmt.Sprintf("mbuf: buffer %d freed twice", b.index))
	}
	p.inUse[b.index] = false
	p.free = append(p.free, b.index)
	p.inUseGauge.Update(int64(len(p.bufs) - len(p.free)))
}

// Allocated reports whether b is currently handed out.
func (p *Pool) Allocated(b *Buf) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.inUse[b.index]
}

// InUse returns the number of buffers currently handed out.
func (p *Pool) InUse() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.bufs) - len(p.free)
}

// Cap returns the number of buffers in the pool.
func (p *Pool) Cap() int {
	return len(p.bufs)
}

// Close releases the buffer memory. No buffer may be used afterwards.
func (p *Pool) Close() error {
	return p.region.Release()
}
