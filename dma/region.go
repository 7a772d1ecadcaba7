package dma

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"golang.org/x/sys/unix"
)

var (
	// ErrUnknownTranslation is returned for an unsupported translation mode.
	ErrUnknownTranslation = errors.New("unknown address translation")

	// ErrNotMapped is returned when a device address does not fall into any
	// region of an [Allocator].
	ErrNotMapped = errors.New("device address is not mapped")
)

// Translation modes understood by [NewAllocator].
const (
	// TranslateIdentity hands the process virtual address to the device. This
	// is what an emulated device or an IOMMU identity mapping expects.
	TranslateIdentity = "identity"
	// TranslatePagemap resolves physical addresses through /proc/self/pagemap.
	TranslatePagemap = "pagemap"
)

// Allocator hands out [Region]s and remembers them, so device addresses can be
// resolved back into memory by an emulated device.
type Allocator struct {
	mode     string
	pageSize int

	mu      sync.Mutex
	regions []*Region
}

// NewAllocator returns an allocator using the given translation mode.
func NewAllocator(mode string) (*Allocator, error) {
	switch mode {
	case "", TranslateIdentity:
		mode = TranslateIdentity
	case TranslatePagemap:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownTranslation, mode)
	}

	return &Allocator{mode: mode, pageSize: os.Getpagesize()}, nil
}

// Mode returns the translation mode of the allocator.
func (a *Allocator) Mode() string {
	return a.mode
}

// Region is a page aligned block of locked memory.
type Region struct {
	a     *Allocator
	mem   []byte
	pages []uint64
}

// Alloc maps a zeroed region of at least size bytes. The region starts at a
// page boundary.
func (a *Allocator) Alloc(size int) (_ *Region, err error) {
	if size <= 0 {
		return nil, fmt.Errorf("invalid region size %d", size)
	}

	length := align(size, a.pageSize)
	mem, err := unix.Mmap(-1, 0, length,
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, fmt.Errorf("map region: %w", err)
	}

	r := &Region{a: a, mem: mem}

	defer func() {
		if err != nil {
			_ = unix.Munmap(mem)
		}
	}()

	if a.mode == TranslatePagemap {
		// The physical pages must not move or be swapped out once their
		// addresses were handed to the device.
		if err = unix.Mlock(mem); err != nil {
			return nil, fmt.Errorf("lock region: %w", err)
		}
		if r.pages, err = translatePages(mem, a.pageSize); err != nil {
			return nil, fmt.Errorf("translate region: %w", err)
		}
	}

	a.mu.Lock()
	a.regions = append(a.regions, r)
	a.mu.Unlock()

	return r, nil
}

// Bytes returns the memory of the region.
func (r *Region) Bytes() []byte {
	return r.mem
}

// Len returns the size of the region in bytes.
func (r *Region) Len() int {
	return len(r.mem)
}

// Addr returns the device address of the byte at offset off.
func (r *Region) Addr(off int) uint64 {
	if off < 0 || off >= len(r.mem) {
		panic(fmt.Sprintf("offset %d outside of region of %d bytes", off, len(r.mem)))
	}

	if r.pages == nil {
		return uint64(r.base()) + uint64(off)
	}

	ps := r.a.pageSize
	return r.pages[off/ps] + uint64(off%ps)
}

// Contiguous reports whether the device sees the region as one continuous
// block of memory.
func (r *Region) Contiguous() bool {
	for i := 1; i < len(r.pages); i++ {
		if r.pages[i] != r.pages[i-1]+uint64(r.a.pageSize) {
			return false
		}
	}
	return true
}

// Release unmaps the region. The device must no longer use it.
func (r *Region) Release() error {
	if r.mem == nil {
		return nil
	}

	a := r.a
	a.mu.Lock()
	for i, x := range a.regions {
		if x == r {
			a.regions = append(a.regions[:i], a.regions[i+1:]...)
			break
		}
	}
	a.mu.Unlock()

	if err := unix.Munmap(r.mem); err != nil {
		return fmt.Errorf("unmap region: %w", err)
	}
	r.mem = nil
	r.pages = nil
	return nil
}

// Resolve returns the n bytes of memory the device reaches at addr. It is what
// an emulated device uses in place of bus mastering.
func (a *Allocator) Resolve(addr uint64, n int) ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, r := range a.regions {
		if off, ok := r.offset(addr); ok {
			if off+n > len(r.mem) {
				return nil, fmt.Errorf("%w: %#x+%d crosses the end of its region", ErrNotMapped, addr, n)
			}
			return r.mem[off : off+n], nil
		}
	}

	return nil, fmt.Errorf("%w: %#x", ErrNotMapped, addr)
}

func (r *Region) offset(addr uint64) (int, bool) {
	if r.pages == nil {
		base := uint64(r.base())
		if addr < base || addr >= base+uint64(len(r.mem)) {
			return 0, false
		}
		return int(addr - base), true
	}

	ps := uint64(r.a.pageSize)
	for i, p := range r.pages {
		if addr >= p && addr < p+ps {
			return i*r.a.pageSize + int(addr-p), true
		}
	}
	return 0, false
}

func align(n, alignment int) int {
	remainder := n % alignment
	if remainder == 0 {
		return n
	}
	return n + alignment - remainder
}
