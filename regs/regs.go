// Package regs gives ordered, word-atomic access to a device register block.
//
// Every access goes through a [File]. Reads and writes are performed with
// sync/atomic, so they are never torn, never reordered with each other and
// never reordered with the plain memory writes that precede them. A tail
// register write therefore publishes all descriptor writes made before it.
package regs

import (
	"fmt"
	"os"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Trap intercepts writes to an emulated register block.
type Trap interface {
	// Filter returns the value actually stored when v is written to a register
	// currently holding old. It may be called more than once per write and must
	// not have side effects.
	Filter(r Reg, old, v uint32) uint32
	// Written is called once the write of v to r took effect. old is the value
	// the register held before.
	Written(r Reg, old, v uint32)
}

// File is the register block of one device.
type File struct {
	words []uint32
	trap  Trap
	mem   []byte
}

// NewEmulated allocates a zeroed register block of size bytes, for an emulated
// device. trap may be nil.
func NewEmulated(size int, trap Trap) *File {
	return &File{
		words: make([]uint32, size/4),
		trap:  trap,
	}
}

// MapResource maps a PCI memory BAR, usually
// /sys/bus/pci/devices/<addr>/resource0, as the register block.
func MapResource(path string) (*File, error) {
	fd, err := unix.Open(path, os.O_RDWR|unix.O_SYNC, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer unix.Close(fd)

	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if st.Size < Size {
		return nil, fmt.Errorf("%s is %d bytes, need at least %d", path, st.Size, Size)
	}

	mem, err := unix.Mmap(fd, 0, int(st.Size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("map %s: %w", path, err)
	}

	return &File{
		words: unsafe.Slice((*uint32)(unsafe.Pointer(&mem[0])), len(mem)/4),
		mem:   mem,
	}, nil
}

// Close unmaps a mapped register block. It is a no-op for emulated blocks.
func (f *File) Close() error {
	if f.mem == nil {
		return nil
	}
	if err := unix.Munmap(f.mem); err != nil {
		return fmt.Errorf("unmap registers: %w", err)
	}
	f.mem = nil
	f.words = nil
	return nil
}

func (f *File) word(r Reg) *uint32 {
	if r%4 != 0 {
		panic(fmt.Sprintf("unaligned register offset %#x", uint32(r)))
	}
	return &f.words[r/4]
}

// Read returns the value of r.
func (f *File) Read(r Reg) uint32 {
	return atomic.LoadUint32(f.word(r))
}

// Write stores v into r.
func (f *File) Write(r Reg, v uint32) {
	w := f.word(r)
	if f.trap == nil {
		atomic.StoreUint32(w, v)
		return
	}

	for {
		old := atomic.LoadUint32(w)
		if atomic.CompareAndSwapUint32(w, old, f.trap.Filter(r, old, v)) {
			f.trap.Written(r, old, v)
			return
		}
	}
}

// Or sets bits in r with a read-modify-write.
func (f *File) Or(r Reg, bits uint32) {
	f.Write(r, f.Read(r)|bits)
}

// SetBits atomically sets bits in r without going through the trap. Only the
// emulated device uses it, to raise interrupt causes.
func (f *File) SetBits(r Reg, bits uint32) {
	w := f.word(r)
	for {
		old := atomic.LoadUint32(w)
		if atomic.CompareAndSwapUint32(w, old, old|bits) {
			return
		}
	}
}

// ClearBits atomically clears bits in r without going through the trap.
func (f *File) ClearBits(r Reg, bits uint32) {
	w := f.word(r)
	for {
		old := atomic.LoadUint32(w)
		if atomic.CompareAndSwapUint32(w, old, old&^bits) {
			return
		}
	}
}

// Poke stores v into r without going through the trap.
func (f *File) Poke(r Reg, v uint32) {
	atomic.StoreUint32(f.word(r), v)
}
