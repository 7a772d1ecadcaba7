package dma

import "unsafe"

func (r *Region) base() uintptr {
	// The region is not managed by Go, so its address is stable.
	return uintptr(unsafe.Pointer(&r.mem[0]))
}
