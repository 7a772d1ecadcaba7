package dma

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"unsafe"
)

const (
	pagemapEntrySize   = 8
	pagemapPresent     = uint64(1) << 63
	pagemapFrameNumber = uint64(1)<<55 - 1
)

var errPageNotPresent = errors.New("page not present")

// translatePages looks up the physical address of every page of mem. Reading
// frame numbers needs CAP_SYS_ADMIN, without it the kernel reports zeros.
func translatePages(mem []byte, pageSize int) ([]uint64, error) {
	f, err := os.Open("/proc/self/pagemap")
	if err != nil {
		return nil, err
	}
	defer f.Close()

	base := uintptr(unsafe.Pointer(&mem[0]))
	pages := make([]uint64, len(mem)/pageSize)
	entry := make([]byte, pagemapEntrySize)

	for i := range pages {
		// Fault the page in, the kernel has no frame for untouched memory.
		mem[i*pageSize] = 0

		virt := base + uintptr(i*pageSize)
		off := int64(virt/uintptr(pageSize)) * pagemapEntrySize
		if _, err := f.ReadAt(entry, off); err != nil {
			return nil, fmt.Errorf("read pagemap entry for %#x: %w", virt, err)
		}

		v := binary.LittleEndian.Uint64(entry)
		if v&pagemapPresent == 0 {
			return nil, fmt.Errorf("%w: %#x", errPageNotPresent, virt)
		}
		frame := v & pagemapFrameNumber
		if frame == 0 {
			return nil, fmt.Errorf("pagemap hides frame numbers, CAP_SYS_ADMIN is required")
		}
		pages[i] = frame * uint64(pageSize)
	}

	return pages, nil
}
