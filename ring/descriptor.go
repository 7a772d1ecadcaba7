package ring

import (
	"sync/atomic"
	"unsafe"
)

// DescriptorSize is the number of bytes needed to store a [Descriptor] in
// memory.
const DescriptorSize = 16

// Transmit command bits.
const (
	CmdEndOfPacket   uint8 = 1 << 0
	CmdReportStatus  uint8 = 1 << 3
	CmdTransmitFrame       = CmdEndOfPacket | CmdReportStatus
)

// Status bits.
const (
	// StatusDone is set by the device once it finished reading (transmit) or
	// writing (receive) the descriptor's buffer.
	StatusDone uint8 = 1 << 0
	// StatusEndOfPacket marks the last receive descriptor of a frame.
	StatusEndOfPacket uint8 = 1 << 1
)

// Descriptor is the legacy e1000 descriptor. Transmit and receive descriptors
// share the layout: on the receive side CSO and Cmd hold the packet checksum
// and the byte after the status holds the error bits.
type Descriptor struct {
	// Addr is the device address of the buffer.
	Addr uint64
	// Length is the number of bytes to send, or the number of bytes received.
	Length uint16
	CSO    uint8
	Cmd    uint8
	// word holds status, css/errors and special. It is only accessed
	// atomically, since the status byte is where ownership changes hands.
	word uint32
}

var _ [DescriptorSize]byte = [unsafe.Sizeof(Descriptor{})]byte{}

// Status returns the status bits.
func (d *Descriptor) Status() uint8 {
	return uint8(atomic.LoadUint32(&d.word))
}

// Errors returns the receive error bits.
func (d *Descriptor) Errors() uint8 {
	return uint8(atomic.LoadUint32(&d.word) >> 8)
}

// SetStatus publishes the status bits and clears errors and special. Writes to
// the other fields made before it are visible to whoever observes the new
// status.
func (d *Descriptor) SetStatus(s uint8) {
	atomic.StoreUint32(&d.word, uint32(s))
}

// View interprets mem as an array of descriptors.
func View(mem []byte) []Descriptor {
	if len(mem) < DescriptorSize {
		return nil
	}
	return unsafe.Slice((*Descriptor)(unsafe.Pointer(&mem[0])), len(mem)/DescriptorSize)
}
