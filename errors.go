package e1000

import (
	"errors"
)

var (
	// ErrRingBusy is returned by [Driver.Transmit] when the device has not yet
	// finished with the slot the next frame would go into. It is expected under
	// load; the caller keeps the buffer and decides whether to retry or drop.
	ErrRingBusy = errors.New("transmit ring busy")

	// ErrAllocationExhausted is returned by [New] when the buffer pool cannot
	// supply a buffer for every receive descriptor.
	ErrAllocationExhausted = errors.New("not enough buffers to populate the receive ring")

	// ErrClosed is returned by [Driver.Transmit] after [Driver.Close].
	ErrClosed = errors.New("driver closed")
)
