// Package ring implements the descriptor rings shared between the driver and
// the device.
//
// A ring is a fixed array of descriptors in DMA memory plus a parallel array of
// buffer ownership slots. For every slot exactly one side owns it: the device
// owns a slot from the moment the driver moves the tail register past it until
// the driver observes its Done status bit, the driver owns it otherwise. The
// tail register itself is not part of the ring; the transmit and receive paths
// read and advance it and use [Ring.Next] for the wrap-around.
package ring
