// Package dma allocates memory that a device may read and write directly.
// Regions live outside the Go heap so the garbage collector never moves or
// collects them while the device still uses them, and every region knows the
// address the device has to be given to reach it.
package dma
