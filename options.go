package e1000

import (
	"fmt"
	"net"

	"github.com/rcrowley/go-metrics"
	"github.com/slackhq/e1000/ring"
)

// DefaultMAC is the address the device filters for unless [WithMAC] is given.
// It is the address QEMU assigns to its first e1000.
var DefaultMAC = net.HardwareAddr{0x52, 0x54, 0x00, 0x12, 0x34, 0x56}

// Default ring sizes.
const (
	DefaultTxRingSize = 16
	DefaultRxRingSize = 16
)

type optionValues struct {
	txSize   int
	rxSize   int
	mac      net.HardwareAddr
	registry metrics.Registry
}

func (o *optionValues) apply(options []Option) {
	for _, option := range options {
		option(o)
	}
}

func (o *optionValues) validate() error {
	if err := ring.CheckSize(o.txSize); err != nil {
		return fmt.Errorf("transmit ring: %w", err)
	}
	if err := ring.CheckSize(o.rxSize); err != nil {
		return fmt.Errorf("receive ring: %w", err)
	}
	if len(o.mac) != 6 {
		return fmt.Errorf("mac address %q is not a 48 bit address", o.mac)
	}
	return nil
}

var optionDefaults = optionValues{
	txSize: DefaultTxRingSize,
	rxSize: DefaultRxRingSize,
	mac:    DefaultMAC,
}

// Option can be passed to [New] to influence driver creation.
type Option func(*optionValues)

// WithTxRingSize returns an [Option] that sets the number of transmit
// descriptors. It must be a multiple of 8 no larger than 65536.
func WithTxRingSize(n int) Option {
	return func(o *optionValues) { o.txSize = n }
}

// WithRxRingSize returns an [Option] that sets the number of receive
// descriptors. It must be a multiple of 8 no larger than 65536. Every receive
// descriptor holds a buffer from the pool for the whole life of the driver.
func WithRxRingSize(n int) Option {
	return func(o *optionValues) { o.rxSize = n }
}

// WithMAC returns an [Option] that sets the unicast address the device accepts.
func WithMAC(mac net.HardwareAddr) Option {
	return func(o *optionValues) { o.mac = mac }
}

// WithMetricsRegistry returns an [Option] that registers the driver's metrics
// with r instead of the default registry.
func WithMetricsRegistry(r metrics.Registry) Option {
	return func(o *optionValues) { o.registry = r }
}
