package e1000

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/slackhq/e1000/config"
	"github.com/slackhq/e1000/dma"
	"github.com/slackhq/e1000/irq"
	"github.com/slackhq/e1000/mbuf"
	"github.com/slackhq/e1000/regs"
	"github.com/slackhq/e1000/sim"
	"github.com/slackhq/e1000/stack"
	"github.com/slackhq/e1000/util"
	"go.yaml.in/yaml/v3"
)

type m = map[string]any

// Device backends.
const (
	BackendSim = "sim"
	BackendPCI = "pci"
)

// Main builds the driver and everything around it from the config. With
// configTest set the config is validated and printed, nothing touches a
// device, and the returned Control is nil.
func Main(c *config.C, configTest bool, buildVersion string, logger *logrus.Logger) (_ *Control, retErr error) {
	l := logger
	l.Formatter = &logrus.TextFormatter{
		FullTimestamp: true,
	}

	// Print the config if in test, the exit comes later
	if configTest {
		b, err := yaml.Marshal(c.Settings)
		if err != nil {
			return nil, err
		}
		l.Println(string(b))
	}

	if err := configLogger(l, c); err != nil {
		return nil, util.NewContextualError("Failed to configure the logger", nil, err)
	}
	c.RegisterReloadCallback(func(c *config.C) {
		if err := configLogger(l, c); err != nil {
			l.WithError(err).Error("Failed to configure the logger")
		}
	})

	mac, err := c.GetHardwareAddr("device.mac", DefaultMAC)
	if err != nil {
		return nil, util.NewContextualError("Invalid device.mac", nil, err)
	}
	options := []Option{
		WithTxRingSize(c.GetInt("rings.tx_size", DefaultTxRingSize)),
		WithRxRingSize(c.GetInt("rings.rx_size", DefaultRxRingSize)),
		WithMAC(mac),
	}
	opts := optionDefaults
	opts.apply(options)
	if err := opts.validate(); err != nil {
		return nil, util.NewContextualError("Invalid ring configuration", m{"txSize": opts.txSize, "rxSize": opts.rxSize}, err)
	}

	bufCount := c.GetInt("buffers.count", 256)
	if bufCount < opts.rxSize {
		return nil, util.NewContextualError("buffers.count can not populate the receive ring",
			m{"count": bufCount, "rxSize": opts.rxSize}, ErrAllocationExhausted)
	}

	backend := c.GetString("device.backend", BackendSim)
	switch backend {
	case BackendSim, BackendPCI:
	default:
		return nil, util.NewContextualError("Unknown device.backend", m{"backend": backend}, nil)
	}

	statsStart, err := startStats(l, c, buildVersion, configTest)
	if err != nil {
		return nil, util.NewContextualError("Failed to start stats emitter", nil, err)
	}

	if configTest {
		return nil, nil
	}

	////////////////////////////////////////////////////////////////////////////////////////////////////////////////////
	// All non device touching configuration consumption should live above this line
	////////////////////////////////////////////////////////////////////////////////////////////////////////////////////

	mem, err := dma.NewAllocator(c.GetString("dma.translate", dma.TranslateIdentity))
	if err != nil {
		return nil, util.NewContextualError("Invalid dma.translate", nil, err)
	}

	pool, err := mbuf.NewPool(mem, bufCount, nil)
	if err != nil {
		return nil, util.NewContextualError("Failed to allocate packet buffers", m{"count": bufCount}, err)
	}
	defer func() {
		if retErr != nil {
			_ = pool.Close()
		}
	}()

	line, err := irq.NewLine()
	if err != nil {
		return nil, util.NewContextualError("Failed to create the interrupt line", nil, err)
	}
	defer func() {
		if retErr != nil {
			_ = line.Close()
		}
	}()

	var runners []runFunc
	var rf *regs.File
	switch backend {
	case BackendSim:
		dev := sim.New(l, mem, line, nil)
		if c.GetBool("sim.loopback", true) {
			dev.Loopback()
		}
		delay := c.GetDuration("sim.tx_interval", 0)
		runners = append(runners, func(ctx context.Context) error {
			return dev.Run(ctx, delay)
		})
		rf = dev.Regs()
		l.WithField("loopback", c.GetBool("sim.loopback", true)).Info("Using the emulated device")

	case BackendPCI:
		resource := c.GetString("device.pci.resource", "")
		if resource == "" {
			return nil, util.NewContextualError("device.pci.resource must be set for the pci backend", nil, nil)
		}
		rf, err = regs.MapResource(resource)
		if err != nil {
			return nil, util.NewContextualError("Failed to map the device registers", m{"resource": resource}, err)
		}
		interval := c.GetDuration("device.pci.poll_interval", time.Millisecond)
		runners = append(runners, func(ctx context.Context) error {
			return irq.Poll(ctx, rf, interval, line)
		})
		l.WithField("resource", resource).Info("Using a pci device")
	}
	defer func() {
		if retErr != nil {
			_ = rf.Close()
		}
	}()

	queue := stack.NewQueue()
	d, err := New(l, rf, mem, pool, queue, options...)
	if err != nil {
		return nil, err
	}
	runners = append(runners, func(ctx context.Context) error {
		return d.ServeInterrupts(ctx, line)
	})

	gen, err := newTrafficGeneratorFromConfig(l, c, d, pool, mac)
	if err != nil {
		_ = d.Close()
		return nil, util.NewContextualError("Invalid traffic configuration", nil, err)
	}
	if gen != nil {
		runners = append(runners, gen.Run)
	}

	if statsStart != nil {
		runners = append(runners, func(ctx context.Context) error {
			// The exporters have no way to stop, an error ends the daemon.
			errc := make(chan error, 1)
			go func() { errc <- statsStart() }()
			select {
			case <-ctx.Done():
				return nil
			case err := <-errc:
				if err != nil {
					return fmt.Errorf("stats: %w", err)
				}
				<-ctx.Done()
				return nil
			}
		})
	}

	return &Control{
		l:       l,
		c:       c,
		d:       d,
		regs:    rf,
		line:    line,
		pool:    pool,
		queue:   queue,
		decode:  stack.NewDecoder(l, pool, nil),
		runners: runners,
	}, nil
}
