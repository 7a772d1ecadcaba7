package e1000

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/rcrowley/go-metrics"
	"github.com/sirupsen/logrus"
	"github.com/slackhq/e1000/config"
	"github.com/slackhq/e1000/mbuf"
	"github.com/slackhq/e1000/stack"
)

// headroom reserved in front of generated frames.
const trafficHeadroom = 64

// trafficGenerator sends one UDP frame per interval, like the ping loop of a
// network smoke test.
type trafficGenerator struct {
	l        *logrus.Logger
	d        *Driver
	pool     *mbuf.Pool
	src      stack.Endpoint
	dst      stack.Endpoint
	payload  []byte
	interval time.Duration

	sent    metrics.Counter
	skipped metrics.Counter
}

func newTrafficGeneratorFromConfig(l *logrus.Logger, c *config.C, d *Driver, pool *mbuf.Pool, mac net.HardwareAddr) (*trafficGenerator, error) {
	if !c.GetBool("traffic.enabled", false) {
		return nil, nil
	}

	src, err := endpointFromConfig(c, "traffic.src", stack.Endpoint{MAC: mac, IP: net.IPv4(10, 0, 2, 15), Port: 2000})
	if err != nil {
		return nil, err
	}
	dst, err := endpointFromConfig(c, "traffic.dst", stack.Endpoint{MAC: broadcastMAC, IP: net.IPv4bcast, Port: 26099})
	if err != nil {
		return nil, err
	}

	interval := c.GetDuration("traffic.interval", time.Second)
	if interval <= 0 {
		return nil, fmt.Errorf("traffic.interval must be positive: %s", c.GetString("traffic.interval", ""))
	}

	return &trafficGenerator{
		l:        l,
		d:        d,
		pool:     pool,
		src:      src,
		dst:      dst,
		payload:  []byte(c.GetString("traffic.payload", "a message from e1000!")),
		interval: interval,
		sent:     metrics.GetOrRegisterCounter("traffic.sent", nil),
		skipped:  metrics.GetOrRegisterCounter("traffic.skipped", nil),
	}, nil
}

var broadcastMAC = net.HardwareAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}

// endpointFromConfig reads the mac, ip and port below prefix.
func endpointFromConfig(c *config.C, prefix string, d stack.Endpoint) (stack.Endpoint, error) {
	var err error
	e := d
	if e.MAC, err = c.GetHardwareAddr(prefix+".mac", d.MAC); err != nil {
		return e, err
	}
	if e.IP, err = c.GetIP(prefix+".ip", d.IP); err != nil {
		return e, err
	}
	port := c.GetInt(prefix+".port", int(d.Port))
	if port <= 0 || port > 65535 {
		return e, fmt.Errorf("%s.port is out of range: %d", prefix, port)
	}
	e.Port = uint16(port)
	return e, nil
}

// Run sends frames until ctx is done.
func (g *trafficGenerator) Run(ctx context.Context) error {
	t := time.NewTicker(g.interval)
	defer t.Stop()

	g.l.WithFields(logrus.Fields{
		"src":      fmt.Sprintf("%s:%d", g.src.IP, g.src.Port),
		"dst":      fmt.Sprintf("%s:%d", g.dst.IP, g.dst.Port),
		"interval": g.interval,
	}).Info("Sending test traffic")

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}

		if err := g.send(); err != nil {
			return err
		}
	}
}

// send transmits one frame. Running out of buffers or ring slots skips the
// frame, anything else is an error.
func (g *trafficGenerator) send() error {
	b, err := g.pool.Alloc(trafficHeadroom)
	if err != nil {
		g.skipped.Inc(1)
		g.l.WithError(err).Debug("Skipping test frame")
		return nil
	}

	if err := stack.BuildUDP(b, g.src, g.dst, g.payload); err != nil {
		g.pool.Free(b)
		return err
	}

	err = g.d.Transmit(b)
	switch {
	case err == nil:
		g.sent.Inc(1)
		return nil
	case errors.Is(err, ErrRingBusy):
		g.pool.Free(b)
		g.skipped.Inc(1)
		return nil
	default:
		g.pool.Free(b)
		return err
	}
}
