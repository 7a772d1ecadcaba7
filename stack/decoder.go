package stack

import (
	"strings"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/rcrowley/go-metrics"
	"github.com/sirupsen/logrus"
	"github.com/slackhq/e1000/mbuf"
)

// Decoder is the end of the receive path. It decodes every frame, counts it by
// ether type, logs it at debug level and frees the buffer.
type Decoder struct {
	l        *logrus.Logger
	pool     *mbuf.Pool
	registry metrics.Registry

	// Handler, if set, is called with the decoded frame before the buffer is
	// freed. The packet's data is only valid during the call.
	Handler func(p gopacket.Packet)

	malformed metrics.Counter
}

// NewDecoder returns a decoder freeing buffers into pool. Metrics are
// registered with r, or the default registry when r is nil.
func NewDecoder(l *logrus.Logger, pool *mbuf.Pool, r metrics.Registry) *Decoder {
	if r == nil {
		r = metrics.DefaultRegistry
	}
	return &Decoder{
		l:         l,
		pool:      pool,
		registry:  r,
		malformed: metrics.GetOrRegisterCounter("stack.rx.malformed", r),
	}
}

// Deliver decodes and releases b.
func (d *Decoder) Deliver(b *mbuf.Buf) {
	defer d.pool.Free(b)

	p := gopacket.NewPacket(b.Bytes(), layers.LayerTypeEthernet, gopacket.DecodeOptions{Lazy: true, NoCopy: true})
	eth, ok := p.LinkLayer().(*layers.Ethernet)
	if !ok {
		d.malformed.Inc(1)
		d.l.WithField("length", b.Len()).Debug("Dropping frame without an ethernet header")
		return
	}

	d.counter(eth.EthernetType).Inc(1)

	if errLayer := p.ErrorLayer(); errLayer != nil {
		d.malformed.Inc(1)
		d.l.WithError(errLayer.Error()).WithField("length", b.Len()).Debug("Failed to decode frame")
	}

	if d.l.IsLevelEnabled(logrus.DebugLevel) {
		fields := logrus.Fields{
			"src":       eth.SrcMAC,
			"dst":       eth.DstMAC,
			"etherType": eth.EthernetType,
			"length":    b.Len(),
		}
		if ip, ok := p.NetworkLayer().(*layers.IPv4); ok {
			fields["srcIp"] = ip.SrcIP
			fields["dstIp"] = ip.DstIP
		}
		if udp, ok := p.TransportLayer().(*layers.UDP); ok {
			fields["srcPort"] = uint16(udp.SrcPort)
			fields["dstPort"] = uint16(udp.DstPort)
		}
		d.l.WithFields(fields).Debug("Received frame")
	}

	if d.Handler != nil {
		d.Handler(p)
	}
}

func (d *Decoder) counter(t layers.EthernetType) metrics.Counter {
	return metrics.GetOrRegisterCounter("stack.rx.ethertype."+strings.ToLower(t.String()), d.registry)
}
