package stack

import (
	"net"
	"testing"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/rcrowley/go-metrics"
	"github.com/slackhq/e1000/mbuf"
	"github.com/slackhq/e1000/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testSrc = Endpoint{
		MAC:  net.HardwareAddr{0x52, 0x54, 0x00, 0x12, 0x34, 0x56},
		IP:   net.IPv4(10, 0, 2, 15),
		Port: 2000,
	}
	testDst = Endpoint{
		MAC:  net.HardwareAddr{0x52, 0x55, 0x0a, 0x00, 0x02, 0x02},
		IP:   net.IPv4(10, 0, 2, 2),
		Port: 26099,
	}
)

func TestBuildUDP(t *testing.T) {
	p := newTestPool(t, 1)
	b, err := p.Alloc(0)
	require.NoError(t, err)

	require.NoError(t, BuildUDP(b, testSrc, testDst, []byte("a message from the driver")))
	assert.Equal(t, 14+20+8+25, b.Len())

	pkt := gopacket.NewPacket(b.Bytes(), layers.LayerTypeEthernet, gopacket.Default)
	require.Nil(t, pkt.ErrorLayer())

	eth := pkt.Layer(layers.LayerTypeEthernet).(*layers.Ethernet)
	assert.Equal(t, testSrc.MAC, eth.SrcMAC)
	assert.Equal(t, testDst.MAC, eth.DstMAC)

	ip := pkt.Layer(layers.LayerTypeIPv4).(*layers.IPv4)
	assert.True(t, testSrc.IP.Equal(ip.SrcIP))
	assert.True(t, testDst.IP.Equal(ip.DstIP))

	udp := pkt.Layer(layers.LayerTypeUDP).(*layers.UDP)
	assert.Equal(t, layers.UDPPort(2000), udp.SrcPort)
	assert.Equal(t, layers.UDPPort(26099), udp.DstPort)
	assert.Equal(t, []byte("a message from the driver"), udp.Payload)

	// A non empty buffer is refused.
	assert.Error(t, BuildUDP(b, testSrc, testDst, nil))
}

func TestBuildUDP_TooLarge(t *testing.T) {
	p := newTestPool(t, 1)
	b, err := p.Alloc(0)
	require.NoError(t, err)

	err = BuildUDP(b, testSrc, testDst, make([]byte, mbuf.Size))
	assert.ErrorIs(t, err, ErrFrameTooLarge)
	assert.Zero(t, b.Len())
}

func TestDecoder(t *testing.T) {
	l := test.NewLogger()
	p := newTestPool(t, 2)
	r := metrics.NewRegistry()
	d := NewDecoder(l, p, r)

	var ports []layers.UDPPort
	d.Handler = func(pkt gopacket.Packet) {
		if udp, ok := pkt.TransportLayer().(*layers.UDP); ok {
			ports = append(ports, udp.DstPort)
		}
	}

	b, err := p.Alloc(0)
	require.NoError(t, err)
	require.NoError(t, BuildUDP(b, testSrc, testDst, []byte("ping")))
	d.Deliver(b)
	assert.False(t, p.Allocated(b))
	assert.Equal(t, []layers.UDPPort{26099}, ports)
	assert.Equal(t, int64(1), r.Get("stack.rx.ethertype.ipv4").(metrics.Counter).Count())

	// Too short for an ethernet header.
	b, err = p.Alloc(0)
	require.NoError(t, err)
	copy(b.Put(4), "junk")
	d.Deliver(b)
	assert.False(t, p.Allocated(b))
	assert.Equal(t, int64(1), r.Get("stack.rx.malformed").(metrics.Counter).Count())
	assert.Zero(t, p.InUse())
}
