package e1000

import (
	"net"
	"testing"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/slackhq/e1000/config"
	"github.com/slackhq/e1000/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTrafficGeneratorFromConfig(t *testing.T) {
	f := newFixture(t, 64, nil)
	d := f.newDriver(t)
	l := test.NewLogger()

	tests := []struct {
		name    string
		config  string
		wantNil bool
		wantErr bool
	}{
		{name: "disabled", config: "traffic:\n  enabled: false\n", wantNil: true},
		{name: "defaults", config: "traffic:\n  enabled: true\n"},
		{name: "bad port", config: "traffic:\n  enabled: true\n  dst:\n    port: 70000\n", wantErr: true},
		{name: "bad ip", config: "traffic:\n  enabled: true\n  src:\n    ip: ten\n", wantErr: true},
		{name: "bad mac", config: "traffic:\n  enabled: true\n  dst:\n    mac: ff:ff\n", wantErr: true},
		{name: "bad interval", config: "traffic:\n  enabled: true\n  interval: -1s\n", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := config.NewC(l)
			require.NoError(t, c.LoadString(tt.config))
			g, err := newTrafficGeneratorFromConfig(l, c, d, f.pool, DefaultMAC)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantNil, g == nil)
		})
	}
}

func TestTrafficGenerator_Send(t *testing.T) {
	f := newFixture(t, 64, nil)
	d := f.newDriver(t, WithTxRingSize(8))
	l := test.NewLogger()

	c := config.NewC(l)
	require.NoError(t, c.LoadString(`
traffic:
  enabled: true
  interval: 1h
  payload: hello
  dst:
    ip: 10.0.2.2
    port: 4000
`))
	g, err := newTrafficGeneratorFromConfig(l, c, d, f.pool, DefaultMAC)
	require.NoError(t, err)

	var frames [][]byte
	f.dev.OnTransmit = func(frame []byte) {
		frames = append(frames, frame)
	}

	// A full ring skips frames instead of failing.
	for range 10 {
		require.NoError(t, g.send())
	}
	assert.Equal(t, int64(8), d.Stats().TxPackets)
	assert.Equal(t, int64(2), d.Stats().TxBusy)

	n, err := f.dev.CompleteTx(-1)
	require.NoError(t, err)
	assert.Equal(t, 8, n)
	require.Len(t, frames, 8)

	pkt := gopacket.NewPacket(frames[0], layers.LayerTypeEthernet, gopacket.Default)
	eth := pkt.Layer(layers.LayerTypeEthernet).(*layers.Ethernet)
	assert.Equal(t, DefaultMAC, eth.SrcMAC)
	assert.Equal(t, broadcastMAC, eth.DstMAC)
	ip := pkt.Layer(layers.LayerTypeIPv4).(*layers.IPv4)
	assert.True(t, net.IPv4(10, 0, 2, 15).Equal(ip.SrcIP))
	assert.True(t, net.IPv4(10, 0, 2, 2).Equal(ip.DstIP))
	udp := pkt.Layer(layers.LayerTypeUDP).(*layers.UDP)
	assert.Equal(t, layers.UDPPort(4000), udp.DstPort)
	assert.Equal(t, []byte("hello"), udp.Payload)

	// Completed slots are reused, freeing the frames they held.
	require.NoError(t, g.send())
	assert.Equal(t, 64-d.rx.Size()-8, f.pool.Cap()-f.pool.InUse())
}
