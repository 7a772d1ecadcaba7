package stack

import (
	"errors"
	"fmt"
	"net"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/slackhq/e1000/mbuf"
)

// ErrFrameTooLarge is returned when a frame does not fit into a buffer.
var ErrFrameTooLarge = errors.New("frame does not fit into a buffer")

// Endpoint is one side of a UDP flow.
type Endpoint struct {
	MAC  net.HardwareAddr
	IP   net.IP
	Port uint16
}

// BuildUDP serializes an ethernet, IPv4 and UDP frame carrying payload into the
// empty buffer b.
func BuildUDP(b *mbuf.Buf, src, dst Endpoint, payload []byte) error {
	eth := layers.Ethernet{
		SrcMAC:       src.MAC,
		DstMAC:       dst.MAC,
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    src.IP.To4(),
		DstIP:    dst.IP.To4(),
	}
	udp := layers.UDP{
		SrcPort: layers.UDPPort(src.Port),
		DstPort: layers.UDPPort(dst.Port),
	}
	if err := udp.SetNetworkLayerForChecksum(&ip); err != nil {
		return err
	}

	buffer := gopacket.NewSerializeBuffer()
	opt := gopacket.SerializeOptions{
		ComputeChecksums: true,
		FixLengths:       true,
	}
	if err := gopacket.SerializeLayers(buffer, opt, &eth, &ip, &udp, gopacket.Payload(payload)); err != nil {
		return fmt.Errorf("serialize udp frame: %w", err)
	}

	frame := buffer.Bytes()
	if b.Len() != 0 {
		return errors.New("frame buffer is not empty")
	}
	if len(frame) > mbuf.Size-b.Headroom() {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(frame))
	}
	copy(b.Put(len(frame)), frame)
	return nil
}
