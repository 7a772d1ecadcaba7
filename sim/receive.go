package sim

import (
	"fmt"

	"github.com/slackhq/e1000/regs"
	"github.com/slackhq/e1000/ring"
)

// Receive puts frame into the next receive descriptor the device owns and
// raises the receive interrupt. It returns false when the frame was filtered
// or the ring had no free descriptor, which a real device counts as a missed
// packet.
func (d *Device) Receive(frame []byte) (bool, error) {
	ok, raise, err := d.receive(frame)
	if raise {
		d.raise()
	}
	return ok, err
}

func (d *Device) receive(frame []byte) (bool, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(frame) > regs.RctlBufSizeBytes {
		d.rxMissed.Inc(1)
		return false, false, fmt.Errorf("frame of %d bytes is larger than the receive buffers", len(frame))
	}
	if !d.accepts(frame) {
		d.rxFiltered.Inc(1)
		return false, false, nil
	}

	size := d.rxSize()
	head := int(d.regs.Read(regs.RDH))
	if size == 0 || head == int(d.regs.Read(regs.RDT)) {
		d.rxMissed.Inc(1)
		return false, false, nil
	}

	descs, err := d.descriptors(regs.RDBAL, regs.RDBAH, regs.RDLEN)
	if err != nil {
		return false, false, fmt.Errorf("resolve receive ring: %w", err)
	}
	if err := d.fill(&descs[head], frame); err != nil {
		return false, false, fmt.Errorf("fill receive slot %d: %w", head, err)
	}

	d.regs.Poke(regs.RDH, uint32((head+1)%size))
	d.rxFrames.Inc(1)
	return true, d.interrupt(regs.IntRxTimer), nil
}

// fill writes frame into the descriptor's buffer and hands the descriptor back
// to the driver. The status store publishes the length and the data.
func (d *Device) fill(desc *ring.Descriptor, frame []byte) error {
	buf, err := d.mem.Resolve(desc.Addr, len(frame))
	if err != nil {
		return err
	}
	copy(buf, frame)
	desc.Length = uint16(len(frame))
	desc.SetStatus(ring.StatusDone | ring.StatusEndOfPacket)
	return nil
}

// MarkDone completes the receive descriptor at the head with length bytes of
// whatever its buffer holds, without filtering, and raises the receive
// interrupt. It returns the slot that was completed, or -1 when the driver has
// not given the device any descriptor.
func (d *Device) MarkDone(length int) (int, error) {
	slot, raise, err := d.markDone(length)
	if raise {
		d.raise()
	}
	return slot, err
}

func (d *Device) markDone(length int) (int, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	size := d.rxSize()
	head := int(d.regs.Read(regs.RDH))
	if size == 0 || head == int(d.regs.Read(regs.RDT)) {
		return -1, false, nil
	}
	if length < 0 || length > regs.RctlBufSizeBytes {
		return -1, false, fmt.Errorf("invalid receive length %d", length)
	}

	descs, err := d.descriptors(regs.RDBAL, regs.RDBAH, regs.RDLEN)
	if err != nil {
		return -1, false, fmt.Errorf("resolve receive ring: %w", err)
	}
	desc := &descs[head]
	desc.Length = uint16(length)
	desc.SetStatus(ring.StatusDone | ring.StatusEndOfPacket)

	d.regs.Poke(regs.RDH, uint32((head+1)%size))
	d.rxFrames.Inc(1)
	return head, d.interrupt(regs.IntRxTimer), nil
}
