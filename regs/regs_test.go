package regs

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type w1cTrap struct {
	written []Reg
}

func (t *w1cTrap) Filter(r Reg, old, v uint32) uint32 {
	if r == ICR {
		return old &^ v
	}
	return v
}

func (t *w1cTrap) Written(r Reg, _, _ uint32) {
	t.written = append(t.written, r)
}

func TestFile_ReadWrite(t *testing.T) {
	f := NewEmulated(Size, nil)

	f.Write(TDT, 7)
	assert.Equal(t, uint32(7), f.Read(TDT))

	f.Write(RA+4, 0x5634)
	f.Or(RA+4, RAValid)
	assert.Equal(t, uint32(0x80005634), f.Read(RA+4))

	assert.Panics(t, func() { f.Read(TDT + 1) })
	assert.NoError(t, f.Close())
}

func TestFile_Trap(t *testing.T) {
	trap := &w1cTrap{}
	f := NewEmulated(Size, trap)

	f.SetBits(ICR, IntRxTimer|IntTxDescWritten)
	assert.Empty(t, trap.written, "device side writes bypass the trap")

	f.Write(ICR, IntRxTimer)
	assert.Equal(t, IntTxDescWritten, f.Read(ICR))

	f.Write(ICR, IntAll)
	assert.Zero(t, f.Read(ICR))

	f.Write(TDT, 3)
	f.Poke(TDH, 2)
	assert.Equal(t, []Reg{ICR, ICR, TDT}, trap.written)
	assert.Equal(t, uint32(2), f.Read(TDH))

	f.SetBits(IMS, IntRxTimer)
	f.ClearBits(IMS, IntRxTimer)
	assert.Zero(t, f.Read(IMS))
}
