package mbuf

import (
	"testing"

	"github.com/rcrowley/go-metrics"
	"github.com/slackhq/e1000/dma"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPool(t *testing.T, count int) (*Pool, metrics.Registry) {
	mem, err := dma.NewAllocator(dma.TranslateIdentity)
	require.NoError(t, err)
	r := metrics.NewRegistry()
	p, err := NewPool(mem, count, r)
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, p.Close())
	})
	return p, r
}

func TestPool_AllocFree(t *testing.T) {
	p, r := newTestPool(t, 2)

	a, err := p.Alloc(0)
	require.NoError(t, err)
	b, err := p.Alloc(0)
	require.NoError(t, err)
	assert.Equal(t, 2, p.InUse())
	assert.Equal(t, a.PayloadAddr()+Size, b.PayloadAddr())

	_, err = p.Alloc(0)
	assert.ErrorIs(t, err, ErrExhausted)
	assert.Equal(t, int64(1), r.Get("mbuf.alloc_failures").(metrics.Counter).Count())

	p.Free(a)
	assert.False(t, p.Allocated(a))
	assert.True(t, p.Allocated(b))
	assert.Equal(t, int64(1), r.Get("mbuf.in_use").(metrics.Gauge).Value())

	c, err := p.Alloc(0)
	require.NoError(t, err)
	assert.Same(t, a, c)
}

func TestPool_DoubleFree(t *testing.T) {
	p, _ := newTestPool(t, 1)

	b, err := p.Alloc(0)
	require.NoError(t, err)
	p.Free(b)
	assert.Panics(t, func() { p.Free(b) })

	other, _ := newTestPool(t, 1)
	ob, err := other.Alloc(0)
	require.NoError(t, err)
	assert.Panics(t, func() { p.Free(ob) })
}

func TestBuf_Payload(t *testing.T) {
	p, _ := newTestPool(t, 1)

	b, err := p.Alloc(14)
	require.NoError(t, err)
	assert.Equal(t, 14, b.Headroom())
	assert.Zero(t, b.Len())
	base := b.PayloadAddr()

	copy(b.Put(5), "hello")
	assert.Equal(t, []byte("hello"), b.Bytes())

	copy(b.Push(2), "<<")
	assert.Equal(t, []byte("<<hello"), b.Bytes())
	assert.Equal(t, base-2, b.PayloadAddr())

	assert.Equal(t, []byte("<<"), b.Pull(2))
	assert.Equal(t, []byte("lo"), b.Trim(2))
	assert.Equal(t, []byte("hel"), b.Bytes())
	assert.Nil(t, b.Pull(4))
	assert.Nil(t, b.Trim(4))

	assert.Panics(t, func() { b.Push(b.Headroom() + 1) })
	assert.Panics(t, func() { b.Put(Size) })

	b.Reset(0)
	b.Put(Size)
	assert.Equal(t, Size, b.Len())
}
