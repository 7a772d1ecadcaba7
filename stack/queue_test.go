package stack

import (
	"testing"

	"github.com/rcrowley/go-metrics"
	"github.com/slackhq/e1000/dma"
	"github.com/slackhq/e1000/mbuf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPool(t *testing.T, count int) *mbuf.Pool {
	mem, err := dma.NewAllocator(dma.TranslateIdentity)
	require.NoError(t, err)
	p, err := mbuf.NewPool(mem, count, metrics.NewRegistry())
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, p.Close())
	})
	return p
}

func TestQueue(t *testing.T) {
	p := newTestPool(t, 4)
	q := NewQueue()

	_, ok := q.Pop()
	assert.False(t, ok)

	var in []*mbuf.Buf
	for range 3 {
		b, err := p.Alloc(0)
		require.NoError(t, err)
		in = append(in, b)
		q.Deliver(b)
	}
	assert.Equal(t, 3, q.Len())

	select {
	case <-q.Ready():
	default:
		t.Fatal("queue did not signal readiness")
	}

	first, ok := q.Pop()
	require.True(t, ok)
	assert.Same(t, in[0], first)

	var out []*mbuf.Buf
	assert.Equal(t, 2, q.Drain(func(b *mbuf.Buf) {
		out = append(out, b)
	}))
	assert.Equal(t, in[1:], out)
	assert.Zero(t, q.Len())
}
