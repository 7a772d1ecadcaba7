package stack

import (
	"sync"

	"github.com/eapache/queue"
	"github.com/slackhq/e1000/mbuf"
)

// Queue is an unbounded FIFO of delivered frames. The interrupt handler adds
// to it without blocking and a consumer goroutine takes the frames out.
type Queue struct {
	mu    sync.Mutex
	q     *queue.Queue
	ready chan struct{}
}

// NewQueue returns an empty queue.
func NewQueue() *Queue {
	return &Queue{
		q:     queue.New(),
		ready: make(chan struct{}, 1),
	}
}

// Deliver appends b.
func (q *Queue) Deliver(b *mbuf.Buf) {
	q.mu.Lock()
	q.q.Add(b)
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// Pop removes the oldest frame. It returns false if the queue is empty.
func (q *Queue) Pop() (*mbuf.Buf, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.q.Length() == 0 {
		return nil, false
	}
	return q.q.Remove().(*mbuf.Buf), true
}

// Len returns the number of queued frames.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.q.Length()
}

// Drain hands every queued frame to fn, oldest first, and returns how many
// there were. Frames delivered while draining are included.
func (q *Queue) Drain(fn func(b *mbuf.Buf)) int {
	n := 0
	for {
		b, ok := q.Pop()
		if !ok {
			return n
		}
		fn(b)
		n++
	}
}

// Ready is signalled after frames were added. A single signal may stand for
// any number of frames.
func (q *Queue) Ready() <-chan struct{} {
	return q.ready
}
