// Package stack is the receiving side of the driver: whatever consumes the
// frames the device delivered.
package stack

import (
	"github.com/slackhq/e1000/mbuf"
)

// Deliverer takes ownership of a received frame. Deliver must not block and
// cannot fail; whatever happens to the frame afterwards, including freeing the
// buffer, is up to the implementation.
type Deliverer interface {
	Deliver(b *mbuf.Buf)
}

// DelivererFunc adapts a function to a [Deliverer].
type DelivererFunc func(b *mbuf.Buf)

// Deliver calls f(b).
func (f DelivererFunc) Deliver(b *mbuf.Buf) {
	f(b)
}
