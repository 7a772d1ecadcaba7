//go:build !linux

package irq

import (
	"errors"
	"sync"
)

// ErrClosed is returned by [Line.Wait] once the line was closed.
var ErrClosed = errors.New("interrupt line closed")

// Line is an interrupt line. Without eventfd it is a one slot channel.
type Line struct {
	ch chan struct{}

	mu     sync.Mutex
	closed bool
}

// NewLine creates a line.
func NewLine() (*Line, error) {
	return &Line{ch: make(chan struct{}, 1)}, nil
}

// WrapFD is only supported on linux.
func WrapFD(int) (*Line, error) {
	return nil, errors.New("eventfd interrupt lines are only supported on linux")
}

// Raise signals the line.
func (l *Line) Raise() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrClosed
	}
	select {
	case l.ch <- struct{}{}:
	default:
	}
	return nil
}

// Wait blocks until the line was raised.
func (l *Line) Wait() error {
	_, ok := <-l.ch
	if !ok {
		return ErrClosed
	}
	return nil
}

// Close wakes up a blocked [Line.Wait], which then returns [ErrClosed].
func (l *Line) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.closed {
		l.closed = true
		close(l.ch)
	}
	return nil
}
