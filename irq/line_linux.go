//go:build linux

package irq

import (
	"errors"
	"fmt"
	"sync"
)

// ErrClosed is returned by [Line.Wait] once the line was closed.
var ErrClosed = errors.New("interrupt line closed")

// Line is an interrupt line backed by an eventfd, so it can also be fed by the
// kernel, e.g. a VFIO MSI eventfd.
type Line struct {
	efd eventFD
	ep  epoll

	mu     sync.Mutex
	closed bool
	// waiters counts goroutines inside epoll. The descriptors are released
	// by whoever sees closed with no waiter left.
	waiters int
}

// NewLine creates a line with its own eventfd.
func NewLine() (_ *Line, err error) {
	efd, err := newEventFD()
	if err != nil {
		return nil, fmt.Errorf("create interrupt eventfd: %w", err)
	}
	defer func() {
		if err != nil {
			_ = efd.close()
		}
	}()
	return wrap(efd)
}

// WrapFD creates a line that waits on an existing eventfd. The line takes over
// the descriptor and closes it in [Line.Close].
func WrapFD(fd int) (*Line, error) {
	return wrap(eventFD{fd: fd})
}

func wrap(efd eventFD) (*Line, error) {
	ep, err := newEpoll(efd.fd)
	if err != nil {
		return nil, fmt.Errorf("watch interrupt eventfd: %w", err)
	}
	return &Line{efd: efd, ep: ep}, nil
}

// Raise signals the line.
func (l *Line) Raise() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrClosed
	}
	if err := l.efd.kick(); err != nil {
		return fmt.Errorf("raise interrupt: %w", err)
	}
	return nil
}

// Wait blocks until the line was raised and acknowledges the signal. It
// returns [ErrClosed] once the line is closed, without blocking.
func (l *Line) Wait() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrClosed
	}
	l.waiters++
	l.mu.Unlock()

	blockErr := l.ep.block()

	l.mu.Lock()
	defer l.mu.Unlock()
	l.waiters--
	if l.closed {
		if l.waiters == 0 {
			_ = l.release()
		}
		return ErrClosed
	}
	if blockErr != nil {
		return fmt.Errorf("wait for interrupt: %w", blockErr)
	}
	if err := l.efd.clear(); err != nil {
		return fmt.Errorf("acknowledge interrupt: %w", err)
	}
	return nil
}

// Close wakes up every blocked [Line.Wait], which then returns [ErrClosed].
// The descriptors are released by the last waiter to leave, or right away
// when nobody waits.
func (l *Line) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true

	// The eventfd stays registered until the waiters are gone, so the fake
	// interrupt is what gets them out of epoll.
	if l.waiters > 0 {
		return l.efd.kick()
	}
	return l.release()
}

// release closes both descriptors. Called with mu held and no waiter left.
func (l *Line) release() error {
	return errors.Join(l.ep.close(), l.efd.close())
}
