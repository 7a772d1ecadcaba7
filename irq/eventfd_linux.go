//go:build linux

package irq

import (
	"encoding/binary"
	"errors"

	"golang.org/x/sys/unix"
)

type eventFD struct {
	fd  int
	buf [8]byte
}

func newEventFD() (eventFD, error) {
	fd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		return eventFD{fd: -1}, err
	}
	return eventFD{fd: fd}, nil
}

func (e *eventFD) kick() error {
	binary.NativeEndian.PutUint64(e.buf[:], 1)
	_, err := unix.Write(e.fd, e.buf[:])
	if errors.Is(err, unix.EAGAIN) {
		// The counter is saturated, a wakeup is pending anyway.
		return nil
	}
	return err
}

// clear resets the counter. A counter that is already zero is not an error.
func (e *eventFD) clear() error {
	var buf [8]byte
	_, err := unix.Read(e.fd, buf[:])
	if errors.Is(err, unix.EAGAIN) {
		return nil
	}
	return err
}

// close releases the descriptor. fd is left alone since a waiter may still
// read it.
func (e *eventFD) close() error {
	if e.fd < 0 {
		return nil
	}
	return unix.Close(e.fd)
}

type epoll struct {
	fd     int
	events []unix.EpollEvent
}

func newEpoll(fd int) (epoll, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return epoll{fd: -1}, err
	}
	event := unix.EpollEvent{
		Events: unix.EPOLLIN,
		Fd:     int32(fd),
	}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, fd, &event); err != nil {
		_ = unix.Close(epfd)
		return epoll{fd: -1}, err
	}
	return epoll{
		fd:     epfd,
		events: make([]unix.EpollEvent, 1),
	}, nil
}

// block waits until the watched descriptor is readable.
func (ep *epoll) block() error {
	for {
		n, err := unix.EpollWait(ep.fd, ep.events, -1)
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return err
		}
		if n > 0 {
			return nil
		}
	}
}

func (ep *epoll) close() error {
	if ep.fd < 0 {
		return nil
	}
	return unix.Close(ep.fd)
}
