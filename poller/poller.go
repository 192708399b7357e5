// Package poller implements spec.md §4.E's socket readiness contract:
// given a file descriptor, a {readable, writable} bitmask and a
// millisecond timeout (-1 = indefinite), return the observed subset.
// It is backed by Linux epoll via golang.org/x/sys/unix, promoted from
// the teacher's transitive dependency to a direct one (see DESIGN.md).
package poller

import (
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// Interest is the readiness bitmask a caller asks to be notified about.
type Interest uint32

const (
	Readable Interest = 1 << iota
	Writable
)

// Poller wraps one epoll instance watching exactly one file descriptor
// at a time, matching a Connection's single-socket ownership model
// (spec.md §5: no locks, one caller at a time).
type Poller struct {
	epfd int
	fd   int
}

// New creates an epoll instance and registers fd for the given initial
// interest set.
func New(fd int, interest Interest) (*Poller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, errors.Wrap(err, "poller: epoll_create1")
	}
	p := &Poller{epfd: epfd, fd: fd}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, fd, &unix.EpollEvent{
		Events: epollEvents(interest),
		Fd:     int32(fd),
	}); err != nil {
		unix.Close(epfd)
		return nil, errors.Wrap(err, "poller: epoll_ctl add")
	}
	return p, nil
}

// SetInterest changes the bitmask the poller watches fd for.
func (p *Poller) SetInterest(interest Interest) error {
	err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, p.fd, &unix.EpollEvent{
		Events: epollEvents(interest),
		Fd:     int32(p.fd),
	})
	if err != nil {
		return errors.Wrap(err, "poller: epoll_ctl mod")
	}
	return nil
}

// Wait blocks until fd becomes ready for any bit in interest, or
// timeoutMs elapses (-1 means wait indefinitely). It returns the
// observed subset of Readable/Writable; a zero result with a nil error
// means the timeout elapsed with nothing ready.
func (p *Poller) Wait(timeoutMs int) (Interest, error) {
	if timeoutMs < -1 {
		return 0, errors.Errorf("poller: invalid timeout %d", timeoutMs)
	}
	var events [1]unix.EpollEvent
	for {
		n, err := unix.EpollWait(p.epfd, events[:], timeoutMs)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return 0, errors.Wrap(err, "poller: epoll_wait")
		}
		if n == 0 {
			return 0, nil
		}
		return interestFromEpollEvents(events[0].Events), nil
	}
}

// Close releases the epoll instance. It does not close the watched fd,
// which the caller still owns.
func (p *Poller) Close() error {
	if err := unix.Close(p.epfd); err != nil {
		return errors.Wrap(err, "poller: close")
	}
	return nil
}

func epollEvents(interest Interest) uint32 {
	var ev uint32
	if interest&Readable != 0 {
		ev |= unix.EPOLLIN
	}
	if interest&Writable != 0 {
		ev |= unix.EPOLLOUT
	}
	return ev
}

func interestFromEpollEvents(ev uint32) Interest {
	var interest Interest
	if ev&(unix.EPOLLIN|unix.EPOLLHUP|unix.EPOLLERR) != 0 {
		interest |= Readable
	}
	if ev&(unix.EPOLLOUT|unix.EPOLLERR) != 0 {
		interest |= Writable
	}
	return interest
}
