//go:build linux

package poll

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sys/unix"
)

// Poller wraps a level-triggered epoll instance. It is owned by one
// polling loop and is not safe for concurrent use.
type Poller struct {
	epfd      int
	interests map[int]Interest
	events    []unix.EpollEvent
	closed    bool
}

func New() (*Poller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("poll: epoll_create1: %w", err)
	}
	log.Debug().Int("epfd", epfd).Msg("poll.New")
	return &Poller{
		epfd:      epfd,
		interests: make(map[int]Interest),
		events:    make([]unix.EpollEvent, defaultEventBatch),
	}, nil
}

func (p *Poller) Register(fd int, interest Interest) error {
	if p.closed {
		return ErrClosed
	}
	if _, ok := p.interests[fd]; ok {
		return fmt.Errorf("%w: %d", ErrRegistered, fd)
	}
	ev := unix.EpollEvent{Events: epollMask(interest), Fd: int32(fd)}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		return fmt.Errorf("poll: register fd=%d: %w", fd, err)
	}
	p.interests[fd] = interest
	log.Trace().Int("fd", fd).Stringer("interest", interest).Msg("poll.Register")
	return nil
}

// Modify replaces the interest set of a registered fd.
func (p *Poller) Modify(fd int, interest Interest) error {
	if p.closed {
		return ErrClosed
	}
	current, ok := p.interests[fd]
	if !ok {
		return fmt.Errorf("%w: %d", ErrNotRegistered, fd)
	}
	if current == interest {
		return nil
	}
	ev := unix.EpollEvent{Events: epollMask(interest), Fd: int32(fd)}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, fd, &ev); err != nil {
		return fmt.Errorf("poll: modify fd=%d: %w", fd, err)
	}
	p.interests[fd] = interest
	log.Trace().Int("fd", fd).Stringer("interest", interest).Msg("poll.Modify")
	return nil
}

// Deregister removes fd. Removing an fd that is not registered is a no-op
// so teardown paths can call it unconditionally.
func (p *Poller) Deregister(fd int) error {
	if p.closed {
		return ErrClosed
	}
	if _, ok := p.interests[fd]; !ok {
		return nil
	}
	delete(p.interests, fd)
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil); err != nil && !errors.Is(err, unix.EBADF) && !errors.Is(err, unix.ENOENT) {
		return fmt.Errorf("poll: deregister fd=%d: %w", fd, err)
	}
	log.Trace().Int("fd", fd).Msg("poll.Deregister")
	return nil
}

// Interest returns the registered interest set for fd.
func (p *Poller) Interest(fd int) (Interest, bool) {
	i, ok := p.interests[fd]
	return i, ok
}

// Len is the number of registered handles.
func (p *Poller) Len() int { return len(p.interests) }

// Wait blocks until a registered handle is ready or timeout elapses. A
// negative timeout waits indefinitely. An interrupted wait returns no
// events and no error.
func (p *Poller) Wait(timeout time.Duration) ([]Event, error) {
	if p.closed {
		return nil, ErrClosed
	}
	ms := -1
	if timeout >= 0 {
		ms = int(timeout / time.Millisecond)
		if ms == 0 && timeout > 0 {
			ms = 1
		}
	}
	n, err := unix.EpollWait(p.epfd, p.events, ms)
	if err != nil {
		if errors.Is(err, unix.EINTR) {
			return nil, nil
		}
		return nil, fmt.Errorf("poll: epoll_wait: %w", err)
	}
	out := make([]Event, 0, n)
	for i := 0; i < n; i++ {
		raw := p.events[i]
		ev := Event{FD: int(raw.Fd)}
		ev.Readable = raw.Events&(unix.EPOLLIN|unix.EPOLLRDHUP) != 0
		ev.Writable = raw.Events&unix.EPOLLOUT != 0
		ev.Hangup = raw.Events&(unix.EPOLLHUP|unix.EPOLLERR) != 0
		out = append(out, ev)
	}
	if n == len(p.events) {
		p.events = make([]unix.EpollEvent, 2*n)
	}
	return out, nil
}

func (p *Poller) Close() error {
	if p.closed {
		return nil
	}
	p.closed = true
	p.interests = nil
	return unix.Close(p.epfd)
}

func epollMask(i Interest) uint32 {
	var mask uint32 = unix.EPOLLRDHUP
	if i&Readable != 0 {
		mask |= unix.EPOLLIN
	}
	if i&Writable != 0 {
		mask |= unix.EPOLLOUT
	}
	return mask
}
