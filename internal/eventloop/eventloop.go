// Package eventloop provides the single-threaded cooperative event loop the
// daemon runs on. File descriptors are registered for readiness interest and
// their callbacks run sequentially on the loop goroutine; Post hands work
// from other goroutines onto the loop, which is the only place loop-owned
// state may be touched.
package eventloop

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// ErrLoopClosed is returned by registrations against a loop that has been
// closed.
var ErrLoopClosed = errors.New("event loop closed")

// IOCallback handles a readiness notification for a registered descriptor.
// It runs on the loop goroutine and must not block. Returning false removes
// the registration; returning true keeps it alive.
type IOCallback func(Conditions) bool

// IOSource is a live descriptor registration. It is owned by whoever
// registered it and stays active until Remove is called or its callback
// returns false.
type IOSource struct {
	loop    *Loop
	fd      int
	cb      IOCallback
	removed atomic.Bool
}

// Fd returns the registered descriptor.
func (s *IOSource) Fd() int {
	return s.fd
}

// Remove deregisters the source. It is idempotent and safe to call from
// within any loop callback, including the source's own.
func (s *IOSource) Remove() {
	if s.removed.Swap(true) {
		return
	}
	s.loop.removeSource(s)
}

// Loop multiplexes descriptor readiness over epoll and runs callbacks one at
// a time on the goroutine that called Run. No callback for one source can
// interleave with a callback for another.
type Loop struct {
	logger *slog.Logger

	epollFd int
	wakeFd  int

	mu      sync.Mutex
	sources map[int]*IOSource
	posted  []func()
	closed  bool

	quitting atomic.Bool
}

// New creates an event loop backed by an epoll instance and an eventfd used
// to interrupt waits for posted work.
func New(logger *slog.Logger) (*Loop, error) {
	if logger == nil {
		logger = slog.Default()
	}

	epollFd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("epoll_create1: %w", err)
	}

	wakeFd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		unix.Close(epollFd)
		return nil, fmt.Errorf("eventfd: %w", err)
	}

	l := &Loop{
		logger:  logger,
		epollFd: epollFd,
		wakeFd:  wakeFd,
		sources: make(map[int]*IOSource),
	}

	event := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(wakeFd)}
	if err := unix.EpollCtl(epollFd, unix.EPOLL_CTL_ADD, wakeFd, &event); err != nil {
		unix.Close(wakeFd)
		unix.Close(epollFd)
		return nil, fmt.Errorf("epoll_ctl add wakeup: %w", err)
	}

	return l, nil
}

// AddIOEvent registers fd for the given readiness interest. Error and hangup
// are always delivered regardless of interest. The returned source must be
// removed before fd is closed, or a recycled descriptor may receive stale
// events.
func (l *Loop) AddIOEvent(fd int, interest Conditions, cb IOCallback) (*IOSource, error) {
	if cb == nil {
		return nil, errors.New("nil callback")
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, ErrLoopClosed
	}
	if _, exists := l.sources[fd]; exists {
		return nil, fmt.Errorf("descriptor %d already registered", fd)
	}

	event := unix.EpollEvent{Events: epollBits(interest), Fd: int32(fd)}
	if err := unix.EpollCtl(l.epollFd, unix.EPOLL_CTL_ADD, fd, &event); err != nil {
		return nil, fmt.Errorf("epoll_ctl add fd %d: %w", fd, err)
	}

	src := &IOSource{loop: l, fd: fd, cb: cb}
	l.sources[fd] = src
	return src, nil
}

// Post schedules fn to run on the loop goroutine. It is safe to call from
// any goroutine and is the only supported way to reach loop-owned state from
// outside the loop.
func (l *Loop) Post(fn func()) {
	if fn == nil {
		return
	}
	l.mu.Lock()
	l.posted = append(l.posted, fn)
	closed := l.closed
	l.mu.Unlock()
	if !closed {
		l.wake()
	}
}

// Quit asks Run to return after the current callback completes. Safe to call
// from any goroutine.
func (l *Loop) Quit() {
	l.quitting.Store(true)
	l.wake()
}

// Run dispatches readiness callbacks and posted work until Quit is called or
// ctx is cancelled. It returns ctx.Err() in the latter case.
func (l *Loop) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, l.Quit)
	defer stop()

	events := make([]unix.EpollEvent, 64)
	for {
		if l.quitting.Load() {
			l.quitting.Store(false)
			return ctx.Err()
		}

		n, err := unix.EpollWait(l.epollFd, events, -1)
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return fmt.Errorf("epoll_wait: %w", err)
		}

		for i := 0; i < n; i++ {
			fd := int(events[i].Fd)
			if fd == l.wakeFd {
				l.drainWake()
				l.runPosted()
				continue
			}
			l.dispatch(fd, conditionsFromEpoll(events[i].Events))
		}
	}
}

// dispatch delivers one readiness notification, tolerating sources removed
// earlier in the same wait batch.
func (l *Loop) dispatch(fd int, cond Conditions) {
	l.mu.Lock()
	src := l.sources[fd]
	l.mu.Unlock()

	if src == nil || src.removed.Load() {
		return
	}
	if !src.cb(cond) {
		src.Remove()
	}
}

// runPosted runs everything posted so far. Work posted by a posted function
// lands in the next batch.
func (l *Loop) runPosted() {
	l.mu.Lock()
	batch := l.posted
	l.posted = nil
	l.mu.Unlock()

	for _, fn := range batch {
		fn()
	}
}

func (l *Loop) removeSource(s *IOSource) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.sources[s.fd] != s {
		return
	}
	delete(l.sources, s.fd)
	if err := unix.EpollCtl(l.epollFd, unix.EPOLL_CTL_DEL, s.fd, nil); err != nil {
		l.logger.Debug("epoll_ctl del failed", "fd", s.fd, "error", err)
	}
}

func (l *Loop) wake() {
	var buf [8]byte
	binary.NativeEndian.PutUint64(buf[:], 1)
	for {
		_, err := unix.Write(l.wakeFd, buf[:])
		if errors.Is(err, unix.EINTR) {
			continue
		}
		return
	}
}

func (l *Loop) drainWake() {
	var buf [8]byte
	for {
		_, err := unix.Read(l.wakeFd, buf[:])
		if err != nil {
			return
		}
	}
}

// Close releases the loop's descriptors. The loop must not be running.
func (l *Loop) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	l.sources = nil
	unix.Close(l.wakeFd)
	return unix.Close(l.epollFd)
}
