package eventloop

import (
	"strings"

	"golang.org/x/sys/unix"
)

// Conditions is a set of named descriptor-readiness conditions. Call sites
// test membership with Has rather than manipulating raw poll bits.
type Conditions uint8

const (
	// Readable means the descriptor has data available to read.
	Readable Conditions = 1 << iota
	// Writable means the descriptor can accept writes without blocking.
	Writable
	// Error means the descriptor is in an error state.
	Error
	// Hangup means the peer closed its end of the descriptor.
	Hangup
)

// Has reports whether every condition in cond is present in the set.
func (c Conditions) Has(cond Conditions) bool {
	return c&cond == cond
}

// With returns the set extended by cond.
func (c Conditions) With(cond Conditions) Conditions {
	return c | cond
}

// String returns a human-readable form like "readable|hangup".
func (c Conditions) String() string {
	if c == 0 {
		return "none"
	}
	var parts []string
	if c.Has(Readable) {
		parts = append(parts, "readable")
	}
	if c.Has(Writable) {
		parts = append(parts, "writable")
	}
	if c.Has(Error) {
		parts = append(parts, "error")
	}
	if c.Has(Hangup) {
		parts = append(parts, "hangup")
	}
	return strings.Join(parts, "|")
}

// epollBits translates an interest set into epoll event flags. Error and
// hangup are always reported by epoll and need no explicit interest.
func epollBits(c Conditions) uint32 {
	var bits uint32
	if c.Has(Readable) {
		bits |= unix.EPOLLIN
	}
	if c.Has(Writable) {
		bits |= unix.EPOLLOUT
	}
	return bits
}

// conditionsFromEpoll translates epoll event flags back into a condition set.
func conditionsFromEpoll(bits uint32) Conditions {
	var c Conditions
	if bits&unix.EPOLLIN != 0 {
		c = c.With(Readable)
	}
	if bits&unix.EPOLLOUT != 0 {
		c = c.With(Writable)
	}
	if bits&unix.EPOLLERR != 0 {
		c = c.With(Error)
	}
	if bits&unix.EPOLLHUP != 0 {
		c = c.With(Hangup)
	}
	return c
}
