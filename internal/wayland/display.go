package wayland

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// Core protocol object ids and opcodes. Object 1 is always the display
// singleton; client-allocated ids start right after it.
const (
	displayObjectID = 1
	firstClientID   = 2

	// wl_display requests
	opDisplaySync        = 0
	opDisplayGetRegistry = 1

	// wl_display events
	evDisplayError    = 0
	evDisplayDeleteID = 1

	// wl_callback events
	evCallbackDone = 0

	// wl_registry events
	evRegistryGlobal       = 0
	evRegistryGlobalRemove = 1
)

// ErrClosed is returned once the compositor has hung up or Close has been
// called. The display stays in this state; callers should tear it down.
var ErrClosed = errors.New("wayland: display closed")

// Global describes one advertised compositor global.
type Global struct {
	Name      uint32
	Interface string
	Version   uint32
}

// proxy receives events for one client-side object id.
type proxy interface {
	dispatch(d *Display, opcode uint16, data []byte)
}

// Display is a client connection to a Wayland compositor. It never blocks:
// reads and writes go through a non-blocking socket, and the caller drives
// the prepare-read / read / dispatch / flush cycle from an event loop.
//
// Display is not safe for concurrent use. Confine it to the goroutine that
// runs the owning event loop.
type Display struct {
	fd   int
	name string

	nextID  uint32
	objects map[uint32]proxy

	rx    []byte    // raw bytes not yet framed
	queue []message // framed events not yet dispatched
	tx    []byte    // encoded requests not yet written

	reading bool // a prepared read is outstanding

	err       error  // fatal display error, nil while healthy
	errorCode uint32 // nonzero once err is set
}

// Connect opens the compositor socket for the named display. An empty name
// falls back to $WAYLAND_DISPLAY and then to "wayland-0". Relative names
// resolve under $XDG_RUNTIME_DIR; absolute names are used as-is.
func Connect(name string) (*Display, error) {
	resolved := name
	if resolved == "" {
		resolved = os.Getenv("WAYLAND_DISPLAY")
	}
	if resolved == "" {
		resolved = "wayland-0"
	}
	path := resolved
	if !filepath.IsAbs(path) {
		runtimeDir := os.Getenv("XDG_RUNTIME_DIR")
		if runtimeDir == "" {
			return nil, errors.New("wayland: XDG_RUNTIME_DIR is not set")
		}
		path = filepath.Join(runtimeDir, resolved)
	}

	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("wayland: socket: %w", err)
	}
	if err := unix.Connect(fd, &unix.SockaddrUnix{Name: path}); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("wayland: connect %s: %w", path, err)
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("wayland: set nonblocking: %w", err)
	}

	return &Display{
		fd:      fd,
		name:    resolved,
		nextID:  firstClientID,
		objects: make(map[uint32]proxy),
	}, nil
}

// Name returns the resolved display name, for example "wayland-1".
func (d *Display) Name() string {
	return d.name
}

// Fd returns the socket file descriptor for event loop registration.
func (d *Display) Fd() int {
	return d.fd
}

// PrepareRead declares intent to read from the socket. It reports false when
// events are already queued (dispatch them first) or a prepared read is
// outstanding. A true result must be followed by ReadEvents or CancelRead.
func (d *Display) PrepareRead() bool {
	if d.reading || len(d.queue) > 0 {
		return false
	}
	d.reading = true
	return true
}

// CancelRead abandons a prepared read.
func (d *Display) CancelRead() {
	d.reading = false
}

// ReadEvents drains the socket into the event queue. It requires a prepared
// read and consumes it. A closed peer latches the display error state; the
// error surfaces again from the next DispatchPending.
func (d *Display) ReadEvents() error {
	if !d.reading {
		return errors.New("wayland: read without prepare")
	}
	d.reading = false
	if d.err != nil {
		return d.err
	}

	var buf [4096]byte
	for {
		n, err := unix.Read(d.fd, buf[:])
		if n > 0 {
			d.rx = append(d.rx, buf[:n]...)
		}
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			if errors.Is(err, unix.EAGAIN) {
				break
			}
			d.fail(errnoCode(err), fmt.Errorf("wayland: read: %w", err))
			return d.err
		}
		if n == 0 {
			// Orderly shutdown from the compositor side.
			d.fail(uint32(unix.EPIPE), ErrClosed)
			return d.err
		}
	}
	return d.frameMessages()
}

// frameMessages slices complete frames out of the receive buffer.
func (d *Display) frameMessages() error {
	for len(d.rx) >= headerSize {
		reader := newArgReader(d.rx[:headerSize])
		object := reader.Uint32()
		sizeOpcode := reader.Uint32()
		size := int(sizeOpcode >> 16)
		opcode := uint16(sizeOpcode & 0xffff)
		if size < headerSize {
			d.fail(uint32(unix.EPROTO), fmt.Errorf("wayland: malformed header on object %d", object))
			return d.err
		}
		if len(d.rx) < size {
			break
		}
		data := make([]byte, size-headerSize)
		copy(data, d.rx[headerSize:size])
		d.queue = append(d.queue, message{object: object, opcode: opcode, data: data})
		d.rx = d.rx[size:]
	}
	if len(d.rx) == 0 {
		d.rx = nil
	}
	return nil
}

// DispatchPending delivers queued events to their objects and returns how
// many were delivered. Once the display is in an error state it dispatches
// nothing and returns the latched error; LastError exposes the code.
func (d *Display) DispatchPending() (int, error) {
	if d.err != nil {
		return 0, d.err
	}
	dispatched := 0
	for len(d.queue) > 0 {
		msg := d.queue[0]
		d.queue = d.queue[1:]
		d.dispatchOne(msg)
		dispatched++
		if d.err != nil {
			d.queue = nil
			return dispatched, d.err
		}
	}
	d.queue = nil
	return dispatched, nil
}

func (d *Display) dispatchOne(msg message) {
	if msg.object == displayObjectID {
		d.dispatchDisplayEvent(msg)
		return
	}
	if p, ok := d.objects[msg.object]; ok {
		p.dispatch(d, msg.opcode, msg.data)
	}
	// Events for unknown ids race with delete_id and are dropped.
}

func (d *Display) dispatchDisplayEvent(msg message) {
	switch msg.opcode {
	case evDisplayError:
		reader := newArgReader(msg.data)
		objectID := reader.Uint32()
		code := reader.Uint32()
		text := reader.String()
		if !reader.Ok() {
			d.fail(uint32(unix.EPROTO), errors.New("wayland: truncated error event"))
			return
		}
		d.fail(code, fmt.Errorf("wayland: protocol error %d on object %d: %s", code, objectID, text))
	case evDisplayDeleteID:
		reader := newArgReader(msg.data)
		id := reader.Uint32()
		if reader.Ok() {
			delete(d.objects, id)
		}
	}
}

// LastError returns the latched error code, or zero while the display is
// healthy. Protocol errors carry the compositor's code; transport failures
// carry the errno value.
func (d *Display) LastError() uint32 {
	return d.errorCode
}

// Flush writes buffered requests to the socket. A full kernel buffer leaves
// the remainder queued for the next call; that is not an error.
func (d *Display) Flush() error {
	if d.err != nil {
		return d.err
	}
	for len(d.tx) > 0 {
		n, err := unix.Write(d.fd, d.tx)
		if n > 0 {
			d.tx = d.tx[n:]
		}
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			if errors.Is(err, unix.EAGAIN) {
				return nil
			}
			d.fail(errnoCode(err), fmt.Errorf("wayland: write: %w", err))
			return d.err
		}
	}
	d.tx = nil
	return nil
}

// Sync asks the compositor to invoke done once all prior requests have been
// processed. The reply arrives through the normal dispatch path, so done
// runs on the loop goroutine that drives this display.
func (d *Display) Sync(done func()) error {
	if d.err != nil {
		return d.err
	}
	id := d.allocateID()
	d.objects[id] = &callbackProxy{done: done}
	d.tx = encodeRequest(d.tx, displayObjectID, opDisplaySync, id)
	return nil
}

// GetRegistry subscribes to the compositor's global announcements. Globals
// advertised from now on invoke onGlobal; withdrawals invoke onRemove. Both
// callbacks run on the dispatching goroutine and may be nil.
func (d *Display) GetRegistry(onGlobal func(Global), onRemove func(name uint32)) error {
	if d.err != nil {
		return d.err
	}
	id := d.allocateID()
	d.objects[id] = &registryProxy{onGlobal: onGlobal, onRemove: onRemove}
	d.tx = encodeRequest(d.tx, displayObjectID, opDisplayGetRegistry, id)
	return nil
}

// Globals returns a snapshot of the currently advertised globals. It is
// empty until GetRegistry has been called and the announcements dispatched.
func (d *Display) Globals() []Global {
	var out []Global
	for _, p := range d.objects {
		if r, ok := p.(*registryProxy); ok {
			for _, g := range r.globals {
				out = append(out, g)
			}
		}
	}
	return out
}

// Close shuts the socket down. Subsequent operations return ErrClosed.
func (d *Display) Close() error {
	if d.fd < 0 {
		return nil
	}
	d.fail(uint32(unix.EPIPE), ErrClosed)
	err := unix.Close(d.fd)
	d.fd = -1
	return err
}

func (d *Display) allocateID() uint32 {
	id := d.nextID
	d.nextID++
	return id
}

// fail latches the first fatal error; later failures keep the original.
func (d *Display) fail(code uint32, err error) {
	if d.err != nil {
		return
	}
	d.err = err
	d.errorCode = code
}

// errnoCode extracts the errno value from a syscall error, falling back to
// EIO when none is present.
func errnoCode(err error) uint32 {
	var errno unix.Errno
	if errors.As(err, &errno) {
		return uint32(errno)
	}
	return uint32(unix.EIO)
}

// callbackProxy is the client half of a wl_callback created by Sync.
type callbackProxy struct {
	done func()
}

func (p *callbackProxy) dispatch(d *Display, opcode uint16, data []byte) {
	if opcode != evCallbackDone {
		return
	}
	if p.done != nil {
		p.done()
	}
	// The object is spent; the compositor follows up with delete_id.
}

// registryProxy tracks globals advertised on a wl_registry.
type registryProxy struct {
	onGlobal func(Global)
	onRemove func(uint32)
	globals  map[uint32]Global
}

func (p *registryProxy) dispatch(d *Display, opcode uint16, data []byte) {
	reader := newArgReader(data)
	switch opcode {
	case evRegistryGlobal:
		g := Global{Name: reader.Uint32(), Interface: reader.String(), Version: reader.Uint32()}
		if !reader.Ok() {
			return
		}
		if p.globals == nil {
			p.globals = make(map[uint32]Global)
		}
		p.globals[g.Name] = g
		if p.onGlobal != nil {
			p.onGlobal(g)
		}
	case evRegistryGlobalRemove:
		name := reader.Uint32()
		if !reader.Ok() {
			return
		}
		delete(p.globals, name)
		if p.onRemove != nil {
			p.onRemove(name)
		}
	}
}
