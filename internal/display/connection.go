package display

import (
	"fmt"

	"github.com/wayim/wayim/internal/eventloop"
	"github.com/wayim/wayim/internal/focus"
	"github.com/wayim/wayim/internal/wayland"
)

// Connection binds one Wayland socket to the pieces that serve it: the
// protocol handle, the focus group scoped to the display, and the loop
// registration that pumps I/O. Connections are created and destroyed only by
// the Manager.
type Connection struct {
	manager *Manager
	name    string

	display *wayland.Display
	group   *focus.Group
	source  *eventloop.IOSource
}

// newConnection opens the named display, creates its focus group and
// registers the socket with the loop. Each step undoes the previous ones on
// failure, so a half-built connection never leaks a descriptor or a group.
func newConnection(m *Manager, name string) (*Connection, error) {
	d, err := wayland.Connect(name)
	if err != nil {
		return nil, err
	}

	group, err := m.service.FocusManager().CreateGroup(focus.DisplayGroupName(name))
	if err != nil {
		d.Close()
		return nil, err
	}

	c := &Connection{
		manager: m,
		name:    name,
		display: d,
		group:   group,
	}

	source, err := m.loop.AddIOEvent(d.Fd(), eventloop.Readable, func(cond eventloop.Conditions) bool {
		c.onIOEvent(cond)
		return true
	})
	if err != nil {
		m.service.FocusManager().DestroyGroup(group.Name())
		d.Close()
		return nil, fmt.Errorf("watch display fd: %w", err)
	}
	c.source = source

	return c, nil
}

// Name returns the display name the connection was opened under. The default
// display is the empty string.
func (c *Connection) Name() string {
	return c.name
}

// Display returns the protocol handle.
func (c *Connection) Display() *wayland.Display {
	return c.display
}

// FocusGroup returns the focus group scoped to this display.
func (c *Connection) FocusGroup() *focus.Group {
	return c.group
}

// onIOEvent runs one pump cycle on the loop goroutine. The registration
// stays alive across cycles; the connection leaves the loop only through
// finish, which tears the registration down.
func (c *Connection) onIOEvent(cond eventloop.Conditions) {
	if cond.Has(eventloop.Error) || cond.Has(eventloop.Hangup) {
		c.finish()
		return
	}

	if c.display.PrepareRead() {
		// A failed read latches on the display and surfaces in dispatch.
		c.display.ReadEvents()
	}

	if _, err := c.display.DispatchPending(); err != nil {
		code := c.display.LastError()
		if code != 0 {
			c.manager.logger.Error("wayland connection got error",
				"display", Label(c.name),
				"code", code,
				"error", err,
			)
			c.finish()
			return
		}
	}

	c.display.Flush()
}

// finish hands the connection back to the manager for removal. The receiver
// must not be touched afterwards.
func (c *Connection) finish() {
	c.manager.RemoveDisplay(c.name)
}

// destroy releases the loop registration, the protocol handle and the focus
// group, in that order. The source is removed before the descriptor closes
// so a recycled fd cannot receive this connection's events.
func (c *Connection) destroy() {
	if c.source != nil {
		c.source.Remove()
		c.source = nil
	}
	c.display.Close()
	c.manager.service.FocusManager().DestroyGroup(c.group.Name())
}
