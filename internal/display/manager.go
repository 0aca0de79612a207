package display

import (
	"log/slog"
	"sort"

	"github.com/wayim/wayim/internal/desktop"
	"github.com/wayim/wayim/internal/eventloop"
	"github.com/wayim/wayim/internal/focus"
	"github.com/wayim/wayim/internal/handlertable"
	"github.com/wayim/wayim/internal/ime"
	"github.com/wayim/wayim/internal/wayland"
)

// ConnectionCreatedCallback observes a connection entering the registry.
// It runs synchronously on the loop goroutine.
type ConnectionCreatedCallback func(name string, display *wayland.Display, group *focus.Group)

// ConnectionClosedCallback observes a connection leaving the registry. The
// display handle is still open while the callback runs and is closed right
// after the last subscriber returns.
type ConnectionClosedCallback func(name string, display *wayland.Display)

// Label renders a display name for logs and user-facing output. The default
// display's empty name reads as "default".
func Label(name string) string {
	if name == "" {
		return "default"
	}
	return name
}

// Options configures a Manager.
type Options struct {
	Logger  *slog.Logger
	Loop    *eventloop.Loop
	Service *ime.Service

	// ExitOnMainDisplayLoss stops the service when the default display
	// connection is torn down during a Wayland session.
	ExitOnMainDisplayLoss bool
}

// Manager is the registry of open display connections, keyed by display
// name. It is confined to the loop goroutine; code elsewhere reaches it
// through eventloop.Post.
type Manager struct {
	logger  *slog.Logger
	loop    *eventloop.Loop
	service *ime.Service

	conns   map[string]*Connection
	created *handlertable.Table[ConnectionCreatedCallback]
	closed  *handlertable.Table[ConnectionClosedCallback]

	exitOnMainDisplayLoss bool
}

// NewManager creates the registry and eagerly opens the default display.
// A missing or refused default display is not fatal; some environments
// legitimately run without a Wayland compositor, and explicitly opened
// displays still work.
func NewManager(opts Options) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	m := &Manager{
		logger:                logger,
		loop:                  opts.Loop,
		service:               opts.Service,
		conns:                 make(map[string]*Connection),
		created:               handlertable.New[ConnectionCreatedCallback](),
		closed:                handlertable.New[ConnectionClosedCallback](),
		exitOnMainDisplayLoss: opts.ExitOnMainDisplayLoss,
	}
	m.OpenDisplay("")
	return m
}

// OpenDisplay connects to the named display and registers it. A name that
// is already registered is left untouched. Connection failures are logged
// and deliberately dropped so an unreachable display never takes the
// registry down; callers that need the outcome check Connection afterwards.
func (m *Manager) OpenDisplay(name string) {
	if _, ok := m.conns[name]; ok {
		return
	}

	conn, err := newConnection(m, name)
	if err != nil {
		m.logger.Debug("failed to open wayland display",
			"display", Label(name),
			"error", err,
		)
		return
	}

	m.conns[name] = conn
	m.logger.Info("wayland display connected",
		"display", Label(name),
		"fd", conn.display.Fd(),
	)
	m.onConnectionCreated(conn)
}

// RemoveDisplay tears down the named connection: subscribers hear "closed"
// while the handle is still open, then the entry is erased and destroyed.
// An absent name skips the teardown. The exit policy is evaluated either
// way, matching how loss of the default display is treated even when no
// connection ever existed under it.
func (m *Manager) RemoveDisplay(name string) {
	m.logger.Debug("display removed", "display", Label(name))

	if conn, ok := m.conns[name]; ok {
		m.onConnectionClosed(conn)
		delete(m.conns, name)
		conn.destroy()
	}

	if name == "" && m.exitOnMainDisplayLoss && m.service.Session() == desktop.SessionWayland {
		m.service.Exit()
	}
}

// AddConnectionCreatedCallback subscribes cb to connection creations and
// immediately replays "created" for every connection already open, so a
// late subscriber still observes the full set before this returns. Replay
// runs in display-name order.
func (m *Manager) AddConnectionCreatedCallback(cb ConnectionCreatedCallback) *handlertable.Entry[ConnectionCreatedCallback] {
	entry := m.created.Add(cb)
	for _, name := range m.Names() {
		conn := m.conns[name]
		cb(conn.name, conn.display, conn.group)
	}
	return entry
}

// AddConnectionClosedCallback subscribes cb to connection closures. There
// is no replay; closures describe transitions, not current state.
func (m *Manager) AddConnectionClosedCallback(cb ConnectionClosedCallback) *handlertable.Entry[ConnectionClosedCallback] {
	return m.closed.Add(cb)
}

func (m *Manager) onConnectionCreated(conn *Connection) {
	for cb := range m.created.View() {
		cb(conn.name, conn.display, conn.group)
	}
}

func (m *Manager) onConnectionClosed(conn *Connection) {
	for cb := range m.closed.View() {
		cb(conn.name, conn.display)
	}
}

// Connection returns the registered connection for name, if any.
func (m *Manager) Connection(name string) (*Connection, bool) {
	conn, ok := m.conns[name]
	return conn, ok
}

// Names returns the registered display names in sorted order.
func (m *Manager) Names() []string {
	names := make([]string, 0, len(m.conns))
	for name := range m.conns {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered connections.
func (m *Manager) Len() int {
	return len(m.conns)
}

// SetExitOnMainDisplayLoss replaces the exit policy. Config reloads post
// the new value onto the loop.
func (m *Manager) SetExitOnMainDisplayLoss(exit bool) {
	m.exitOnMainDisplayLoss = exit
}

// ExitOnMainDisplayLoss reports the current exit policy.
func (m *Manager) ExitOnMainDisplayLoss() bool {
	return m.exitOnMainDisplayLoss
}

// Close destroys every connection without closed notifications and without
// evaluating the exit policy. Used at daemon shutdown when subscribers are
// already gone.
func (m *Manager) Close() {
	for _, name := range m.Names() {
		m.conns[name].destroy()
	}
	m.conns = make(map[string]*Connection)
	m.logger.Debug("display registry closed")
}
