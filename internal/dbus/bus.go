package dbus

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/godbus/dbus/v5"
)

// Bus wraps the shared session bus connection. A session bus is optional at
// runtime; callers must check Available before relying on it, and every
// method tolerates a bus that never came up.
type Bus struct {
	logger *slog.Logger

	mu   sync.RWMutex
	conn *dbus.Conn
}

// NewBus creates an unconnected Bus.
func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{logger: logger}
}

// Connect attaches to the session bus. It is safe to call again after a
// failure or after the bus daemon restarted.
func (b *Bus) Connect() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.conn != nil && b.conn.Connected() {
		return nil
	}
	conn, err := dbus.SessionBus()
	if err != nil {
		b.conn = nil
		return fmt.Errorf("failed to connect to session bus: %w", err)
	}
	b.conn = conn
	b.logger.Debug("connected to session bus")
	return nil
}

// Available reports whether the session bus is connected.
func (b *Bus) Available() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.conn != nil && b.conn.Connected()
}

// Conn returns the underlying connection, or nil when unavailable.
func (b *Bus) Conn() *dbus.Conn {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.conn
}

// EmitSignal broadcasts a signal from the given object path. The name is the
// fully qualified member, "org.kde.keyboard.reloadConfig" style.
func (b *Bus) EmitSignal(path, name string, values ...any) error {
	conn := b.Conn()
	if conn == nil {
		return fmt.Errorf("session bus not connected")
	}
	if err := conn.Emit(dbus.ObjectPath(path), name, values...); err != nil {
		return fmt.Errorf("failed to emit %s: %w", name, err)
	}
	b.logger.Debug("emitted signal", "path", path, "name", name)
	return nil
}

// Close drops the connection reference. The underlying connection is shared
// process-wide and stays open.
func (b *Bus) Close() {
	b.mu.Lock()
	b.conn = nil
	b.mu.Unlock()
}
