package dbus

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"

	"github.com/wayim/wayim/internal/display"
	"github.com/wayim/wayim/internal/eventloop"
	"github.com/wayim/wayim/internal/ime"
)

const (
	// BusName is the bus name claimed by the daemon.
	BusName = "org.wayim.Wayim"
	// ObjectPath is the controller object path.
	ObjectPath = "/controller"
	// Interface is the controller interface name.
	Interface = "org.wayim.Controller1"
)

// postTimeout bounds how long a method call waits for the event loop.
const postTimeout = 5 * time.Second

// ControllerOptions configures a Controller.
type ControllerOptions struct {
	Logger   *slog.Logger
	Bus      *Bus
	Loop     *eventloop.Loop
	Service  *ime.Service
	Displays *display.Manager
	Version  string
}

// Controller exposes the daemon on the session bus. Method bodies hop onto
// the event loop before touching the service or the display registry, so
// concurrent D-Bus calls serialize behind loop traffic.
type Controller struct {
	logger   *slog.Logger
	bus      *Bus
	loop     *eventloop.Loop
	service  *ime.Service
	displays *display.Manager
	version  string
	started  time.Time

	mu      sync.Mutex
	running bool
}

// NewController creates a controller bound to the given loop-owned state.
// Start must be called before the controller is reachable on the bus.
func NewController(opts ControllerOptions) *Controller {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		logger:   logger,
		bus:      opts.Bus,
		loop:     opts.Loop,
		service:  opts.Service,
		displays: opts.Displays,
		version:  opts.Version,
		started:  time.Now(),
	}
}

// Start exports the controller object and claims the bus name.
func (c *Controller) Start() error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return fmt.Errorf("controller already running")
	}
	c.mu.Unlock()

	conn := c.bus.Conn()
	if conn == nil {
		return fmt.Errorf("session bus not connected")
	}

	if err := conn.Export(c, ObjectPath, Interface); err != nil {
		return fmt.Errorf("failed to export controller: %w", err)
	}

	// Export introspection data
	node := &introspect.Node{
		Name: ObjectPath,
		Interfaces: []introspect.Interface{
			introspect.IntrospectData,
			{
				Name:    Interface,
				Methods: controllerMethods(),
			},
		},
	}
	if err := conn.Export(introspect.NewIntrospectable(node), ObjectPath,
		"org.freedesktop.DBus.Introspectable"); err != nil {
		return fmt.Errorf("failed to export introspectable: %w", err)
	}

	// Request the bus name
	reply, err := conn.RequestName(BusName, dbus.NameFlagDoNotQueue|dbus.NameFlagReplaceExisting)
	if err != nil {
		return fmt.Errorf("failed to request bus name: %w", err)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		return fmt.Errorf("bus name %s already taken", BusName)
	}

	c.mu.Lock()
	c.running = true
	c.mu.Unlock()

	c.logger.Info("D-Bus controller started", "name", BusName, "path", ObjectPath)
	return nil
}

// Stop releases the bus name.
func (c *Controller) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running {
		return nil
	}
	c.running = false

	if conn := c.bus.Conn(); conn != nil {
		if _, err := conn.ReleaseName(BusName); err != nil {
			c.logger.Warn("failed to release bus name", "error", err)
		}
		// Don't close the connection as it's shared (SessionBus)
	}

	c.logger.Info("D-Bus controller stopped")
	return nil
}

// onLoop runs fn on the event loop and waits for it to finish. Must not be
// called from the loop goroutine. Calls fail rather than hang when the loop
// has stopped draining.
func (c *Controller) onLoop(fn func()) *dbus.Error {
	done := make(chan struct{})
	c.loop.Post(func() {
		fn()
		close(done)
	})
	select {
	case <-done:
		return nil
	case <-time.After(postTimeout):
		return dbus.MakeFailedError(errors.New("event loop did not respond"))
	}
}

// Status returns a snapshot of the daemon.
// D-Bus method: Status() -> (sixsssib)
func (c *Controller) Status() (StatusInfo, *dbus.Error) {
	c.logger.Debug("Status called")

	var info StatusInfo
	if derr := c.onLoop(func() {
		info = StatusInfo{
			Version:               c.version,
			PID:                   int32(os.Getpid()),
			StartedAt:             c.started.Unix(),
			Desktop:               c.service.Desktop().String(),
			Session:               c.service.Session().String(),
			CurrentGroup:          c.service.CurrentGroup(),
			DisplayCount:          int32(c.displays.Len()),
			ExitOnMainDisplayLoss: c.displays.ExitOnMainDisplayLoss(),
		}
	}); derr != nil {
		return StatusInfo{}, derr
	}
	return info, nil
}

// ListDisplays returns the held display connections in name order.
// D-Bus method: ListDisplays() -> a(ssisii)
func (c *Controller) ListDisplays() ([]DisplayInfo, *dbus.Error) {
	c.logger.Debug("ListDisplays called")

	infos := []DisplayInfo{}
	if derr := c.onLoop(func() {
		for _, name := range c.displays.Names() {
			conn, ok := c.displays.Connection(name)
			if !ok {
				continue
			}
			infos = append(infos, DisplayInfo{
				Name:       conn.Name(),
				Label:      display.Label(conn.Name()),
				Fd:         int32(conn.Display().Fd()),
				FocusGroup: conn.FocusGroup().Name(),
				Contexts:   int32(conn.FocusGroup().Len()),
				Globals:    int32(len(conn.Display().Globals())),
			})
		}
	}); derr != nil {
		return nil, derr
	}
	return infos, nil
}

// OpenDisplay connects the named display. Opening is soft: a failure is
// logged by the registry, and reported here as present=false.
// D-Bus method: OpenDisplay(s) -> b
func (c *Controller) OpenDisplay(name string) (bool, *dbus.Error) {
	c.logger.Debug("OpenDisplay called", "display", display.Label(name))

	var present bool
	if derr := c.onLoop(func() {
		c.displays.OpenDisplay(name)
		_, present = c.displays.Connection(name)
	}); derr != nil {
		return false, derr
	}
	return present, nil
}

// CloseDisplay disconnects the named display, notifying subscribers first.
// Returns false when no connection held the name. Closing the default
// display is subject to the exit policy like any other removal.
// D-Bus method: CloseDisplay(s) -> b
func (c *Controller) CloseDisplay(name string) (bool, *dbus.Error) {
	c.logger.Debug("CloseDisplay called", "display", display.Label(name))

	var present bool
	if derr := c.onLoop(func() {
		_, present = c.displays.Connection(name)
		c.displays.RemoveDisplay(name)
	}); derr != nil {
		return false, derr
	}
	return present, nil
}

// CurrentGroup returns the active group name.
// D-Bus method: CurrentGroup() -> s
func (c *Controller) CurrentGroup() (string, *dbus.Error) {
	var name string
	if derr := c.onLoop(func() {
		name = c.service.CurrentGroup()
	}); derr != nil {
		return "", derr
	}
	return name, nil
}

// SetCurrentGroup switches the active group and fires the group-changed
// watchers, which in turn resync the keyboard layout.
// D-Bus method: SetCurrentGroup(s) -> nothing
func (c *Controller) SetCurrentGroup(name string) *dbus.Error {
	c.logger.Debug("SetCurrentGroup called", "group", name)

	var err error
	if derr := c.onLoop(func() {
		err = c.service.SetCurrentGroup(name)
	}); derr != nil {
		return derr
	}
	if err != nil {
		return dbus.MakeFailedError(err)
	}
	return nil
}

// ListGroups returns the configured groups in order.
// D-Bus method: ListGroups() -> a(ssasb)
func (c *Controller) ListGroups() ([]GroupInfo, *dbus.Error) {
	c.logger.Debug("ListGroups called")

	infos := []GroupInfo{}
	if derr := c.onLoop(func() {
		current := c.service.CurrentGroup()
		for _, g := range c.service.Groups() {
			infos = append(infos, GroupInfo{
				Name:         g.Name,
				Layout:       g.Layout,
				InputMethods: g.InputMethods,
				Current:      g.Name == current,
			})
		}
	}); derr != nil {
		return nil, derr
	}
	return infos, nil
}

// controllerMethods returns the D-Bus method introspection data.
func controllerMethods() []introspect.Method {
	return []introspect.Method{
		{
			Name: "Status",
			Args: []introspect.Arg{
				{Name: "status", Type: "(sixsssib)", Direction: "out"},
			},
		},
		{
			Name: "ListDisplays",
			Args: []introspect.Arg{
				{Name: "displays", Type: "a(ssisii)", Direction: "out"},
			},
		},
		{
			Name: "OpenDisplay",
			Args: []introspect.Arg{
				{Name: "name", Type: "s", Direction: "in"},
				{Name: "present", Type: "b", Direction: "out"},
			},
		},
		{
			Name: "CloseDisplay",
			Args: []introspect.Arg{
				{Name: "name", Type: "s", Direction: "in"},
				{Name: "removed", Type: "b", Direction: "out"},
			},
		},
		{
			Name: "CurrentGroup",
			Args: []introspect.Arg{
				{Name: "name", Type: "s", Direction: "out"},
			},
		},
		{
			Name: "SetCurrentGroup",
			Args: []introspect.Arg{
				{Name: "name", Type: "s", Direction: "in"},
			},
		},
		{
			Name: "ListGroups",
			Args: []introspect.Arg{
				{Name: "groups", Type: "a(ssasb)", Direction: "out"},
			},
		},
	}
}
