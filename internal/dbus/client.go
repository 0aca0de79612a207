package dbus

import (
	"fmt"

	"github.com/godbus/dbus/v5"
)

// Client calls the controller interface from another process. Used by the
// CLI and the monitor view.
type Client struct {
	conn *dbus.Conn
	obj  dbus.BusObject
}

// NewClient connects to the session bus and binds the controller object.
// It does not verify the daemon is running; the first call does.
func NewClient() (*Client, error) {
	conn, err := dbus.SessionBus()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to session bus: %w", err)
	}
	return &Client{
		conn: conn,
		obj:  conn.Object(BusName, dbus.ObjectPath(ObjectPath)),
	}, nil
}

// Close releases the client. The underlying session bus connection is
// shared and stays open.
func (c *Client) Close() error {
	return nil
}

func (c *Client) call(method string, args ...any) *dbus.Call {
	return c.obj.Call(Interface+"."+method, 0, args...)
}

// Status fetches the daemon snapshot.
func (c *Client) Status() (StatusInfo, error) {
	var info StatusInfo
	if err := c.call("Status").Store(&info); err != nil {
		return StatusInfo{}, fmt.Errorf("failed to call Status: %w", err)
	}
	return info, nil
}

// ListDisplays fetches the held display connections.
func (c *Client) ListDisplays() ([]DisplayInfo, error) {
	var infos []DisplayInfo
	if err := c.call("ListDisplays").Store(&infos); err != nil {
		return nil, fmt.Errorf("failed to call ListDisplays: %w", err)
	}
	return infos, nil
}

// OpenDisplay asks the daemon to connect the named display. The returned
// bool reports whether the connection is held after the call.
func (c *Client) OpenDisplay(name string) (bool, error) {
	var present bool
	if err := c.call("OpenDisplay", name).Store(&present); err != nil {
		return false, fmt.Errorf("failed to call OpenDisplay: %w", err)
	}
	return present, nil
}

// CloseDisplay asks the daemon to disconnect the named display.
func (c *Client) CloseDisplay(name string) (bool, error) {
	var removed bool
	if err := c.call("CloseDisplay", name).Store(&removed); err != nil {
		return false, fmt.Errorf("failed to call CloseDisplay: %w", err)
	}
	return removed, nil
}

// CurrentGroup fetches the active group name.
func (c *Client) CurrentGroup() (string, error) {
	var name string
	if err := c.call("CurrentGroup").Store(&name); err != nil {
		return "", fmt.Errorf("failed to call CurrentGroup: %w", err)
	}
	return name, nil
}

// SetCurrentGroup switches the active group.
func (c *Client) SetCurrentGroup(name string) error {
	if call := c.call("SetCurrentGroup", name); call.Err != nil {
		return fmt.Errorf("failed to call SetCurrentGroup: %w", call.Err)
	}
	return nil
}

// ListGroups fetches the configured groups.
func (c *Client) ListGroups() ([]GroupInfo, error) {
	var infos []GroupInfo
	if err := c.call("ListGroups").Store(&infos); err != nil {
		return nil, fmt.Errorf("failed to call ListGroups: %w", err)
	}
	return infos, nil
}
