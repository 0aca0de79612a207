// Package dbus puts the daemon on the session bus. Controller exports the
// org.wayim.Controller1 interface for the CLI and the monitor view, Client
// is the calling side of that interface, and Bus wraps the shared session
// connection that both the controller and the layout bridge emit through.
package dbus
