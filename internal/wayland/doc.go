// Package wayland implements a minimal client for the Wayland display
// protocol wire format.
//
// The package covers exactly what a connection manager needs: connecting to
// the compositor socket, the core wl_display object with its error and
// delete_id events, sync roundtrips, and registry global announcements. It
// deliberately binds no further protocol interfaces.
//
// A Display never blocks and never spawns goroutines. The owner drives it
// from an event loop with the canonical cycle: PrepareRead, ReadEvents when
// the socket is readable, DispatchPending, Flush. Protocol and transport
// failures latch the display into an error state that DispatchPending
// reports and LastError describes.
package wayland
