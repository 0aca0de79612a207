// Package daemon provides the main orchestration for wayimd.
// It coordinates the event loop, the input-method service, the display
// registry, the KDE layout bridge, the D-Bus control surface, and
// configuration hot-reload.
package daemon
