// Package ime hosts the runtime state of the input-method service: the
// input-method groups and the current group, per-display keyboard
// parameters, input-context bookkeeping through the focus manager, and the
// typed event stream that ties the subsystems together.
//
// The Service is confined to the event loop goroutine. Code running on
// other goroutines reaches it through eventloop.Post; the D-Bus control
// surface does exactly that. Event dispatch is synchronous and follows
// subscription order, so a watcher observes every event that fires after
// it subscribed and none from before.
package ime
