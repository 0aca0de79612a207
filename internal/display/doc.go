// Package display maintains the registry of open Wayland display
// connections. Each connection couples a protocol handle with a focus group
// and an event-loop registration that pumps the socket; the registry keys
// connections by display name, announces creations and closures to
// subscribers, and enforces the exit-on-main-display-loss policy.
//
// The registry and its connections are confined to the event-loop goroutine.
// Code running elsewhere reaches them through eventloop.Post.
package display
