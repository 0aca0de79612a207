// Package desktop identifies the desktop environment and session type of
// the login session. Detection is a pure function over an environment
// snapshot, so callers capture once at startup and tests fabricate
// whatever session they need.
package desktop

import (
	"os"
	"strings"
)

// Type identifies a desktop environment family.
type Type int

const (
	Unknown Type = iota
	KDE
	GNOME
	Cinnamon
	MATE
	XFCE
	LXDE
	Deepin
	UKUI
	Sway
	Hyprland
)

var typeNames = map[Type]string{
	Unknown:  "unknown",
	KDE:      "kde",
	GNOME:    "gnome",
	Cinnamon: "cinnamon",
	MATE:     "mate",
	XFCE:     "xfce",
	LXDE:     "lxde",
	Deepin:   "deepin",
	UKUI:     "ukui",
	Sway:     "sway",
	Hyprland: "hyprland",
}

func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return "unknown"
}

// Session identifies the display protocol of the login session.
type Session int

const (
	SessionUnknown Session = iota
	SessionX11
	SessionWayland
)

func (s Session) String() string {
	switch s {
	case SessionX11:
		return "x11"
	case SessionWayland:
		return "wayland"
	default:
		return "unknown"
	}
}

// Environment is a snapshot of the variables that drive detection.
type Environment struct {
	CurrentDesktop string // XDG_CURRENT_DESKTOP
	SessionType    string // XDG_SESSION_TYPE
	WaylandDisplay string // WAYLAND_DISPLAY
}

// CaptureEnvironment snapshots the relevant variables from the process
// environment.
func CaptureEnvironment() Environment {
	return Environment{
		CurrentDesktop: os.Getenv("XDG_CURRENT_DESKTOP"),
		SessionType:    os.Getenv("XDG_SESSION_TYPE"),
		WaylandDisplay: os.Getenv("WAYLAND_DISPLAY"),
	}
}

// DetectType classifies the desktop environment. XDG_CURRENT_DESKTOP may
// carry a colon-separated list ("ubuntu:GNOME"); the first recognized entry
// wins.
func DetectType(env Environment) Type {
	for _, entry := range strings.Split(env.CurrentDesktop, ":") {
		switch strings.ToLower(strings.TrimSpace(entry)) {
		case "kde", "plasma":
			return KDE
		case "gnome":
			return GNOME
		case "x-cinnamon", "cinnamon":
			return Cinnamon
		case "mate":
			return MATE
		case "xfce":
			return XFCE
		case "lxde":
			return LXDE
		case "deepin", "dde":
			return Deepin
		case "ukui":
			return UKUI
		case "sway":
			return Sway
		case "hyprland":
			return Hyprland
		}
	}
	return Unknown
}

// DetectSession classifies the session protocol. XDG_SESSION_TYPE is
// authoritative; a set WAYLAND_DISPLAY is the fallback signal for Wayland.
func DetectSession(env Environment) Session {
	switch strings.ToLower(env.SessionType) {
	case "wayland":
		return SessionWayland
	case "x11":
		return SessionX11
	}
	if env.WaylandDisplay != "" {
		return SessionWayland
	}
	return SessionUnknown
}
