package dbus

// StatusInfo is the daemon snapshot returned by the Status method. The
// field order is the wire order; the tags serve the CLI's JSON and YAML
// renderings and mean nothing to the bus.
// D-Bus signature: (sixsssib)
type StatusInfo struct {
	Version               string `json:"version" yaml:"version"`
	PID                   int32  `json:"pid" yaml:"pid"`
	StartedAt             int64  `json:"started_at" yaml:"started_at"` // unix seconds
	Desktop               string `json:"desktop" yaml:"desktop"`
	Session               string `json:"session" yaml:"session"`
	CurrentGroup          string `json:"current_group" yaml:"current_group"`
	DisplayCount          int32  `json:"display_count" yaml:"display_count"`
	ExitOnMainDisplayLoss bool   `json:"exit_on_main_display_loss" yaml:"exit_on_main_display_loss"`
}

// DisplayInfo describes one held display connection.
// D-Bus signature: (ssisii)
type DisplayInfo struct {
	Name       string `json:"name" yaml:"name"`
	Label      string `json:"label" yaml:"label"`
	Fd         int32  `json:"fd" yaml:"fd"`
	FocusGroup string `json:"focus_group" yaml:"focus_group"`
	Contexts   int32  `json:"contexts" yaml:"contexts"`
	Globals    int32  `json:"globals" yaml:"globals"`
}

// GroupInfo describes one input-method group.
// D-Bus signature: (ssasb)
type GroupInfo struct {
	Name         string   `json:"name" yaml:"name"`
	Layout       string   `json:"layout" yaml:"layout"`
	InputMethods []string `json:"input_methods" yaml:"input_methods"`
	Current      bool     `json:"current" yaml:"current"`
}
