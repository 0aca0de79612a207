// Package output provides output formatters for the wayim CLI.
package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/wayim/wayim/internal/dbus"
)

// Formatter renders daemon state for one output format. Every method
// writes a complete document followed by a trailing newline.
type Formatter interface {
	// Status writes the daemon snapshot.
	Status(w io.Writer, info dbus.StatusInfo) error
	// Displays writes the held display connections.
	Displays(w io.Writer, infos []dbus.DisplayInfo) error
	// Groups writes the configured input-method groups.
	Groups(w io.Writer, infos []dbus.GroupInfo) error
}

// FormatType represents an output format type.
type FormatType string

const (
	FormatPlain FormatType = "plain"
	FormatJSON  FormatType = "json"
	FormatYAML  FormatType = "yaml"
)

// ParseFormat maps a CLI flag value to a FormatType.
func ParseFormat(s string) (FormatType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "plain", "":
		return FormatPlain, nil
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	default:
		return FormatPlain, fmt.Errorf("unknown output format %q (plain, json, yaml)", s)
	}
}

// NewFormatter creates a formatter for the specified format type.
func NewFormatter(format FormatType) Formatter {
	switch format {
	case FormatJSON:
		return NewJSONFormatter()
	case FormatYAML:
		return NewYAMLFormatter()
	case FormatPlain:
		fallthrough
	default:
		return NewPlainFormatter()
	}
}
