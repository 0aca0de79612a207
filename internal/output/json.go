package output

import (
	"encoding/json"
	"io"

	"github.com/wayim/wayim/internal/dbus"
)

// JSONFormatter renders indented JSON.
type JSONFormatter struct{}

// NewJSONFormatter creates a new JSON formatter.
func NewJSONFormatter() *JSONFormatter {
	return &JSONFormatter{}
}

func (f *JSONFormatter) encode(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

// Status writes the daemon snapshot as a JSON object.
func (f *JSONFormatter) Status(w io.Writer, info dbus.StatusInfo) error {
	return f.encode(w, info)
}

// Displays writes the connections as a JSON array.
func (f *JSONFormatter) Displays(w io.Writer, infos []dbus.DisplayInfo) error {
	if infos == nil {
		infos = []dbus.DisplayInfo{}
	}
	return f.encode(w, infos)
}

// Groups writes the groups as a JSON array.
func (f *JSONFormatter) Groups(w io.Writer, infos []dbus.GroupInfo) error {
	if infos == nil {
		infos = []dbus.GroupInfo{}
	}
	return f.encode(w, infos)
}
