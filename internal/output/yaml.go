package output

import (
	"io"

	"gopkg.in/yaml.v3"

	"github.com/wayim/wayim/internal/dbus"
)

// YAMLFormatter renders YAML documents.
type YAMLFormatter struct{}

// NewYAMLFormatter creates a new YAML formatter.
func NewYAMLFormatter() *YAMLFormatter {
	return &YAMLFormatter{}
}

func (f *YAMLFormatter) encode(w io.Writer, v any) error {
	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	if err := encoder.Encode(v); err != nil {
		encoder.Close()
		return err
	}
	return encoder.Close()
}

// Status writes the daemon snapshot as a YAML mapping.
func (f *YAMLFormatter) Status(w io.Writer, info dbus.StatusInfo) error {
	return f.encode(w, info)
}

// Displays writes the connections as a YAML sequence.
func (f *YAMLFormatter) Displays(w io.Writer, infos []dbus.DisplayInfo) error {
	if infos == nil {
		infos = []dbus.DisplayInfo{}
	}
	return f.encode(w, infos)
}

// Groups writes the groups as a YAML sequence.
func (f *YAMLFormatter) Groups(w io.Writer, infos []dbus.GroupInfo) error {
	if infos == nil {
		infos = []dbus.GroupInfo{}
	}
	return f.encode(w, infos)
}
