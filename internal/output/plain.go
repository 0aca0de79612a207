package output

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/wayim/wayim/internal/dbus"
)

// PlainFormatter renders human-readable text.
type PlainFormatter struct{}

// NewPlainFormatter creates a new plain text formatter.
func NewPlainFormatter() *PlainFormatter {
	return &PlainFormatter{}
}

// Status writes the daemon snapshot as aligned key/value lines.
func (f *PlainFormatter) Status(w io.Writer, info dbus.StatusInfo) error {
	started := time.Unix(info.StartedAt, 0)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Version:\t%s\n", info.Version)
	fmt.Fprintf(tw, "PID:\t%d\n", info.PID)
	fmt.Fprintf(tw, "Started:\t%s (%s)\n", started.Format(time.RFC3339), humanize.Time(started))
	fmt.Fprintf(tw, "Desktop:\t%s\n", info.Desktop)
	fmt.Fprintf(tw, "Session:\t%s\n", info.Session)
	fmt.Fprintf(tw, "Current group:\t%s\n", info.CurrentGroup)
	fmt.Fprintf(tw, "Displays:\t%d\n", info.DisplayCount)
	fmt.Fprintf(tw, "Exit on main display loss:\t%v\n", info.ExitOnMainDisplayLoss)
	return tw.Flush()
}

// Displays writes the connections as a column-aligned table.
func (f *PlainFormatter) Displays(w io.Writer, infos []dbus.DisplayInfo) error {
	if len(infos) == 0 {
		_, err := fmt.Fprintln(w, "No displays connected")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "DISPLAY\tFD\tFOCUS GROUP\tCONTEXTS\tGLOBALS")
	for _, d := range infos {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%d\t%d\n",
			d.Label, d.Fd, d.FocusGroup, d.Contexts, d.Globals)
	}
	return tw.Flush()
}

// Groups writes the groups as a column-aligned table. The active group is
// marked with an asterisk.
func (f *PlainFormatter) Groups(w io.Writer, infos []dbus.GroupInfo) error {
	if len(infos) == 0 {
		_, err := fmt.Fprintln(w, "No groups configured")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, " \tGROUP\tLAYOUT\tINPUT METHODS")
	for _, g := range infos {
		marker := " "
		if g.Current {
			marker = "*"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
			marker, g.Name, g.Layout, strings.Join(g.InputMethods, ", "))
	}
	return tw.Flush()
}
