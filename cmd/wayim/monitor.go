package main

import (
	"github.com/spf13/cobra"

	"github.com/wayim/wayim/internal/tui"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Launch the interactive monitor",
	Long: `Launch the interactive terminal monitor for a running daemon.

The monitor polls the daemon over the session bus and shows its display
connections and input-method groups live. Selecting a group and pressing
enter switches to it.

Key bindings:
  j/k, ↑/↓    Navigate the focused table
  tab         Switch between displays and groups
  enter       Switch to the selected group
  r           Refresh now
  ?           Show help
  q           Quit`,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
}

func runMonitor(cmd *cobra.Command, args []string) error {
	return tui.Run(tui.RunOptions{
		Interval: getConfig().Monitor.RefreshInterval.Duration(),
	})
}
