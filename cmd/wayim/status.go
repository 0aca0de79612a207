package main

import (
	"os"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon status",
	Long: `Show a snapshot of the running daemon: version, uptime, detected
desktop and session, the active input-method group and the number of
held display connections.

Examples:
  # Human-readable status
  wayim status

  # Status for scripts
  wayim status -o json`,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	formatter, err := newFormatter()
	if err != nil {
		return err
	}

	client, err := newClient()
	if err != nil {
		return err
	}
	defer client.Close()

	info, err := client.Status()
	if err != nil {
		return err
	}

	return formatter.Status(os.Stdout, info)
}
