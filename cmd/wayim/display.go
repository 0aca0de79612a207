package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/wayim/wayim/internal/display"
)

var displaysCmd = &cobra.Command{
	Use:   "displays",
	Short: "List the daemon's display connections",
	Long: `List the display connections the daemon currently holds, with the
socket descriptor, the focus group and the input-context count of each.

Examples:
  # Table of connections
  wayim displays

  # Machine-readable listing
  wayim displays -o yaml`,
	RunE: runDisplays,
}

// displayCmd represents the display command group.
var displayCmd = &cobra.Command{
	Use:   "display",
	Short: "Manage display connections",
	Long: `Open and close display connections on the running daemon.

A display name is the compositor socket name, for example "wayland-1".
Omitting the name addresses the default display ($WAYLAND_DISPLAY).

Use 'wayim display open [name]' to connect a display.
Use 'wayim display close [name]' to disconnect a display.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Default to listing the connections
		return runDisplays(cmd, args)
	},
}

var displayOpenCmd = &cobra.Command{
	Use:   "open [name]",
	Short: "Connect a display",
	Long: `Ask the daemon to connect the named display. Opening is soft: an
unreachable compositor leaves the daemon running with the connections it
already has, and the command reports the failure.

Examples:
  # Reconnect the default display
  wayim display open

  # Connect a second compositor
  wayim display open wayland-1`,
	Args: cobra.MaximumNArgs(1),
	RunE: runDisplayOpen,
}

var displayCloseCmd = &cobra.Command{
	Use:   "close [name]",
	Short: "Disconnect a display",
	Long: `Ask the daemon to disconnect the named display. Subscribers are
notified before the connection is torn down.

Closing the default display while the daemon runs under a Wayland session
with exit_on_main_display_disconnect enabled stops the daemon.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runDisplayClose,
}

func init() {
	displayCmd.AddCommand(displayOpenCmd)
	displayCmd.AddCommand(displayCloseCmd)

	rootCmd.AddCommand(displaysCmd)
	rootCmd.AddCommand(displayCmd)
}

// displayNameArg extracts the optional display name argument.
func displayNameArg(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return ""
}

func runDisplays(cmd *cobra.Command, args []string) error {
	formatter, err := newFormatter()
	if err != nil {
		return err
	}

	client, err := newClient()
	if err != nil {
		return err
	}
	defer client.Close()

	infos, err := client.ListDisplays()
	if err != nil {
		return err
	}

	return formatter.Displays(os.Stdout, infos)
}

func runDisplayOpen(cmd *cobra.Command, args []string) error {
	name := displayNameArg(args)

	client, err := newClient()
	if err != nil {
		return err
	}
	defer client.Close()

	present, err := client.OpenDisplay(name)
	if err != nil {
		return err
	}
	if !present {
		return fmt.Errorf("display %s could not be opened", display.Label(name))
	}

	fmt.Printf("Display %s connected\n", display.Label(name))
	return nil
}

func runDisplayClose(cmd *cobra.Command, args []string) error {
	name := displayNameArg(args)

	client, err := newClient()
	if err != nil {
		return err
	}
	defer client.Close()

	removed, err := client.CloseDisplay(name)
	if err != nil {
		return err
	}
	if !removed {
		fmt.Printf("Display %s was not connected\n", display.Label(name))
		return nil
	}

	fmt.Printf("Display %s closed\n", display.Label(name))
	return nil
}
