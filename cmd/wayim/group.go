package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// groupCmd represents the group command group.
var groupCmd = &cobra.Command{
	Use:   "group",
	Short: "Manage input-method groups",
	Long: `Inspect and switch the daemon's input-method groups.

Groups are configured in the daemon's config file; each carries a
keyboard layout ("us" or "layout~variant") and a list of input methods.
Switching the active group fires the daemon's group-changed machinery,
including the KDE keyboard-layout sync when it applies.

Use 'wayim group get' to print the active group.
Use 'wayim group set <name>' to switch groups.
Use 'wayim group list' to list all groups.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Default to showing the active group
		return runGroupGet(cmd, args)
	},
}

var groupGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Print the active group",
	Long:  `Print the name of the currently active input-method group.`,
	RunE:  runGroupGet,
}

var groupSetCmd = &cobra.Command{
	Use:   "set <name>",
	Short: "Switch the active group",
	Long: `Switch the daemon's active input-method group.

Examples:
  # Switch to the group named "german"
  wayim group set german`,
	Args: cobra.ExactArgs(1),
	RunE: runGroupSet,
}

var groupListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured groups",
	Long: `List the configured input-method groups. The active group is marked
in plain output and flagged in JSON and YAML output.`,
	RunE: runGroupList,
}

func init() {
	groupCmd.AddCommand(groupGetCmd)
	groupCmd.AddCommand(groupSetCmd)
	groupCmd.AddCommand(groupListCmd)

	rootCmd.AddCommand(groupCmd)
}

func runGroupGet(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}
	defer client.Close()

	name, err := client.CurrentGroup()
	if err != nil {
		return err
	}

	fmt.Println(name)
	return nil
}

func runGroupSet(cmd *cobra.Command, args []string) error {
	name := args[0]

	client, err := newClient()
	if err != nil {
		return err
	}
	defer client.Close()

	if err := client.SetCurrentGroup(name); err != nil {
		return err
	}

	fmt.Printf("Switched to group %s\n", name)
	return nil
}

func runGroupList(cmd *cobra.Command, args []string) error {
	formatter, err := newFormatter()
	if err != nil {
		return err
	}

	client, err := newClient()
	if err != nil {
		return err
	}
	defer client.Close()

	infos, err := client.ListGroups()
	if err != nil {
		return err
	}

	return formatter.Groups(os.Stdout, infos)
}
