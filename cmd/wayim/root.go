// Package main provides the CLI entrypoint for wayim.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/wayim/wayim/internal/config"
	"github.com/wayim/wayim/internal/dbus"
	"github.com/wayim/wayim/internal/output"
)

// Build-time variables (set via ldflags)
var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

// Global configuration and state
var (
	cfg        *config.Config
	globalOpts struct {
		verbose    bool
		configPath string
		format     string
	}
	logger *slog.Logger
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "wayim",
	Short: "Control a running wayim input-method daemon",
	Long: `wayim is the remote control for wayimd, the Wayland input-method daemon.

It talks to the daemon over the session bus: query its status, list and
manage display connections, switch the active input-method group, and
watch everything live in the monitor view.

Running wayim without a subcommand launches the interactive monitor.`,
	Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildTime),
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Setup logging
		setupLogger()

		// Load configuration
		var err error
		cfg, err = config.LoadConfig(globalOpts.configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		return nil
	},
	// Default to the monitor when no subcommand is provided
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMonitor(cmd, args)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&globalOpts.verbose, "verbose", "v", false,
		"Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&globalOpts.configPath, "config", "",
		"Path to config file (default: ~/.config/wayim/config.toml)")
	rootCmd.PersistentFlags().StringVarP(&globalOpts.format, "output", "o", "plain",
		"Output format (plain, json, yaml)")
}

// setupLogger configures the global slog logger.
func setupLogger() {
	level := slog.LevelWarn
	if globalOpts.verbose {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	// Log to stderr so stdout is clean for output
	handler := slog.NewTextHandler(os.Stderr, opts)
	logger = slog.New(handler)
	slog.SetDefault(logger)
}

// newClient connects to the daemon's control interface.
func newClient() (*dbus.Client, error) {
	client, err := dbus.NewClient()
	if err != nil {
		return nil, fmt.Errorf("failed to reach the daemon: %w", err)
	}
	return client, nil
}

// newFormatter builds the formatter selected by --output.
func newFormatter() (output.Formatter, error) {
	format, err := output.ParseFormat(globalOpts.format)
	if err != nil {
		return nil, err
	}
	return output.NewFormatter(format), nil
}

// getConfig returns the global config instance.
func getConfig() *config.Config {
	return cfg
}
