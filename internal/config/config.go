// Package config handles configuration file loading and parsing.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Default configuration values.
const (
	DefaultLogLevel    = "info"
	DefaultGroupName   = "Default"
	DefaultGroupLayout = "us"
)

// Config represents the wayim configuration.
type Config struct {
	Daemon     DaemonConfig     `toml:"daemon"`
	LayoutSync LayoutSyncConfig `toml:"layout_sync"`
	Monitor    MonitorConfig    `toml:"monitor"`
	Groups     []GroupConfig    `toml:"groups"`
}

// DaemonConfig holds daemon lifecycle settings.
type DaemonConfig struct {
	LogLevel string `toml:"log_level"` // debug, info, warn, error

	// ExitOnMainDisplayDisconnect stops the daemon when the default
	// display connection is lost in a Wayland session.
	ExitOnMainDisplayDisconnect bool `toml:"exit_on_main_display_disconnect"`

	// ExtraDisplays are display names to connect to at startup in
	// addition to the default one. Failures are logged and ignored.
	ExtraDisplays []string `toml:"extra_displays"`
}

// LayoutSyncConfig holds the KDE keyboard layout synchronization settings.
type LayoutSyncConfig struct {
	Enabled bool `toml:"enabled"`

	// KxkbrcPath overrides the location of KDE's keyboard config file.
	// Empty means $XDG_CONFIG_HOME/kxkbrc.
	KxkbrcPath string `toml:"kxkbrc_path"`
}

// MonitorConfig holds settings for the wayim monitor TUI.
type MonitorConfig struct {
	RefreshInterval Duration `toml:"refresh_interval"` // e.g., "2s" or 2000
}

// GroupConfig seeds one input-method group.
type GroupConfig struct {
	Name         string   `toml:"name"`
	Layout       string   `toml:"layout"` // "us" or "layout~variant"
	InputMethods []string `toml:"input_methods"`
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		Daemon: DaemonConfig{
			LogLevel:                    DefaultLogLevel,
			ExitOnMainDisplayDisconnect: true,
		},
		LayoutSync: LayoutSyncConfig{
			Enabled: true,
		},
		Monitor: MonitorConfig{
			RefreshInterval: Duration(2 * time.Second),
		},
		Groups: []GroupConfig{
			{Name: DefaultGroupName, Layout: DefaultGroupLayout},
		},
	}
}

// ConfigPath returns the path to the config file.
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config.
func ConfigPath() string {
	return filepath.Join(configHome(), "wayim", "config.toml")
}

// KxkbrcPath returns the default location of KDE's keyboard layout file.
func KxkbrcPath() string {
	return filepath.Join(configHome(), "kxkbrc")
}

func configHome() string {
	if home := os.Getenv("XDG_CONFIG_HOME"); home != "" {
		return home
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config")
}

// LoadConfig loads configuration from the specified path.
// If path is empty, uses the default config path.
// Returns default config if the file doesn't exist.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		path = ConfigPath()
	}

	// Start with defaults
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			// No config file, use defaults
			return cfg, nil
		}
		return nil, err
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	return cfg, nil
}

// Validate checks the configuration for values the daemon cannot run with.
func (c *Config) Validate() error {
	if _, err := ParseLevel(c.Daemon.LogLevel); err != nil {
		return err
	}
	if c.Monitor.RefreshInterval.Duration() <= 0 {
		return errors.New("monitor refresh_interval must be positive")
	}
	if len(c.Groups) == 0 {
		return errors.New("at least one input method group is required")
	}
	seen := make(map[string]bool, len(c.Groups))
	for _, g := range c.Groups {
		if g.Name == "" {
			return errors.New("group name cannot be empty")
		}
		if seen[g.Name] {
			return fmt.Errorf("duplicate group name %q", g.Name)
		}
		seen[g.Name] = true
	}
	return nil
}

// Save writes the configuration to the specified path.
// Creates parent directories if needed.
func (c *Config) Save(path string) error {
	if path == "" {
		path = ConfigPath()
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := toml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// ParseLevel maps a config log level string to a slog level.
func ParseLevel(level string) (slog.Level, error) {
	switch level {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", level)
	}
}
