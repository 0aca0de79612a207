package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/wayim/wayim/internal/config"
	"github.com/wayim/wayim/internal/dbus"
	"github.com/wayim/wayim/internal/desktop"
	"github.com/wayim/wayim/internal/display"
	"github.com/wayim/wayim/internal/eventloop"
	"github.com/wayim/wayim/internal/focus"
	"github.com/wayim/wayim/internal/handlertable"
	"github.com/wayim/wayim/internal/ime"
	"github.com/wayim/wayim/internal/layoutsync"
	"github.com/wayim/wayim/internal/wayland"
)

// Options configures a Daemon.
type Options struct {
	Logger *slog.Logger

	// LogLevel is the handler level shared with the logger; config
	// hot-reload adjusts it in place. May be nil.
	LogLevel *slog.LevelVar

	Config *config.Config

	// ConfigPath is watched for hot-reload when non-empty.
	ConfigPath string

	Version string
}

// Daemon wires the event loop, input-method service, display registry,
// layout bridge and session-bus surface together and runs them until the
// context is cancelled or the exit policy fires.
type Daemon struct {
	logger     *slog.Logger
	level      *slog.LevelVar
	cfg        *config.Config
	configPath string
	version    string

	loop     *eventloop.Loop
	service  *ime.Service
	displays *display.Manager
	bridge   *layoutsync.Bridge
	bus      *dbus.Bus
	ctrl     *dbus.Controller
	watcher  *config.Watcher

	prime *handlertable.Entry[display.ConnectionCreatedCallback]
}

// New assembles a daemon from the given options. The default display is
// opened eagerly; extra displays from the config follow, soft-failing like
// any other open.
func New(opts Options) (*Daemon, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg := opts.Config
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	env := desktop.CaptureEnvironment()
	desk := desktop.DetectType(env)
	session := desktop.DetectSession(env)

	loop, err := eventloop.New(logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create event loop: %w", err)
	}

	service := ime.NewService(ime.Options{
		Logger:  logger,
		Loop:    loop,
		Desktop: desk,
		Session: session,
		Groups:  groupsFromConfig(cfg),
	})

	d := &Daemon{
		logger:     logger,
		level:      opts.LogLevel,
		cfg:        cfg,
		configPath: opts.ConfigPath,
		version:    opts.Version,
		loop:       loop,
		service:    service,
		bus:        dbus.NewBus(logger),
	}

	d.displays = display.NewManager(display.Options{
		Logger:                logger,
		Loop:                  loop,
		Service:               service,
		ExitOnMainDisplayLoss: cfg.Daemon.ExitOnMainDisplayDisconnect,
	})
	d.prime = d.displays.AddConnectionCreatedCallback(d.primeConnection)
	for _, name := range cfg.Daemon.ExtraDisplays {
		d.displays.OpenDisplay(name)
	}

	if err := d.bus.Connect(); err != nil {
		logger.Warn("session bus unavailable", "error", err)
	}

	if cfg.LayoutSync.Enabled {
		d.bridge = layoutsync.New(layoutsync.Options{
			Logger:     logger,
			Service:    service,
			Displays:   d.displays,
			Bus:        d.bus,
			KxkbrcPath: cfg.LayoutSync.KxkbrcPath,
		})
	}

	d.ctrl = dbus.NewController(dbus.ControllerOptions{
		Logger:   logger,
		Bus:      d.bus,
		Loop:     loop,
		Service:  service,
		Displays: d.displays,
		Version:  opts.Version,
	})

	return d, nil
}

// primeConnection announces the registry globals of a fresh connection and
// requests a sync roundtrip so the pump sees traffic immediately.
func (d *Daemon) primeConnection(name string, disp *wayland.Display, _ *focus.Group) {
	label := display.Label(name)
	if err := disp.GetRegistry(func(g wayland.Global) {
		d.logger.Debug("global announced",
			"display", label, "interface", g.Interface, "name", g.Name, "version", g.Version)
	}, nil); err != nil {
		d.logger.Debug("failed to request registry", "display", label, "error", err)
		return
	}
	if err := disp.Sync(func() {
		d.logger.Debug("display roundtrip complete", "display", label)
	}); err != nil {
		d.logger.Debug("failed to request sync", "display", label, "error", err)
	}
	if err := disp.Flush(); err != nil {
		d.logger.Debug("failed to flush display", "display", label, "error", err)
	}
}

// Run starts the optional surfaces and drives the event loop until ctx is
// cancelled or the exit policy stops it. A cancelled context is a normal
// shutdown, not an error.
func (d *Daemon) Run(ctx context.Context) error {
	d.logger.Info("daemon starting",
		"version", d.version,
		"desktop", d.service.Desktop().String(),
		"session", d.service.Session().String(),
		"displays", d.displays.Len())

	if d.bus.Available() {
		if err := d.ctrl.Start(); err != nil {
			d.logger.Warn("failed to start D-Bus controller", "error", err)
		}
	} else {
		d.logger.Warn("session bus unavailable; control interface disabled")
	}

	if d.configPath != "" {
		d.startWatcher()
	}

	err := d.loop.Run(ctx)
	if errors.Is(err, context.Canceled) {
		err = nil
	}

	d.shutdown()
	return err
}

func (d *Daemon) startWatcher() {
	watcher, err := config.NewWatcher(d.configPath, d.cfg, d.logger)
	if err != nil {
		d.logger.Warn("failed to create config watcher", "error", err)
		return
	}
	watcher.SetReloadCallback(d.applyConfig)
	watcher.SetErrorCallback(func(err error) {
		d.logger.Warn("config reload rejected", "error", err)
	})
	if err := watcher.Start(); err != nil {
		d.logger.Warn("failed to start config watcher", "error", err)
		return
	}
	d.watcher = watcher
}

// applyConfig applies a validated config on the event loop. Group seeds are
// startup-only; the reloadable knobs are the log level, the exit policy and
// the layout bridge.
func (d *Daemon) applyConfig(cfg *config.Config) {
	d.loop.Post(func() {
		old := d.cfg
		d.cfg = cfg

		if d.level != nil {
			if level, err := config.ParseLevel(cfg.Daemon.LogLevel); err == nil {
				d.level.Set(level)
			}
		}

		if cfg.Daemon.ExitOnMainDisplayDisconnect != old.Daemon.ExitOnMainDisplayDisconnect {
			d.displays.SetExitOnMainDisplayLoss(cfg.Daemon.ExitOnMainDisplayDisconnect)
		}

		bridgeChanged := cfg.LayoutSync.Enabled != old.LayoutSync.Enabled ||
			cfg.LayoutSync.KxkbrcPath != old.LayoutSync.KxkbrcPath
		if bridgeChanged {
			if d.bridge != nil {
				d.bridge.Close()
				d.bridge = nil
			}
			if cfg.LayoutSync.Enabled {
				d.bridge = layoutsync.New(layoutsync.Options{
					Logger:     d.logger,
					Service:    d.service,
					Displays:   d.displays,
					Bus:        d.bus,
					KxkbrcPath: cfg.LayoutSync.KxkbrcPath,
				})
			}
		}

		d.logger.Info("config applied",
			"log_level", cfg.Daemon.LogLevel,
			"exit_on_main_display_disconnect", cfg.Daemon.ExitOnMainDisplayDisconnect,
			"layout_sync", cfg.LayoutSync.Enabled)
	})
}

// shutdown stops everything in reverse dependency order. It runs after the
// loop has stopped, so loop-confined state is safe to touch directly.
func (d *Daemon) shutdown() {
	if d.watcher != nil {
		_ = d.watcher.Stop()
	}
	if d.ctrl != nil {
		_ = d.ctrl.Stop()
	}
	if d.bridge != nil {
		d.bridge.Close()
	}
	if d.prime != nil {
		d.prime.Remove()
	}
	d.displays.Close()
	d.bus.Close()
	d.loop.Close()
	d.logger.Info("daemon stopped")
}

func groupsFromConfig(cfg *config.Config) []ime.Group {
	groups := make([]ime.Group, 0, len(cfg.Groups))
	for _, g := range cfg.Groups {
		groups = append(groups, ime.Group{
			Name:         g.Name,
			Layout:       g.Layout,
			InputMethods: g.InputMethods,
		})
	}
	return groups
}
