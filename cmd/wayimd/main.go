// Package main is the entry point for the wayimd input-method daemon.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/wayim/wayim/internal/config"
	"github.com/wayim/wayim/internal/daemon"
)

var (
	// Build-time variables
	version = "dev"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "", "Path to config file (default: ~/.config/wayim/config.toml)")
	verbose := flag.Bool("verbose", false, "Force debug logging regardless of config")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		println("wayimd version", version)
		os.Exit(0)
	}

	// Set up structured logging. The level lives in a LevelVar so config
	// hot-reload can adjust it on the fly.
	level := new(slog.LevelVar)
	level.Set(slog.LevelInfo)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	if *verbose {
		level.Set(slog.LevelDebug)
	} else if lvl, err := config.ParseLevel(cfg.Daemon.LogLevel); err == nil {
		level.Set(lvl)
	}

	watchPath := *configPath
	if watchPath == "" {
		watchPath = config.ConfigPath()
	}

	d, err := daemon.New(daemon.Options{
		Logger:     logger,
		LogLevel:   level,
		Config:     cfg,
		ConfigPath: watchPath,
		Version:    version,
	})
	if err != nil {
		logger.Error("failed to start daemon", "error", err)
		os.Exit(1)
	}

	// Set up signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	if err := d.Run(ctx); err != nil {
		logger.Error("daemon exited with error", "error", err)
		os.Exit(1)
	}
}
