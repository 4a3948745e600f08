package claimd

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os/signal"
	"syscall"

	"airdrop/config"
	"airdrop/observability/logging"
	telemetry "airdrop/observability/otel"
)

// Version is stamped at build time through -ldflags.
var Version = "dev"

// Main initialises and runs the claim daemon.
func Main() error {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "claimd.toml", "path to claimd configuration (TOML or YAML)")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := logging.SetupWithOptions("claimd", cfg.Environment, logging.Options{
		Level:      cfg.Logging.Level,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})

	telemetryCfg := telemetry.FromEnv("claimd", cfg.Environment)
	telemetryCfg.Version = Version
	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetryCfg)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		if shutdownTelemetry != nil {
			_ = shutdownTelemetry(context.Background())
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := NewApp(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("start claimd: %w", err)
	}
	defer func() { _ = app.Close() }()

	listener, err := net.Listen("tcp", cfg.Server.ListenAddress)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	return app.Serve(ctx, listener)
}
