// Copyright 2026 © The Social Robotics Authors
// SPDX-License-Identifier: Apache-2.0

// Command herad runs the hera model server.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MCHalbi/social-robotics/pkg/config"
	"github.com/MCHalbi/social-robotics/pkg/server"
	"github.com/MCHalbi/social-robotics/pkg/telemetry"
)

const version = "v0.1.0"

func main() {
	configPath := flag.String("config", "", "Path to yaml config file")
	addr := flag.String("addr", "", "Listen address override (host:port)")
	watch := flag.Bool("watch", false, "Watch the config file for changes and hot-reload")
	noTelemetry := flag.Bool("no-telemetry", false, "Disable telemetry output")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("herad", version)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fatal(fmt.Errorf("failed to load config: %w", err))
	}

	logger := telemetry.ConfigureSlog(os.Stderr, cfg.Log.Level, cfg.Log.Format)

	reloadable := config.NewReloadableConfig(cfg)
	if *watch && *configPath != "" {
		watcher, _, err := config.WatchConfig(ctx, *configPath,
			config.WithWatchInterval(time.Second),
			config.WithWatchLogger(logger),
		)
		if err != nil {
			fatal(fmt.Errorf("failed to watch config: %w", err))
		}
		watcher.OnChange(func(newCfg *config.Config) {
			reloadable.Update(newCfg)
			// Log level and format follow the file; the listen address
			// and telemetry exporter need a restart.
			telemetry.ConfigureSlog(os.Stderr, newCfg.Log.Level, newCfg.Log.Format)
		})
		defer watcher.Stop()
	}

	exporter := cfg.Telemetry.Exporter
	if *noTelemetry {
		exporter = "none"
	}
	shutdown, err := telemetry.InitWithConfig("herad", version, telemetry.Config{
		Exporter:     exporter,
		OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
		OTLPInsecure: cfg.Telemetry.OTLPInsecure,
	})
	if err != nil {
		fatal(fmt.Errorf("failed to init telemetry: %w", err))
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			fmt.Fprintf(os.Stderr, "telemetry shutdown: %v\n", err)
		}
	}()

	metrics, err := telemetry.NewSessionMetrics()
	if err != nil {
		fatal(fmt.Errorf("failed to create metrics: %w", err))
	}

	listenAddr := cfg.Server.Addr()
	if *addr != "" {
		listenAddr = *addr
	}
	srv := server.New(listenAddr,
		server.WithLogger(logger),
		server.WithMetrics(metrics),
		server.WithReadLimit(cfg.Server.ReadLimit),
	)
	if err := srv.ListenAndServe(ctx); err != nil {
		fatal(err)
	}
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "herad:", err)
	os.Exit(1)
}
