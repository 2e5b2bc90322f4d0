// Copyright 2026 © The Social Robotics Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "hera.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config file: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("expected default host 127.0.0.1, got %s", cfg.Server.Host)
	}
	if cfg.Server.Port != 5010 {
		t.Errorf("expected default port 5010, got %d", cfg.Server.Port)
	}
	if cfg.Server.ReadLimit != 1<<20 {
		t.Errorf("expected default read limit %d, got %d", 1<<20, cfg.Server.ReadLimit)
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "text" {
		t.Errorf("unexpected default log config: %+v", cfg.Log)
	}
	if cfg.Telemetry.Exporter != "none" {
		t.Errorf("expected default exporter none, got %s", cfg.Telemetry.Exporter)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfigFile(t, `
server:
  host: 0.0.0.0
  port: 9000
log:
  level: debug
  format: json
telemetry:
  exporter: stdout
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Host != "0.0.0.0" || cfg.Server.Port != 9000 {
		t.Errorf("file values not applied: %+v", cfg.Server)
	}
	if cfg.Server.ReadLimit != 1<<20 {
		t.Errorf("default read limit not kept: %d", cfg.Server.ReadLimit)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "json" {
		t.Errorf("file log values not applied: %+v", cfg.Log)
	}
	if cfg.Telemetry.Exporter != "stdout" {
		t.Errorf("file telemetry value not applied: %+v", cfg.Telemetry)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeConfigFile(t, `
log:
  level: debug
`)
	t.Setenv("HERA_LOG_LEVEL", "error")
	t.Setenv("HERA_SERVER_PORT", "7777")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Log.Level != "error" {
		t.Errorf("env did not override file: %s", cfg.Log.Level)
	}
	if cfg.Server.Port != 7777 {
		t.Errorf("env did not override default port: %d", cfg.Server.Port)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"port out of range", "server:\n  port: 70000\n"},
		{"negative port", "server:\n  port: -1\n"},
		{"negative read limit", "server:\n  read_limit: -1\n"},
		{"unknown exporter", "telemetry:\n  exporter: carrier-pigeon\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfigFile(t, tt.content)
			if _, err := Load(path); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestLoadAcceptsEphemeralPort(t *testing.T) {
	path := writeConfigFile(t, "server:\n  port: 0\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Port != 0 {
		t.Fatalf("expected port 0, got %d", cfg.Server.Port)
	}
	if got := cfg.Server.Addr(); got != "127.0.0.1:0" {
		t.Fatalf("expected 127.0.0.1:0, got %s", got)
	}
}

func TestServerAddr(t *testing.T) {
	s := ServerConfig{Host: "10.0.0.5", Port: 5010}
	if got := s.Addr(); got != "10.0.0.5:5010" {
		t.Fatalf("expected 10.0.0.5:5010, got %s", got)
	}
}

func TestWatcherReloadsOnChange(t *testing.T) {
	path := writeConfigFile(t, "log:\n  level: info\n")

	w, err := NewWatcher(path, WithWatchInterval(10*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}
	reloaded := make(chan *Config, 1)
	w.OnChange(func(cfg *Config) {
		select {
		case reloaded <- cfg:
		default:
		}
	})
	w.Start(context.Background())
	defer w.Stop()

	// Backdate the recorded mod time so the rewrite always looks newer,
	// even on filesystems with coarse timestamps.
	w.mu.Lock()
	w.lastModTime = w.lastModTime.Add(-time.Hour)
	w.mu.Unlock()
	if err := os.WriteFile(path, []byte("log:\n  level: warn\n"), 0o644); err != nil {
		t.Fatalf("rewrite config file: %v", err)
	}

	select {
	case cfg := <-reloaded:
		if cfg.Log.Level != "warn" {
			t.Fatalf("expected reloaded level warn, got %s", cfg.Log.Level)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not reload in time")
	}

	if w.Config().Log.Level != "warn" {
		t.Fatalf("watcher config not updated: %s", w.Config().Log.Level)
	}
}

func TestReloadableConfig(t *testing.T) {
	initial, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	rc := NewReloadableConfig(initial)
	if rc.Log().Level != "info" {
		t.Fatalf("unexpected initial level: %s", rc.Log().Level)
	}

	updated := *initial
	updated.Log.Level = "debug"
	rc.Update(&updated)
	if rc.Log().Level != "debug" {
		t.Fatalf("update not visible: %s", rc.Log().Level)
	}
	if rc.Server().Port != initial.Server.Port {
		t.Fatalf("server config lost on update")
	}
}
