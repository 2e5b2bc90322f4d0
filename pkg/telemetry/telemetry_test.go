// Copyright 2026 © The Social Robotics Authors
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestConfigureSlogJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := ConfigureSlog(&buf, "info", "json")
	logger.Info("session opened", "connection_id", "abc")
	out := buf.String()
	if !strings.Contains(out, `"msg":"session opened"`) {
		t.Fatalf("expected JSON output, got %q", out)
	}
	if !strings.Contains(out, `"connection_id":"abc"`) {
		t.Fatalf("expected connection_id attribute, got %q", out)
	}
}

func TestConfigureSlogLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := ConfigureSlog(&buf, "warn", "text")
	logger.Info("should be filtered")
	logger.Warn("should appear")
	out := buf.String()
	if strings.Contains(out, "should be filtered") {
		t.Fatalf("info record leaked through warn level: %q", out)
	}
	if !strings.Contains(out, "should appear") {
		t.Fatalf("warn record missing: %q", out)
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warning", slog.LevelWarn},
		{" error ", slog.LevelError},
		{"nonsense", slog.LevelInfo},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := parseLogLevel(tt.in); got != tt.want {
			t.Errorf("parseLogLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestInitWithConfigNoneExporter(t *testing.T) {
	shutdown, err := InitWithConfig("hera-test", "0.0.0", Config{Exporter: "none"})
	if err != nil {
		t.Fatalf("InitWithConfig failed: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		t.Fatalf("shutdown failed: %v", err)
	}
}

func TestInitWithConfigRejectsUnknownExporter(t *testing.T) {
	if _, err := InitWithConfig("hera-test", "0.0.0", Config{Exporter: "carrier-pigeon"}); err == nil {
		t.Fatal("expected error for unknown exporter")
	}
}

func TestInitWithConfigOTLPRequiresEndpoint(t *testing.T) {
	if _, err := InitWithConfig("hera-test", "0.0.0", Config{Exporter: "otlp"}); err == nil {
		t.Fatal("expected error for missing otlp endpoint")
	}
}

func TestSessionMetricsNilReceiver(t *testing.T) {
	var sm *SessionMetrics
	ctx := context.Background()
	sm.RecordRequest(ctx, "action", "ADD", true, time.Millisecond)
	sm.RecordDecodeFailure(ctx)
	sm.SessionStarted(ctx)
	sm.SessionEnded(ctx)
}

func TestNewSessionMetrics(t *testing.T) {
	sm, err := NewSessionMetrics()
	if err != nil {
		t.Fatalf("NewSessionMetrics failed: %v", err)
	}
	ctx := context.Background()
	sm.SessionStarted(ctx)
	sm.RecordRequest(ctx, "utility", "SET", true, time.Millisecond)
	sm.RecordDecodeFailure(ctx)
	sm.SessionEnded(ctx)
}
