// Copyright 2026 © The Social Robotics Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads server configuration from defaults, an optional
// yaml file, and HERA_ environment variables, in that order of
// precedence.
package config

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Log       LogConfig       `koanf:"log"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
}

type ServerConfig struct {
	Host      string `koanf:"host"`
	Port      int    `koanf:"port"`
	ReadLimit int    `koanf:"read_limit"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // json, text
}

type TelemetryConfig struct {
	Exporter     string `koanf:"exporter"` // stdout, otlp, none
	OTLPEndpoint string `koanf:"otlp_endpoint"`
	OTLPInsecure bool   `koanf:"otlp_insecure"`
}

// Addr returns the listen address in host:port form.
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

func Load(path string) (*Config, error) {
	k := koanf.New(".")

	// Defaults
	k.Set("server.host", "127.0.0.1")
	k.Set("server.port", 5010)
	k.Set("server.read_limit", 1<<20)
	k.Set("log.level", "info")
	k.Set("log.format", "text")
	k.Set("telemetry.exporter", "none")
	k.Set("telemetry.otlp_endpoint", "localhost:4317")
	k.Set("telemetry.otlp_insecure", true)

	// 1. Load from file
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, err
		}
	}

	// 2. Load from ENV (HERA_LOG_LEVEL -> log.level)
	if err := k.Load(env.Provider("HERA_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(
			strings.TrimPrefix(s, "HERA_")), "_", ".", 1)
	}), nil); err != nil {
		return nil, err
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	// Port 0 is allowed: it asks the OS for an ephemeral port, which the
	// server reports through Addr after binding.
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Server.ReadLimit <= 0 {
		return fmt.Errorf("server.read_limit must be positive, got %d", c.Server.ReadLimit)
	}
	switch c.Telemetry.Exporter {
	case "stdout", "otlp", "none":
	default:
		return fmt.Errorf("unknown telemetry.exporter: %s", c.Telemetry.Exporter)
	}
	return nil
}
