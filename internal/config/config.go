// Copyright 2026 The modelgate Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads and validates the gateway configuration from YAML.
package config

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/modelgate/modelgate/internal/mcp"
	"github.com/modelgate/modelgate/internal/secrets"
	"github.com/modelgate/modelgate/pkg/errors"
)

// Config is the complete gateway configuration.
type Config struct {
	// Log configures structured logging.
	Log LogConfig `yaml:"log"`

	// Servers are the tool servers to connect at startup.
	Servers []mcp.ServerConfig `yaml:"servers"`

	// Search configures the agentic retrieval engine.
	Search SearchConfig `yaml:"search"`

	// Store configures the chunk store.
	Store StoreConfig `yaml:"store"`

	// Tracing configures span export.
	Tracing TracingConfig `yaml:"tracing"`
}

// LogConfig mirrors the log package settings that make sense in a file.
// Empty fields defer to the environment (MODELGATE_LOG_LEVEL, LOG_FORMAT)
// and the log package defaults.
type LogConfig struct {
	// Level: trace, debug, info, warn, error.
	Level string `yaml:"level"`

	// Format: json or text.
	Format string `yaml:"format"`
}

// SearchConfig tunes the retrieval engine.
type SearchConfig struct {
	// Strategy selects the seed strategy. Default: hybrid.
	Strategy string `yaml:"seed_strategy"`

	// Alpha is the dense/lexical blend weight in [0, 1]. Default: 0.5.
	Alpha float64 `yaml:"alpha"`

	// MaxIterations caps the retrieval loop. Default: 4.
	MaxIterations int `yaml:"max_iterations"`

	// SeedMultiplier widens the first round. Default: 3.
	SeedMultiplier int `yaml:"initial_seed_multiplier"`

	// Sufficiency is the termination predicate expression. Empty selects
	// the built-in default.
	Sufficiency string `yaml:"sufficiency"`
}

// StoreConfig locates the chunk store.
type StoreConfig struct {
	// Path is the SQLite database path; empty means in-memory.
	Path string `yaml:"path"`

	// EmbedderDims is the dense embedding dimensionality. Default: 256.
	// Changing it invalidates vectors already in the store.
	EmbedderDims int `yaml:"embedder_dims"`
}

// TracingConfig configures span export.
type TracingConfig struct {
	// Enabled turns tracing on.
	Enabled bool `yaml:"enabled"`

	// Exporter: none, console, otlp-http, otlp-grpc. Default: none.
	Exporter string `yaml:"exporter"`

	// Endpoint is the collector endpoint for the OTLP exporters.
	Endpoint string `yaml:"endpoint"`

	// Insecure disables TLS on the exporter connection.
	Insecure bool `yaml:"insecure"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Search: SearchConfig{
			Strategy:       "hybrid",
			Alpha:          0.5,
			MaxIterations:  4,
			SeedMultiplier: 3,
		},
		Store:   StoreConfig{EmbedderDims: 256},
		Tracing: TracingConfig{Exporter: "none"},
	}
}

// Load reads and validates a configuration file. Missing fields take their
// defaults; unknown fields are rejected.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &errors.ConfigError{
			Key:    path,
			Reason: "failed to read config file",
			Cause:  err,
		}
	}
	return Parse(data)
}

// Parse decodes and validates configuration bytes.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, &errors.ConfigError{
			Key:    "config",
			Reason: "invalid YAML",
			Cause:  err,
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field constraints and server uniqueness.
func (c *Config) Validate() error {
	if c.Search.Alpha < 0 || c.Search.Alpha > 1 {
		return &errors.ConfigError{
			Key:    "search.alpha",
			Reason: fmt.Sprintf("must be in [0, 1], got %g", c.Search.Alpha),
		}
	}
	if c.Search.MaxIterations < 1 {
		return &errors.ConfigError{
			Key:    "search.max_iterations",
			Reason: "must be at least 1",
		}
	}
	if c.Search.SeedMultiplier < 1 {
		return &errors.ConfigError{
			Key:    "search.initial_seed_multiplier",
			Reason: "must be at least 1",
		}
	}

	if c.Store.EmbedderDims < 1 {
		return &errors.ConfigError{
			Key:    "store.embedder_dims",
			Reason: "must be at least 1",
		}
	}

	switch c.Tracing.Exporter {
	case "", "none", "console", "otlp-http", "otlp-grpc":
	default:
		return &errors.ConfigError{
			Key:    "tracing.exporter",
			Reason: "must be one of none, console, otlp-http, otlp-grpc",
		}
	}

	seen := make(map[string]bool, len(c.Servers))
	for i, server := range c.Servers {
		if server.Name == "" {
			return &errors.ConfigError{
				Key:    fmt.Sprintf("servers[%d].name", i),
				Reason: "server name is required",
			}
		}
		if server.Command == "" {
			return &errors.ConfigError{
				Key:    fmt.Sprintf("servers[%d].command", i),
				Reason: "command is required",
			}
		}
		if seen[server.Name] {
			return &errors.ConfigError{
				Key:    fmt.Sprintf("servers[%d].name", i),
				Reason: "duplicate server name " + server.Name,
			}
		}
		seen[server.Name] = true
	}
	return nil
}

// ResolveSecrets expands ${secret:NAME} references in server headers using
// the resolver, mutating the config in place. Header values are resolved
// before dialing so live connections never see unresolved references.
func (c *Config) ResolveSecrets(ctx context.Context, resolver *secrets.Resolver) error {
	for i := range c.Servers {
		resolved, err := resolver.ResolveHeaders(ctx, c.Servers[i].Headers)
		if err != nil {
			return &errors.ConfigError{
				Key:    fmt.Sprintf("servers[%d].headers", i),
				Reason: "failed to resolve secret reference",
				Cause:  err,
			}
		}
		c.Servers[i].Headers = resolved
	}
	return nil
}
