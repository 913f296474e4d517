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

// Package mcp connects modelgate to external tool servers over the Model
// Context Protocol. It wraps the stdio client, keeps one live connection per
// configured server, and feeds each server's tool listing into the tool
// registry under qualified names.
package mcp

import (
	"strings"
	"time"
)

// ServerConfig describes one tool server to connect to.
type ServerConfig struct {
	// Name uniquely identifies the server; it namespaces the server's tools.
	Name string `yaml:"name"`

	// Command is the executable that speaks MCP over stdio.
	Command string `yaml:"command"`

	// Args are the command-line arguments.
	Args []string `yaml:"args"`

	// Env are extra environment variables for the server process.
	Env []string `yaml:"env"`

	// Headers are forwarded on every tool call to this server. Values may
	// be secret references that the config layer resolves before dialing.
	Headers map[string]string `yaml:"headers"`

	// Timeout bounds individual tool calls (defaults to 30s).
	Timeout time.Duration `yaml:"timeout"`

	// RateLimit caps calls per second to this server; zero means unlimited.
	RateLimit float64 `yaml:"rate_limit"`

	// RateBurst is the burst size for the rate limit (defaults to 1 when
	// a rate limit is set).
	RateBurst int `yaml:"rate_burst"`
}

// ConnState is the lifecycle state of a managed connection.
type ConnState string

const (
	// StateDisconnected means the server is configured but not dialed.
	StateDisconnected ConnState = "disconnected"
	// StateConnecting means a dial is in flight.
	StateConnecting ConnState = "connecting"
	// StateConnected means the connection is live and usable.
	StateConnected ConnState = "connected"
	// StateClosed means the connection was shut down and will not be reused.
	StateClosed ConnState = "closed"
)

// ContentItem is one piece of a tool call result.
type ContentItem struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	Data     string `json:"data,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
}

// flattenContent joins the textual parts of a tool result into the opaque
// string handed back to the caller. Non-text parts are skipped.
func flattenContent(items []ContentItem) string {
	var parts []string
	for _, item := range items {
		if item.Type == "text" && item.Text != "" {
			parts = append(parts, item.Text)
		}
	}
	return strings.Join(parts, "\n")
}
