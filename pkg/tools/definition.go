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

// Package tools defines the callable-tool model for modelgate: tool
// definitions, the registry mapping names to definitions, the server
// directory, and the executor that dispatches calls to in-process handlers
// or remote tool servers.
package tools

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/google/uuid"
)

// Protocol identifies the wire protocol a tool is invoked over.
type Protocol string

const (
	// ProtocolNative marks tools executed in-process.
	ProtocolNative Protocol = "native"
	// ProtocolMCP marks tools invoked over the Model Context Protocol.
	ProtocolMCP Protocol = "mcp"
)

// Hosting identifies where a tool runs.
type Hosting string

const (
	// HostingLocal marks tools that run inside the gateway process.
	HostingLocal Hosting = "local"
	// HostingRemote marks tools hosted on an external server.
	HostingRemote Hosting = "remote"
)

// Definition is the closed variant over tool hosting and protocol.
// The two concrete variants are NativeDefinition and MCPDefinition; the
// executor is the single place that matches on the variant.
type Definition interface {
	// ID returns the opaque identifier for this definition.
	ID() string

	// Name returns the tool name, unique within a registry snapshot.
	// Remote tools carry a qualified name ("<server>.<tool>").
	Name() string

	// Description returns a human-readable description of the tool.
	Description() string

	// Parameters returns the JSON-schema-shaped argument description.
	Parameters() json.RawMessage

	// Protocol returns the invocation protocol.
	Protocol() Protocol

	// Hosting returns where the tool runs.
	Hosting() Hosting

	// sealed keeps the variant set closed to this package.
	sealed()
}

// Handler is the in-process execution function for a native tool.
// Arguments arrive as the decoded JSON object; the result is opaque text.
type Handler func(ctx context.Context, args map[string]any) (string, error)

// NativeDefinition describes a tool executed in-process.
type NativeDefinition struct {
	id          string
	name        string
	description string
	parameters  json.RawMessage
	handler     Handler
}

// NewNativeDefinition creates a native LOCAL tool definition.
// An id is generated when none is supplied by the caller.
func NewNativeDefinition(name, description string, parameters json.RawMessage, handler Handler) *NativeDefinition {
	return &NativeDefinition{
		id:          uuid.New().String(),
		name:        name,
		description: description,
		parameters:  parameters,
		handler:     handler,
	}
}

func (d *NativeDefinition) ID() string                  { return d.id }
func (d *NativeDefinition) Name() string                { return d.name }
func (d *NativeDefinition) Description() string         { return d.description }
func (d *NativeDefinition) Parameters() json.RawMessage { return d.parameters }
func (d *NativeDefinition) Protocol() Protocol          { return ProtocolNative }
func (d *NativeDefinition) Hosting() Hosting            { return HostingLocal }
func (d *NativeDefinition) sealed()                     {}

// Handler returns the in-process execution function.
func (d *NativeDefinition) Handler() Handler { return d.handler }

// MCPDefinition describes a tool hosted on a remote MCP server.
// Its name is qualified with the owning server identifier so identically
// named tools on different servers stay distinct in one registry.
type MCPDefinition struct {
	id          string
	name        string
	description string
	parameters  json.RawMessage
	server      ServerInfo
}

// NewMCPDefinition creates a remote MCP tool definition. The tool name is
// qualified with the server identifier; an id is generated when absent.
func NewMCPDefinition(server ServerInfo, name, description string, parameters json.RawMessage) *MCPDefinition {
	return &MCPDefinition{
		id:          uuid.New().String(),
		name:        server.Qualify(name),
		description: description,
		parameters:  parameters,
		server:      server,
	}
}

func (d *MCPDefinition) ID() string                  { return d.id }
func (d *MCPDefinition) Name() string                { return d.name }
func (d *MCPDefinition) Description() string         { return d.description }
func (d *MCPDefinition) Parameters() json.RawMessage { return d.parameters }
func (d *MCPDefinition) Protocol() Protocol          { return ProtocolMCP }
func (d *MCPDefinition) Hosting() Hosting            { return HostingRemote }
func (d *MCPDefinition) sealed()                     {}

// Server returns the owning server's connection metadata.
func (d *MCPDefinition) Server() ServerInfo { return d.server }

// ServerInfo holds the directory entry for one tool server: its unique
// identifier, per-call headers, and the name qualification scheme.
type ServerInfo struct {
	// ID uniquely identifies the server and names its live connection.
	ID string

	// Headers are forwarded on every call to this server (auth/credentials).
	Headers map[string]string
}

// Qualify namespaces a tool name with this server's identifier.
func (s ServerInfo) Qualify(tool string) string {
	return s.ID + "." + tool
}

// Unqualify strips this server's namespace prefix from a qualified name.
// It is the exact inverse of Qualify, including for tool names that
// themselves contain the delimiter. Names without the prefix are returned
// unchanged.
func (s ServerInfo) Unqualify(qualified string) string {
	return strings.TrimPrefix(qualified, s.ID+".")
}

// Listing is one entry of a connected server's tool listing, consumed
// verbatim into a Definition's parameters.
type Listing struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
}
