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

package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/mark3labs/mcp-go/client"
	mcpproto "github.com/mark3labs/mcp-go/mcp"

	"github.com/modelgate/modelgate/pkg/tools"
)

const defaultCallTimeout = 30 * time.Second

// Client is one live stdio connection to a tool server. It owns the server
// process for its lifetime and is safe for concurrent tool calls.
type Client struct {
	serverID string
	client   *client.Client
	timeout  time.Duration
}

// Dial starts the server process, performs the MCP initialize handshake, and
// returns a usable client. The context bounds the handshake only.
func Dial(ctx context.Context, cfg ServerConfig) (*Client, error) {
	if cfg.Name == "" {
		return nil, errDialFailed("", fmt.Errorf("server name is required"))
	}
	if cfg.Command == "" {
		return nil, errDialFailed(cfg.Name, fmt.Errorf("command is required"))
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultCallTimeout
	}

	mcpClient, err := client.NewStdioMCPClient(cfg.Command, cfg.Env, cfg.Args...)
	if err != nil {
		return nil, errDialFailed(cfg.Name, err)
	}

	if err := mcpClient.Start(ctx); err != nil {
		return nil, errDialFailed(cfg.Name, err)
	}

	c := &Client{
		serverID: cfg.Name,
		client:   mcpClient,
		timeout:  timeout,
	}

	if err := c.initialize(ctx); err != nil {
		_ = c.Close()
		return nil, errDialFailed(cfg.Name, err)
	}

	return c, nil
}

// initialize performs the MCP initialize handshake.
func (c *Client) initialize(ctx context.Context) error {
	req := mcpproto.InitializeRequest{
		Params: mcpproto.InitializeParams{
			ProtocolVersion: mcpproto.LATEST_PROTOCOL_VERSION,
			Capabilities:    mcpproto.ClientCapabilities{},
			ClientInfo: mcpproto.Implementation{
				Name:    "modelgate",
				Version: "0.1.0",
			},
		},
	}

	if _, err := c.client.Initialize(ctx, req); err != nil {
		return fmt.Errorf("initialize request failed: %w", err)
	}
	return nil
}

// ServerID returns the identifier of the connected server.
func (c *Client) ServerID() string { return c.serverID }

// ListTools fetches the server's tool listing in registry form.
func (c *Client) ListTools(ctx context.Context) ([]tools.Listing, error) {
	result, err := c.client.ListTools(ctx, mcpproto.ListToolsRequest{})
	if err != nil {
		return nil, errListFailed(c.serverID, err)
	}

	listing := make([]tools.Listing, len(result.Tools))
	for i, tool := range result.Tools {
		var schema json.RawMessage
		if len(tool.RawInputSchema) > 0 {
			schema = json.RawMessage(tool.RawInputSchema)
		} else {
			schema, err = json.Marshal(tool.InputSchema)
			if err != nil {
				return nil, errListFailed(c.serverID, fmt.Errorf("tool %s schema: %w", tool.Name, err))
			}
		}
		listing[i] = tools.Listing{
			Name:        tool.Name,
			Description: tool.Description,
			InputSchema: schema,
		}
	}
	return listing, nil
}

// Invoke calls an unqualified tool on this server. Per-call headers ride in
// the request metadata so the server can pick up credentials without them
// appearing in the tool arguments.
func (c *Client) Invoke(ctx context.Context, name string, args map[string]any, headers map[string]string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req := mcpproto.CallToolRequest{
		Params: mcpproto.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
	if len(headers) > 0 {
		fields := make(map[string]any, len(headers))
		for k, v := range headers {
			fields[k] = v
		}
		req.Params.Meta = &mcpproto.Meta{AdditionalFields: map[string]any{"headers": fields}}
	}

	result, err := c.client.CallTool(ctx, req)
	if err != nil {
		return "", fmt.Errorf("tool call failed: %w", err)
	}

	items := make([]ContentItem, 0, len(result.Content))
	for _, content := range result.Content {
		if text, ok := mcpproto.AsTextContent(content); ok {
			items = append(items, ContentItem{Type: text.Type, Text: text.Text})
			continue
		}
		if img, ok := mcpproto.AsImageContent(content); ok {
			items = append(items, ContentItem{Type: img.Type, Data: img.Data, MimeType: img.MIMEType})
			continue
		}
		// Unknown content kinds are carried through as JSON text.
		raw, merr := json.Marshal(content)
		if merr != nil {
			continue
		}
		items = append(items, ContentItem{Type: "text", Text: string(raw)})
	}

	flattened := flattenContent(items)
	if result.IsError {
		return "", errToolCall(c.serverID, name, flattened)
	}
	return flattened, nil
}

// Ping checks that the server is still responsive.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx); err != nil {
		if err == io.EOF {
			return &ConnError{Code: CodeClosed, Server: c.serverID, Message: "server connection closed"}
		}
		return &ConnError{Code: CodePingFailed, Server: c.serverID, Message: "ping failed", Cause: err}
	}
	return nil
}

// Close tears down the connection and stops the server process.
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}
	if err := c.client.Close(); err != nil {
		return fmt.Errorf("failed to close connection to %s: %w", c.serverID, err)
	}
	return nil
}
