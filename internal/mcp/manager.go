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
	stderrors "errors"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/time/rate"

	"github.com/modelgate/modelgate/internal/log"
	"github.com/modelgate/modelgate/internal/tracing"
	"github.com/modelgate/modelgate/pkg/errors"
	"github.com/modelgate/modelgate/pkg/tools"
)

// Conn is the transport-level surface the manager needs from a connection.
// *Client satisfies it; tests substitute fakes.
type Conn interface {
	ListTools(ctx context.Context) ([]tools.Listing, error)
	Invoke(ctx context.Context, name string, args map[string]any, headers map[string]string) (string, error)
	Ping(ctx context.Context) error
	Close() error
}

// DialFunc establishes a connection for a server configuration.
type DialFunc func(ctx context.Context, cfg ServerConfig) (Conn, error)

// managedConn pairs a live connection with its config and rate limiter.
// It satisfies tools.Connection so the executor invokes through the limiter.
type managedConn struct {
	cfg     ServerConfig
	conn    Conn
	limiter *rate.Limiter
	state   ConnState
}

func (m *managedConn) Invoke(ctx context.Context, name string, args map[string]any, headers map[string]string) (string, error) {
	if m.limiter != nil {
		if err := m.limiter.Wait(ctx); err != nil {
			return "", err
		}
	}
	return m.conn.Invoke(ctx, name, args, headers)
}

// Manager owns one connection per configured tool server. Connecting a
// server registers its tool listing under qualified names; reconnecting
// replaces both the connection and the registered tools. The manager is the
// executor's ConnectionProvider.
type Manager struct {
	mu       sync.RWMutex
	conns    map[string]*managedConn
	dial     DialFunc
	registry *tools.Registry
	logger   *slog.Logger
	metrics  *tracing.Metrics
}

// ManagerConfig configures the connection manager.
type ManagerConfig struct {
	// Registry receives each connected server's tools. Required.
	Registry *tools.Registry

	// Dial establishes connections; defaults to the stdio client.
	Dial DialFunc

	// Logger for structured logging (optional).
	Logger *slog.Logger

	// Metrics for the open-connections gauge (optional).
	Metrics *tracing.Metrics
}

// NewManager creates a connection manager.
func NewManager(cfg ManagerConfig) *Manager {
	dial := cfg.Dial
	if dial == nil {
		dial = func(ctx context.Context, sc ServerConfig) (Conn, error) {
			return Dial(ctx, sc)
		}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		conns:    make(map[string]*managedConn),
		dial:     dial,
		registry: cfg.Registry,
		logger:   logger,
		metrics:  cfg.Metrics,
	}
}

// Connect dials a server, reads its tool listing, and publishes the tools to
// the registry. Connecting a name that is already connected replaces the old
// connection; its registered tools are overwritten by the fresh listing.
func (m *Manager) Connect(ctx context.Context, cfg ServerConfig) error {
	if cfg.Name == "" {
		return &errors.ValidationError{
			Field:   "server",
			Message: "server name is required",
		}
	}

	conn, err := m.dial(ctx, cfg)
	if err != nil {
		return errors.Wrapf(err, "failed to connect to server %s", cfg.Name)
	}

	listing, err := conn.ListTools(ctx)
	if err != nil {
		_ = conn.Close()
		return errors.Wrapf(err, "failed to list tools on server %s", cfg.Name)
	}

	info := tools.ServerInfo{ID: cfg.Name, Headers: cfg.Headers}
	if m.registry != nil {
		if err := m.registry.RegisterFromServer(info, listing); err != nil {
			_ = conn.Close()
			return err
		}
	}

	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	m.mu.Lock()
	old := m.conns[cfg.Name]
	m.conns[cfg.Name] = &managedConn{
		cfg:     cfg,
		conn:    conn,
		limiter: limiter,
		state:   StateConnected,
	}
	m.mu.Unlock()

	if old != nil {
		// Replace-on-reconnect: a call racing the swap may still land on
		// the old connection and fail; the executor treats that as a
		// recoverable error.
		_ = old.conn.Close()
	} else if m.metrics != nil {
		m.metrics.OpenConnections.Inc()
	}

	logger := log.WithServer(m.logger, cfg.Name)
	for name, value := range cfg.Headers {
		logger.Debug("forwarding header on tool calls",
			"header", name,
			"value", log.SanitizeHeader(value),
		)
	}
	logger.Info("connected to tool server", "tools", len(listing))
	return nil
}

// Connection implements tools.ConnectionProvider. A server that was never
// connected or already disconnected reports ok=false.
func (m *Manager) Connection(serverID string) (tools.Connection, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	mc, ok := m.conns[serverID]
	if !ok || mc.state != StateConnected {
		return nil, false
	}
	return mc, true
}

// Disconnect closes one server's connection. Its registered tools stay in
// the registry until the next Clear or reconnect; calls to them return a
// recoverable not-found error.
func (m *Manager) Disconnect(serverID string) error {
	m.mu.Lock()
	mc, ok := m.conns[serverID]
	if ok {
		delete(m.conns, serverID)
	}
	m.mu.Unlock()

	if !ok {
		return &errors.NotFoundError{Resource: "connection", ID: serverID}
	}

	mc.state = StateClosed
	if m.metrics != nil {
		m.metrics.OpenConnections.Dec()
	}
	m.logger.Info("disconnected from tool server", log.ServerKey, serverID)
	return mc.conn.Close()
}

// Ping checks one server's health.
func (m *Manager) Ping(ctx context.Context, serverID string) error {
	m.mu.RLock()
	mc, ok := m.conns[serverID]
	m.mu.RUnlock()

	if !ok {
		return &errors.NotFoundError{Resource: "connection", ID: serverID}
	}
	return mc.conn.Ping(ctx)
}

// State reports the lifecycle state for a server name.
func (m *Manager) State(serverID string) ConnState {
	m.mu.RLock()
	defer m.mu.RUnlock()

	mc, ok := m.conns[serverID]
	if !ok {
		return StateDisconnected
	}
	return mc.state
}

// Servers returns the connected server names, sorted.
func (m *Manager) Servers() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.conns))
	for name := range m.conns {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Shutdown closes every connection, collecting failures rather than stopping
// at the first one.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	conns := m.conns
	m.conns = make(map[string]*managedConn)
	m.mu.Unlock()

	var errs []error
	for name, mc := range conns {
		mc.state = StateClosed
		if err := mc.conn.Close(); err != nil {
			errs = append(errs, errors.Wrapf(err, "failed to close connection to %s", name))
		}
		if m.metrics != nil {
			m.metrics.OpenConnections.Dec()
		}
	}

	if len(errs) > 0 {
		m.logger.Warn("shutdown closed connections with errors", "errors", len(errs))
	}
	return stderrors.Join(errs...)
}
