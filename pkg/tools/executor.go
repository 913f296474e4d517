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

package tools

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/modelgate/modelgate/internal/log"
	"github.com/modelgate/modelgate/internal/tracing"
	"github.com/modelgate/modelgate/pkg/errors"
)

// Connection is a live link to one tool server. Invoke sends an unqualified
// tool name, the decoded JSON arguments, and the server's per-call headers,
// and returns the raw textual result.
type Connection interface {
	Invoke(ctx context.Context, name string, args map[string]any, headers map[string]string) (string, error)
}

// ConnectionProvider resolves a server identifier to its live connection.
// A missing or concurrently closed connection reports ok=false; it never
// blocks waiting for a reconnect.
type ConnectionProvider interface {
	Connection(serverID string) (Connection, bool)
}

// Executor dispatches a tool call to the right hosting model. It is the
// single place that matches on the Definition variant; callers never inspect
// hosting or protocol themselves.
type Executor struct {
	conns   ConnectionProvider
	logger  *slog.Logger
	metrics *tracing.Metrics
	tracer  trace.Tracer
}

// NewExecutor creates a tool executor. conns is required for remote tools;
// metrics may be nil.
func NewExecutor(conns ConnectionProvider, logger *slog.Logger, metrics *tracing.Metrics) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		conns:   conns,
		logger:  logger,
		metrics: metrics,
		tracer:  otel.Tracer("modelgate.tools"),
	}
}

// Execute resolves the owning connection for def and invokes it with the
// given JSON argument payload, returning the raw textual result.
//
// All failures are recoverable: an unknown server or closed connection
// yields a NotFoundError, a remote fault an ExecutionError, and an expired
// context a TimeoutError. None of them abort the caller's turn.
func (e *Executor) Execute(ctx context.Context, def Definition, argumentsJSON string) (string, error) {
	if def == nil {
		return "", &errors.ValidationError{Field: "tool", Message: "nil definition"}
	}

	args, err := decodeArguments(argumentsJSON)
	if err != nil {
		return "", err
	}

	callID := uuid.New().String()
	logger := log.WithCall(e.logger, def.Name(), callID)
	log.Trace(logger, "tool call arguments", slog.Any("args", args))

	ctx, span := e.tracer.Start(ctx, "tools.execute",
		trace.WithAttributes(
			attribute.String("tool.name", def.Name()),
			attribute.String("tool.protocol", string(def.Protocol())),
			attribute.String("tool.hosting", string(def.Hosting())),
			attribute.String("call.id", callID),
		))
	defer span.End()

	start := time.Now()
	var result string
	var server string

	// The one dispatch point over the closed variant set.
	switch d := def.(type) {
	case *NativeDefinition:
		result, err = e.executeNative(ctx, d, args)
	case *MCPDefinition:
		server = d.Server().ID
		result, err = e.executeMCP(ctx, d, args)
	default:
		err = &errors.ValidationError{
			Field:   "tool",
			Message: "unknown definition variant",
		}
	}

	status := "ok"
	if err != nil {
		if errors.IsNotFound(err) {
			status = "not_found"
		} else {
			status = "error"
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	if e.metrics != nil {
		e.metrics.ToolExecutions.WithLabelValues(def.Name(), server, status).Inc()
	}

	logger.Debug("tool executed",
		log.ServerKey, server,
		"status", status,
		log.DurationKey, time.Since(start).Milliseconds(),
	)

	return result, err
}

// executeNative runs a LOCAL tool in-process.
func (e *Executor) executeNative(ctx context.Context, def *NativeDefinition, args map[string]any) (string, error) {
	handler := def.Handler()
	if handler == nil {
		return "", &errors.ExecutionError{
			Tool:    def.Name(),
			Message: "native tool has no handler",
		}
	}

	result, err := handler(ctx, args)
	if err != nil {
		return "", &errors.ExecutionError{
			Tool:    def.Name(),
			Message: err.Error(),
			Cause:   err,
		}
	}
	return result, nil
}

// executeMCP routes a REMOTE tool call to its owning server: it strips the
// server's namespace from the qualified name, resolves the live connection,
// and forwards the per-server headers recorded at registration time.
func (e *Executor) executeMCP(ctx context.Context, def *MCPDefinition, args map[string]any) (string, error) {
	server := def.Server()
	unqualified := server.Unqualify(def.Name())

	if e.conns == nil {
		return "", &errors.NotFoundError{Resource: "connection", ID: server.ID}
	}
	conn, ok := e.conns.Connection(server.ID)
	if !ok {
		// The server was never connected or its connection closed under us.
		// Tool execution failures are recoverable, not fatal.
		return "", &errors.NotFoundError{Resource: "connection", ID: server.ID}
	}

	start := time.Now()
	result, err := conn.Invoke(ctx, unqualified, args, server.Headers)
	if err != nil {
		if stderrors.Is(err, context.DeadlineExceeded) {
			return "", &errors.TimeoutError{
				Operation: "tool call",
				Duration:  time.Since(start),
				Cause:     err,
			}
		}
		return "", &errors.ExecutionError{
			Tool:    def.Name(),
			Server:  server.ID,
			Message: err.Error(),
			Cause:   err,
		}
	}
	return result, nil
}

// decodeArguments parses the JSON argument payload. An empty payload is
// treated as an empty object.
func decodeArguments(argumentsJSON string) (map[string]any, error) {
	trimmed := strings.TrimSpace(argumentsJSON)
	if trimmed == "" {
		return map[string]any{}, nil
	}

	var args map[string]any
	if err := json.Unmarshal([]byte(trimmed), &args); err != nil {
		return nil, &errors.ValidationError{
			Field:      "arguments",
			Message:    "arguments must be a JSON object: " + err.Error(),
			Suggestion: "encode tool arguments as a JSON object, e.g. {\"query\": \"...\"}",
		}
	}
	if args == nil {
		args = map[string]any{}
	}
	return args, nil
}
