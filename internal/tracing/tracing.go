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

// Package tracing wires OpenTelemetry tracing and Prometheus metrics for
// the gateway's tool and search paths.
package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/modelgate/modelgate/internal/tracing/export"
)

// ExporterKind selects where spans are shipped.
type ExporterKind string

const (
	// ExporterNone disables span export; spans are still created for context propagation.
	ExporterNone ExporterKind = "none"
	// ExporterConsole writes spans to stdout for development.
	ExporterConsole ExporterKind = "console"
	// ExporterOTLPHTTP ships spans to an OTLP HTTP collector.
	ExporterOTLPHTTP ExporterKind = "otlp-http"
	// ExporterOTLPGRPC ships spans to an OTLP gRPC collector.
	ExporterOTLPGRPC ExporterKind = "otlp-grpc"
)

// Config holds tracing configuration.
type Config struct {
	// ServiceName identifies this process in traces (default "modelgate").
	ServiceName string

	// ServiceVersion is recorded on the trace resource.
	ServiceVersion string

	// Exporter selects the span exporter (default none).
	Exporter ExporterKind

	// Endpoint is the collector endpoint for the OTLP exporters.
	Endpoint string

	// Insecure disables TLS on the OTLP exporters (development only).
	Insecure bool

	// Headers are forwarded to the OTLP collector with each batch.
	Headers map[string]string
}

// Provider owns the OpenTelemetry tracer provider for the process.
type Provider struct {
	tp *sdktrace.TracerProvider
}

// NewProvider builds a tracer provider from cfg and installs it as the
// global OpenTelemetry provider.
func NewProvider(ctx context.Context, cfg Config) (*Provider, error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "modelgate"
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			"", // empty schema URL avoids merge conflicts with the default resource
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	opts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}

	switch cfg.Exporter {
	case ExporterConsole:
		exp, err := export.NewConsoleExporter()
		if err != nil {
			return nil, err
		}
		opts = append(opts, sdktrace.WithBatcher(exp))
	case ExporterOTLPHTTP:
		exp, err := export.NewOTLPHTTPExporter(ctx, export.OTLPConfig{
			Endpoint: cfg.Endpoint,
			Insecure: cfg.Insecure,
			Headers:  cfg.Headers,
		})
		if err != nil {
			return nil, err
		}
		opts = append(opts, sdktrace.WithBatcher(exp))
	case ExporterOTLPGRPC:
		exp, err := export.NewOTLPExporter(ctx, export.OTLPConfig{
			Endpoint: cfg.Endpoint,
			Insecure: cfg.Insecure,
			Headers:  cfg.Headers,
		})
		if err != nil {
			return nil, err
		}
		opts = append(opts, sdktrace.WithBatcher(exp))
	case ExporterNone, "":
		// no exporter; spans propagate but are not shipped
	default:
		return nil, fmt.Errorf("unknown trace exporter: %s", cfg.Exporter)
	}

	tp := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(tp)

	return &Provider{tp: tp}, nil
}

// Tracer returns a tracer for the given instrumentation scope.
func (p *Provider) Tracer(name string) trace.Tracer {
	return p.tp.Tracer(name)
}

// Shutdown flushes pending spans and releases resources. Safe to call more
// than once.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil || p.tp == nil {
		return nil
	}
	return p.tp.Shutdown(ctx)
}
