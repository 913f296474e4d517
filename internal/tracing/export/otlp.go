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

package export

import (
	"context"
	"crypto/tls"
	"fmt"

	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
)

// OTLPConfig holds configuration for the OTLP exporters.
type OTLPConfig struct {
	// Endpoint is the collector endpoint (e.g., "localhost:4317").
	Endpoint string

	// Insecure disables TLS (for development only).
	Insecure bool

	// TLSConfig provides custom TLS configuration.
	TLSConfig *tls.Config

	// Headers contains custom headers to send with each request.
	Headers map[string]string
}

// NewOTLPExporter creates a new OTLP gRPC trace exporter with the transport
// credentials derived from the config.
func NewOTLPExporter(ctx context.Context, cfg OTLPConfig) (trace.SpanExporter, error) {
	return NewOTLPExporterWithDialOption(ctx, cfg,
		grpc.WithTransportCredentials(transportCredentials(cfg)))
}

// NewOTLPExporterWithDialOption creates a new OTLP gRPC exporter with custom
// dial options, for advanced gRPC configuration. Passing no dial options
// falls back to the config-derived transport credentials.
func NewOTLPExporterWithDialOption(ctx context.Context, cfg OTLPConfig, dialOpts ...grpc.DialOption) (trace.SpanExporter, error) {
	var opts []otlptracegrpc.Option

	opts = append(opts, otlptracegrpc.WithEndpoint(cfg.Endpoint))

	if len(dialOpts) == 0 {
		dialOpts = append(dialOpts, grpc.WithTransportCredentials(transportCredentials(cfg)))
	}
	opts = append(opts, otlptracegrpc.WithDialOption(dialOpts...))

	if len(cfg.Headers) > 0 {
		opts = append(opts, otlptracegrpc.WithHeaders(cfg.Headers))
	}

	exporter, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP gRPC exporter: %w", err)
	}

	return exporter, nil
}

// transportCredentials picks the gRPC transport credentials for the config:
// plaintext when Insecure, the custom TLS config when given, and the system
// cert pool with TLS 1.2+ otherwise.
func transportCredentials(cfg OTLPConfig) credentials.TransportCredentials {
	if cfg.Insecure {
		return insecure.NewCredentials()
	}
	if cfg.TLSConfig != nil {
		return credentials.NewTLS(cfg.TLSConfig)
	}
	return credentials.NewTLS(&tls.Config{
		MinVersion: tls.VersionTLS12,
	})
}
