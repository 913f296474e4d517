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

package tracing

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Metrics collects the gateway's operational metrics. Prometheus collectors
// cover the hot paths directly; an OpenTelemetry meter provider backed by
// the same registry is available for instrument-style metrics.
type Metrics struct {
	registry      *prometheus.Registry
	meterProvider *sdkmetric.MeterProvider

	// ToolExecutions counts tool invocations by tool, server, and outcome.
	ToolExecutions *prometheus.CounterVec

	// SearchRounds counts agentic search rounds by seed strategy.
	SearchRounds *prometheus.CounterVec

	// SearchRoundDuration observes per-round seed latency in seconds.
	SearchRoundDuration *prometheus.HistogramVec

	// OpenConnections tracks live tool server connections.
	OpenConnections prometheus.Gauge
}

// NewMetrics creates a metrics set on a fresh Prometheus registry.
func NewMetrics() (*Metrics, error) {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		ToolExecutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "modelgate",
			Subsystem: "tools",
			Name:      "executions_total",
			Help:      "Tool invocations by tool name, server, and outcome.",
		}, []string{"tool", "server", "status"}),
		SearchRounds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "modelgate",
			Subsystem: "search",
			Name:      "rounds_total",
			Help:      "Agentic search rounds by seed strategy.",
		}, []string{"strategy"}),
		SearchRoundDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "modelgate",
			Subsystem: "search",
			Name:      "round_duration_seconds",
			Help:      "Seed strategy latency per search round.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"strategy"}),
		OpenConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "modelgate",
			Subsystem: "mcp",
			Name:      "open_connections",
			Help:      "Live tool server connections.",
		}),
	}

	for _, c := range []prometheus.Collector{
		m.ToolExecutions, m.SearchRounds, m.SearchRoundDuration, m.OpenConnections,
	} {
		if err := registry.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register collector: %w", err)
		}
	}

	exporter, err := otelprom.New(otelprom.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}
	m.meterProvider = sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))

	return m, nil
}

// Meter returns an OpenTelemetry meter backed by the same registry.
func (m *Metrics) Meter(name string) metric.Meter {
	return m.meterProvider.Meter(name)
}

// Handler returns an HTTP handler exposing the registry in Prometheus
// exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
