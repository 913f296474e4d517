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

package main

import (
	"context"
	"log/slog"

	"github.com/modelgate/modelgate/internal/config"
	"github.com/modelgate/modelgate/internal/log"
	"github.com/modelgate/modelgate/internal/mcp"
	"github.com/modelgate/modelgate/internal/search"
	"github.com/modelgate/modelgate/internal/secrets"
	"github.com/modelgate/modelgate/internal/tracing"
	"github.com/modelgate/modelgate/internal/vectorstore"
	"github.com/modelgate/modelgate/pkg/tools"
	"github.com/modelgate/modelgate/pkg/tools/builtin"
)

// gateway bundles the wired components for one process.
type gateway struct {
	cfg      *config.Config
	logger   *slog.Logger
	provider *tracing.Provider
	metrics  *tracing.Metrics
	store    *vectorstore.SQLiteStore
	embedder *vectorstore.HashingEmbedder
	engine   *search.Engine
	registry *tools.Registry
	manager  *mcp.Manager
	executor *tools.Executor
}

// newGateway assembles the gateway from configuration: store, search engine,
// tool registry with the built-in tools, and the server connection manager.
// Server header secrets are resolved here, before any dial.
func newGateway(ctx context.Context, cfg *config.Config) (*gateway, error) {
	// Environment variables set the base log config; file and flag values
	// override it when present.
	lcfg := log.FromEnv()
	if cfg.Log.Level != "" {
		lcfg.Level = cfg.Log.Level
	}
	if cfg.Log.Format != "" {
		lcfg.Format = log.Format(cfg.Log.Format)
	}
	logger := log.New(lcfg)
	slog.SetDefault(logger)

	if err := cfg.ResolveSecrets(ctx, secrets.NewResolver()); err != nil {
		return nil, err
	}

	exporter := tracing.ExporterNone
	if cfg.Tracing.Enabled {
		exporter = tracing.ExporterKind(cfg.Tracing.Exporter)
	}
	provider, err := tracing.NewProvider(ctx, tracing.Config{
		ServiceName:    "modelgate",
		ServiceVersion: version,
		Exporter:       exporter,
		Endpoint:       cfg.Tracing.Endpoint,
		Insecure:       cfg.Tracing.Insecure,
	})
	if err != nil {
		return nil, err
	}

	metrics, err := tracing.NewMetrics()
	if err != nil {
		return nil, err
	}

	store, err := vectorstore.Open(cfg.Store.Path)
	if err != nil {
		return nil, err
	}
	embedder := vectorstore.NewHashingEmbedder(cfg.Store.EmbedderDims)

	strategy, err := search.NewStrategy(cfg.Search.Strategy, store, embedder)
	if err != nil {
		return nil, err
	}
	predicate, err := search.NewPredicate(cfg.Search.Sufficiency)
	if err != nil {
		return nil, err
	}
	engine, err := search.NewEngine(search.EngineConfig{
		Strategy:       strategy,
		Predicate:      predicate,
		Logger:         log.WithComponent(logger, "search"),
		Metrics:        metrics,
		MaxIterations:  cfg.Search.MaxIterations,
		SeedMultiplier: cfg.Search.SeedMultiplier,
		DefaultParams:  map[string]any{"alpha": cfg.Search.Alpha},
	})
	if err != nil {
		return nil, err
	}

	registry := tools.NewRegistry(logger)
	if err := registry.Register(builtin.NewJQTool()); err != nil {
		return nil, err
	}
	if err := registry.Register(builtin.NewAgenticSearchTool(engine)); err != nil {
		return nil, err
	}

	manager := mcp.NewManager(mcp.ManagerConfig{
		Registry: registry,
		Logger:   log.WithComponent(logger, "mcp"),
		Metrics:  metrics,
	})

	return &gateway{
		cfg:      cfg,
		logger:   logger,
		provider: provider,
		metrics:  metrics,
		store:    store,
		embedder: embedder,
		engine:   engine,
		registry: registry,
		manager:  manager,
		executor: tools.NewExecutor(manager, log.WithComponent(logger, "tools"), metrics),
	}, nil
}

// connectServers dials every configured server. A server that fails to
// connect is logged and skipped so one bad server does not take the gateway
// down.
func (rt *gateway) connectServers(ctx context.Context) {
	for _, server := range rt.cfg.Servers {
		if err := rt.manager.Connect(ctx, server); err != nil {
			rt.logger.Warn("failed to connect to tool server",
				"server", server.Name,
				"error", err,
			)
		}
	}
}

// close shuts the gateway down in reverse dependency order.
func (rt *gateway) close(ctx context.Context) {
	if err := rt.manager.Shutdown(ctx); err != nil {
		rt.logger.Warn("error shutting down tool server connections", "error", err)
	}
	if err := rt.store.Close(); err != nil {
		rt.logger.Warn("error closing chunk store", "error", err)
	}
	if err := rt.provider.Shutdown(ctx); err != nil {
		rt.logger.Warn("error shutting down trace provider", "error", err)
	}
}
