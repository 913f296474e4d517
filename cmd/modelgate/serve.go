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
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/modelgate/modelgate/internal/mcp"
	"github.com/modelgate/modelgate/internal/secrets"
)

const shutdownTimeout = 10 * time.Second

func newServeCommand(opts *globalOptions) *cobra.Command {
	var metricsAddr string
	var watch bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the gateway: connect tool servers and serve metrics",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			rt, err := newGateway(ctx, cfg)
			if err != nil {
				return err
			}
			rt.connectServers(ctx)

			if watch {
				if path := opts.configPathInUse(); path != "" {
					watcher, err := mcp.NewWatcher(mcp.WatcherConfig{
						Logger: rt.logger,
						OnChange: func(path string) {
							reloadServers(ctx, rt, opts, path)
						},
					})
					if err != nil {
						return err
					}
					defer watcher.Close()
					if err := watcher.Watch(path); err != nil {
						return err
					}
				} else {
					rt.logger.Warn("no config file to watch, --watch ignored")
				}
			}

			srv := &http.Server{
				Addr:              metricsAddr,
				Handler:           newMetricsMux(rt),
				ReadHeaderTimeout: 5 * time.Second,
			}
			go func() {
				rt.logger.Info("metrics listener started", "addr", metricsAddr)
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					rt.logger.Error("metrics listener failed", "error", err)
				}
			}()

			rt.logger.Info("gateway started",
				"servers", len(rt.manager.Servers()),
				"tools", rt.registry.Count(),
			)

			<-ctx.Done()
			rt.logger.Info("shutting down")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				rt.logger.Warn("error shutting down metrics listener", "error", err)
			}
			rt.close(shutdownCtx)
			return nil
		},
	}

	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", ":9090", "metrics listen address")
	cmd.Flags().BoolVar(&watch, "watch", false, "reload server connections when the config file changes")
	return cmd
}

func newMetricsMux(rt *gateway) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", rt.metrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

// reloadServers re-reads the config file and reconnects every server in it.
// Connect replaces connections in place, so tools stay registered across the
// reload. A config that fails to parse leaves the running set untouched.
func reloadServers(ctx context.Context, rt *gateway, opts *globalOptions, path string) {
	cfg, err := loadConfig(opts)
	if err != nil {
		rt.logger.Error("config reload failed, keeping current servers",
			"path", path,
			"error", err,
		)
		return
	}
	if err := cfg.ResolveSecrets(ctx, secrets.NewResolver()); err != nil {
		rt.logger.Error("config reload failed, keeping current servers",
			"path", path,
			"error", err,
		)
		return
	}

	for _, server := range cfg.Servers {
		if err := rt.manager.Connect(ctx, server); err != nil {
			rt.logger.Warn("failed to reconnect tool server",
				"server", server.Name,
				"error", err,
			)
		}
	}

	// Servers removed from the file are disconnected.
	wanted := make(map[string]bool, len(cfg.Servers))
	for _, server := range cfg.Servers {
		wanted[server.Name] = true
	}
	for _, name := range rt.manager.Servers() {
		if !wanted[name] {
			if err := rt.manager.Disconnect(name); err != nil {
				rt.logger.Warn("failed to disconnect removed server",
					"server", name,
					"error", err,
				)
			}
		}
	}

	rt.cfg.Servers = cfg.Servers
	rt.logger.Info("server connections reloaded", "servers", len(cfg.Servers))
}
