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
	"log/slog"
	"sort"
	"sync"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/modelgate/modelgate/pkg/errors"
)

// Registry is the authoritative mapping of tool name to Definition and
// server identifier to ServerInfo. Both maps are process-wide and safe for
// concurrent use; reads take snapshots and never observe partial writes,
// while racing overwrites resolve last-writer-wins.
type Registry struct {
	mu      sync.RWMutex
	tools   map[string]Definition
	servers map[string]ServerInfo
	logger  *slog.Logger
}

// NewRegistry creates an empty tool registry and server directory.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		tools:   make(map[string]Definition),
		servers: make(map[string]ServerInfo),
		logger:  logger,
	}
}

// Register inserts or overwrites a definition by name. Duplicate names
// intentionally collapse to the latest registration so that a server
// reconnect refreshes its tools without an explicit unregister step.
func (r *Registry) Register(def Definition) error {
	if def == nil {
		return &errors.ValidationError{
			Field:   "tool",
			Message: "cannot register nil definition",
		}
	}
	if def.Name() == "" {
		return &errors.ValidationError{
			Field:      "name",
			Message:    "tool name cannot be empty",
			Suggestion: "give the tool a non-empty name before registering it",
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[def.Name()]; exists {
		r.logger.Debug("overwriting tool registration", "tool", def.Name())
	}
	r.tools[def.Name()] = def
	return nil
}

// RegisterFromServer builds an MCPDefinition for every entry in a connected
// server's tool listing and publishes them atomically: the definitions are
// assembled on a local slice first so a failure mid-build registers nothing.
// The server itself is recorded in the directory as part of the same call.
func (r *Registry) RegisterFromServer(info ServerInfo, listing []Listing) error {
	if info.ID == "" {
		return &errors.ValidationError{
			Field:      "server",
			Message:    "server identifier cannot be empty",
			Suggestion: "assign the server a unique identifier before registering its tools",
		}
	}

	defs := make([]Definition, 0, len(listing))
	for _, entry := range listing {
		if entry.Name == "" {
			return &errors.ValidationError{
				Field:   "listing",
				Message: "server " + info.ID + " listed a tool with an empty name",
			}
		}
		defs = append(defs, NewMCPDefinition(info, entry.Name, entry.Description, entry.InputSchema))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.servers[info.ID] = info
	for _, def := range defs {
		r.tools[def.Name()] = def
	}

	r.logger.Info("registered server tools", "server", info.ID, "count", len(defs))
	return nil
}

// FindByName returns the definition registered under name. Lookups never
// fail; a missing tool reports ok=false.
func (r *Registry) FindByName(name string) (Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, ok := r.tools[name]
	return def, ok
}

// FindAll returns a snapshot of every registered definition, sorted by name.
// The snapshot is safe to iterate while the registry mutates concurrently.
func (r *Registry) FindAll() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]Definition, 0, len(r.tools))
	for _, def := range r.tools {
		defs = append(defs, def)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name() < defs[j].Name() })
	return defs
}

// RegisterServer records a server in the directory. Re-registration under
// the same identifier replaces the prior entry.
func (r *Registry) RegisterServer(info ServerInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.servers[info.ID] = info
}

// FindServerByID returns the directory entry for a server identifier.
func (r *Registry) FindServerByID(id string) (ServerInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	info, ok := r.servers[id]
	return info, ok
}

// Servers returns a snapshot of all directory entries, sorted by identifier.
func (r *Registry) Servers() []ServerInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]ServerInfo, 0, len(r.servers))
	for _, info := range r.servers {
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	return infos
}

// Clear drops all tool entries. The server directory is left intact; callers
// that want a full reset also call ClearServers.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools = make(map[string]Definition)
}

// ClearServers drops all server directory entries.
func (r *Registry) ClearServers() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.servers = make(map[string]ServerInfo)
}

// Count returns the number of registered tools.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// Expand resolves tool name patterns into concrete registered names.
// Patterns use glob syntax, so "alpha.*" selects every tool on server
// alpha and "*" selects all tools. Exact names match themselves. The
// result preserves registry name order and contains no duplicates.
func (r *Registry) Expand(patterns []string) []string {
	if len(patterns) == 0 {
		return nil
	}

	names := make([]string, 0, r.Count())
	for _, def := range r.FindAll() {
		names = append(names, def.Name())
	}

	seen := make(map[string]bool)
	var result []string
	for _, name := range names {
		for _, pattern := range patterns {
			ok, err := doublestar.Match(pattern, name)
			if err != nil {
				continue
			}
			if ok && !seen[name] {
				seen[name] = true
				result = append(result, name)
				break
			}
		}
	}
	return result
}
