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

package search

import (
	"context"

	"github.com/modelgate/modelgate/internal/vectorstore"
	"github.com/modelgate/modelgate/pkg/errors"
)

// SeedRequest carries one round's retrieval parameters.
type SeedRequest struct {
	// Query is the round's query text.
	Query string

	// MaxResults caps the candidate set after fusion-sort.
	MaxResults int

	// Filter restricts candidates before scoring; nil means unrestricted.
	Filter vectorstore.Filter

	// ScopeIDs restrict candidates to the named store scopes, also before
	// scoring. Empty means all scopes.
	ScopeIDs []string

	// ExtraParams are strategy-specific tunables, e.g. the fusion alpha.
	ExtraParams map[string]any
}

// SeedStrategy produces ranked candidates for one query. Implementations
// must pre-filter before scoring and truncate only after the fusion sort,
// so the engine stays strategy-agnostic.
type SeedStrategy interface {
	// Name identifies the strategy in traces and metrics.
	Name() string

	// Seed returns ranked candidates for the request.
	Seed(ctx context.Context, req SeedRequest) ([]FileSearchResult, error)
}

// NewStrategy builds a seed strategy by name. An empty name selects hybrid.
func NewStrategy(name string, store vectorstore.Store, embedder vectorstore.Embedder) (SeedStrategy, error) {
	switch name {
	case "", "hybrid":
		return NewHybridStrategy(store, embedder), nil
	default:
		return nil, &errors.ConfigError{
			Key:    "seed_strategy",
			Reason: "unknown strategy " + name,
		}
	}
}

// scopeFilter matches chunks whose scope attribute is one of the wanted
// scope identifiers.
type scopeFilter struct {
	scopes map[string]bool
}

func newScopeFilter(scopeIDs []string) vectorstore.Filter {
	scopes := make(map[string]bool, len(scopeIDs))
	for _, id := range scopeIDs {
		scopes[id] = true
	}
	return scopeFilter{scopes: scopes}
}

func (f scopeFilter) Matches(attrs map[string]any) bool {
	scope, ok := attrs["vector_store_id"].(string)
	if !ok {
		return false
	}
	return f.scopes[scope]
}

// combineFilters ands the user filter with the scope restriction.
func combineFilters(filter vectorstore.Filter, scopeIDs []string) vectorstore.Filter {
	if len(scopeIDs) == 0 {
		return filter
	}
	scope := newScopeFilter(scopeIDs)
	if filter == nil {
		return scope
	}
	return vectorstore.AndFilter{Filters: []vectorstore.Filter{filter, scope}}
}
