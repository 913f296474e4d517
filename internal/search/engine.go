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
	"log/slog"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/modelgate/modelgate/internal/log"
	"github.com/modelgate/modelgate/internal/tracing"
	"github.com/modelgate/modelgate/internal/vectorstore"
)

const (
	// DefaultMaxIterations caps the retrieval loop.
	DefaultMaxIterations = 4

	// DefaultSeedMultiplier widens the first round: round 1 retrieves
	// maxResults * multiplier candidates so later rounds have a broad base
	// to narrow from.
	DefaultSeedMultiplier = 3

	// knowledgeExcerptLen bounds each round's contribution to the
	// knowledge summary.
	knowledgeExcerptLen = 200
)

// Reformulator derives the next round's query and narrowed filters from the
// current round's outcome. Returned filters constrain retrieval in every
// following round, anded onto the filter already in effect, and are recorded
// on the next iteration's trace entry; a nil map narrows nothing.
type Reformulator interface {
	Reformulate(query string, round int, results []FileSearchResult) (string, map[string]any)
}

// identityReformulator keeps the query unchanged. With a stable store this
// makes the following round stagnate, so the loop stops via the no-new-results
// policy instead of burning the full iteration budget.
type identityReformulator struct{}

func (identityReformulator) Reformulate(query string, _ int, _ []FileSearchResult) (string, map[string]any) {
	return query, nil
}

// Request is one agentic search invocation.
type Request struct {
	// Query is the initial query text.
	Query string

	// MaxResults caps each round's candidate set.
	MaxResults int

	// Filter is the raw filter tree ({"type": "eq"/"and", ...}); nil means
	// unrestricted.
	Filter any

	// ScopeIDs restrict retrieval to the named store scopes.
	ScopeIDs []string

	// ExtraParams are forwarded to the seed strategy (e.g. alpha).
	ExtraParams map[string]any
}

// Engine runs the retrieval loop. Each call owns its iteration state
// exclusively; an Engine is safe for concurrent Search calls.
type Engine struct {
	strategy     SeedStrategy
	predicate    Predicate
	reformulator Reformulator
	logger       *slog.Logger
	metrics      *tracing.Metrics
	tracer       trace.Tracer

	maxIterations  int
	seedMultiplier int
	defaultParams  map[string]any
}

// EngineConfig configures the search engine.
type EngineConfig struct {
	// Strategy seeds each round's candidates. Required.
	Strategy SeedStrategy

	// Predicate decides sufficiency; defaults to the default expression.
	Predicate Predicate

	// Reformulator derives the next round's query; defaults to identity.
	Reformulator Reformulator

	// Logger for structured logging (optional).
	Logger *slog.Logger

	// Metrics for round counters and latency (optional).
	Metrics *tracing.Metrics

	// MaxIterations caps the loop (defaults to 4).
	MaxIterations int

	// SeedMultiplier widens round 1 (defaults to 3).
	SeedMultiplier int

	// DefaultParams are strategy parameters applied to every request (e.g.
	// the configured alpha). Request ExtraParams override them key by key.
	DefaultParams map[string]any
}

// NewEngine creates a search engine.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	predicate := cfg.Predicate
	if predicate == nil {
		var err error
		predicate, err = NewPredicate("")
		if err != nil {
			return nil, err
		}
	}
	reformulator := cfg.Reformulator
	if reformulator == nil {
		reformulator = identityReformulator{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxIterations := cfg.MaxIterations
	if maxIterations <= 0 {
		maxIterations = DefaultMaxIterations
	}
	seedMultiplier := cfg.SeedMultiplier
	if seedMultiplier <= 0 {
		seedMultiplier = DefaultSeedMultiplier
	}

	return &Engine{
		strategy:       cfg.Strategy,
		predicate:      predicate,
		reformulator:   reformulator,
		logger:         logger,
		metrics:        cfg.Metrics,
		tracer:         otel.Tracer("modelgate.search"),
		maxIterations:  maxIterations,
		seedMultiplier: seedMultiplier,
		defaultParams:  cfg.DefaultParams,
	}, nil
}

// Search runs the loop to completion and always returns a response: backend
// failures terminate the search with reason "error", carrying the results
// accumulated so far and the failure text on the response.
func (e *Engine) Search(ctx context.Context, req Request) *Response {
	ctx, span := e.tracer.Start(ctx, "search.agentic",
		trace.WithAttributes(
			attribute.String("search.strategy", e.strategy.Name()),
			attribute.Int("search.max_results", req.MaxResults),
		))
	defer span.End()

	resp := &Response{Data: []FileSearchResult{}}

	// Degenerate requests terminate on round 1 without touching the store.
	if req.MaxResults <= 0 || strings.TrimSpace(req.Query) == "" {
		resp.SearchIterations = []Iteration{{
			Query:             req.Query,
			IsFinal:           true,
			TerminationReason: ReasonNoNewResults,
		}}
		return resp
	}

	filter, err := vectorstore.ParseFilter(req.Filter)
	if err != nil {
		resp.Error = err.Error()
		resp.SearchIterations = []Iteration{{
			Query:             req.Query,
			IsFinal:           true,
			TerminationReason: ReasonError,
		}}
		return resp
	}

	seen := make(map[string]int)         // source id -> index in bestOrder
	var bestOrder []FileSearchResult     // first-seen order, scores upgraded in place
	var knowledge strings.Builder
	query := req.Query
	params := mergeParams(e.defaultParams, req.ExtraParams)
	var appliedFilters map[string]any

	for round := 1; ; round++ {
		limit := req.MaxResults
		if round == 1 {
			limit = req.MaxResults * e.seedMultiplier
		}

		start := time.Now()
		results, seedErr := e.seedRound(ctx, SeedRequest{
			Query:       query,
			MaxResults:  limit,
			Filter:      filter,
			ScopeIDs:    req.ScopeIDs,
			ExtraParams: params,
		})
		if e.metrics != nil {
			e.metrics.SearchRounds.WithLabelValues(e.strategy.Name()).Inc()
			e.metrics.SearchRoundDuration.WithLabelValues(e.strategy.Name()).Observe(time.Since(start).Seconds())
		}

		// Merge before evaluating so partial rounds still contribute.
		newResults := 0
		topScore := 0.0
		for _, r := range results {
			if r.Score > topScore {
				topScore = r.Score
			}
			if idx, ok := seen[r.SourceID]; ok {
				if r.Score > bestOrder[idx].Score {
					bestOrder[idx] = r
				}
				continue
			}
			seen[r.SourceID] = len(bestOrder)
			bestOrder = append(bestOrder, r)
			newResults++
		}

		reason := ""
		switch {
		case seedErr != nil:
			reason = ReasonError
			resp.Error = seedErr.Error()
		case e.predicate.Sufficient(RoundStats{
			TopScore:     topScore,
			NewResults:   newResults,
			Iteration:    round,
			KnowledgeLen: knowledge.Len(),
		}):
			reason = ReasonSufficientKnowledge
		case round >= e.maxIterations:
			reason = ReasonMaxIterations
		case newResults == 0:
			reason = ReasonNoNewResults
		}

		resp.SearchIterations = append(resp.SearchIterations, Iteration{
			Query:             query,
			IsFinal:           reason != "",
			AppliedFilters:    appliedFilters,
			TerminationReason: reason,
			Results:           results,
		})

		e.logger.Debug("search round complete",
			log.QueryKey, query,
			log.IterationKey, round,
			"results", len(results),
			"new_results", newResults,
			"top_score", topScore,
			"reason", reason,
		)

		if reason != "" {
			break
		}

		knowledge.WriteString(summarizeRound(results))
		query, appliedFilters = e.reformulator.Reformulate(query, round, results)
		filter = narrowFilter(filter, appliedFilters)
	}

	resp.Data = rankFinal(bestOrder)
	resp.KnowledgeAcquired = knowledge.String()
	return resp
}

// seedRound runs one strategy call, translating cancellation into an error
// the loop terminates on.
func (e *Engine) seedRound(ctx context.Context, req SeedRequest) ([]FileSearchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return e.strategy.Seed(ctx, req)
}

// narrowFilter ands eq constraints from a reformulator's narrowed filters
// onto the filter in effect, so later rounds retrieve under them. Keys are
// applied in sorted order to keep the filter tree deterministic.
func narrowFilter(filter vectorstore.Filter, narrowed map[string]any) vectorstore.Filter {
	if len(narrowed) == 0 {
		return filter
	}
	keys := make([]string, 0, len(narrowed))
	for k := range narrowed {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	filters := make([]vectorstore.Filter, 0, len(keys)+1)
	if filter != nil {
		filters = append(filters, filter)
	}
	for _, k := range keys {
		filters = append(filters, vectorstore.EqFilter{Key: k, Value: narrowed[k]})
	}
	return vectorstore.AndFilter{Filters: filters}
}

// mergeParams layers request parameters over the engine defaults; the
// request wins on conflicting keys.
func mergeParams(defaults, overrides map[string]any) map[string]any {
	if len(defaults) == 0 {
		return overrides
	}
	merged := make(map[string]any, len(defaults)+len(overrides))
	for k, v := range defaults {
		merged[k] = v
	}
	for k, v := range overrides {
		merged[k] = v
	}
	return merged
}

// rankFinal sorts the deduplicated results descending by score, keeping
// first-seen order for ties.
func rankFinal(results []FileSearchResult) []FileSearchResult {
	ranked := make([]FileSearchResult, len(results))
	copy(ranked, results)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})
	return ranked
}

// summarizeRound is a round's textual contribution to the knowledge
// summary: the top result's excerpt, bounded.
func summarizeRound(results []FileSearchResult) string {
	if len(results) == 0 {
		return ""
	}
	top := results[0]
	excerpt := top.Content
	if len(excerpt) > knowledgeExcerptLen {
		excerpt = excerpt[:knowledgeExcerptLen]
	}
	return top.Filename + ": " + excerpt + "\n"
}
