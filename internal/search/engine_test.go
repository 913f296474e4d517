package search

import (
	"context"
	stderrors "errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modelgate/modelgate/internal/vectorstore"
)

// scriptedStrategy plays back a fixed sequence of rounds and records the
// limits, filters and params it was called with.
type scriptedStrategy struct {
	rounds  [][]FileSearchResult
	errs    []error
	limits  []int
	filters []vectorstore.Filter
	params  []map[string]any
}

func (s *scriptedStrategy) Name() string { return "scripted" }

func (s *scriptedStrategy) Seed(_ context.Context, req SeedRequest) ([]FileSearchResult, error) {
	call := len(s.limits)
	s.limits = append(s.limits, req.MaxResults)
	s.filters = append(s.filters, req.Filter)
	s.params = append(s.params, req.ExtraParams)

	var err error
	if call < len(s.errs) {
		err = s.errs[call]
	}
	var results []FileSearchResult
	if len(s.rounds) > 0 {
		idx := call
		if idx >= len(s.rounds) {
			idx = len(s.rounds) - 1
		}
		results = s.rounds[idx]
	}
	return results, err
}

func result(id string, score float64) FileSearchResult {
	return FileSearchResult{SourceID: id, Filename: id + ".md", Score: score, Content: "content of " + id}
}

func newTestEngine(t *testing.T, strategy SeedStrategy, maxIterations int) *Engine {
	t.Helper()
	engine, err := NewEngine(EngineConfig{
		Strategy:      strategy,
		MaxIterations: maxIterations,
	})
	require.NoError(t, err)
	return engine
}

// assertTraceInvariant checks that exactly one iteration is final and only
// that one carries a termination reason.
func assertTraceInvariant(t *testing.T, iterations []Iteration) {
	t.Helper()
	finals := 0
	for _, it := range iterations {
		if it.IsFinal {
			finals++
			assert.NotEmpty(t, it.TerminationReason, "the final iteration must carry a reason")
		} else {
			assert.Empty(t, it.TerminationReason, "non-final iterations carry no reason")
		}
	}
	assert.Equal(t, 1, finals, "exactly one iteration is final")
}

func TestEngine_SufficientKnowledge(t *testing.T) {
	strategy := &scriptedStrategy{rounds: [][]FileSearchResult{
		{result("a", 0.95), result("b", 0.4)},
	}}
	engine := newTestEngine(t, strategy, 4)

	resp := engine.Search(context.Background(), Request{Query: "go concurrency", MaxResults: 2})

	require.Len(t, resp.SearchIterations, 1)
	assert.Equal(t, ReasonSufficientKnowledge, resp.SearchIterations[0].TerminationReason)
	assertTraceInvariant(t, resp.SearchIterations)
	require.Len(t, resp.Data, 2)
	assert.Equal(t, "a", resp.Data[0].SourceID)
	assert.Empty(t, resp.Error)
}

func TestEngine_Stagnation(t *testing.T) {
	// Every round returns the same low-scoring results; round 2 sees
	// nothing new and stops.
	strategy := &scriptedStrategy{rounds: [][]FileSearchResult{
		{result("a", 0.5), result("b", 0.4)},
	}}
	engine := newTestEngine(t, strategy, 8)

	resp := engine.Search(context.Background(), Request{Query: "go", MaxResults: 2})

	require.Len(t, resp.SearchIterations, 2)
	assert.Equal(t, ReasonNoNewResults, resp.SearchIterations[1].TerminationReason)
	assertTraceInvariant(t, resp.SearchIterations)
	assert.Len(t, resp.Data, 2)
}

func TestEngine_MaxIterations(t *testing.T) {
	// Each round contributes something unseen, so only the cap stops it.
	strategy := &scriptedStrategy{rounds: [][]FileSearchResult{
		{result("a", 0.5)},
		{result("b", 0.5)},
		{result("c", 0.5)},
		{result("d", 0.5)},
	}}
	engine := newTestEngine(t, strategy, 3)

	resp := engine.Search(context.Background(), Request{Query: "go", MaxResults: 2})

	require.Len(t, resp.SearchIterations, 3)
	assert.Equal(t, ReasonMaxIterations, resp.SearchIterations[2].TerminationReason)
	assertTraceInvariant(t, resp.SearchIterations)
	assert.Len(t, resp.Data, 3)
}

func TestEngine_Deduplication(t *testing.T) {
	strategy := &scriptedStrategy{rounds: [][]FileSearchResult{
		{result("a", 0.6), result("b", 0.3)},
		{result("a", 0.9), result("c", 0.2)},
	}}
	engine := newTestEngine(t, strategy, 2)

	resp := engine.Search(context.Background(), Request{Query: "go", MaxResults: 3})

	counts := map[string]int{}
	for _, r := range resp.Data {
		counts[r.SourceID]++
	}
	assert.Equal(t, 1, counts["a"], "duplicate source ids collapse to one entry")

	require.Equal(t, "a", resp.Data[0].SourceID)
	assert.InDelta(t, 0.9, resp.Data[0].Score, 1e-9, "the highest score wins the dedupe")
}

func TestEngine_EmptyRequests(t *testing.T) {
	tests := []struct {
		name string
		req  Request
	}{
		{name: "zero max results", req: Request{Query: "go", MaxResults: 0}},
		{name: "empty query", req: Request{Query: "", MaxResults: 5}},
		{name: "whitespace query", req: Request{Query: "   ", MaxResults: 5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			strategy := &scriptedStrategy{}
			engine := newTestEngine(t, strategy, 4)

			resp := engine.Search(context.Background(), tt.req)

			require.Len(t, resp.SearchIterations, 1)
			assert.Equal(t, ReasonNoNewResults, resp.SearchIterations[0].TerminationReason)
			assert.True(t, resp.SearchIterations[0].IsFinal)
			assert.Empty(t, resp.Data)
			assert.Empty(t, strategy.limits, "the store must not be touched")
		})
	}
}

func TestEngine_BackendFailure(t *testing.T) {
	strategy := &scriptedStrategy{
		rounds: [][]FileSearchResult{
			{result("a", 0.5)},
			{result("b", 0.5)},
		},
		errs: []error{nil, stderrors.New("scoring backend unavailable")},
	}
	engine := newTestEngine(t, strategy, 4)

	resp := engine.Search(context.Background(), Request{Query: "go", MaxResults: 2})

	require.Len(t, resp.SearchIterations, 2)
	assert.Equal(t, ReasonError, resp.SearchIterations[1].TerminationReason)
	assertTraceInvariant(t, resp.SearchIterations)

	// Partial results survive the failure and the cause is surfaced.
	require.NotEmpty(t, resp.Data)
	assert.Equal(t, "a", resp.Data[0].SourceID)
	assert.Contains(t, resp.Error, "scoring backend unavailable")
}

func TestEngine_Cancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	strategy := &scriptedStrategy{rounds: [][]FileSearchResult{{result("a", 0.5)}}}
	engine := newTestEngine(t, strategy, 4)

	resp := engine.Search(ctx, Request{Query: "go", MaxResults: 2})

	require.Len(t, resp.SearchIterations, 1)
	assert.Equal(t, ReasonError, resp.SearchIterations[0].TerminationReason)
	assert.NotEmpty(t, resp.Error)
	assert.Empty(t, strategy.limits, "a cancelled call must not reach the strategy")
}

func TestEngine_SeedMultiplier(t *testing.T) {
	strategy := &scriptedStrategy{rounds: [][]FileSearchResult{
		{result("a", 0.5)},
		{result("b", 0.5)},
	}}
	engine, err := NewEngine(EngineConfig{
		Strategy:       strategy,
		MaxIterations:  2,
		SeedMultiplier: 3,
	})
	require.NoError(t, err)

	engine.Search(context.Background(), Request{Query: "go", MaxResults: 2})

	require.Len(t, strategy.limits, 2)
	assert.Equal(t, 6, strategy.limits[0], "round 1 widens by the seed multiplier")
	assert.Equal(t, 2, strategy.limits[1], "later rounds use the plain limit")
}

func TestEngine_KnowledgeAccumulation(t *testing.T) {
	strategy := &scriptedStrategy{rounds: [][]FileSearchResult{
		{result("a", 0.5)},
		{result("b", 0.5)},
		{result("b", 0.5)},
	}}
	engine := newTestEngine(t, strategy, 8)

	resp := engine.Search(context.Background(), Request{Query: "go", MaxResults: 2})

	// Rounds 1 and 2 continue and contribute; the final round does not.
	require.Len(t, resp.SearchIterations, 3)
	assert.True(t, strings.Contains(resp.KnowledgeAcquired, "a.md"))
	assert.True(t, strings.Contains(resp.KnowledgeAcquired, "b.md"))
}

func TestEngine_InvalidFilter(t *testing.T) {
	strategy := &scriptedStrategy{}
	engine := newTestEngine(t, strategy, 4)

	resp := engine.Search(context.Background(), Request{
		Query:      "go",
		MaxResults: 2,
		Filter:     map[string]any{"type": "not"},
	})

	require.Len(t, resp.SearchIterations, 1)
	assert.Equal(t, ReasonError, resp.SearchIterations[0].TerminationReason)
	assert.NotEmpty(t, resp.Error)
	assert.Empty(t, resp.Data)
}

// customReformulator narrows the query each round so the trace records the
// applied filters.
type customReformulator struct{}

func (customReformulator) Reformulate(query string, round int, _ []FileSearchResult) (string, map[string]any) {
	return query + " refined", map[string]any{"round": round + 1}
}

func TestEngine_ReformulationTrace(t *testing.T) {
	strategy := &scriptedStrategy{rounds: [][]FileSearchResult{
		{result("a", 0.5)},
		{result("b", 0.5)},
		{result("b", 0.5)},
	}}
	engine, err := NewEngine(EngineConfig{
		Strategy:     strategy,
		Reformulator: customReformulator{},
	})
	require.NoError(t, err)

	resp := engine.Search(context.Background(), Request{Query: "go", MaxResults: 2})

	require.GreaterOrEqual(t, len(resp.SearchIterations), 2)
	assert.Equal(t, "go", resp.SearchIterations[0].Query)
	assert.Nil(t, resp.SearchIterations[0].AppliedFilters)
	assert.Equal(t, "go refined", resp.SearchIterations[1].Query)
	assert.Equal(t, map[string]any{"round": 2}, resp.SearchIterations[1].AppliedFilters)
}

// narrowingReformulator pins a language after the first round.
type narrowingReformulator struct{}

func (narrowingReformulator) Reformulate(query string, _ int, _ []FileSearchResult) (string, map[string]any) {
	return query + " narrowed", map[string]any{"language": "hi"}
}

func TestEngine_NarrowedFiltersConstrainRetrieval(t *testing.T) {
	strategy := &scriptedStrategy{rounds: [][]FileSearchResult{
		{result("a", 0.5)},
		{result("b", 0.5)},
	}}
	engine, err := NewEngine(EngineConfig{
		Strategy:      strategy,
		Reformulator:  narrowingReformulator{},
		MaxIterations: 2,
	})
	require.NoError(t, err)

	resp := engine.Search(context.Background(), Request{Query: "go", MaxResults: 2})

	require.Len(t, strategy.filters, 2)
	assert.Nil(t, strategy.filters[0], "round 1 runs under the request filter only")

	round2 := strategy.filters[1]
	require.NotNil(t, round2, "round 2 must retrieve under the narrowed filter")
	assert.True(t, round2.Matches(map[string]any{"language": "hi"}))
	assert.False(t, round2.Matches(map[string]any{"language": "en"}))
	assert.False(t, round2.Matches(map[string]any{}))

	// The trace records the same filters the strategy retrieved under.
	require.Len(t, resp.SearchIterations, 2)
	assert.Equal(t, map[string]any{"language": "hi"}, resp.SearchIterations[1].AppliedFilters)
}

func TestEngine_NarrowedFiltersComposeWithRequestFilter(t *testing.T) {
	strategy := &scriptedStrategy{rounds: [][]FileSearchResult{
		{result("a", 0.5)},
		{result("b", 0.5)},
	}}
	engine, err := NewEngine(EngineConfig{
		Strategy:      strategy,
		Reformulator:  narrowingReformulator{},
		MaxIterations: 2,
	})
	require.NoError(t, err)

	engine.Search(context.Background(), Request{
		Query:      "go",
		MaxResults: 2,
		Filter:     map[string]any{"type": "eq", "key": "topic", "value": "go"},
	})

	require.Len(t, strategy.filters, 2)
	round2 := strategy.filters[1]
	require.NotNil(t, round2)
	assert.True(t, round2.Matches(map[string]any{"topic": "go", "language": "hi"}))
	assert.False(t, round2.Matches(map[string]any{"topic": "go"}), "the narrowed constraint applies")
	assert.False(t, round2.Matches(map[string]any{"language": "hi"}), "the request filter still applies")
}

func TestEngine_DefaultParams(t *testing.T) {
	tests := []struct {
		name      string
		extra     map[string]any
		wantAlpha float64
	}{
		{name: "engine default applies", extra: nil, wantAlpha: 0.9},
		{name: "request overrides the default", extra: map[string]any{"alpha": 0.2}, wantAlpha: 0.2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			strategy := &scriptedStrategy{rounds: [][]FileSearchResult{{result("a", 0.95)}}}
			engine, err := NewEngine(EngineConfig{
				Strategy:      strategy,
				DefaultParams: map[string]any{"alpha": 0.9},
			})
			require.NoError(t, err)

			engine.Search(context.Background(), Request{Query: "go", MaxResults: 2, ExtraParams: tt.extra})

			require.Len(t, strategy.params, 1)
			assert.Equal(t, tt.wantAlpha, strategy.params[0]["alpha"])
		})
	}
}
