package builtin

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modelgate/modelgate/internal/search"
)

type fakeSearcher struct {
	lastReq search.Request
	resp    *search.Response
}

func (f *fakeSearcher) Search(_ context.Context, req search.Request) *search.Response {
	f.lastReq = req
	return f.resp
}

func TestAgenticSearchTool(t *testing.T) {
	searcher := &fakeSearcher{resp: &search.Response{
		Data: []search.FileSearchResult{{SourceID: "c1", Filename: "c1.md", Score: 0.9}},
		SearchIterations: []search.Iteration{{
			Query:             "go concurrency",
			IsFinal:           true,
			TerminationReason: search.ReasonSufficientKnowledge,
		}},
		KnowledgeAcquired: "c1.md: channels",
	}}

	def := NewAgenticSearchTool(searcher)
	require.Equal(t, "agentic_search", def.Name())

	out, err := def.Handler()(context.Background(), map[string]any{
		"query":            "go concurrency",
		"max_num_results":  float64(5),
		"vector_store_ids": []any{"vs_1", "vs_2"},
		"alpha":            0.7,
		"filters":          map[string]any{"type": "eq", "key": "language", "value": "hi"},
	})
	require.NoError(t, err)

	// The request decodes faithfully.
	assert.Equal(t, "go concurrency", searcher.lastReq.Query)
	assert.Equal(t, 5, searcher.lastReq.MaxResults)
	assert.Equal(t, []string{"vs_1", "vs_2"}, searcher.lastReq.ScopeIDs)
	assert.Equal(t, 0.7, searcher.lastReq.ExtraParams["alpha"])
	assert.NotNil(t, searcher.lastReq.Filter)

	// The result is the response JSON with the stable field names.
	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	assert.Contains(t, decoded, "data")
	assert.Contains(t, decoded, "search_iterations")
	assert.Contains(t, decoded, "knowledge_acquired")
}

func TestAgenticSearchTool_Defaults(t *testing.T) {
	searcher := &fakeSearcher{resp: &search.Response{}}
	def := NewAgenticSearchTool(searcher)

	_, err := def.Handler()(context.Background(), map[string]any{"query": "go"})
	require.NoError(t, err)

	assert.Equal(t, 10, searcher.lastReq.MaxResults)
	assert.Empty(t, searcher.lastReq.ScopeIDs)
	assert.NotContains(t, searcher.lastReq.ExtraParams, "alpha")
}

func TestAgenticSearchTool_RequiresQuery(t *testing.T) {
	def := NewAgenticSearchTool(&fakeSearcher{resp: &search.Response{}})

	_, err := def.Handler()(context.Background(), map[string]any{})
	require.Error(t, err)
}
