package search

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modelgate/modelgate/internal/vectorstore"
)

// fakeStore serves fixed dense and lexical scores so fusion arithmetic is
// testable in isolation.
type fakeStore struct {
	dense      []vectorstore.ScoredChunk
	lexical    []vectorstore.ScoredChunk
	lastFilter vectorstore.Filter
}

func (s *fakeStore) Add(context.Context, []vectorstore.Chunk) error { return nil }

func (s *fakeStore) Dense(_ context.Context, _ []float32, _ int, filter vectorstore.Filter) ([]vectorstore.ScoredChunk, error) {
	s.lastFilter = filter
	return s.dense, nil
}

func (s *fakeStore) Lexical(_ context.Context, _ string, _ int, filter vectorstore.Filter) ([]vectorstore.ScoredChunk, error) {
	s.lastFilter = filter
	return s.lexical, nil
}

func (s *fakeStore) Count(context.Context) (int, error) { return len(s.dense), nil }
func (s *fakeStore) Close() error                       { return nil }

func chunk(id string) vectorstore.Chunk {
	return vectorstore.Chunk{ID: id, Filename: id + ".md", Content: "content of " + id}
}

func scoresByID(results []FileSearchResult) map[string]float64 {
	scores := make(map[string]float64, len(results))
	for _, r := range results {
		scores[r.SourceID] = r.Score
	}
	return scores
}

func TestHybrid_FusionBoundaries(t *testing.T) {
	store := &fakeStore{
		dense: []vectorstore.ScoredChunk{
			{Chunk: chunk("a"), Score: 0.9},
			{Chunk: chunk("b"), Score: 0.2},
		},
		lexical: []vectorstore.ScoredChunk{
			{Chunk: chunk("a"), Score: 0.1},
			{Chunk: chunk("b"), Score: 0.8},
		},
	}
	strategy := NewHybridStrategy(store, vectorstore.NewHashingEmbedder(16))

	// At alpha = 1 the fused score equals the dense score.
	results, err := strategy.Seed(context.Background(), SeedRequest{
		Query:       "q",
		MaxResults:  10,
		ExtraParams: map[string]any{"alpha": 1.0},
	})
	require.NoError(t, err)
	scores := scoresByID(results)
	assert.InDelta(t, 0.9, scores["a"], 1e-9)
	assert.InDelta(t, 0.2, scores["b"], 1e-9)

	// At alpha = 0 it equals the lexical score.
	results, err = strategy.Seed(context.Background(), SeedRequest{
		Query:       "q",
		MaxResults:  10,
		ExtraParams: map[string]any{"alpha": 0.0},
	})
	require.NoError(t, err)
	scores = scoresByID(results)
	assert.InDelta(t, 0.1, scores["a"], 1e-9)
	assert.InDelta(t, 0.8, scores["b"], 1e-9)
}

func TestHybrid_FusionMonotonicity(t *testing.T) {
	store := &fakeStore{
		dense:   []vectorstore.ScoredChunk{{Chunk: chunk("a"), Score: 0.9}},
		lexical: []vectorstore.ScoredChunk{{Chunk: chunk("a"), Score: 0.1}},
	}
	strategy := NewHybridStrategy(store, vectorstore.NewHashingEmbedder(16))

	seed := func(alpha float64) float64 {
		results, err := strategy.Seed(context.Background(), SeedRequest{
			Query:       "q",
			MaxResults:  10,
			ExtraParams: map[string]any{"alpha": alpha},
		})
		require.NoError(t, err)
		require.Len(t, results, 1)
		return results[0].Score
	}

	// Dense exceeds lexical for "a", so raising alpha raises the score.
	assert.Greater(t, seed(0.8), seed(0.2))
}

func TestHybrid_TruncateAfterSort(t *testing.T) {
	store := &fakeStore{
		dense: []vectorstore.ScoredChunk{
			{Chunk: chunk("low"), Score: 0.1},
			{Chunk: chunk("high"), Score: 0.9},
		},
	}
	strategy := NewHybridStrategy(store, vectorstore.NewHashingEmbedder(16))

	results, err := strategy.Seed(context.Background(), SeedRequest{Query: "q", MaxResults: 1})
	require.NoError(t, err)

	require.Len(t, results, 1)
	assert.Equal(t, "high", results[0].SourceID, "truncation happens after the fusion sort")
}

func TestHybrid_StableTies(t *testing.T) {
	// Equal fused scores keep retrieval order.
	store := &fakeStore{
		dense: []vectorstore.ScoredChunk{
			{Chunk: chunk("first"), Score: 0.5},
			{Chunk: chunk("second"), Score: 0.5},
		},
	}
	strategy := NewHybridStrategy(store, vectorstore.NewHashingEmbedder(16))

	results, err := strategy.Seed(context.Background(), SeedRequest{Query: "q", MaxResults: 2})
	require.NoError(t, err)

	require.Len(t, results, 2)
	assert.Equal(t, "first", results[0].SourceID)
	assert.Equal(t, "second", results[1].SourceID)
}

func TestHybrid_ScopeRestriction(t *testing.T) {
	store := &fakeStore{}
	strategy := NewHybridStrategy(store, vectorstore.NewHashingEmbedder(16))

	_, err := strategy.Seed(context.Background(), SeedRequest{
		Query:      "q",
		MaxResults: 5,
		ScopeIDs:   []string{"vs_1"},
	})
	require.NoError(t, err)

	require.NotNil(t, store.lastFilter, "scope ids must become a pre-filter")
	assert.True(t, store.lastFilter.Matches(map[string]any{"vector_store_id": "vs_1"}))
	assert.False(t, store.lastFilter.Matches(map[string]any{"vector_store_id": "vs_2"}))
	assert.False(t, store.lastFilter.Matches(map[string]any{}))
}

func TestHybrid_Citations(t *testing.T) {
	store := &fakeStore{
		dense: []vectorstore.ScoredChunk{{Chunk: chunk("a"), Score: 0.9}},
	}
	strategy := NewHybridStrategy(store, vectorstore.NewHashingEmbedder(16))

	results, err := strategy.Seed(context.Background(), SeedRequest{Query: "q", MaxResults: 1})
	require.NoError(t, err)

	require.Len(t, results, 1)
	require.Len(t, results[0].Annotations, 1)
	citation := results[0].Annotations[0]
	assert.Equal(t, "file_citation", citation.Type)
	assert.Equal(t, "a", citation.SourceID)
	assert.Equal(t, "a.md", citation.Filename)
	assert.Equal(t, len(results[0].Content), citation.Position)
}

func TestAlphaFrom(t *testing.T) {
	tests := []struct {
		name   string
		params map[string]any
		want   float64
	}{
		{name: "absent", params: nil, want: DefaultAlpha},
		{name: "float", params: map[string]any{"alpha": 0.7}, want: 0.7},
		{name: "int", params: map[string]any{"alpha": 1}, want: 1.0},
		{name: "numeric string", params: map[string]any{"alpha": "0.25"}, want: 0.25},
		{name: "non-numeric string", params: map[string]any{"alpha": "lots"}, want: DefaultAlpha},
		{name: "wrong type", params: map[string]any{"alpha": []int{1}}, want: DefaultAlpha},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, alphaFrom(tt.params), 1e-9)
		})
	}
}

func TestNewStrategy(t *testing.T) {
	store := &fakeStore{}
	embedder := vectorstore.NewHashingEmbedder(16)

	s, err := NewStrategy("", store, embedder)
	require.NoError(t, err)
	assert.Equal(t, "hybrid", s.Name())

	s, err = NewStrategy("hybrid", store, embedder)
	require.NoError(t, err)
	assert.Equal(t, "hybrid", s.Name())

	_, err = NewStrategy("quantum", store, embedder)
	require.Error(t, err)
}
