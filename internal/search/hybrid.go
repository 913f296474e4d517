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
	"sort"
	"strconv"

	"github.com/modelgate/modelgate/internal/vectorstore"
	"github.com/modelgate/modelgate/pkg/errors"
)

// DefaultAlpha is the dense/lexical blend weight used when the caller does
// not supply one.
const DefaultAlpha = 0.5

// HybridStrategy fuses dense vector similarity with lexical relevance:
// s = alpha*dense + (1-alpha)*lexical, both sides pre-normalized to [0, 1].
type HybridStrategy struct {
	store    vectorstore.Store
	embedder vectorstore.Embedder
}

// NewHybridStrategy creates the hybrid seed strategy.
func NewHybridStrategy(store vectorstore.Store, embedder vectorstore.Embedder) *HybridStrategy {
	return &HybridStrategy{store: store, embedder: embedder}
}

func (h *HybridStrategy) Name() string { return "hybrid" }

// fusedCandidate tracks both partial scores for one chunk. order is the
// position the chunk was first retrieved at, used as the stable tie-break.
type fusedCandidate struct {
	chunk   vectorstore.Chunk
	dense   float64
	lexical float64
	order   int
}

// Seed retrieves and scores candidates. The filter and scope restriction
// apply before scoring; truncation to MaxResults happens only after the
// fusion sort.
func (h *HybridStrategy) Seed(ctx context.Context, req SeedRequest) ([]FileSearchResult, error) {
	alpha := alphaFrom(req.ExtraParams)
	filter := combineFilters(req.Filter, req.ScopeIDs)

	vec, err := h.embedder.Embed(ctx, req.Query)
	if err != nil {
		return nil, errors.Wrap(err, "failed to embed query")
	}

	dense, err := h.store.Dense(ctx, vec, 0, filter)
	if err != nil {
		return nil, errors.Wrap(err, "dense search failed")
	}
	lexical, err := h.store.Lexical(ctx, req.Query, 0, filter)
	if err != nil {
		return nil, errors.Wrap(err, "lexical search failed")
	}

	candidates := make(map[string]*fusedCandidate)
	order := 0
	for _, sc := range dense {
		candidates[sc.Chunk.ID] = &fusedCandidate{chunk: sc.Chunk, dense: sc.Score, order: order}
		order++
	}
	for _, sc := range lexical {
		if c, ok := candidates[sc.Chunk.ID]; ok {
			c.lexical = sc.Score
			continue
		}
		candidates[sc.Chunk.ID] = &fusedCandidate{chunk: sc.Chunk, lexical: sc.Score, order: order}
		order++
	}

	fused := make([]*fusedCandidate, 0, len(candidates))
	for _, c := range candidates {
		fused = append(fused, c)
	}
	sort.SliceStable(fused, func(i, j int) bool {
		si := alpha*fused[i].dense + (1-alpha)*fused[i].lexical
		sj := alpha*fused[j].dense + (1-alpha)*fused[j].lexical
		if si != sj {
			return si > sj
		}
		return fused[i].order < fused[j].order
	})

	if req.MaxResults > 0 && len(fused) > req.MaxResults {
		fused = fused[:req.MaxResults]
	}

	results := make([]FileSearchResult, 0, len(fused))
	for _, c := range fused {
		score := alpha*c.dense + (1-alpha)*c.lexical
		results = append(results, FileSearchResult{
			SourceID: c.chunk.ID,
			Filename: c.chunk.Filename,
			Score:    score,
			Content:  c.chunk.Content,
			Annotations: []Citation{{
				Type:     "file_citation",
				Position: len(c.chunk.Content),
				SourceID: c.chunk.ID,
				Filename: c.chunk.Filename,
			}},
		})
	}
	return results, nil
}

// alphaFrom reads the blend weight from extra parameters. Absent or
// non-numeric values fall back to the default rather than failing.
func alphaFrom(extraParams map[string]any) float64 {
	raw, ok := extraParams["alpha"]
	if !ok {
		return DefaultAlpha
	}
	switch v := raw.(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case string:
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			return parsed
		}
	}
	return DefaultAlpha
}
