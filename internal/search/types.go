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

// Package search implements the agentic retrieval engine: multi-round
// hybrid search over a chunk store with an explicit termination policy.
// Each round seeds candidates through a pluggable strategy, the engine
// decides whether the accumulated knowledge suffices, and the final
// response carries the deduplicated results plus the full iteration trace.
package search

// Termination reasons recorded on the final iteration of a search.
const (
	// ReasonSufficientKnowledge means the sufficiency predicate held.
	ReasonSufficientKnowledge = "sufficient_knowledge"
	// ReasonMaxIterations means the round cap was reached.
	ReasonMaxIterations = "max_iterations_reached"
	// ReasonNoNewResults means a round produced nothing unseen.
	ReasonNoNewResults = "no_new_results"
	// ReasonError means a scoring backend failed mid-round.
	ReasonError = "error"
)

// Citation marks where in a result's content the match was found.
type Citation struct {
	Type     string `json:"type"`
	Position int    `json:"position"`
	SourceID string `json:"source_id"`
	Filename string `json:"filename"`
}

// FileSearchResult is one scored retrieval unit.
type FileSearchResult struct {
	// SourceID identifies the underlying chunk; it is the dedupe key.
	SourceID string `json:"source_id"`

	// Filename is the display name of the source document.
	Filename string `json:"filename"`

	// Score is the fused similarity in [0, 1].
	Score float64 `json:"score"`

	// Content is the matched excerpt.
	Content string `json:"content"`

	// Annotations cite where the match was found.
	Annotations []Citation `json:"annotations,omitempty"`
}

// Iteration is the immutable record of one search round. The engine builds
// a fresh value per round and appends it to the trace; records are never
// mutated after the append.
type Iteration struct {
	// Query is the query text used this round.
	Query string `json:"query"`

	// IsFinal is true on the terminating round only.
	IsFinal bool `json:"is_final"`

	// AppliedFilters are the constraints narrowed for this round.
	AppliedFilters map[string]any `json:"applied_filters,omitempty"`

	// TerminationReason is set on the terminating round only.
	TerminationReason string `json:"termination_reason,omitempty"`

	// Results are this round's candidates, kept for bookkeeping but not
	// serialized to external consumers.
	Results []FileSearchResult `json:"-"`
}

// Response is the externally visible outcome of one search call.
type Response struct {
	// Data is the deduplicated, ranked final result set across all rounds.
	Data []FileSearchResult `json:"data"`

	// SearchIterations is the full trace, oldest round first.
	SearchIterations []Iteration `json:"search_iterations"`

	// KnowledgeAcquired is the summary accumulated across rounds, empty
	// when none was produced.
	KnowledgeAcquired string `json:"knowledge_acquired"`

	// Error carries the failure that terminated the search, if any. The
	// accumulated results are still returned alongside it.
	Error string `json:"error,omitempty"`
}
