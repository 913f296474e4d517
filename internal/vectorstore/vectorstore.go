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

// Package vectorstore stores document chunks with their embedding vectors
// and serves the two retrieval modes the search engine fuses: dense scoring
// over vectors and lexical scoring over text.
package vectorstore

import (
	"context"
	"fmt"
	"math"
)

// Chunk is one indexed piece of a source document.
type Chunk struct {
	// ID uniquely identifies the chunk; it is the dedupe key for search.
	ID string `json:"id"`

	// Filename names the source document the chunk came from.
	Filename string `json:"filename"`

	// Content is the chunk text.
	Content string `json:"content"`

	// Attributes carry filterable metadata (language, section, tags).
	Attributes map[string]any `json:"attributes,omitempty"`

	// Vector is the chunk's embedding.
	Vector []float32 `json:"vector,omitempty"`
}

// ScoredChunk is a chunk with a retrieval score in [0, 1].
type ScoredChunk struct {
	Chunk Chunk
	Score float64
}

// Store is the retrieval surface over one chunk collection. Both search
// modes apply the filter before scoring, so excluded chunks never consume
// result slots.
type Store interface {
	// Add inserts or replaces chunks by ID.
	Add(ctx context.Context, chunks []Chunk) error

	// Dense scores chunks by vector similarity to the query embedding.
	Dense(ctx context.Context, vector []float32, limit int, filter Filter) ([]ScoredChunk, error)

	// Lexical scores chunks by text relevance to the query.
	Lexical(ctx context.Context, query string, limit int, filter Filter) ([]ScoredChunk, error)

	// Count returns the number of stored chunks.
	Count(ctx context.Context) (int, error)

	// Close releases the store's resources.
	Close() error
}

// Filter restricts a search to chunks whose attributes match.
type Filter interface {
	Matches(attrs map[string]any) bool
}

// EqFilter matches chunks whose attribute equals a value.
type EqFilter struct {
	Key   string
	Value any
}

func (f EqFilter) Matches(attrs map[string]any) bool {
	v, ok := attrs[f.Key]
	if !ok {
		return false
	}
	return fmt.Sprint(v) == fmt.Sprint(f.Value)
}

// AndFilter matches chunks that satisfy every child filter.
type AndFilter struct {
	Filters []Filter
}

func (f AndFilter) Matches(attrs map[string]any) bool {
	for _, child := range f.Filters {
		if !child.Matches(attrs) {
			return false
		}
	}
	return true
}

// OrFilter matches chunks that satisfy at least one child filter. An empty
// OrFilter matches nothing.
type OrFilter struct {
	Filters []Filter
}

func (f OrFilter) Matches(attrs map[string]any) bool {
	for _, child := range f.Filters {
		if child.Matches(attrs) {
			return true
		}
	}
	return false
}

// ParseFilter decodes a filter tree from its JSON object form:
//
//	{"type": "eq", "key": "language", "value": "hi"}
//	{"type": "and", "filters": [...]}
//	{"type": "or", "filters": [...]}
//
// A nil input yields a nil filter, meaning no restriction.
func ParseFilter(raw any) (Filter, error) {
	if raw == nil {
		return nil, nil
	}

	obj, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("filter must be an object, got %T", raw)
	}

	kind, _ := obj["type"].(string)
	switch kind {
	case "eq":
		key, _ := obj["key"].(string)
		if key == "" {
			return nil, fmt.Errorf("eq filter requires a key")
		}
		return EqFilter{Key: key, Value: obj["value"]}, nil

	case "and", "or":
		children, ok := obj["filters"].([]any)
		if !ok {
			return nil, fmt.Errorf("%s filter requires a filters array", kind)
		}
		parsed := make([]Filter, 0, len(children))
		for _, child := range children {
			p, err := ParseFilter(child)
			if err != nil {
				return nil, err
			}
			parsed = append(parsed, p)
		}
		if kind == "or" {
			return OrFilter{Filters: parsed}, nil
		}
		return AndFilter{Filters: parsed}, nil

	default:
		return nil, fmt.Errorf("unknown filter type %q", kind)
	}
}

// CosineSimilarity computes the cosine of the angle between two vectors.
// Mismatched lengths and zero vectors score 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0.0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0.0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
