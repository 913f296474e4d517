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

package vectorstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists chunks in SQLite (pure Go driver, no CGo) and keeps
// them mirrored in memory for scoring: dense search walks the vectors,
// lexical search goes through the bleve index. Both mirrors are rebuilt from
// the database at open.
type SQLiteStore struct {
	mu      sync.RWMutex
	db      *sql.DB
	chunks  map[string]Chunk
	lexical *lexicalIndex
}

// Open creates or opens a chunk store at the given path. The parent
// directory is created when missing. An empty path opens an in-memory
// database, useful for tests and ephemeral indexes.
func Open(path string) (*SQLiteStore, error) {
	dsn := ":memory:"
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create store directory: %w", err)
		}
		dsn = path
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	lexical, err := newLexicalIndex()
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteStore{
		db:      db,
		chunks:  make(map[string]Chunk),
		lexical: lexical,
	}
	if err := s.migrate(); err != nil {
		_ = s.Close()
		return nil, err
	}
	if err := s.load(); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS chunks (
			id TEXT PRIMARY KEY,
			filename TEXT NOT NULL,
			content TEXT NOT NULL,
			attributes TEXT NOT NULL DEFAULT '{}',
			vector TEXT NOT NULL DEFAULT '[]',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create chunks table: %w", err)
	}

	_, err = s.db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_chunks_filename ON chunks(filename)
	`)
	if err != nil {
		return fmt.Errorf("failed to create filename index: %w", err)
	}
	return nil
}

// load rebuilds the in-memory mirror and lexical index from the database.
func (s *SQLiteStore) load() error {
	rows, err := s.db.Query("SELECT id, filename, content, attributes, vector FROM chunks")
	if err != nil {
		return fmt.Errorf("failed to load chunks: %w", err)
	}
	defer rows.Close()

	var loaded []Chunk
	for rows.Next() {
		var chunk Chunk
		var attrsJSON, vectorJSON string
		if err := rows.Scan(&chunk.ID, &chunk.Filename, &chunk.Content, &attrsJSON, &vectorJSON); err != nil {
			return fmt.Errorf("failed to scan chunk: %w", err)
		}
		if err := json.Unmarshal([]byte(attrsJSON), &chunk.Attributes); err != nil {
			return fmt.Errorf("failed to decode attributes for chunk %s: %w", chunk.ID, err)
		}
		if err := json.Unmarshal([]byte(vectorJSON), &chunk.Vector); err != nil {
			return fmt.Errorf("failed to decode vector for chunk %s: %w", chunk.ID, err)
		}
		loaded = append(loaded, chunk)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for _, chunk := range loaded {
		s.chunks[chunk.ID] = chunk
	}
	return s.lexical.add(loaded)
}

// Add inserts or replaces chunks by ID.
func (s *SQLiteStore) Add(ctx context.Context, chunks []Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, chunk := range chunks {
		if chunk.ID == "" {
			return fmt.Errorf("chunk ID cannot be empty")
		}
		attrsJSON, err := json.Marshal(chunk.Attributes)
		if err != nil {
			return fmt.Errorf("failed to encode attributes for chunk %s: %w", chunk.ID, err)
		}
		vectorJSON, err := json.Marshal(chunk.Vector)
		if err != nil {
			return fmt.Errorf("failed to encode vector for chunk %s: %w", chunk.ID, err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO chunks (id, filename, content, attributes, vector)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				filename = excluded.filename,
				content = excluded.content,
				attributes = excluded.attributes,
				vector = excluded.vector
		`, chunk.ID, chunk.Filename, chunk.Content, string(attrsJSON), string(vectorJSON))
		if err != nil {
			return fmt.Errorf("failed to upsert chunk %s: %w", chunk.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit chunks: %w", err)
	}

	for _, chunk := range chunks {
		s.chunks[chunk.ID] = chunk
	}
	return s.lexical.add(chunks)
}

// Dense scores the filtered chunks by cosine similarity to the query vector,
// mapped onto [0, 1].
func (s *SQLiteStore) Dense(ctx context.Context, vector []float32, limit int, filter Filter) ([]ScoredChunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	scored := make([]ScoredChunk, 0, len(s.chunks))
	for _, chunk := range s.chunks {
		if filter != nil && !filter.Matches(chunk.Attributes) {
			continue
		}
		cos := CosineSimilarity(vector, chunk.Vector)
		scored = append(scored, ScoredChunk{Chunk: chunk, Score: (cos + 1) / 2})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].Chunk.ID < scored[j].Chunk.ID
	})

	if limit > 0 && len(scored) > limit {
		scored = scored[:limit]
	}
	return scored, nil
}

// Lexical scores the filtered chunks by text relevance. Raw bleve scores are
// normalized against the top hit so they share the [0, 1] range with dense
// scores.
func (s *SQLiteStore) Lexical(ctx context.Context, query string, limit int, filter Filter) ([]ScoredChunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	// Over-fetch so post-index filtering still fills the limit.
	fetchLimit := limit
	if filter != nil || fetchLimit <= 0 {
		fetchLimit = len(s.chunks)
	}
	if fetchLimit == 0 {
		return nil, nil
	}

	ids, rawScores, err := s.lexical.search(query, fetchLimit)
	if err != nil {
		return nil, err
	}

	var maxScore float64
	for _, score := range rawScores {
		if score > maxScore {
			maxScore = score
		}
	}

	scored := make([]ScoredChunk, 0, len(ids))
	for i, id := range ids {
		chunk, ok := s.chunks[id]
		if !ok {
			continue
		}
		if filter != nil && !filter.Matches(chunk.Attributes) {
			continue
		}
		score := 0.0
		if maxScore > 0 {
			score = rawScores[i] / maxScore
		}
		scored = append(scored, ScoredChunk{Chunk: chunk, Score: score})
	}

	if limit > 0 && len(scored) > limit {
		scored = scored[:limit]
	}
	return scored, nil
}

// Count returns the number of stored chunks.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks), nil
}

// Close releases the database and the lexical index.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var firstErr error
	if s.lexical != nil {
		if err := s.lexical.close(); err != nil {
			firstErr = err
		}
		s.lexical = nil
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		s.db = nil
	}
	return firstErr
}
