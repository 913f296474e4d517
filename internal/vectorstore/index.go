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
	"fmt"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
)

// lexicalIndex wraps an in-memory bleve index keyed by chunk ID. Persistence
// lives in SQLite; the index is rebuilt from it at open.
type lexicalIndex struct {
	index bleve.Index
}

func newLexicalIndex() (*lexicalIndex, error) {
	index, err := bleve.NewMemOnly(buildChunkMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create lexical index: %w", err)
	}
	return &lexicalIndex{index: index}, nil
}

func buildChunkMapping() mapping.IndexMapping {
	chunkMapping := bleve.NewDocumentMapping()

	contentMapping := bleve.NewTextFieldMapping()
	chunkMapping.AddFieldMappingsAt("content", contentMapping)

	filenameMapping := bleve.NewTextFieldMapping()
	chunkMapping.AddFieldMappingsAt("filename", filenameMapping)

	indexMapping := bleve.NewIndexMapping()
	indexMapping.AddDocumentMapping("_default", chunkMapping)
	return indexMapping
}

func (l *lexicalIndex) add(chunks []Chunk) error {
	batch := l.index.NewBatch()
	for _, chunk := range chunks {
		doc := map[string]any{
			"content":  chunk.Content,
			"filename": chunk.Filename,
		}
		if err := batch.Index(chunk.ID, doc); err != nil {
			return fmt.Errorf("failed to index chunk %s: %w", chunk.ID, err)
		}
	}
	if err := l.index.Batch(batch); err != nil {
		return fmt.Errorf("failed to batch index chunks: %w", err)
	}
	return nil
}

// search returns hits as (chunk ID, raw bleve score) pairs. Scores are
// normalized by the caller against the top hit.
func (l *lexicalIndex) search(query string, limit int) ([]string, []float64, error) {
	matchQuery := bleve.NewMatchQuery(query)
	request := bleve.NewSearchRequestOptions(matchQuery, limit, 0, false)

	results, err := l.index.Search(request)
	if err != nil {
		return nil, nil, fmt.Errorf("lexical search failed: %w", err)
	}

	ids := make([]string, 0, len(results.Hits))
	scores := make([]float64, 0, len(results.Hits))
	for _, hit := range results.Hits {
		ids = append(ids, hit.ID)
		scores = append(scores, hit.Score)
	}
	return ids, scores, nil
}

func (l *lexicalIndex) close() error {
	return l.index.Close()
}
