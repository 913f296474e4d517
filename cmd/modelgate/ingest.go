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

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/modelgate/modelgate/internal/vectorstore"
)

// maxChunkLen bounds one chunk's content; files split on paragraph breaks.
const maxChunkLen = 2000

func newIngestCommand(opts *globalOptions) *cobra.Command {
	var (
		scopeID string
		attrs   map[string]string
	)

	cmd := &cobra.Command{
		Use:   "ingest <file>...",
		Short: "Index documents into the chunk store",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			rt, err := newGateway(ctx, cfg)
			if err != nil {
				return err
			}
			defer rt.close(ctx)

			total := 0
			for _, path := range args {
				data, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("failed to read %s: %w", path, err)
				}

				filename := filepath.Base(path)
				var chunks []vectorstore.Chunk
				for i, text := range splitChunks(string(data)) {
					attributes := make(map[string]any, len(attrs)+1)
					for k, v := range attrs {
						attributes[k] = v
					}
					if scopeID != "" {
						attributes["vector_store_id"] = scopeID
					}

					vector, err := rt.embedder.Embed(ctx, text)
					if err != nil {
						return err
					}
					chunks = append(chunks, vectorstore.Chunk{
						ID:         fmt.Sprintf("%s#%d", filename, i),
						Filename:   filename,
						Content:    text,
						Attributes: attributes,
						Vector:     vector,
					})
				}

				if err := rt.store.Add(ctx, chunks); err != nil {
					return fmt.Errorf("failed to index %s: %w", path, err)
				}
				total += len(chunks)
				rt.logger.Info("indexed document", "file", filename, "chunks", len(chunks))
			}

			count, err := rt.store.Count(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Indexed %d chunks (%d total in store)\n", total, count)
			return nil
		},
	}

	cmd.Flags().StringVar(&scopeID, "scope", "", "store scope to index into")
	cmd.Flags().StringToStringVar(&attrs, "attr", nil, "attributes to set on every chunk (key=value)")
	return cmd
}

// splitChunks breaks a document on paragraph boundaries, packing paragraphs
// until the length bound. Oversized paragraphs become their own chunk rather
// than being cut mid-sentence.
func splitChunks(content string) []string {
	paragraphs := strings.Split(content, "\n\n")

	var chunks []string
	var current strings.Builder
	for _, para := range paragraphs {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		if current.Len() > 0 && current.Len()+len(para) > maxChunkLen {
			chunks = append(chunks, current.String())
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(para)
	}
	if current.Len() > 0 {
		chunks = append(chunks, current.String())
	}
	return chunks
}
