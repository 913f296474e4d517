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

package builtin

import (
	"context"
	"encoding/json"

	"github.com/modelgate/modelgate/internal/search"
	"github.com/modelgate/modelgate/pkg/errors"
	"github.com/modelgate/modelgate/pkg/tools"
)

var searchSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"query": {"type": "string", "description": "search query"},
		"max_num_results": {"type": "integer", "description": "result cap per round", "default": 10},
		"vector_store_ids": {"type": "array", "items": {"type": "string"}},
		"filters": {"type": "object", "description": "attribute filter tree"},
		"alpha": {"type": "number", "description": "dense/lexical blend weight"}
	},
	"required": ["query"]
}`)

// Searcher runs one agentic search call. *search.Engine satisfies it.
type Searcher interface {
	Search(ctx context.Context, req search.Request) *search.Response
}

// NewAgenticSearchTool exposes the retrieval engine as a native tool, so
// agentic search dispatches through the registry like any other tool. The
// result text is the response JSON.
func NewAgenticSearchTool(engine Searcher) *tools.NativeDefinition {
	return tools.NewNativeDefinition(
		"agentic_search",
		"Multi-round hybrid retrieval over the knowledge store.",
		searchSchema,
		func(ctx context.Context, args map[string]any) (string, error) {
			req, err := searchRequestFrom(args)
			if err != nil {
				return "", err
			}

			resp := engine.Search(ctx, req)
			encoded, err := json.Marshal(resp)
			if err != nil {
				return "", errors.Wrap(err, "failed to encode search response")
			}
			return string(encoded), nil
		},
	)
}

// searchRequestFrom decodes the tool arguments into an engine request.
func searchRequestFrom(args map[string]any) (search.Request, error) {
	query, _ := args["query"].(string)
	if query == "" {
		return search.Request{}, &errors.ValidationError{
			Field:   "query",
			Message: "query is required",
		}
	}

	maxResults := 10
	if raw, ok := args["max_num_results"]; ok {
		switch v := raw.(type) {
		case float64:
			maxResults = int(v)
		case int:
			maxResults = v
		}
	}

	var scopeIDs []string
	if raw, ok := args["vector_store_ids"].([]any); ok {
		for _, id := range raw {
			if s, ok := id.(string); ok {
				scopeIDs = append(scopeIDs, s)
			}
		}
	}

	extraParams := map[string]any{}
	if alpha, ok := args["alpha"]; ok {
		extraParams["alpha"] = alpha
	}

	return search.Request{
		Query:       query,
		MaxResults:  maxResults,
		Filter:      args["filters"],
		ScopeIDs:    scopeIDs,
		ExtraParams: extraParams,
	}, nil
}
