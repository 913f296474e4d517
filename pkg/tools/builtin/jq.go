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

// Package builtin declares the native tools that ship with the gateway:
// a jq transform over JSON payloads and the agentic file search.
package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/itchyny/gojq"

	"github.com/modelgate/modelgate/pkg/errors"
	"github.com/modelgate/modelgate/pkg/tools"
)

const (
	// jqTimeout bounds one expression evaluation.
	jqTimeout = 1 * time.Second

	// jqMaxInputSize caps the input payload at 10MB.
	jqMaxInputSize = 10 * 1024 * 1024
)

var jqSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"expression": {"type": "string", "description": "jq expression to apply"},
		"input": {"type": "string", "description": "JSON text to transform"}
	},
	"required": ["expression", "input"]
}`)

// NewJQTool builds the native jq transform tool. It evaluates a jq
// expression against a JSON input and returns the result as JSON text.
func NewJQTool() *tools.NativeDefinition {
	return tools.NewNativeDefinition(
		"jq",
		"Transform a JSON document with a jq expression.",
		jqSchema,
		runJQ,
	)
}

func runJQ(ctx context.Context, args map[string]any) (string, error) {
	expression, _ := args["expression"].(string)
	if expression == "" {
		return "", &errors.ValidationError{
			Field:   "expression",
			Message: "jq expression is required",
		}
	}
	input, _ := args["input"].(string)
	if int64(len(input)) > jqMaxInputSize {
		return "", &errors.ValidationError{
			Field:   "input",
			Message: fmt.Sprintf("input size (%d bytes) exceeds maximum (%d bytes)", len(input), jqMaxInputSize),
		}
	}

	var data any
	if err := json.Unmarshal([]byte(input), &data); err != nil {
		return "", &errors.ValidationError{
			Field:      "input",
			Message:    "input must be valid JSON: " + err.Error(),
			Suggestion: "encode the document as JSON text before transforming it",
		}
	}

	query, err := gojq.Parse(expression)
	if err != nil {
		return "", &errors.ValidationError{
			Field:   "expression",
			Message: "invalid jq expression: " + err.Error(),
		}
	}
	code, err := gojq.Compile(query)
	if err != nil {
		return "", &errors.ValidationError{
			Field:   "expression",
			Message: "jq compilation failed: " + err.Error(),
		}
	}

	ctx, cancel := context.WithTimeout(ctx, jqTimeout)
	defer cancel()

	iter := code.RunWithContext(ctx, data)
	var results []any
	for {
		v, ok := iter.Next()
		if !ok {
			break
		}
		if itErr, isErr := v.(error); isErr {
			return "", errors.Wrap(itErr, "jq evaluation failed")
		}
		results = append(results, v)
	}

	var out any
	switch len(results) {
	case 0:
		out = nil
	case 1:
		out = results[0]
	default:
		out = results
	}

	encoded, err := json.Marshal(out)
	if err != nil {
		return "", errors.Wrap(err, "failed to encode jq result")
	}
	return string(encoded), nil
}
