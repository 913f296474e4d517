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
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/modelgate/modelgate/internal/search"
	"github.com/modelgate/modelgate/pkg/errors"
)

func newSearchCommand(opts *globalOptions) *cobra.Command {
	var (
		maxResults int
		scopeIDs   []string
		alpha      float64
		filterJSON string
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Run an agentic search against the local chunk store",
		Args:  cobra.ExactArgs(1),
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

			req := search.Request{
				Query:      args[0],
				MaxResults: maxResults,
				ScopeIDs:   scopeIDs,
			}
			if cmd.Flags().Changed("alpha") {
				req.ExtraParams = map[string]any{"alpha": alpha}
			}
			if filterJSON != "" {
				var filter any
				if err := json.Unmarshal([]byte(filterJSON), &filter); err != nil {
					return &errors.ValidationError{
						Field:      "filter",
						Message:    "filter must be a JSON object",
						Suggestion: `e.g. '{"type":"eq","key":"language","value":"en"}'`,
					}
				}
				req.Filter = filter
			}

			resp := rt.engine.Search(ctx, req)

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(resp); err != nil {
				return err
			}
			if resp.Error != "" {
				return fmt.Errorf("search terminated with error: %s", resp.Error)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&maxResults, "max-results", "n", 10, "maximum results per round")
	cmd.Flags().StringSliceVar(&scopeIDs, "scope", nil, "restrict to the named store scopes")
	cmd.Flags().Float64Var(&alpha, "alpha", search.DefaultAlpha, "dense/lexical blend weight in [0, 1]")
	cmd.Flags().StringVar(&filterJSON, "filter", "", "attribute filter as a JSON object")
	return cmd
}
