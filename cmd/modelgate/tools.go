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
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/modelgate/modelgate/pkg/errors"
)

func newToolsCommand(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "Inspect and invoke registered tools",
	}
	cmd.AddCommand(newToolsListCommand(opts))
	cmd.AddCommand(newToolsCallCommand(opts))
	return cmd
}

func newToolsListCommand(opts *globalOptions) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tools from the built-in set and connected servers",
		RunE: func(cmd *cobra.Command, _ []string) error {
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
			rt.connectServers(ctx)

			defs := rt.registry.FindAll()

			if asJSON {
				type toolInfo struct {
					Name        string          `json:"name"`
					Protocol    string          `json:"protocol"`
					Description string          `json:"description,omitempty"`
					Parameters  json.RawMessage `json:"parameters,omitempty"`
				}
				infos := make([]toolInfo, 0, len(defs))
				for _, def := range defs {
					infos = append(infos, toolInfo{
						Name:        def.Name(),
						Protocol:    string(def.Protocol()),
						Description: def.Description(),
						Parameters:  def.Parameters(),
					})
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(infos)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tPROTOCOL\tDESCRIPTION")
			for _, def := range defs {
				fmt.Fprintf(w, "%s\t%s\t%s\n", def.Name(), def.Protocol(), def.Description())
			}
			return w.Flush()
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "output as JSON")
	return cmd
}

func newToolsCallCommand(opts *globalOptions) *cobra.Command {
	var argsJSON string

	cmd := &cobra.Command{
		Use:   "call <name>",
		Short: "Invoke one tool by name with JSON arguments",
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
			rt.connectServers(ctx)

			name := args[0]
			def, ok := rt.registry.FindByName(name)
			if !ok {
				return &errors.NotFoundError{Resource: "tool", ID: name}
			}

			out, err := rt.executor.Execute(ctx, def, argsJSON)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}

	cmd.Flags().StringVarP(&argsJSON, "args", "a", "{}", "tool arguments as a JSON object")
	return cmd
}
