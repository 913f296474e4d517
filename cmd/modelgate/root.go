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
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/modelgate/modelgate/internal/config"
)

// defaultConfigPath is tried when --config is not given.
const defaultConfigPath = "modelgate.yaml"

// globalOptions are the flags shared by every subcommand.
type globalOptions struct {
	configPath string
	logLevel   string
	logFormat  string
}

// addGlobalFlags registers the shared flags on a flag set.
func addGlobalFlags(fs *pflag.FlagSet, opts *globalOptions) {
	fs.StringVarP(&opts.configPath, "config", "c", "", "path to the configuration file")
	fs.StringVar(&opts.logLevel, "log-level", "", "log level (trace, debug, info, warn, error)")
	fs.StringVar(&opts.logFormat, "log-format", "", "log format (json, text)")
}

// loadConfig resolves the effective configuration: the --config file when
// given, the default path when present, built-in defaults otherwise. Flag
// overrides are applied on top.
func loadConfig(opts *globalOptions) (*config.Config, error) {
	var cfg *config.Config
	var err error

	switch {
	case opts.configPath != "":
		cfg, err = config.Load(opts.configPath)
	default:
		if _, statErr := os.Stat(defaultConfigPath); statErr == nil {
			cfg, err = config.Load(defaultConfigPath)
		} else {
			cfg = config.Default()
		}
	}
	if err != nil {
		return nil, err
	}

	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}
	if opts.logFormat != "" {
		cfg.Log.Format = opts.logFormat
	}
	return cfg, nil
}

// configPathInUse returns the path the watcher should follow, or empty when
// running on built-in defaults.
func (o *globalOptions) configPathInUse() string {
	if o.configPath != "" {
		return o.configPath
	}
	if _, err := os.Stat(defaultConfigPath); err == nil {
		return defaultConfigPath
	}
	return ""
}

func newRootCommand() *cobra.Command {
	opts := &globalOptions{}

	rootCmd := &cobra.Command{
		Use:   "modelgate",
		Short: "Inference gateway with tool dispatch and agentic retrieval",
		Long: `modelgate routes tool calls to native handlers and remote MCP tool
servers, and answers retrieval requests with a multi-round hybrid search
over a local chunk store.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	addGlobalFlags(rootCmd.PersistentFlags(), opts)

	rootCmd.AddCommand(newServeCommand(opts))
	rootCmd.AddCommand(newToolsCommand(opts))
	rootCmd.AddCommand(newSearchCommand(opts))
	rootCmd.AddCommand(newIngestCommand(opts))
	rootCmd.AddCommand(newVersionCommand())

	return rootCmd
}
