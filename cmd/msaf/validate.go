// Copyright 2025 Philipp Hossner
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
	"io"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	coreconfig "msaf/pkg/core/config"
)

var (
	validateConfigFile   string
	validateOutputFormat string
)

// validateCmd represents the validate command.
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file",
	Long: `Validate a configuration file and print the effective settings.

Defaults are applied before validation, so the output shows exactly what
"msaf run" would use.

Example usage:
  # Print a summary
  msaf validate -f msaf.yaml

  # Print the effective configuration as YAML
  msaf validate -f msaf.yaml --output yaml`,
	RunE: runValidate,
}

func init() {
	validateCmd.Flags().StringVarP(&validateConfigFile, "file", "f", "", "Path to the YAML configuration file (required)")
	validateCmd.Flags().StringVarP(&validateOutputFormat, "output", "o", "summary", "Output format: summary, json, yaml")

	_ = validateCmd.MarkFlagRequired("file")
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := coreconfig.LoadConfigFile(validateConfigFile)
	if err != nil {
		return err
	}
	if err := coreconfig.ValidateStructure(cfg); err != nil {
		return fmt.Errorf("invalid configuration in %s: %w", validateConfigFile, err)
	}
	return writeConfig(cmd.OutOrStdout(), cfg, validateOutputFormat)
}

func writeConfig(w io.Writer, cfg *coreconfig.Config, format string) error {
	switch strings.ToLower(format) {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(cfg)

	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(cfg)

	case "summary":
		fmt.Fprintf(w, "Configuration is valid\n")
		fmt.Fprintf(w, "  server name:          %s\n", cfg.MSAF.ServerName)
		fmt.Fprintf(w, "  M1 listen address:    %s\n", cfg.M1.ListenAddress)
		fmt.Fprintf(w, "  certificates dir:     %s\n", cfg.MSAF.CertificatesDir)
		fmt.Fprintf(w, "  assignment policy:    %s\n", cfg.MSAF.AssignmentPolicy)
		fmt.Fprintf(w, "  M3 request timeout:   %s\n", cfg.M3.GetRequestTimeout())
		fmt.Fprintf(w, "  M3 resync interval:   %s\n", cfg.M3.GetResyncInterval())
		fmt.Fprintf(w, "  application servers:  %d\n", len(cfg.MSAF.ApplicationServers))
		for _, as := range cfg.MSAF.ApplicationServers {
			fmt.Fprintf(w, "    - %s:%d %s\n", as.CanonicalHostname, as.M3Port, as.URLPathPrefixFormat)
		}
		return nil

	default:
		return fmt.Errorf("unknown output format %q (want summary, json or yaml)", format)
	}
}
