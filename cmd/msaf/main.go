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

// Package main provides the CLI entrypoint for the 5GMS application function.
//
// Subcommands:
//
//   - run: start the M1 server and synchronize application servers over M3
//   - validate: load a configuration file and print the effective settings
//
// The process runs until receiving SIGTERM or SIGINT, at which point it
// performs graceful shutdown.
package main

import (
	"fmt"
	"os"

	_ "github.com/KimMachineGun/automemlimit"
	"github.com/spf13/cobra"

	"msaf/pkg/controller"
)

const (
	// DefaultConfigFile is used when neither --config nor MSAF_CONFIG is set.
	DefaultConfigFile = "/etc/rt-5gms/msaf.yaml"

	// DefaultDebugPort is the default port for the debug HTTP server (0 = disabled).
	DefaultDebugPort = 0
)

var rootCmd = &cobra.Command{
	Use:           "msaf",
	Short:         "5GMS application function",
	Version:       controller.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(validateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
