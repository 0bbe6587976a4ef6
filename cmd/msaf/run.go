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
	"context"
	"fmt"
	"math"
	"os"
	"os/signal"
	"runtime"
	"runtime/debug"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"msaf/pkg/controller"
	coreconfig "msaf/pkg/core/config"
	"msaf/pkg/core/logging"
)

var (
	runConfigFile string
	runDebugPort  int
)

// runCmd represents the run command (application function main loop).
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the application function",
	Long: `Run the 5GMS application function.

The application function serves the M1 provisioning API and keeps every
configured application server synchronized over M3.

Configuration is loaded from:
1. Command-line flags (highest priority)
2. Environment variables
3. Default values (lowest priority)

Example usage:
  # Run with the default configuration file
  msaf run

  # Run with a custom configuration file
  msaf run --config ./msaf.yaml

  # Enable debug server
  msaf run --debug-port 6060`,
	RunE: runApplicationFunction,
}

func init() {
	runCmd.Flags().StringVarP(&runConfigFile, "config", "c", "",
		"Path to the YAML configuration file (env: MSAF_CONFIG)")
	runCmd.Flags().IntVar(&runDebugPort, "debug-port", 0,
		"Port for debug HTTP server (0 to disable, env: DEBUG_PORT)")
}

func runApplicationFunction(cmd *cobra.Command, args []string) error {
	// Configuration priority: CLI flags > Environment variables > Defaults
	if runConfigFile == "" {
		runConfigFile = os.Getenv("MSAF_CONFIG")
	}
	if runConfigFile == "" {
		runConfigFile = DefaultConfigFile
	}

	if runDebugPort == 0 {
		if envDebugPort := os.Getenv("DEBUG_PORT"); envDebugPort != "" {
			if port, err := strconv.Atoi(envDebugPort); err == nil {
				runDebugPort = port
			}
		}
	}
	if runDebugPort == 0 {
		runDebugPort = DefaultDebugPort
	}

	cfg, err := coreconfig.LoadConfigFile(runConfigFile)
	if err != nil {
		return err
	}
	if err := coreconfig.ValidateStructure(cfg); err != nil {
		return fmt.Errorf("invalid configuration in %s: %w", runConfigFile, err)
	}

	// VERBOSE overrides logging.verbose: 0 = WARNING, 1 = INFO, 2 = DEBUG
	verbose := cfg.Logging.Verbose
	if env := os.Getenv("VERBOSE"); env != "" {
		if v, err := strconv.Atoi(env); err == nil {
			verbose = v
		}
	}
	logLevel := logging.LevelFromVerbosity(verbose)
	logger := logging.NewLogger(logLevel)

	// Log detected resource limits for observability
	gomaxprocs := runtime.GOMAXPROCS(0)
	var gomemlimit string
	if limit := debug.SetMemoryLimit(-1); limit != math.MaxInt64 {
		gomemlimit = fmt.Sprintf("%d bytes (%.2f MiB)", limit, float64(limit)/(1024*1024))
	} else {
		gomemlimit = "unlimited"
	}

	logger.Info("5GMS application function starting",
		"version", controller.Version,
		"config", runConfigFile,
		"debug_port", runDebugPort,
		"log_level", logLevel,
		"gomaxprocs", gomaxprocs,
		"gomemlimit", gomemlimit)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	if err := controller.Run(ctx, cfg, runDebugPort, logger); err != nil {
		// Only return error if it's not a graceful shutdown
		if ctx.Err() == nil {
			return fmt.Errorf("application function failed: %w", err)
		}
	}

	logger.Info("Application function shutdown complete")
	return nil
}
