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

package config

import (
	"fmt"
	"strings"
	"time"
)

// ValidateStructure checks a loaded configuration for semantic errors.
func ValidateStructure(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}

	if err := validateMSAFConfig(&cfg.MSAF); err != nil {
		return fmt.Errorf("msaf: %w", err)
	}

	if err := validateM1Config(&cfg.M1); err != nil {
		return fmt.Errorf("m1: %w", err)
	}

	if err := validateM3Config(&cfg.M3); err != nil {
		return fmt.Errorf("m3: %w", err)
	}

	if err := validateControllerConfig(&cfg.Controller); err != nil {
		return fmt.Errorf("controller: %w", err)
	}

	if err := validateLoggingConfig(&cfg.Logging); err != nil {
		return fmt.Errorf("logging: %w", err)
	}

	return nil
}

func validateMSAFConfig(mc *MSAFConfig) error {
	if strings.ContainsAny(mc.ServerName, " /()") {
		return fmt.Errorf("server_name %q must be a single product token", mc.ServerName)
	}

	switch mc.AssignmentPolicy {
	case AssignmentPolicyFirst, AssignmentPolicyAll:
	default:
		return fmt.Errorf("assignment_policy must be %q or %q, got %q",
			AssignmentPolicyFirst, AssignmentPolicyAll, mc.AssignmentPolicy)
	}

	seen := make(map[string]bool, len(mc.ApplicationServers))
	for i := range mc.ApplicationServers {
		as := &mc.ApplicationServers[i]
		if as.CanonicalHostname == "" {
			return fmt.Errorf("application_servers[%d]: canonical_hostname cannot be empty", i)
		}
		if seen[as.CanonicalHostname] {
			return fmt.Errorf("application_servers[%d]: duplicate canonical_hostname %q", i, as.CanonicalHostname)
		}
		seen[as.CanonicalHostname] = true

		if err := validatePort(as.M3Port); err != nil {
			return fmt.Errorf("application_servers[%d]: m3_port %w", i, err)
		}
		if !strings.HasPrefix(as.URLPathPrefixFormat, "/") {
			return fmt.Errorf("application_servers[%d]: url_path_prefix_format must start with '/'", i)
		}
	}

	return nil
}

func validateM1Config(mc *M1Config) error {
	if mc.ListenAddress == "" {
		return fmt.Errorf("listen_address cannot be empty")
	}
	if mc.CacheControlMaxAge < 0 {
		return fmt.Errorf("cache_control_max_age cannot be negative, got %d", mc.CacheControlMaxAge)
	}
	if err := validateDuration("purge_timeout", mc.PurgeTimeout); err != nil {
		return err
	}
	return nil
}

func validateM3Config(mc *M3Config) error {
	durations := []struct {
		name, value string
	}{
		{"request_timeout", mc.RequestTimeout},
		{"retry_initial_interval", mc.RetryInitialInterval},
		{"retry_max_interval", mc.RetryMaxInterval},
		{"resync_interval", mc.ResyncInterval},
	}
	for _, d := range durations {
		if err := validateDuration(d.name, d.value); err != nil {
			return err
		}
	}

	if mc.GetRetryInitialInterval() > mc.GetRetryMaxInterval() {
		return fmt.Errorf("retry_initial_interval (%s) exceeds retry_max_interval (%s)",
			mc.GetRetryInitialInterval(), mc.GetRetryMaxInterval())
	}

	return nil
}

func validateControllerConfig(cc *ControllerConfig) error {
	if err := validatePort(cc.MetricsPort); err != nil {
		return fmt.Errorf("metrics_port %w", err)
	}

	if cc.DebugPort != 0 {
		if err := validatePort(cc.DebugPort); err != nil {
			return fmt.Errorf("debug_port %w", err)
		}
		if cc.DebugPort == cc.MetricsPort {
			return fmt.Errorf("debug_port and metrics_port cannot be the same (%d)", cc.DebugPort)
		}
	}

	return nil
}

func validateLoggingConfig(lc *LoggingConfig) error {
	if lc.Verbose < 0 || lc.Verbose > 2 {
		return fmt.Errorf("verbose must be 0 (WARNING), 1 (INFO), or 2 (DEBUG), got %d", lc.Verbose)
	}

	return nil
}

func validatePort(port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("must be between 1 and 65535, got %d", port)
	}
	return nil
}

// validateDuration accepts empty values (default applies) and rejects
// unparsable or negative ones.
func validateDuration(name, value string) error {
	if value == "" {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("%s: invalid duration %q: %w", name, value, err)
	}
	if d < 0 {
		return fmt.Errorf("%s cannot be negative, got %s", name, value)
	}
	return nil
}
