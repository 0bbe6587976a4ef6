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

import "time"

const (
	DefaultServerName       = "open5gsMSAF"
	DefaultCertificatesDir  = "/var/lib/msaf/certificates"
	DefaultAssignmentPolicy = AssignmentPolicyFirst

	DefaultM1ListenAddress     = ":7777"
	DefaultCacheControlMaxAge  = 60
	DefaultPurgeTimeout        = 30 * time.Second
	DefaultM3Port              = 7777
	DefaultURLPathPrefixFormat = "/m4d/provisioning-session-{provisioningSessionId}/"

	DefaultM3RequestTimeout       = 10 * time.Second
	DefaultM3RetryInitialInterval = 1 * time.Second
	DefaultM3RetryMaxInterval     = 60 * time.Second
	DefaultM3ResyncInterval       = 5 * time.Minute

	DefaultMetricsPort = 9090
)

func setDefaults(cfg *Config) {
	if cfg.MSAF.ServerName == "" {
		cfg.MSAF.ServerName = DefaultServerName
	}
	if cfg.MSAF.CertificatesDir == "" {
		cfg.MSAF.CertificatesDir = DefaultCertificatesDir
	}
	if cfg.MSAF.AssignmentPolicy == "" {
		cfg.MSAF.AssignmentPolicy = DefaultAssignmentPolicy
	}
	for i := range cfg.MSAF.ApplicationServers {
		as := &cfg.MSAF.ApplicationServers[i]
		if as.M3Port == 0 {
			as.M3Port = DefaultM3Port
		}
		if as.URLPathPrefixFormat == "" {
			as.URLPathPrefixFormat = DefaultURLPathPrefixFormat
		}
	}

	if cfg.M1.ListenAddress == "" {
		cfg.M1.ListenAddress = DefaultM1ListenAddress
	}
	if cfg.M1.CacheControlMaxAge == 0 {
		cfg.M1.CacheControlMaxAge = DefaultCacheControlMaxAge
	}

	if cfg.Controller.MetricsPort == 0 {
		cfg.Controller.MetricsPort = DefaultMetricsPort
	}

	// Verbose 0 (WARNING) is meaningful, so it gets no default.
}

// GetPurgeTimeout returns the configured purge timeout or the default.
func (m *M1Config) GetPurgeTimeout() time.Duration {
	return durationOr(m.PurgeTimeout, DefaultPurgeTimeout)
}

// GetRequestTimeout returns the configured M3 request timeout or the default.
func (m *M3Config) GetRequestTimeout() time.Duration {
	return durationOr(m.RequestTimeout, DefaultM3RequestTimeout)
}

// GetRetryInitialInterval returns the first back-off delay after a failed M3 request.
func (m *M3Config) GetRetryInitialInterval() time.Duration {
	return durationOr(m.RetryInitialInterval, DefaultM3RetryInitialInterval)
}

// GetRetryMaxInterval returns the back-off ceiling.
func (m *M3Config) GetRetryMaxInterval() time.Duration {
	return durationOr(m.RetryMaxInterval, DefaultM3RetryMaxInterval)
}

// GetResyncInterval returns the resync interval. Zero disables resync.
func (m *M3Config) GetResyncInterval() time.Duration {
	return durationOr(m.ResyncInterval, DefaultM3ResyncInterval)
}

// durationOr parses s, falling back to def when s is empty or invalid.
func durationOr(s string, def time.Duration) time.Duration {
	if s != "" {
		if d, err := time.ParseDuration(s); err == nil {
			return d
		}
	}
	return def
}
