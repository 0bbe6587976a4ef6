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

// Package config holds the application function's configuration model.
//
// The configuration is a YAML document with five sections. LoadConfig
// parses it and applies defaults; ValidateStructure checks it. Neither
// touches the network or the filesystem.
package config

// Assignment policies decide which application servers receive a newly
// provisioned session.
const (
	// AssignmentPolicyFirst assigns new sessions to the first registered
	// application server only.
	AssignmentPolicyFirst = "first"

	// AssignmentPolicyAll assigns new sessions to every registered
	// application server.
	AssignmentPolicyAll = "all"
)

// Config is the root configuration document.
type Config struct {
	MSAF       MSAFConfig       `yaml:"msaf"`
	M1         M1Config         `yaml:"m1"`
	M3         M3Config         `yaml:"m3"`
	Controller ControllerConfig `yaml:"controller"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// MSAFConfig describes the function itself and the application servers it manages.
type MSAFConfig struct {
	// ServerName goes into the Server response header, e.g. "5GMSdAF-<name>/<release>".
	ServerName string `yaml:"server_name"`

	// CertificatesDir holds uploaded PEM files as <sessionId>/<certId>.pem.
	CertificatesDir string `yaml:"certificates_dir"`

	// AssignmentPolicy is "first" or "all".
	AssignmentPolicy string `yaml:"assignment_policy"`

	// ApplicationServers are registered at startup in list order.
	ApplicationServers []ApplicationServerConfig `yaml:"application_servers"`
}

// ApplicationServerConfig registers one application server.
type ApplicationServerConfig struct {
	CanonicalHostname string `yaml:"canonical_hostname"`

	// URLPathPrefixFormat may contain the {provisioningSessionId} macro.
	URLPathPrefixFormat string `yaml:"url_path_prefix_format"`

	M3Port int `yaml:"m3_port"`
}

// M1Config configures the provisioning API listener.
type M1Config struct {
	ListenAddress string `yaml:"listen_address"`

	// CacheControlMaxAge is the max-age, in seconds, sent with GET responses.
	CacheControlMaxAge int `yaml:"cache_control_max_age"`

	// PurgeTimeout bounds how long a purge request waits for every
	// application server. Duration string, e.g. "30s".
	PurgeTimeout string `yaml:"purge_timeout"`
}

// M3Config tunes the application server management client.
//
// All intervals are Go duration strings.
type M3Config struct {
	RequestTimeout       string `yaml:"request_timeout"`
	RetryInitialInterval string `yaml:"retry_initial_interval"`
	RetryMaxInterval     string `yaml:"retry_max_interval"`

	// ResyncInterval is how long the sync loop may stay quiet before every
	// idle application server is rediscovered. "0s" disables resync.
	ResyncInterval string `yaml:"resync_interval"`
}

// ControllerConfig configures the process-level servers.
type ControllerConfig struct {
	MetricsPort int `yaml:"metrics_port"`

	// DebugPort enables the debug vars server when non-zero.
	DebugPort int `yaml:"debug_port"`
}

// LoggingConfig configures log verbosity: 0 WARNING, 1 INFO, 2 DEBUG.
type LoggingConfig struct {
	Verbose int `yaml:"verbose"`
}
