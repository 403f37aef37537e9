// Package config implements TOML configuration loading, validation, and
// platform-specific path resolution for mailru-go. Values are layered:
// defaults, then the config file, then environment variables, then CLI
// flags.
package config

import "time"

// Config is the top-level configuration structure parsed from a TOML file.
type Config struct {
	Account   AccountConfig   `toml:"account"`
	Session   SessionConfig   `toml:"session"`
	Network   NetworkConfig   `toml:"network"`
	Endpoints EndpointsConfig `toml:"endpoints"`
	Transfers TransfersConfig `toml:"transfers"`
	Logging   LoggingConfig   `toml:"logging"`
}

// AccountConfig holds the credentials used for the login handshake.
type AccountConfig struct {
	Login    string `toml:"login"`
	Password string `toml:"password"`
}

// SessionConfig controls where the cached credential and cookies live and
// which backend stores the credential.
type SessionConfig struct {
	CacheDir string `toml:"cache_dir"`
	Store    string `toml:"store"`
}

// NetworkConfig controls HTTP client behavior.
type NetworkConfig struct {
	ConnectTimeout  string `toml:"connect_timeout"`
	RequestTimeout  string `toml:"request_timeout"`
	TransferTimeout string `toml:"transfer_timeout"`
	UserAgent       string `toml:"user_agent"`
	MaxAuthRetries  int    `toml:"max_auth_retries"`
}

// EndpointsConfig overrides the service URLs. Empty values use the
// service defaults.
type EndpointsConfig struct {
	APIURL  string `toml:"api_url"`
	AuthURL string `toml:"auth_url"`
	RootURL string `toml:"root_url"`
	Domain  string `toml:"domain"`
}

// TransfersConfig controls uploads and downloads.
type TransfersConfig struct {
	ParallelUploads int    `toml:"parallel_uploads"`
	VerifyHash      bool   `toml:"verify_hash"`
	MaxFileSize     string `toml:"max_file_size"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`
}

// CLIOverrides holds values from CLI flags. Empty strings mean "not given".
type CLIOverrides struct {
	ConfigPath string // --config
	Login      string // --login
	CacheDir   string // --cache-dir
}

// Resolved is the effective configuration after all layers are applied,
// with durations and sizes parsed.
type Resolved struct {
	ConfigPath string `json:"config_path"`

	Login    string `json:"login"`
	Password string `json:"-"`

	CacheDir string `json:"cache_dir"`
	Store    string `json:"store"`

	ConnectTimeout  time.Duration `json:"connect_timeout"`
	RequestTimeout  time.Duration `json:"request_timeout"`
	TransferTimeout time.Duration `json:"transfer_timeout"`
	UserAgent       string        `json:"user_agent,omitempty"`
	MaxAuthRetries  int           `json:"max_auth_retries"`

	APIURL  string `json:"api_url,omitempty"`
	AuthURL string `json:"auth_url,omitempty"`
	RootURL string `json:"root_url,omitempty"`
	Domain  string `json:"domain,omitempty"`

	ParallelUploads int   `json:"parallel_uploads"`
	VerifyHash      bool  `json:"verify_hash"`
	MaxFileSize     int64 `json:"max_file_size"`

	LogLevel  string `json:"log_level"`
	LogFormat string `json:"log_format"`
}
