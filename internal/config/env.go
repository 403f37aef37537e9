package config

import "os"

// Environment variable names for overrides.
const (
	EnvConfig   = "MAILRU_GO_CONFIG"
	EnvLogin    = "MAILRU_GO_LOGIN"
	EnvPassword = "MAILRU_GO_PASSWORD"
	EnvCacheDir = "MAILRU_GO_CACHE_DIR"
)

// EnvOverrides holds values derived from environment variables.
type EnvOverrides struct {
	ConfigPath string // MAILRU_GO_CONFIG: config file path
	Login      string // MAILRU_GO_LOGIN: account login
	Password   string // MAILRU_GO_PASSWORD: account password
	CacheDir   string // MAILRU_GO_CACHE_DIR: cache directory
}

// ReadEnvOverrides reads environment variables and returns any overrides
// found. It does not modify a Config; Resolve applies the fields.
func ReadEnvOverrides() EnvOverrides {
	return EnvOverrides{
		ConfigPath: os.Getenv(EnvConfig),
		Login:      os.Getenv(EnvLogin),
		Password:   os.Getenv(EnvPassword),
		CacheDir:   os.Getenv(EnvCacheDir),
	}
}
