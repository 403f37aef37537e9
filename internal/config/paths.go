package config

import (
	"os"
	"path/filepath"
)

const (
	appName        = "mailru-go"
	configFileName = "config.toml"
)

// DefaultConfigDir returns the per-user configuration directory for the
// application: $XDG_CONFIG_HOME/mailru-go (or ~/.config/mailru-go) on Linux,
// ~/Library/Application Support/mailru-go on macOS. Empty when the home
// directory cannot be determined.
func DefaultConfigDir() string {
	base, err := os.UserConfigDir()
	if err != nil {
		return ""
	}

	return filepath.Join(base, appName)
}

// DefaultConfigPath returns the config file used when neither
// MAILRU_GO_CONFIG nor --config is given.
func DefaultConfigPath() string {
	dir := DefaultConfigDir()
	if dir == "" {
		return ""
	}

	return filepath.Join(dir, configFileName)
}

// DefaultCacheDir returns the cache root for the credential file, the
// cookie jar and the SQLite store when [session] cache_dir is unset. The
// system temp directory is shared by every tool run by the same user, so
// a cached session survives between invocations.
func DefaultCacheDir() string {
	return os.TempDir()
}
