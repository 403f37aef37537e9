package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// Load reads and parses a TOML config file, validates it, and returns the
// resulting Config. Unknown keys are fatal, with "did you mean?"
// suggestions.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if err := checkUnknownKeys(&md); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault reads a TOML config file if it exists, otherwise returns a
// Config populated with all default values.
func LoadOrDefault(path string, logger *slog.Logger) (*Config, error) {
	if path == "" {
		return DefaultConfig(), nil
	}

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		logger.Debug("config file not found, using defaults", slog.String("path", path))

		return DefaultConfig(), nil
	}

	return Load(path)
}

// Resolve loads configuration and applies the override chain:
// defaults -> config file -> environment variables -> CLI flags.
func Resolve(env EnvOverrides, cli CLIOverrides, logger *slog.Logger) (*Resolved, error) {
	if logger == nil {
		logger = slog.Default()
	}

	cfgPath := DefaultConfigPath()
	if env.ConfigPath != "" {
		cfgPath = env.ConfigPath
	}

	if cli.ConfigPath != "" {
		cfgPath = cli.ConfigPath
	}

	cfg, err := LoadOrDefault(cfgPath, logger)
	if err != nil {
		return nil, err
	}

	applyOverride(&cfg.Account.Login, env.Login, cli.Login)
	applyOverride(&cfg.Account.Password, env.Password, "")
	applyOverride(&cfg.Session.CacheDir, env.CacheDir, cli.CacheDir)

	r, err := resolve(cfg)
	if err != nil {
		return nil, err
	}

	r.ConfigPath = cfgPath

	logger.Debug("config resolved",
		slog.String("path", cfgPath),
		slog.String("login", r.Login),
		slog.String("cache_dir", r.CacheDir),
		slog.String("store", r.Store),
	)

	return r, nil
}

// applyOverride replaces *dst with the first non-empty override, CLI first.
func applyOverride(dst *string, env, cli string) {
	if env != "" {
		*dst = env
	}

	if cli != "" {
		*dst = cli
	}
}

// resolve parses the string-typed fields of a validated Config.
func resolve(cfg *Config) (*Resolved, error) {
	durations := make(map[string]time.Duration, 3)

	for name, value := range map[string]string{
		"connect_timeout":  cfg.Network.ConnectTimeout,
		"request_timeout":  cfg.Network.RequestTimeout,
		"transfer_timeout": cfg.Network.TransferTimeout,
	} {
		d, err := time.ParseDuration(value)
		if err != nil {
			return nil, fmt.Errorf("%s: invalid duration %q: %w", name, value, err)
		}

		durations[name] = d
	}

	maxSize, err := ParseSize(cfg.Transfers.MaxFileSize)
	if err != nil {
		return nil, fmt.Errorf("max_file_size: %w", err)
	}

	cacheDir := cfg.Session.CacheDir
	if cacheDir == "" {
		cacheDir = DefaultCacheDir()
	}

	return &Resolved{
		Login:           cfg.Account.Login,
		Password:        cfg.Account.Password,
		CacheDir:        cacheDir,
		Store:           cfg.Session.Store,
		ConnectTimeout:  durations["connect_timeout"],
		RequestTimeout:  durations["request_timeout"],
		TransferTimeout: durations["transfer_timeout"],
		UserAgent:       cfg.Network.UserAgent,
		MaxAuthRetries:  cfg.Network.MaxAuthRetries,
		APIURL:          cfg.Endpoints.APIURL,
		AuthURL:         cfg.Endpoints.AuthURL,
		RootURL:         cfg.Endpoints.RootURL,
		Domain:          cfg.Endpoints.Domain,
		ParallelUploads: cfg.Transfers.ParallelUploads,
		VerifyHash:      cfg.Transfers.VerifyHash,
		MaxFileSize:     maxSize,
		LogLevel:        cfg.Logging.LogLevel,
		LogFormat:       cfg.Logging.LogFormat,
	}, nil
}
