package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"
)

// Validation range constants.
const (
	minParallelUploads = 1
	maxParallelUploads = 32
	maxAuthRetries     = 10
	minConnectTimeout  = 1 * time.Second
	minRequestTimeout  = 1 * time.Second
	minTransferTimeout = 10 * time.Second
)

// ErrNoAccount is returned by RequireAccount when no login is configured.
var ErrNoAccount = errors.New("no account configured: set [account] login, " + EnvLogin + ", or --login")

// Validate checks all configuration values and returns all errors found.
// It accumulates every error rather than stopping at the first, so users
// see a complete report and can fix all issues in one pass.
func Validate(cfg *Config) error {
	var errs []error

	errs = append(errs, validateSession(&cfg.Session)...)
	errs = append(errs, validateNetwork(&cfg.Network)...)
	errs = append(errs, validateEndpoints(&cfg.Endpoints)...)
	errs = append(errs, validateTransfers(&cfg.Transfers)...)
	errs = append(errs, validateLogging(&cfg.Logging)...)

	return errors.Join(errs...)
}

// RequireAccount checks that the resolved configuration can log in.
func (r *Resolved) RequireAccount() error {
	if r.Login == "" {
		return ErrNoAccount
	}

	if r.Password == "" {
		return fmt.Errorf("no password configured for %s: set [account] password or %s", r.Login, EnvPassword)
	}

	return nil
}

var validStores = map[string]bool{
	StoreFile:   true,
	StoreSQLite: true,
}

func validateSession(s *SessionConfig) []error {
	if !validStores[s.Store] {
		return []error{fmt.Errorf("store: must be one of file, sqlite; got %q", s.Store)}
	}

	return nil
}

func validateNetwork(n *NetworkConfig) []error {
	var errs []error

	errs = append(errs, validateDurationMin("connect_timeout", n.ConnectTimeout, minConnectTimeout)...)
	errs = append(errs, validateDurationMin("request_timeout", n.RequestTimeout, minRequestTimeout)...)
	errs = append(errs, validateDurationMin("transfer_timeout", n.TransferTimeout, minTransferTimeout)...)

	if n.MaxAuthRetries < 0 || n.MaxAuthRetries > maxAuthRetries {
		errs = append(errs, fmt.Errorf("max_auth_retries: must be between 0 and %d, got %d",
			maxAuthRetries, n.MaxAuthRetries))
	}

	return errs
}

func validateEndpoints(e *EndpointsConfig) []error {
	var errs []error

	for _, f := range []struct{ name, value string }{
		{"api_url", e.APIURL},
		{"auth_url", e.AuthURL},
		{"root_url", e.RootURL},
	} {
		if f.value == "" {
			continue
		}

		u, err := url.Parse(f.value)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, fmt.Errorf("%s: must be an absolute http(s) URL, got %q", f.name, f.value))
		}
	}

	return errs
}

func validateTransfers(t *TransfersConfig) []error {
	var errs []error

	if t.ParallelUploads < minParallelUploads || t.ParallelUploads > maxParallelUploads {
		errs = append(errs, fmt.Errorf("parallel_uploads: must be between %d and %d, got %d",
			minParallelUploads, maxParallelUploads, t.ParallelUploads))
	}

	if _, err := ParseSize(t.MaxFileSize); err != nil {
		errs = append(errs, fmt.Errorf("max_file_size: %w", err))
	}

	return errs
}

// validateDuration checks that a duration string is valid and meets a minimum.
func validateDuration(field, value string, minimum time.Duration) error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("%s: invalid duration %q: %w", field, value, err)
	}

	if d < minimum {
		return fmt.Errorf("%s: must be >= %s, got %s", field, minimum, d)
	}

	return nil
}

func validateDurationMin(field, value string, minimum time.Duration) []error {
	if err := validateDuration(field, value, minimum); err != nil {
		return []error{err}
	}

	return nil
}

func validateLogging(l *LoggingConfig) []error {
	var errs []error

	errs = append(errs, validateLogLevel(l.LogLevel)...)
	errs = append(errs, validateLogFormat(l.LogFormat)...)

	return errs
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

func validateLogLevel(level string) []error {
	if !validLogLevels[level] {
		return []error{fmt.Errorf("log_level: must be one of debug, info, warn, error; got %q", level)}
	}

	return nil
}

var validLogFormats = map[string]bool{
	"auto": true,
	"text": true,
	"json": true,
}

func validateLogFormat(format string) []error {
	if !validLogFormats[format] {
		return []error{fmt.Errorf("log_format: must be one of auto, text, json; got %q", format)}
	}

	return nil
}
