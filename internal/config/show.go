package config

import (
	"fmt"
	"io"
)

// RenderEffective writes the resolved configuration as an annotated TOML-like
// summary to w. The password is never printed.
func RenderEffective(r *Resolved, w io.Writer) error {
	ew := &errWriter{w: w}

	ew.printf("# Effective configuration (file: %s)\n\n", orUnset(r.ConfigPath))

	password := "(unset)"
	if r.Password != "" {
		password = "(set)"
	}

	ew.printf("[account]\n")
	ew.printf("  login    = %q\n", r.Login)
	ew.printf("  password = %s\n\n", password)

	ew.printf("[session]\n")
	ew.printf("  cache_dir = %q\n", r.CacheDir)
	ew.printf("  store     = %q\n\n", r.Store)

	ew.printf("[network]\n")
	ew.printf("  connect_timeout  = %q\n", r.ConnectTimeout.String())
	ew.printf("  request_timeout  = %q\n", r.RequestTimeout.String())
	ew.printf("  transfer_timeout = %q\n", r.TransferTimeout.String())
	ew.printf("  max_auth_retries = %d\n", r.MaxAuthRetries)

	if r.UserAgent != "" {
		ew.printf("  user_agent       = %q\n", r.UserAgent)
	}

	ew.printf("\n[endpoints]\n")
	ew.printf("  api_url  = %s\n", orDefault(r.APIURL))
	ew.printf("  auth_url = %s\n", orDefault(r.AuthURL))
	ew.printf("  root_url = %s\n", orDefault(r.RootURL))
	ew.printf("  domain   = %s\n\n", orDefault(r.Domain))

	ew.printf("[transfers]\n")
	ew.printf("  parallel_uploads = %d\n", r.ParallelUploads)
	ew.printf("  verify_hash      = %t\n", r.VerifyHash)
	ew.printf("  max_file_size    = %d\n\n", r.MaxFileSize)

	ew.printf("[logging]\n")
	ew.printf("  log_level  = %q\n", r.LogLevel)
	ew.printf("  log_format = %q\n", r.LogFormat)

	return ew.err
}

func orUnset(s string) string {
	if s == "" {
		return "none"
	}

	return s
}

func orDefault(s string) string {
	if s == "" {
		return "(service default)"
	}

	return fmt.Sprintf("%q", s)
}

// errWriter wraps an io.Writer and captures the first write error.
// Subsequent writes after an error are no-ops, so callers can chain
// printf calls without checking each one individually.
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...any) {
	if ew.err != nil {
		return
	}

	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}
