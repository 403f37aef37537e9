// Package testutil provides shared test environment helpers for E2E tests.
// It depends only on stdlib so that E2E tests (which cannot import
// internal/) can use it.
package testutil

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Environment variables read by the live tests.
const (
	EnvAllowedAccounts = "MAILRU_GO_ALLOWED_TEST_ACCOUNTS"
	EnvLogin           = "MAILRU_GO_LOGIN"
	EnvPassword        = "MAILRU_GO_PASSWORD"
)

// LoadDotEnv reads KEY=VALUE pairs from a .env file at the given path.
// Missing file is not an error (CI sets env vars directly).
// Existing env vars take precedence over .env values.
func LoadDotEnv(envPath string) {
	f, err := os.Open(envPath)
	if err != nil {
		return
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}

		key = strings.TrimSpace(key)
		value = strings.Trim(strings.TrimSpace(value), "\"'")

		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}
}

// ValidateAllowlist crashes the process unless the test login is listed in
// MAILRU_GO_ALLOWED_TEST_ACCOUNTS and a password is available. Live tests
// create and delete files, so they must never run against a personal
// account by accident.
func ValidateAllowlist() string {
	login := os.Getenv(EnvLogin)
	if login == "" {
		fatalf("%s not set", EnvLogin)
	}

	if os.Getenv(EnvPassword) == "" {
		fatalf("%s not set", EnvPassword)
	}

	allowlist := os.Getenv(EnvAllowedAccounts)
	if allowlist == "" {
		fatalf("%s not set (example: %s=test@mail.ru)", EnvAllowedAccounts, EnvAllowedAccounts)
	}

	for _, a := range strings.Split(allowlist, ",") {
		if strings.TrimSpace(a) == login {
			return login
		}
	}

	fatalf("%s=%q is not in %s=%q", EnvLogin, login, EnvAllowedAccounts, allowlist)

	return ""
}

// FindModuleRoot walks up from the current directory to find go.mod.
// Returns the fallback if the root is not found.
func FindModuleRoot(fallback string) string {
	dir, err := os.Getwd()
	if err != nil {
		return fallback
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return fallback
		}

		dir = parent
	}
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "FATAL: "+format+"\n", args...)
	os.Exit(1)
}
