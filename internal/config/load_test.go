package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger(t *testing.T) *slog.Logger {
	t.Helper()

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func writeTestConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, StoreFile, cfg.Session.Store)
	assert.Empty(t, cfg.Session.CacheDir)
	assert.Equal(t, "10s", cfg.Network.ConnectTimeout)
	assert.Equal(t, "10s", cfg.Network.RequestTimeout)
	assert.Equal(t, 1, cfg.Network.MaxAuthRetries)
	assert.Equal(t, 4, cfg.Transfers.ParallelUploads)
	assert.True(t, cfg.Transfers.VerifyHash)
	assert.Equal(t, "info", cfg.Logging.LogLevel)
	assert.Equal(t, "auto", cfg.Logging.LogFormat)

	require.NoError(t, Validate(cfg))
}

func TestLoad_ValidFullConfig(t *testing.T) {
	path := writeTestConfig(t, `
[account]
login = "user@mail.ru"
password = "hunter2"

[session]
cache_dir = "/var/cache/mailru"
store = "sqlite"

[network]
connect_timeout = "5s"
request_timeout = "20s"
transfer_timeout = "1h"
user_agent = "mailru-go/test"
max_auth_retries = 2

[endpoints]
api_url = "https://cloud.example/api/v2"
domain = "example.ru"

[transfers]
parallel_uploads = 8
verify_hash = false
max_file_size = "2GB"

[logging]
log_level = "debug"
log_format = "json"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "user@mail.ru", cfg.Account.Login)
	assert.Equal(t, "hunter2", cfg.Account.Password)
	assert.Equal(t, StoreSQLite, cfg.Session.Store)
	assert.Equal(t, 2, cfg.Network.MaxAuthRetries)
	assert.Equal(t, "https://cloud.example/api/v2", cfg.Endpoints.APIURL)
	assert.Empty(t, cfg.Endpoints.AuthURL)
	assert.Equal(t, 8, cfg.Transfers.ParallelUploads)
	assert.False(t, cfg.Transfers.VerifyHash)
	assert.Equal(t, "json", cfg.Logging.LogFormat)
}

func TestLoad_PartialKeepsDefaults(t *testing.T) {
	path := writeTestConfig(t, "[account]\nlogin = \"a@mail.ru\"\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "a@mail.ru", cfg.Account.Login)
	assert.Equal(t, DefaultConfig().Network, cfg.Network)
	assert.Equal(t, DefaultConfig().Transfers, cfg.Transfers)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{name: "syntax", content: "[account\n", want: "parsing config file"},
		{name: "bad store", content: "[session]\nstore = \"redis\"\n", want: "store: must be one of"},
		{name: "bad duration", content: "[network]\nrequest_timeout = \"soon\"\n", want: "request_timeout: invalid duration"},
		{name: "too short", content: "[network]\nconnect_timeout = \"10ms\"\n", want: "connect_timeout: must be >="},
		{name: "retries", content: "[network]\nmax_auth_retries = 50\n", want: "max_auth_retries"},
		{name: "url", content: "[endpoints]\napi_url = \"cloud.mail.ru\"\n", want: "api_url: must be an absolute"},
		{name: "uploads", content: "[transfers]\nparallel_uploads = 0\n", want: "parallel_uploads"},
		{name: "size", content: "[transfers]\nmax_file_size = \"lots\"\n", want: "max_file_size"},
		{name: "log level", content: "[logging]\nlog_level = \"trace\"\n", want: "log_level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeTestConfig(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad_ReportsAllErrors(t *testing.T) {
	path := writeTestConfig(t, "[logging]\nlog_level = \"x\"\nlog_format = \"y\"\n")

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "log_level")
	assert.Contains(t, err.Error(), "log_format")
}

func TestLoadOrDefault_MissingFile(t *testing.T) {
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "absent.toml"), testLogger(t))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestResolve_Layering(t *testing.T) {
	path := writeTestConfig(t, `
[account]
login = "file@mail.ru"
password = "from-file"

[session]
cache_dir = "/from/file"
`)

	t.Run("file only", func(t *testing.T) {
		r, err := Resolve(EnvOverrides{}, CLIOverrides{ConfigPath: path}, testLogger(t))
		require.NoError(t, err)
		assert.Equal(t, path, r.ConfigPath)
		assert.Equal(t, "file@mail.ru", r.Login)
		assert.Equal(t, "from-file", r.Password)
		assert.Equal(t, "/from/file", r.CacheDir)
		assert.Equal(t, 10*time.Second, r.RequestTimeout)
		assert.Equal(t, 30*time.Minute, r.TransferTimeout)
	})

	t.Run("env beats file", func(t *testing.T) {
		env := EnvOverrides{ConfigPath: path, Login: "env@mail.ru", Password: "from-env", CacheDir: "/from/env"}

		r, err := Resolve(env, CLIOverrides{}, testLogger(t))
		require.NoError(t, err)
		assert.Equal(t, "env@mail.ru", r.Login)
		assert.Equal(t, "from-env", r.Password)
		assert.Equal(t, "/from/env", r.CacheDir)
	})

	t.Run("cli beats env", func(t *testing.T) {
		env := EnvOverrides{ConfigPath: "/nonexistent.toml", Login: "env@mail.ru", CacheDir: "/from/env"}
		cli := CLIOverrides{ConfigPath: path, Login: "cli@mail.ru", CacheDir: "/from/cli"}

		r, err := Resolve(env, cli, testLogger(t))
		require.NoError(t, err)
		assert.Equal(t, path, r.ConfigPath)
		assert.Equal(t, "cli@mail.ru", r.Login)
		assert.Equal(t, "/from/cli", r.CacheDir)
	})
}

func TestResolve_DefaultCacheDirIsTemp(t *testing.T) {
	r, err := Resolve(EnvOverrides{}, CLIOverrides{ConfigPath: filepath.Join(t.TempDir(), "none.toml")}, nil)
	require.NoError(t, err)

	assert.Equal(t, os.TempDir(), r.CacheDir)
	assert.Equal(t, StoreFile, r.Store)
	assert.Equal(t, int64(0), r.MaxFileSize)
}

func TestResolved_RequireAccount(t *testing.T) {
	require.ErrorIs(t, (&Resolved{}).RequireAccount(), ErrNoAccount)
	require.Error(t, (&Resolved{Login: "a@mail.ru"}).RequireAccount())
	require.NoError(t, (&Resolved{Login: "a@mail.ru", Password: "p"}).RequireAccount())
}

func TestReadEnvOverrides(t *testing.T) {
	t.Setenv(EnvConfig, "/custom/config.toml")
	t.Setenv(EnvLogin, "env@mail.ru")
	t.Setenv(EnvPassword, "pw")
	t.Setenv(EnvCacheDir, "")

	env := ReadEnvOverrides()
	assert.Equal(t, "/custom/config.toml", env.ConfigPath)
	assert.Equal(t, "env@mail.ru", env.Login)
	assert.Equal(t, "pw", env.Password)
	assert.Empty(t, env.CacheDir)
}

func TestRenderEffective_HidesPassword(t *testing.T) {
	r, err := Resolve(EnvOverrides{Login: "a@mail.ru", Password: "topsecret"},
		CLIOverrides{ConfigPath: filepath.Join(t.TempDir(), "none.toml")}, testLogger(t))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, RenderEffective(r, &buf))

	out := buf.String()
	assert.Contains(t, out, `login    = "a@mail.ru"`)
	assert.Contains(t, out, "password = (set)")
	assert.Contains(t, out, "(service default)")
	assert.NotContains(t, out, "topsecret")
}
