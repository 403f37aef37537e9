//go:build e2e

// Package e2e runs the built binary against a live Mail.ru Cloud account.
// It needs MAILRU_GO_LOGIN, MAILRU_GO_PASSWORD and an allowlist in
// MAILRU_GO_ALLOWED_TEST_ACCOUNTS, from the environment or a .env file at
// the module root.
package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/mailru-go/testutil"
)

var (
	binaryPath string
	cacheDir   string
)

func TestMain(m *testing.M) {
	root := testutil.FindModuleRoot("..")
	testutil.LoadDotEnv(filepath.Join(root, ".env"))
	testutil.ValidateAllowlist()

	tmpDir, err := os.MkdirTemp("", "mailru-e2e-*")
	if err != nil {
		fmt.Fprintf(os.Stderr, "creating temp dir: %v\n", err)
		os.Exit(1)
	}

	binaryPath = filepath.Join(tmpDir, "mailru-go")
	cacheDir = filepath.Join(tmpDir, "cache")

	cmd := exec.Command("go", "build", "-o", binaryPath, ".")
	cmd.Dir = root
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "building binary: %v\n", err)
		os.RemoveAll(tmpDir)
		os.Exit(1)
	}

	code := m.Run()

	os.RemoveAll(tmpDir)
	os.Exit(code)
}

// command builds an invocation isolated from the user's config and cache.
func command(args ...string) *exec.Cmd {
	fullArgs := append([]string{"--config", filepath.Join(cacheDir, "none.toml"), "--cache-dir", cacheDir}, args...)

	return exec.Command(binaryPath, fullArgs...)
}

func runCLI(t *testing.T, args ...string) (string, string) {
	t.Helper()

	cmd := command(args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		t.Fatalf("CLI command %v failed: %v\nstdout: %s\nstderr: %s", args, err, stdout.String(), stderr.String())
	}

	return stdout.String(), stderr.String()
}

func writeTemp(t *testing.T, name string, content []byte) string {
	t.Helper()

	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, content, 0o644))

	return p
}

func TestE2E_RoundTrip(t *testing.T) {
	testFolder := fmt.Sprintf("/mailru-go-e2e-%d", time.Now().UnixNano())
	archive := testFolder + "/archive"
	testContent := []byte("Hello from the mailru-go E2E test, long enough to be hashed.\n")

	t.Cleanup(func() {
		_ = command("rm", testFolder).Run()
	})

	t.Run("login", func(t *testing.T) {
		stdout, _ := runCLI(t, "--json", "login")

		var out map[string]any
		require.NoError(t, json.Unmarshal([]byte(stdout), &out))
		assert.Equal(t, os.Getenv(testutil.EnvLogin), out["login"])
		assert.NotEmpty(t, out["upload"])
		assert.NotEmpty(t, out["download"])
	})

	t.Run("mkdir", func(t *testing.T) {
		runCLI(t, "mkdir", testFolder)
		_, stderr := runCLI(t, "mkdir", archive)
		assert.Contains(t, stderr, "Created")
	})

	t.Run("put", func(t *testing.T) {
		local := writeTemp(t, "test.txt", testContent)

		_, stderr := runCLI(t, "put", local, "--to", testFolder)
		assert.Contains(t, stderr, "Uploaded")
	})

	t.Run("ls", func(t *testing.T) {
		stdout, _ := runCLI(t, "ls", testFolder)
		assert.Contains(t, stdout, "test.txt")
		assert.Contains(t, stdout, "archive/")
	})

	t.Run("stat", func(t *testing.T) {
		stdout, _ := runCLI(t, "stat", testFolder+"/test.txt")
		assert.Contains(t, stdout, fmt.Sprintf("%d bytes", len(testContent)))
	})

	t.Run("get", func(t *testing.T) {
		localPath := filepath.Join(t.TempDir(), "downloaded.txt")

		_, stderr := runCLI(t, "get", testFolder+"/test.txt", localPath)
		assert.Contains(t, stderr, "Downloaded")

		downloaded, err := os.ReadFile(localPath)
		require.NoError(t, err)
		assert.Equal(t, testContent, downloaded)
	})

	t.Run("cp_mv_rename", func(t *testing.T) {
		stdout, _ := runCLI(t, "cp", testFolder+"/test.txt", archive)
		assert.Equal(t, archive+"/test.txt", strings.TrimSpace(stdout))

		stdout, _ = runCLI(t, "rename", testFolder+"/test.txt", "renamed.txt")
		assert.Equal(t, testFolder+"/renamed.txt", strings.TrimSpace(stdout))

		// The archive already holds test.txt; a second entry with a
		// different name moves in unchanged.
		stdout, _ = runCLI(t, "mv", testFolder+"/renamed.txt", archive)
		assert.Equal(t, archive+"/renamed.txt", strings.TrimSpace(stdout))
	})

	t.Run("rm", func(t *testing.T) {
		_, stderr := runCLI(t, "rm", archive+"/renamed.txt")
		assert.Contains(t, stderr, "Removed")
	})

	t.Run("whoami", func(t *testing.T) {
		stdout, _ := runCLI(t, "whoami")
		assert.Contains(t, stdout, os.Getenv(testutil.EnvLogin))
	})
}

func TestE2E_EdgeCases(t *testing.T) {
	testFolder := fmt.Sprintf("/mailru-go-e2e-edge-%d", time.Now().UnixNano())

	t.Cleanup(func() {
		_ = command("rm", testFolder).Run()
	})

	runCLI(t, "mkdir", testFolder)

	t.Run("unicode and spaces", func(t *testing.T) {
		name := "отчёт за год.txt"
		local := writeTemp(t, name, []byte("unicode content"))

		runCLI(t, "put", local, "--to", testFolder)

		stdout, _ := runCLI(t, "ls", testFolder)
		assert.Contains(t, stdout, name)

		localPath := filepath.Join(t.TempDir(), "out.txt")
		runCLI(t, "get", testFolder+"/"+name, localPath)

		data, err := os.ReadFile(localPath)
		require.NoError(t, err)
		assert.Equal(t, "unicode content", string(data))
	})

	t.Run("parallel put", func(t *testing.T) {
		const fileCount = 4

		args := []string{"put", "--to", testFolder}

		for i := range fileCount {
			args = append(args, writeTemp(t, fmt.Sprintf("parallel-%d.txt", i),
				[]byte(fmt.Sprintf("parallel file %d with enough content to be hashed\n", i))))
		}

		runCLI(t, args...)

		stdout, _ := runCLI(t, "--json", "ls", testFolder)

		var listed []map[string]any
		require.NoError(t, json.Unmarshal([]byte(stdout), &listed))

		names := make([]string, 0, len(listed))
		for _, e := range listed {
			names = append(names, e["name"].(string))
		}

		for i := range fileCount {
			assert.Contains(t, names, fmt.Sprintf("parallel-%d.txt", i))
		}
	})
}
