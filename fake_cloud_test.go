package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/mailru-go/pkg/mrhash"
)

const (
	cliLogin    = "user@mail.ru"
	cliPassword = "hunter2"
	cliToken    = "cli-token"
)

// fakeCloud is an in-memory cloud: a flat map of file contents plus a set
// of folders, served through the same routes as the real service.
type fakeCloud struct {
	srv *httptest.Server

	mu      sync.Mutex
	files   map[string][]byte
	folders map[string]bool
	blobs   map[string][]byte
	logins  int
	uploads int
}

func newFakeCloud(t *testing.T) *fakeCloud {
	t.Helper()

	fc := &fakeCloud{
		files:   make(map[string][]byte),
		folders: map[string]bool{"/": true},
		blobs:   make(map[string][]byte),
	}

	fc.srv = httptest.NewServer(http.HandlerFunc(fc.serve))
	t.Cleanup(fc.srv.Close)

	return fc
}

// put seeds a remote file.
func (fc *fakeCloud) put(remote string, content []byte) {
	fc.mu.Lock()
	defer fc.mu.Unlock()

	fc.files[remote] = content
}

// file returns the content stored at remote.
func (fc *fakeCloud) file(remote string) ([]byte, bool) {
	fc.mu.Lock()
	defer fc.mu.Unlock()

	data, ok := fc.files[remote]

	return data, ok
}

func (fc *fakeCloud) hasFolder(remote string) bool {
	fc.mu.Lock()
	defer fc.mu.Unlock()

	return fc.folders[remote]
}

func (fc *fakeCloud) loginCount() int {
	fc.mu.Lock()
	defer fc.mu.Unlock()

	return fc.logins
}

func (fc *fakeCloud) serve(w http.ResponseWriter, r *http.Request) {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
		_ = r.ParseMultipartForm(1 << 20)
	} else {
		_ = r.ParseForm()
	}

	fc.mu.Lock()
	defer fc.mu.Unlock()

	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/auth":
		fc.logins++
		io.WriteString(w, "<html>ok</html>")
		return
	case r.URL.Path == "/":
		io.WriteString(w, "<html>cloud</html>")
		return
	case r.URL.Path == "/api/v2/tokens/csrf":
		reply(w, 200, map[string]string{"token": cliToken})
		return
	case r.URL.Path == "/upload/":
		fc.receiveBlob(w, r)
		return
	case strings.HasPrefix(r.URL.Path, "/get/"):
		data, ok := fc.files[strings.TrimPrefix(r.URL.Path, "/get")]
		if !ok {
			http.NotFound(w, r)
			return
		}

		w.Write(data)

		return
	}

	if r.Form.Get("token") != cliToken {
		reply(w, 403, "token required")
		return
	}

	home := r.Form.Get("home")

	switch r.URL.Path {
	case "/api/v2/dispatcher":
		reply(w, 200, map[string]any{
			"upload": []map[string]string{{"url": fc.srv.URL + "/upload/"}},
			"get":    []map[string]string{{"url": fc.srv.URL + "/get/"}},
		})
	case "/api/v2/folder":
		reply(w, 200, map[string]any{"list": fc.children(home)})
	case "/api/v2/file":
		fc.stat(w, home)
	case "/api/v2/folder/add":
		fc.folders[home] = true
		reply(w, 200, home)
	case "/api/v2/file/add":
		blob, ok := fc.blobs[r.Form.Get("hash")]
		if !ok {
			reply(w, 400, "unknown hash")
			return
		}

		target := fc.freeName(home)
		fc.files[target] = blob
		reply(w, 200, target)
	case "/api/v2/file/copy", "/api/v2/file/move":
		data, ok := fc.files[home]
		if !ok {
			reply(w, 404, "not_exists")
			return
		}

		target := fc.freeName(path.Join(r.Form.Get("folder"), path.Base(home)))
		fc.files[target] = data

		if strings.HasSuffix(r.URL.Path, "move") {
			delete(fc.files, home)
		}

		reply(w, 200, target)
	case "/api/v2/file/rename":
		data, ok := fc.files[home]
		if !ok {
			reply(w, 404, "not_exists")
			return
		}

		target := path.Join(path.Dir(home), r.Form.Get("name"))
		delete(fc.files, home)
		fc.files[target] = data
		reply(w, 200, target)
	case "/api/v2/file/remove":
		delete(fc.files, home)
		delete(fc.folders, home)
		reply(w, 200, home)
	default:
		http.NotFound(w, r)
	}
}

func (fc *fakeCloud) receiveBlob(w http.ResponseWriter, r *http.Request) {
	f, _, err := r.FormFile("file")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	defer f.Close()

	data, _ := io.ReadAll(f)
	hash, _ := mrhash.FromReader(bytes.NewReader(data))

	fc.blobs[hash] = data
	fc.uploads++

	io.WriteString(w, hash+";"+strconv.Itoa(len(data)))
}

// freeName returns p, or p with a numeric suffix if p is taken.
func (fc *fakeCloud) freeName(p string) string {
	if _, taken := fc.files[p]; !taken {
		return p
	}

	ext := path.Ext(p)
	stem := strings.TrimSuffix(p, ext)

	for i := 1; ; i++ {
		candidate := stem + " (" + strconv.Itoa(i) + ")" + ext
		if _, taken := fc.files[candidate]; !taken {
			return candidate
		}
	}
}

func (fc *fakeCloud) children(folder string) []map[string]any {
	var list []map[string]any

	for p := range fc.folders {
		if p != "/" && path.Dir(p) == folder {
			list = append(list, map[string]any{"type": "folder", "home": p, "name": path.Base(p)})
		}
	}

	for p, data := range fc.files {
		if path.Dir(p) == folder {
			list = append(list, fileItem(p, data))
		}
	}

	sort.Slice(list, func(i, j int) bool {
		return list[i]["name"].(string) < list[j]["name"].(string)
	})

	return list
}

func (fc *fakeCloud) stat(w http.ResponseWriter, home string) {
	if data, ok := fc.files[home]; ok {
		reply(w, 200, fileItem(home, data))
		return
	}

	if fc.folders[home] {
		reply(w, 200, map[string]any{"kind": "folder", "home": home, "name": path.Base(home)})
		return
	}

	reply(w, 404, "not_exists")
}

func fileItem(p string, data []byte) map[string]any {
	hash, _ := mrhash.FromReader(bytes.NewReader(data))

	return map[string]any{
		"type":  "file",
		"home":  p,
		"name":  path.Base(p),
		"size":  len(data),
		"hash":  hash,
		"mtime": 1700000000,
	}
}

func reply(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"email":  cliLogin,
		"status": status,
		"body":   body,
	})
}

// cliEnv points the CLI at a fake cloud through a config file.
type cliEnv struct {
	cloud    *fakeCloud
	config   string
	cacheDir string
	workDir  string
}

func newCLIEnv(t *testing.T, extraConfig string) *cliEnv {
	t.Helper()

	fc := newFakeCloud(t)
	root := t.TempDir()

	env := &cliEnv{
		cloud:    fc,
		config:   filepath.Join(root, "config.toml"),
		cacheDir: filepath.Join(root, "cache"),
		workDir:  filepath.Join(root, "work"),
	}

	cfg := `[account]
login = "` + cliLogin + `"

[session]
cache_dir = "` + env.cacheDir + `"

[endpoints]
api_url = "` + fc.srv.URL + `/api/v2"
auth_url = "` + fc.srv.URL + `/auth"
root_url = "` + fc.srv.URL + `"

[logging]
log_level = "error"
` + extraConfig

	require.NoError(t, os.WriteFile(env.config, []byte(cfg), 0o600))
	require.NoError(t, os.MkdirAll(env.workDir, 0o755))

	t.Setenv("MAILRU_GO_PASSWORD", cliPassword)
	t.Setenv("MAILRU_GO_CONFIG", "")
	t.Setenv("MAILRU_GO_LOGIN", "")
	t.Setenv("MAILRU_GO_CACHE_DIR", "")

	return env
}

// run executes the CLI and returns what it wrote to stdout.
func (e *cliEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()

	cmd := newRootCmd()

	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(append([]string{"--config", e.config, "--quiet"}, args...))

	err := cmd.Execute()

	return out.String(), err
}

func (e *cliEnv) local(t *testing.T, name, content string) string {
	t.Helper()

	p := filepath.Join(e.workDir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))

	return p
}
