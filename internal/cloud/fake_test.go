package cloud

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/mailru-go/internal/credential"
	"github.com/tonimelisma/mailru-go/internal/session"
)

const (
	testLogin    = "user@mail.ru"
	testPassword = "s3cret-pass"
)

// fakeProvider imitates the service: a login form, a session root, the
// token endpoint, the dispatcher, the blob hosts and the v2 API. Tokens are
// only accepted once issued by the token endpoint.
type fakeProvider struct {
	srv *httptest.Server

	validToken atomic.Value // string

	authCalls       atomic.Int32
	csrfCalls       atomic.Int32
	dispatcherCalls atomic.Int32

	mu       sync.Mutex
	handlers map[string]http.HandlerFunc
	calls    map[string]int
	forms    map[string][]map[string]string
}

func newFakeProvider(t *testing.T) *fakeProvider {
	t.Helper()

	fp := &fakeProvider{
		handlers: make(map[string]http.HandlerFunc),
		calls:    make(map[string]int),
		forms:    make(map[string][]map[string]string),
	}
	fp.validToken.Store("")

	fp.srv = httptest.NewServer(http.HandlerFunc(fp.serve))
	t.Cleanup(fp.srv.Close)

	return fp
}

// handle registers a handler for "METHOD /path".
func (fp *fakeProvider) handle(route string, h http.HandlerFunc) {
	fp.mu.Lock()
	defer fp.mu.Unlock()

	fp.handlers[route] = h
}

// callCount returns how often route was hit.
func (fp *fakeProvider) callCount(route string) int {
	fp.mu.Lock()
	defer fp.mu.Unlock()

	return fp.calls[route]
}

// requests returns the parameters received on route, one map per call.
func (fp *fakeProvider) requests(route string) []map[string]string {
	fp.mu.Lock()
	defer fp.mu.Unlock()

	return append([]map[string]string(nil), fp.forms[route]...)
}

func (fp *fakeProvider) token() string {
	return fp.validToken.Load().(string)
}

func (fp *fakeProvider) serve(w http.ResponseWriter, r *http.Request) {
	route := r.Method + " " + r.URL.Path

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
		_ = r.ParseMultipartForm(1 << 20)
	} else {
		_ = r.ParseForm()
	}

	params := make(map[string]string)
	for k, v := range r.Form {
		params[k] = v[0]
	}

	fp.mu.Lock()
	fp.calls[route]++
	fp.forms[route] = append(fp.forms[route], params)
	h := fp.handlers[route]
	fp.mu.Unlock()

	if h != nil {
		h(w, r)
		return
	}

	switch route {
	case "POST /auth":
		fp.authCalls.Add(1)
		http.SetCookie(w, &http.Cookie{Name: "Mpop", Value: "session", Path: "/"})
		io.WriteString(w, "<html>ok</html>")
	case "GET /":
		io.WriteString(w, "<html>cloud</html>")
	case "GET /api/v2/tokens/csrf":
		n := fp.csrfCalls.Add(1)
		tok := fmt.Sprintf("fresh-%d", n)
		fp.validToken.Store(tok)
		writeEnvelope(w, 200, map[string]string{"token": tok})
	case "GET /api/v2/dispatcher":
		fp.dispatcherCalls.Add(1)
		writeEnvelope(w, 200, map[string]any{
			"upload": []map[string]string{{"url": fp.srv.URL + "/upload/"}},
			"get":    []map[string]string{{"url": fp.srv.URL + "/get/"}},
		})
	default:
		http.NotFound(w, r)
	}
}

// authorized reports whether the request carries the currently valid token.
func (fp *fakeProvider) authorized(r *http.Request) bool {
	tok := fp.token()
	return tok != "" && r.Form.Get("token") == tok
}

func writeEnvelope(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"email":  testLogin,
		"status": status,
		"body":   body,
	})
}

// logBuffer is a goroutine-safe sink for a debug-level text logger.
type logBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *logBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.buf.Write(p)
}

func (b *logBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.buf.String()
}

func (b *logBuffer) logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(b, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

type testEnv struct {
	fp     *fakeProvider
	store  *session.FileStore
	logs   *logBuffer
	opts   Options
	client *Client
}

// newTestEnv wires a client (not yet bootstrapped) to a fresh fake
// provider with an empty file store.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	fp := newFakeProvider(t)
	logs := &logBuffer{}
	store := session.NewFileStore(filepath.Join(t.TempDir(), session.KeyFileName), logs.logger())

	jar, err := session.OpenCookieJar(filepath.Join(t.TempDir(), session.CookieFileName))
	require.NoError(t, err)

	opts := Options{
		Login:          testLogin,
		Password:       testPassword,
		Store:          store,
		CookieJar:      jar,
		APIURL:         fp.srv.URL + "/api/v2",
		AuthURL:        fp.srv.URL + "/auth",
		RootURL:        fp.srv.URL + "/",
		RequestTimeout: 5 * time.Second,
		Logger:         logs.logger(),
	}

	c, err := New(opts)
	require.NoError(t, err)

	return &testEnv{fp: fp, store: store, logs: logs, opts: opts, client: c}
}

// seedKey stores a cached credential the fake provider has not issued.
func (e *testEnv) seedKey(t *testing.T, token string, ttl time.Duration) *credential.Key {
	t.Helper()

	key, err := credential.New(token)
	require.NoError(t, err)
	require.NoError(t, key.SetDeadline(time.Now().Add(ttl)))
	key.Login = testLogin
	key = key.WithEndpoints(e.fp.srv.URL+"/upload/", e.fp.srv.URL+"/get/")

	require.NoError(t, e.store.Save(context.Background(), key))

	return key
}

// bootstrapped seeds a cached key and bootstraps the client with it.
func (e *testEnv) bootstrapped(t *testing.T) *Client {
	t.Helper()

	e.seedKey(t, "cached", time.Hour)
	require.NoError(t, e.client.Bootstrap(context.Background()))

	return e.client
}

func writeFile(path, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}

	return os.WriteFile(path, []byte(content), 0o600)
}
