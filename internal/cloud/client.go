package cloud

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/tonimelisma/mailru-go/internal/credential"
	"github.com/tonimelisma/mailru-go/internal/session"
)

// Service defaults.
const (
	DefaultAPIURL  = "https://cloud.mail.ru/api/v2"
	DefaultAuthURL = "https://auth.mail.ru/cgi-bin/auth"
	DefaultRootURL = "https://cloud.mail.ru"
	DefaultDomain  = "mail.ru"

	DefaultConnectTimeout  = 10 * time.Second
	DefaultRequestTimeout  = 10 * time.Second
	DefaultTransferTimeout = 30 * time.Minute
	DefaultMaxAuthRetries  = 1

	DefaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 " +
		"(KHTML, like Gecko) Chrome/77.0.3865.120 Safari/537.36"
)

const (
	apiVersion = "v2"

	// statusOK is the success value of the envelope's status field.
	statusOK = 200

	// sessionTTL is how long a freshly issued token is trusted.
	sessionTTL = 600 * time.Second

	redacted = "[REDACTED]"
)

// Params are request parameters: the query string for GET, the form body
// for POST.
type Params map[string]string

// secretParams are never written to logs.
var secretParams = map[string]bool{"token": true, "Password": true}

// CookieSaver is implemented by cookie jars that persist to disk. The
// client saves the jar after each login handshake.
type CookieSaver interface {
	Save() error
}

// Options configures a Client. Login, Password and Store are required.
type Options struct {
	Login    string
	Password string
	Store    session.Store

	// CookieJar holds the provider's session cookies. If it also
	// implements CookieSaver it is persisted after every handshake.
	CookieJar http.CookieJar

	APIURL  string
	AuthURL string
	RootURL string
	Domain  string

	ConnectTimeout  time.Duration
	RequestTimeout  time.Duration
	TransferTimeout time.Duration
	UserAgent       string

	// MaxAuthRetries bounds how many times one call re-authenticates and
	// retries after a non-success status. Zero means DefaultMaxAuthRetries;
	// negative disables retrying.
	MaxAuthRetries int

	// VerifyUploads compares the blob hash returned by the upload endpoint
	// with the locally computed content hash.
	VerifyUploads bool

	// MaxUploadSize rejects larger local files before any request is sent.
	// Zero means no limit.
	MaxUploadSize int64

	Logger *slog.Logger
}

// Client talks to the Mail.ru Cloud API on behalf of one account.
// Methods are safe for concurrent use; re-authentications triggered by
// concurrent calls collapse into one handshake.
type Client struct {
	login    string
	password string
	store    session.Store
	jar      http.CookieJar

	apiURL  string
	authURL string
	rootURL string
	domain  string

	api      *resty.Client // API calls, short timeout
	transfer *resty.Client // blob upload and download, long timeout

	maxAuthRetries int
	verifyUploads  bool
	maxUploadSize  int64
	logger         *slog.Logger

	mu  sync.Mutex
	key *credential.Key

	authGroup singleflight.Group

	// now is the clock used for token deadlines. Tests override it.
	now func() time.Time
}

// New creates a Client without touching the network. Call Bootstrap (or
// use Open) before issuing requests.
func New(opts Options) (*Client, error) {
	if opts.Login == "" {
		return nil, fmt.Errorf("cloud: login is required")
	}

	if opts.Store == nil {
		return nil, fmt.Errorf("cloud: session store is required")
	}

	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	connectTimeout := orDefault(opts.ConnectTimeout, DefaultConnectTimeout)

	// One transport for both clients so connections and the dial timeout
	// are shared.
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         (&net.Dialer{Timeout: connectTimeout}).DialContext,
		TLSHandshakeTimeout: connectTimeout,
		ForceAttemptHTTP2:   true,
	}

	userAgent := opts.UserAgent
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}

	newResty := func(timeout time.Duration) *resty.Client {
		rc := resty.New().
			SetTransport(transport).
			SetTimeout(timeout).
			SetHeader("Accept", "*/*").
			SetHeader("User-Agent", userAgent)

		if opts.CookieJar != nil {
			rc.SetCookieJar(opts.CookieJar)
		}

		return rc
	}

	maxRetries := opts.MaxAuthRetries
	switch {
	case maxRetries == 0:
		maxRetries = DefaultMaxAuthRetries
	case maxRetries < 0:
		maxRetries = 0
	}

	return &Client{
		login:          opts.Login,
		password:       opts.Password,
		store:          opts.Store,
		jar:            opts.CookieJar,
		apiURL:         orDefault(opts.APIURL, DefaultAPIURL),
		authURL:        orDefault(opts.AuthURL, DefaultAuthURL),
		rootURL:        orDefault(opts.RootURL, DefaultRootURL),
		domain:         orDefault(opts.Domain, DefaultDomain),
		api:            newResty(orDefault(opts.RequestTimeout, DefaultRequestTimeout)),
		transfer:       newResty(orDefault(opts.TransferTimeout, DefaultTransferTimeout)),
		maxAuthRetries: maxRetries,
		verifyUploads:  opts.VerifyUploads,
		maxUploadSize:  opts.MaxUploadSize,
		logger:         opts.Logger,
		now:            time.Now,
	}, nil
}

// Open creates a Client and bootstraps its session.
func Open(ctx context.Context, opts Options) (*Client, error) {
	c, err := New(opts)
	if err != nil {
		return nil, err
	}

	if err := c.Bootstrap(ctx); err != nil {
		return nil, err
	}

	return c, nil
}

func orDefault[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}

	return v
}

// Key returns a copy of the current credential, or nil before Bootstrap.
func (c *Client) Key() *credential.Key {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.key == nil {
		return nil
	}

	return c.key.Clone()
}

func (c *Client) currentKey() *credential.Key {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.key
}

func (c *Client) setKey(key *credential.Key) {
	c.mu.Lock()
	c.key = key
	c.mu.Unlock()
}

// Response is one classified API answer. A JSON envelope fills Status,
// Email and Body; anything else leaves JSON false and only Raw set.
type Response struct {
	HTTPStatus int
	JSON       bool
	Status     int
	Email      string
	Body       json.RawMessage
	Raw        []byte
}

// Decode unmarshals the envelope body into v.
func (r *Response) Decode(v any) error {
	if !r.JSON || len(r.Body) == 0 {
		return fmt.Errorf("%w: no JSON body", ErrUnexpectedResponse)
	}

	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("%w: decoding body: %w", ErrUnexpectedResponse, err)
	}

	return nil
}

// multipartFile is a file part for the blob upload. src is rewound before
// every attempt so a retried upload resends the whole content.
type multipartFile struct {
	field string
	name  string
	src   io.ReadSeeker
}

// request is everything needed to (re)issue one call.
type request struct {
	method   string
	url      string
	params   Params
	defaults bool // merge authenticated default params
	noReauth bool // never re-authenticate (used inside the handshake)
	transfer bool // use the long-timeout client
	file     *multipartFile
}

// Query executes one API call. With applyDefaults the authenticated
// default parameters are merged under params (caller values win). A JSON
// answer whose status is not 200 is treated as an authentication failure:
// the client logs in again and re-issues the call, at most MaxAuthRetries
// times, then fails with an *APIError. Non-JSON answers are returned raw.
func (c *Client) Query(ctx context.Context, method, url string, params Params, applyDefaults bool) (*Response, error) {
	return c.do(ctx, request{method: method, url: url, params: params, defaults: applyDefaults})
}

func (c *Client) do(ctx context.Context, req request) (*Response, error) {
	for attempt := 0; ; attempt++ {
		key := c.currentKey()

		if req.defaults && !req.noReauth && !key.Valid() {
			c.logger.Info("token missing or expired, re-authenticating",
				slog.String("url", req.url),
			)

			if err := c.reauthenticate(ctx, key); err != nil {
				return nil, err
			}

			key = c.currentKey()
		}

		params := req.params
		if req.defaults {
			params = c.withDefaults(key, req.params)
		}

		resp, err := c.send(ctx, req, params)
		if err != nil {
			return nil, err
		}

		if !resp.JSON || resp.Status == statusOK {
			return resp, nil
		}

		if req.noReauth || attempt >= c.maxAuthRetries {
			apiErr := &APIError{
				Method:     req.method,
				URL:        req.url,
				HTTPStatus: resp.HTTPStatus,
				Status:     resp.Status,
				Body:       truncateBody(resp.Raw),
				Attempts:   attempt + 1,
			}

			if attempt > 0 {
				c.logger.Error("request failed after re-authentication",
					slog.String("method", req.method),
					slog.String("url", req.url),
					slog.Int("status", resp.Status),
					slog.Int("attempts", attempt+1),
				)
			}

			return nil, apiErr
		}

		c.logger.Warn("api call failed, re-authenticating and retrying",
			slog.String("method", req.method),
			slog.String("url", req.url),
			slog.Int("status", resp.Status),
			slog.Int("http_status", resp.HTTPStatus),
			slog.Int("attempt", attempt+1),
		)

		if err := c.reauthenticate(ctx, key); err != nil {
			return nil, fmt.Errorf("cloud: re-authenticating after failed %s %s: %w", req.method, req.url, err)
		}
	}
}

// withDefaults merges the authenticated defaults under params. The home
// default is null in the protocol, which means it is simply not sent
// unless the caller provides one.
func (c *Client) withDefaults(key *credential.Key, params Params) Params {
	merged := Params{
		"api":     apiVersion,
		"email":   c.login,
		"x-email": c.login,
	}

	if key != nil {
		if key.Login != "" {
			merged["email"] = key.Login
			merged["x-email"] = key.Login
		}

		merged["token"] = key.Token

		if !key.Deadline().IsZero() {
			merged["_"] = strconv.FormatInt(key.Deadline().Unix(), 10)
		}
	}

	maps.Copy(merged, params)

	return merged
}

// send performs a single HTTP exchange and classifies the answer. HTTP
// error statuses are not errors here; only transport failures are.
func (c *Client) send(ctx context.Context, req request, params Params) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("cloud: request canceled: %w", err)
	}

	requestID := uuid.NewString()

	rc := c.api
	if req.transfer {
		rc = c.transfer
	}

	r := rc.R().SetContext(ctx)

	switch {
	case req.file != nil:
		if _, err := req.file.src.Seek(0, io.SeekStart); err != nil {
			return nil, fmt.Errorf("cloud: rewinding upload body: %w", err)
		}

		r.SetQueryParams(params).SetFileReader(req.file.field, req.file.name, req.file.src)
	case req.method == http.MethodGet:
		r.SetQueryParams(params)
	default:
		r.SetFormData(params)
	}

	c.logger.Debug(">>> request",
		slog.String("request_id", requestID),
		slog.String("method", req.method),
		slog.String("url", req.url),
		slog.Any("params", redactParams(params)),
	)

	httpResp, err := r.Execute(req.method, req.url)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("cloud: request canceled: %w", ctx.Err())
		}

		return nil, fmt.Errorf("cloud: %s %s: %w", req.method, req.url, err)
	}

	resp := classify(httpResp.StatusCode(), httpResp.Body())

	c.logger.Debug("<<< response",
		slog.String("request_id", requestID),
		slog.Int("http_status", resp.HTTPStatus),
		slog.Bool("json", resp.JSON),
		slog.Int("status", resp.Status),
		slog.Int("bytes", len(resp.Raw)),
	)

	return resp, nil
}

// envelope is the common shape of JSON answers.
type envelope struct {
	Email  string          `json:"email"`
	Body   json.RawMessage `json:"body"`
	Status json.RawMessage `json:"status"`
}

// classify parses body as a JSON envelope. Anything that is not a JSON
// object is passed through raw.
func classify(httpStatus int, body []byte) *Response {
	resp := &Response{HTTPStatus: httpStatus, Raw: body}

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return resp
	}

	var env envelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return resp
	}

	resp.JSON = true
	resp.Email = env.Email
	resp.Body = env.Body
	resp.Status = parseStatus(env.Status)

	return resp
}

// parseStatus accepts the status as a number or a numeric string. Missing
// or malformed values yield 0, which counts as a failure.
func parseStatus(raw json.RawMessage) int {
	if len(raw) == 0 {
		return 0
	}

	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		return n
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
	}

	return 0
}

func redactParams(params Params) map[string]string {
	out := make(map[string]string, len(params))
	for k, v := range params {
		if secretParams[k] {
			v = redacted
		}

		out[k] = v
	}

	return out
}
