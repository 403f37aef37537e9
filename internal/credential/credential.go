// Package credential holds the session credential (Key): the access token,
// its deadline, the authenticated login, and the endpoint URLs discovered by
// the dispatcher. It is a leaf package shared by the session stores and the
// cloud client, and it owns the on-disk JSON encoding of the cache record.
package credential

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"os"
	"time"

	"golang.org/x/oauth2"
)

// Sentinel errors. Use errors.Is to check.
var (
	// ErrTokenExpired is returned when a deadline that is not strictly in the
	// future is assigned to a Key. Bootstrap uses it to tell a stale cache
	// from a missing one.
	ErrTokenExpired = errors.New("credential: token expired")

	// ErrInvalidCredentialFile is returned when a cache record exists but
	// carries no usable token.
	ErrInvalidCredentialFile = errors.New("credential: invalid credential file")
)

// Field names of the cache record. Everything else is kept verbatim in extra.
const (
	fieldToken    = "token"
	fieldDeadline = "deadline"
	fieldLogin    = "login"
	fieldUpload   = "upload"
	fieldDownload = "download"
)

// Key is an access token plus everything the client learned alongside it.
// Keys are replaced wholesale on re-authentication; the token is never
// rewritten in place.
type Key struct {
	Token    string
	Login    string
	Upload   string // blob upload endpoint, from the dispatcher
	Download string // download base URL, from the dispatcher

	deadline time.Time
	extra    map[string]json.RawMessage
}

// New creates a Key for the given token. The deadline is unknown until
// SetDeadline is called.
func New(token string) (*Key, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: empty token", ErrInvalidCredentialFile)
	}

	return &Key{Token: token}, nil
}

// Deadline returns the token expiry. The zero time means unknown.
func (k *Key) Deadline() time.Time {
	return k.deadline
}

// SetDeadline stores the token expiry. It fails with ErrTokenExpired when
// deadline is not strictly after the current time, leaving the Key unchanged.
func (k *Key) SetDeadline(deadline time.Time) error {
	if !deadline.After(time.Now()) {
		return fmt.Errorf("%w: deadline %s is not in the future", ErrTokenExpired, deadline.UTC().Format(time.RFC3339))
	}

	k.deadline = deadline

	return nil
}

// Get returns the named auxiliary value, or nil when absent. Known fields
// are returned as strings (deadline as unix seconds); unknown fields are
// decoded from the preserved JSON.
func (k *Key) Get(name string) any {
	switch name {
	case fieldToken:
		return k.Token
	case fieldDeadline:
		if k.deadline.IsZero() {
			return nil
		}

		return k.deadline.Unix()
	case fieldLogin:
		return nonEmpty(k.Login)
	case fieldUpload:
		return nonEmpty(k.Upload)
	case fieldDownload:
		return nonEmpty(k.Download)
	}

	raw, ok := k.extra[name]
	if !ok {
		return nil
	}

	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil
	}

	return v
}

func nonEmpty(s string) any {
	if s == "" {
		return nil
	}

	return s
}

// WithEndpoints returns a copy of the Key carrying the given upload and
// download URLs. Empty arguments keep the current value.
func (k *Key) WithEndpoints(upload, download string) *Key {
	c := k.Clone()
	if upload != "" {
		c.Upload = upload
	}

	if download != "" {
		c.Download = download
	}

	return c
}

// Clone returns a deep copy of the Key.
func (k *Key) Clone() *Key {
	c := *k
	c.extra = maps.Clone(k.extra)

	return &c
}

// OAuth2Token exposes the Key as an oauth2.Token so callers can use
// Valid() and its expiry delta. An unknown deadline yields a token that
// never expires on its own.
func (k *Key) OAuth2Token() *oauth2.Token {
	return &oauth2.Token{
		AccessToken: k.Token,
		Expiry:      k.deadline,
	}
}

// Valid reports whether the token is present and not about to expire.
func (k *Key) Valid() bool {
	return k != nil && k.OAuth2Token().Valid()
}

// Parse decodes a cache record. The token field is mandatory; deadline and
// login are optional. A deadline in the past fails with ErrTokenExpired.
// Fields the Key does not model are preserved for MarshalJSON.
func Parse(data []byte) (*Key, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil || fields == nil {
		return nil, fmt.Errorf("%w: not a JSON object", ErrInvalidCredentialFile)
	}

	var token string
	if raw, ok := fields[fieldToken]; ok {
		if err := json.Unmarshal(raw, &token); err != nil {
			return nil, fmt.Errorf("%w: token is not a string", ErrInvalidCredentialFile)
		}
	}

	key, err := New(token)
	if err != nil {
		return nil, err
	}

	if raw, ok := fields[fieldDeadline]; ok && !isNull(raw) {
		var unix int64
		if err := json.Unmarshal(raw, &unix); err != nil {
			return nil, fmt.Errorf("%w: deadline is not a unix time", ErrInvalidCredentialFile)
		}

		if unix != 0 {
			if err := key.SetDeadline(time.Unix(unix, 0)); err != nil {
				return nil, err
			}
		}
	}

	key.Login = stringField(fields, fieldLogin)
	key.Upload = stringField(fields, fieldUpload)
	key.Download = stringField(fields, fieldDownload)

	for _, name := range []string{fieldToken, fieldDeadline, fieldLogin, fieldUpload, fieldDownload} {
		delete(fields, name)
	}

	if len(fields) > 0 {
		key.extra = fields
	}

	return key, nil
}

// LoadFromFile reads and parses the cache record at path. A missing file is
// reported as an fs.ErrNotExist error so callers can tell it apart.
func LoadFromFile(path string) (*Key, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("credential: reading %s: %w", path, err)
	}

	return Parse(data)
}

// MarshalJSON encodes the cache record: known fields first, then the
// preserved extras. Empty optional fields are omitted.
func (k *Key) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(k.extra)+5)
	for name, raw := range k.extra {
		out[name] = raw
	}

	out[fieldToken] = k.Token

	if !k.deadline.IsZero() {
		out[fieldDeadline] = k.deadline.Unix()
	}

	if k.Login != "" {
		out[fieldLogin] = k.Login
	}

	if k.Upload != "" {
		out[fieldUpload] = k.Upload
	}

	if k.Download != "" {
		out[fieldDownload] = k.Download
	}

	return json.Marshal(out)
}

func stringField(fields map[string]json.RawMessage, name string) string {
	raw, ok := fields[name]
	if !ok {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}

	return s
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
