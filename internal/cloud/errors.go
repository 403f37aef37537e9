// Package cloud is a client for the Mail.ru Cloud web API. It owns the
// session lifecycle (cached token, login handshake, endpoint discovery),
// a request executor that re-authenticates on API failure, and the file
// operations built on top of it.
package cloud

import (
	"errors"
	"fmt"
)

// Sentinel errors. Use errors.Is(err, cloud.ErrAPIFailure) to check.
var (
	// ErrAPIFailure means the service kept answering with a non-success
	// status after the re-authentication budget was spent.
	ErrAPIFailure = errors.New("cloud: api request failed")

	// ErrAuthFailed means the login handshake did not yield a token.
	ErrAuthFailed = errors.New("cloud: authentication failed")

	// ErrDispatch means the dispatcher answer lacked upload or download URLs.
	ErrDispatch = errors.New("cloud: dispatcher returned no endpoints")

	// ErrNoEndpoint means an upload or download was attempted before the
	// dispatcher populated the corresponding URL.
	ErrNoEndpoint = errors.New("cloud: endpoint not discovered")

	// ErrUnexpectedResponse means a successful answer had an unusable body.
	ErrUnexpectedResponse = errors.New("cloud: unexpected response")

	// ErrFileTooLarge means a local file exceeds the configured upload limit.
	ErrFileTooLarge = errors.New("cloud: file exceeds upload size limit")

	// ErrHashMismatch means the blob hash reported by the service differs
	// from the locally computed one.
	ErrHashMismatch = errors.New("cloud: content hash mismatch")
)

// maxErrorBody caps how much of a response body is kept in an APIError.
const maxErrorBody = 512

// APIError describes an API call that still failed after re-authentication.
// It wraps ErrAPIFailure for errors.Is.
type APIError struct {
	Method     string
	URL        string
	HTTPStatus int
	Status     int // status field of the JSON envelope
	Body       string
	Attempts   int
}

func (e *APIError) Error() string {
	return fmt.Sprintf("cloud: %s %s: status %d (HTTP %d) after %d attempt(s): %s",
		e.Method, e.URL, e.Status, e.HTTPStatus, e.Attempts, e.Body)
}

func (e *APIError) Unwrap() error {
	return ErrAPIFailure
}

func truncateBody(b []byte) string {
	if len(b) <= maxErrorBody {
		return string(b)
	}

	return string(b[:maxErrorBody]) + "..."
}
