package cloud

import (
	"net/url"
	"path"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// normalizePath returns p in the form the service expects: NFC, a single
// leading slash, no trailing slash, "." and ".." resolved. The empty path
// is the root.
func normalizePath(p string) string {
	p = norm.NFC.String(strings.ReplaceAll(p, "\\", "/"))

	return path.Clean("/" + p)
}

// escapePath percent-encodes each segment of a normalized remote path for
// use in a download URL.
func escapePath(p string) string {
	segments := strings.Split(normalizePath(p), "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}

	return strings.Join(segments, "/")
}

// joinURL appends an escaped remote path to a base URL, tolerating a
// trailing slash on the base.
func joinURL(base, remotePath string) string {
	return strings.TrimRight(base, "/") + escapePath(remotePath)
}
