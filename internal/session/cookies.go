package session

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	pcookiejar "github.com/juju/persistent-cookiejar"
	"golang.org/x/net/publicsuffix"
)

// CookieJar is an http.CookieJar persisted to disk. Save merges with
// whatever another process wrote since the jar was opened, under a file
// lock, so several invocations can share one cookie file.
type CookieJar struct {
	*pcookiejar.Jar

	path string
}

// OpenCookieJar loads the cookie file at path, creating an empty jar when
// the file does not exist yet.
func OpenCookieJar(path string) (*CookieJar, error) {
	jar, err := pcookiejar.New(&pcookiejar.Options{
		Filename:         path,
		PublicSuffixList: publicsuffix.List,
	})
	if err != nil {
		return nil, fmt.Errorf("session: opening cookie jar %s: %w", path, err)
	}

	return &CookieJar{Jar: jar, path: path}, nil
}

// Path returns the cookie file location.
func (j *CookieJar) Path() string {
	return j.path
}

// Save writes the jar to disk.
func (j *CookieJar) Save() error {
	if err := j.Jar.Save(); err != nil {
		return fmt.Errorf("session: saving cookie jar: %w", err)
	}

	return nil
}

// Reset drops every cookie in memory and removes the cookie file.
func (j *CookieJar) Reset() error {
	j.RemoveAll()

	if err := os.Remove(j.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("session: removing cookie file: %w", err)
	}

	return nil
}
