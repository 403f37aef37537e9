// Package localfile wraps a path on the local filesystem with the handful
// of operations the cloud client needs from it.
package localfile

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// Permissions for files and parent directories created by Write/Create.
const (
	filePerms = 0o644
	dirPerms  = 0o755
)

// File is a local path. The zero value is not usable; use New.
type File struct {
	path string
}

// New wraps path. The file does not need to exist.
func New(path string) *File {
	return &File{path: path}
}

// Path returns the wrapped path.
func (f *File) Path() string {
	return f.path
}

// Name returns the last path element.
func (f *File) Name() string {
	return filepath.Base(f.path)
}

func (f *File) String() string {
	return f.path
}

// Exists reports whether the path exists.
func (f *File) Exists() bool {
	_, err := os.Stat(f.path)
	return err == nil
}

// Readable reports whether the file can be opened for reading.
func (f *File) Readable() bool {
	h, err := os.Open(f.path)
	if err != nil {
		return false
	}

	h.Close()

	return true
}

// Writable reports whether the file can be opened for writing. For a path
// that does not exist yet, the parent directory must be writable.
func (f *File) Writable() bool {
	h, err := os.OpenFile(f.path, os.O_WRONLY, 0)
	if err == nil {
		h.Close()
		return true
	}

	if !errors.Is(err, fs.ErrNotExist) {
		return false
	}

	probe, err := os.CreateTemp(filepath.Dir(f.path), ".probe-*")
	if err != nil {
		return false
	}

	name := probe.Name()
	probe.Close()
	os.Remove(name)

	return true
}

// Size returns the file size in bytes.
func (f *File) Size() (int64, error) {
	info, err := os.Stat(f.path)
	if err != nil {
		return 0, fmt.Errorf("localfile: stat %s: %w", f.path, err)
	}

	if info.IsDir() {
		return 0, fmt.Errorf("localfile: %s is a directory", f.path)
	}

	return info.Size(), nil
}

// ReadRange reads up to n bytes starting at offset. A short read at end of
// file is not an error.
func (f *File) ReadRange(offset, n int64) ([]byte, error) {
	h, err := os.Open(f.path)
	if err != nil {
		return nil, fmt.Errorf("localfile: opening %s: %w", f.path, err)
	}
	defer h.Close()

	buf := make([]byte, n)

	read, err := h.ReadAt(buf, offset)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("localfile: reading %s: %w", f.path, err)
	}

	return buf[:read], nil
}

// Write stores data, appending when appendMode is set and truncating
// otherwise. Missing parent directories are created.
func (f *File) Write(data []byte, appendMode bool) error {
	flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if appendMode {
		flags = os.O_CREATE | os.O_WRONLY | os.O_APPEND
	}

	if err := os.MkdirAll(filepath.Dir(f.path), dirPerms); err != nil {
		return fmt.Errorf("localfile: creating parent of %s: %w", f.path, err)
	}

	h, err := os.OpenFile(f.path, flags, filePerms)
	if err != nil {
		return fmt.Errorf("localfile: opening %s: %w", f.path, err)
	}

	if _, err := h.Write(data); err != nil {
		h.Close()
		return fmt.Errorf("localfile: writing %s: %w", f.path, err)
	}

	if err := h.Close(); err != nil {
		return fmt.Errorf("localfile: closing %s: %w", f.path, err)
	}

	return nil
}

// Open returns the raw handle for reading. The caller closes it.
func (f *File) Open() (*os.File, error) {
	h, err := os.Open(f.path)
	if err != nil {
		return nil, fmt.Errorf("localfile: opening %s: %w", f.path, err)
	}

	return h, nil
}

// Create truncates or creates the file and returns the raw handle for
// writing. Missing parent directories are created. The caller closes it.
func (f *File) Create() (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(f.path), dirPerms); err != nil {
		return nil, fmt.Errorf("localfile: creating parent of %s: %w", f.path, err)
	}

	h, err := os.OpenFile(f.path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, filePerms)
	if err != nil {
		return nil, fmt.Errorf("localfile: creating %s: %w", f.path, err)
	}

	return h, nil
}

// Remove deletes the file. A missing file is not an error.
func (f *File) Remove() error {
	if err := os.Remove(f.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("localfile: removing %s: %w", f.path, err)
	}

	return nil
}
