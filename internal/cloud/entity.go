package cloud

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"path"
	"time"
)

// Item type discriminators used by the listing API.
const (
	typeFile   = "file"
	typeFolder = "folder"
)

// Entity is a remote file or folder. It is implemented only by *File and
// *Folder; use a type switch to tell them apart.
type Entity interface {
	// Path is the fully qualified remote path, always starting with "/".
	Path() string
	// Name is the last path segment.
	Name() string

	entity()
}

// File is a remote file. Metadata fields are zero when the answer that
// produced the File did not carry them.
type File struct {
	path    string
	Size    int64
	Hash    string
	ModTime time.Time
}

// NewFile returns a File for the given remote path.
func NewFile(remotePath string) *File {
	return &File{path: normalizePath(remotePath)}
}

// Path returns the remote path.
func (f *File) Path() string {
	return f.path
}

// Name returns the last segment of the remote path.
func (f *File) Name() string {
	return path.Base(f.path)
}

func (f *File) String() string {
	return f.path
}

func (*File) entity() {}

// Folder is a remote folder.
type Folder struct {
	path    string
	Size    int64
	Files   int
	Folders int
}

// NewFolder returns a Folder for the given remote path.
func NewFolder(remotePath string) *Folder {
	return &Folder{path: normalizePath(remotePath)}
}

// Path returns the remote path.
func (f *Folder) Path() string {
	return f.path
}

// Name returns the last segment of the remote path.
func (f *Folder) Name() string {
	return path.Base(f.path)
}

func (f *Folder) String() string {
	return f.path
}

func (*Folder) entity() {}

// item is one element of a listing or a stat answer.
type item struct {
	Type  string `json:"type"`
	Kind  string `json:"kind"`
	Home  string `json:"home"`
	Name  string `json:"name"`
	Size  int64  `json:"size"`
	Hash  string `json:"hash"`
	MTime int64  `json:"mtime"`
	Count struct {
		Files   int `json:"files"`
		Folders int `json:"folders"`
	} `json:"count"`
}

// parseItem converts one item. ok is false for unknown discriminators.
func parseItem(it item) (Entity, bool) {
	kind := it.Type
	if kind == "" {
		kind = it.Kind
	}

	switch kind {
	case typeFile:
		f := NewFile(it.Home)
		f.Size = it.Size
		f.Hash = it.Hash

		if it.MTime > 0 {
			f.ModTime = time.Unix(it.MTime, 0)
		}

		return f, true
	case typeFolder:
		d := NewFolder(it.Home)
		d.Size = it.Size
		d.Files = it.Count.Files
		d.Folders = it.Count.Folders

		return d, true
	default:
		return nil, false
	}
}

type listingBody struct {
	List []json.RawMessage `json:"list"`
}

// parseListing turns a folder answer into entities, preserving server
// order. Items of unknown type, or that cannot be decoded, are logged and
// skipped.
func parseListing(body json.RawMessage, logger *slog.Logger) ([]Entity, error) {
	var listing listingBody
	if err := json.Unmarshal(body, &listing); err != nil {
		return nil, fmt.Errorf("%w: decoding listing: %w", ErrUnexpectedResponse, err)
	}

	entities := make([]Entity, 0, len(listing.List))

	for _, raw := range listing.List {
		var it item
		if err := json.Unmarshal(raw, &it); err != nil {
			logger.Warn("skipping undecodable listing item",
				slog.String("item", string(raw)),
				slog.String("error", err.Error()),
			)

			continue
		}

		e, ok := parseItem(it)
		if !ok {
			logger.Warn("unknown item type",
				slog.String("type", it.Type),
				slog.String("home", it.Home),
			)

			continue
		}

		entities = append(entities, e)
	}

	return entities, nil
}
