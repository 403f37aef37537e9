package cloud

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/tonimelisma/mailru-go/internal/localfile"
	"github.com/tonimelisma/mailru-go/pkg/mrhash"
)

// uploadDomain is the cloud_domain value the blob endpoint expects.
const uploadDomain = "2"

// Upload stores the content of local at the remote path. The content is
// first sent to the blob endpoint, which answers with its hash; the hash is
// then registered under the remote path. A name clash makes the service
// pick a free name, which is reflected in the returned File.
func (c *Client) Upload(ctx context.Context, local *localfile.File, remotePath string) (*File, error) {
	key := c.currentKey()
	if key == nil || key.Upload == "" {
		return nil, fmt.Errorf("cloud: upload %s: %w", remotePath, ErrNoEndpoint)
	}

	size, err := local.Size()
	if err != nil {
		return nil, fmt.Errorf("cloud: upload %s: %w", local, err)
	}

	if c.maxUploadSize > 0 && size > c.maxUploadSize {
		return nil, fmt.Errorf("%w: %s is %d bytes, limit %d", ErrFileTooLarge, local, size, c.maxUploadSize)
	}

	src, err := local.Open()
	if err != nil {
		return nil, fmt.Errorf("cloud: upload %s: %w", local, err)
	}
	defer src.Close()

	var localHash string
	if c.verifyUploads {
		if localHash, err = mrhash.FromReader(src); err != nil {
			return nil, fmt.Errorf("cloud: hashing %s: %w", local, err)
		}
	}

	login := key.Login
	if login == "" {
		login = c.login
	}

	resp, err := c.do(ctx, request{
		method:   http.MethodPost,
		url:      key.Upload,
		transfer: true,
		params: Params{
			"cloud_domain": uploadDomain,
			"x-email":      login,
		},
		file: &multipartFile{field: "file", name: local.Name(), src: src},
	})
	if err != nil {
		return nil, fmt.Errorf("cloud: uploading content of %s: %w", local, err)
	}

	if resp.HTTPStatus != http.StatusOK {
		return nil, fmt.Errorf("%w: upload endpoint answered HTTP %d: %s",
			ErrUnexpectedResponse, resp.HTTPStatus, truncateBody(resp.Raw))
	}

	hash := blobHash(resp.Raw)
	if !mrhash.Valid(hash) {
		return nil, fmt.Errorf("%w: upload endpoint returned no hash: %s", ErrUnexpectedResponse, truncateBody(resp.Raw))
	}

	if c.verifyUploads && !mrhash.Equal(hash, localHash) {
		return nil, fmt.Errorf("%w: %s: local %s, remote %s", ErrHashMismatch, local, localHash, hash)
	}

	c.logger.Debug("content uploaded",
		slog.String("local", local.Path()),
		slog.String("hash", hash),
		slog.Int64("size", size),
	)

	created, err := c.pathCall(ctx, "file/add", Params{
		"home":     normalizePath(remotePath),
		"hash":     hash,
		"size":     strconv.FormatInt(size, 10),
		"conflict": conflictRename,
	})
	if err != nil {
		return nil, fmt.Errorf("cloud: registering %s: %w", remotePath, err)
	}

	f := NewFile(created)
	f.Size = size
	f.Hash = hash

	return f, nil
}

// blobHash extracts the hash from a blob endpoint answer, which has the
// form "<hash>;<size>".
func blobHash(raw []byte) string {
	hash, _, _ := bytes.Cut(bytes.TrimSpace(raw), []byte(";"))

	return string(bytes.TrimSpace(hash))
}
