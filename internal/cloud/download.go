package cloud

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/tonimelisma/mailru-go/internal/localfile"
	"github.com/tonimelisma/mailru-go/pkg/mrhash"
)

// Download streams the remote file into local. It reports true iff the
// download host answered HTTP 200; local is only created in that case.
func (c *Client) Download(ctx context.Context, remotePath string, local *localfile.File) (bool, error) {
	ok, _, err := c.download(ctx, remotePath, local)

	return ok, err
}

// DownloadVerified is Download plus a content hash check against want.
// A mismatch removes the local file and returns ErrHashMismatch.
func (c *Client) DownloadVerified(ctx context.Context, remotePath string, local *localfile.File, want string) (bool, error) {
	ok, got, err := c.download(ctx, remotePath, local)
	if err != nil || !ok {
		return ok, err
	}

	if !mrhash.Equal(got, want) {
		if rmErr := local.Remove(); rmErr != nil {
			c.logger.Warn("removing corrupt download failed",
				slog.String("path", local.Path()),
				slog.String("error", rmErr.Error()),
			)
		}

		return false, fmt.Errorf("%w: %s: expected %s, got %s", ErrHashMismatch, remotePath, want, got)
	}

	return true, nil
}

func (c *Client) download(ctx context.Context, remotePath string, local *localfile.File) (bool, string, error) {
	key := c.currentKey()
	if key == nil || key.Download == "" {
		return false, "", fmt.Errorf("cloud: download %s: %w", remotePath, ErrNoEndpoint)
	}

	target := joinURL(key.Download, remotePath)
	requestID := uuid.NewString()

	c.logger.Debug(">>> download",
		slog.String("request_id", requestID),
		slog.String("url", target),
	)

	resp, err := c.transfer.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get(target)
	if err != nil {
		return false, "", fmt.Errorf("cloud: GET %s: %w", target, err)
	}

	body := resp.RawBody()
	defer body.Close()

	if resp.StatusCode() != http.StatusOK {
		c.logger.Warn("download refused",
			slog.String("request_id", requestID),
			slog.String("path", remotePath),
			slog.Int("http_status", resp.StatusCode()),
		)

		return false, "", nil
	}

	out, err := local.Create()
	if err != nil {
		return false, "", fmt.Errorf("cloud: download %s: %w", remotePath, err)
	}

	hasher := mrhash.New()

	n, err := io.Copy(io.MultiWriter(out, hasher), body)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}

	if err != nil {
		return false, "", fmt.Errorf("cloud: writing %s: %w", local, err)
	}

	c.logger.Debug("<<< download",
		slog.String("request_id", requestID),
		slog.Int64("bytes", n),
	)

	return true, mrhash.Encode(hasher.Sum(nil)), nil
}
