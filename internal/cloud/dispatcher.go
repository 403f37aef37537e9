package cloud

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/tonimelisma/mailru-go/internal/credential"
	"github.com/tonimelisma/mailru-go/internal/session"
)

type dispatchTarget struct {
	URL string `json:"url"`
}

type dispatchBody struct {
	Upload []dispatchTarget `json:"upload"`
	Get    []dispatchTarget `json:"get"`
}

// dispatch asks the service for the current upload and download hosts and
// merges them into the stored credential. Freshly discovered endpoints
// replace whatever the record held before.
func (c *Client) dispatch(ctx context.Context, allowReauth bool) error {
	resp, err := c.do(ctx, request{
		method:   http.MethodGet,
		url:      c.apiURL + "/dispatcher",
		defaults: true,
		noReauth: !allowReauth,
	})
	if err != nil {
		return fmt.Errorf("cloud: dispatcher: %w", err)
	}

	var body dispatchBody
	if err := resp.Decode(&body); err != nil {
		return fmt.Errorf("%w: %w", ErrDispatch, err)
	}

	if len(body.Upload) == 0 || body.Upload[0].URL == "" ||
		len(body.Get) == 0 || body.Get[0].URL == "" {
		return ErrDispatch
	}

	upload, download := body.Upload[0].URL, body.Get[0].URL

	err = c.store.Update(ctx, func(stored *credential.Key) (*credential.Key, error) {
		return stored.WithEndpoints(upload, download), nil
	})
	if errors.Is(err, session.ErrNotFound) {
		// Record vanished (logout in another process); persist ours.
		key := c.currentKey()
		if key == nil {
			return fmt.Errorf("cloud: storing endpoints: %w", err)
		}

		err = c.store.Save(ctx, key.WithEndpoints(upload, download))
	}

	if err != nil {
		return fmt.Errorf("cloud: storing endpoints: %w", err)
	}

	c.logger.Debug("endpoints discovered",
		slog.String("upload", upload),
		slog.String("download", download),
	)

	return nil
}
