package cloud

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/tonimelisma/mailru-go/internal/credential"
	"github.com/tonimelisma/mailru-go/internal/session"
)

// Bootstrap establishes a usable session: it loads the cached credential
// or logs in, then discovers the transfer endpoints and reloads the key so
// it carries them.
func (c *Client) Bootstrap(ctx context.Context) error {
	key, err := c.loadCached(ctx)
	if err != nil {
		return err
	}

	if key == nil {
		if err := c.authenticate(ctx); err != nil {
			return err
		}

		return c.haveKey(ctx, false)
	}

	c.setKey(key)

	// The server may have revoked a cached token before its deadline, so
	// discovery with a cached key may re-authenticate.
	return c.haveKey(ctx, true)
}

// loadCached returns the stored credential, or nil when a fresh login is
// needed. Only store failures unrelated to the credential itself are
// returned as errors.
func (c *Client) loadCached(ctx context.Context) (*credential.Key, error) {
	key, err := c.store.Load(ctx)

	switch {
	case err == nil:
		if key.Login != "" && !c.isOwnLogin(key.Login) {
			c.logger.Info("cached credential belongs to another account, logging in",
				slog.String("cached_login", key.Login),
			)

			return nil, nil
		}

		c.logger.Debug("credential loaded from cache",
			slog.Time("deadline", key.Deadline()),
		)

		return key, nil
	case errors.Is(err, session.ErrNotFound):
		c.logger.Debug("no cached credential")
		return nil, nil
	case errors.Is(err, credential.ErrTokenExpired):
		c.logger.Debug("cached credential expired")
		return nil, nil
	case errors.Is(err, credential.ErrInvalidCredentialFile):
		c.logger.Warn("cached credential unreadable, it will be replaced",
			slog.String("error", err.Error()),
		)

		return nil, nil
	default:
		return nil, fmt.Errorf("cloud: loading cached credential: %w", err)
	}
}

// isOwnLogin reports whether login names the configured account. The
// service echoes the address in its own case, and a configured login
// without a domain logs in to the configured domain.
func (c *Client) isOwnLogin(login string) bool {
	return strings.EqualFold(c.qualify(login), c.qualify(c.login))
}

func (c *Client) qualify(login string) string {
	if strings.Contains(login, "@") {
		return login
	}

	return login + "@" + c.domain
}

// haveKey runs endpoint discovery and adopts the stored result.
func (c *Client) haveKey(ctx context.Context, allowReauth bool) error {
	if err := c.dispatch(ctx, allowReauth); err != nil {
		return err
	}

	key, err := c.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("cloud: reloading credential after dispatch: %w", err)
	}

	c.setKey(key)

	return nil
}

// csrfBody is the body of the tokens/csrf answer.
type csrfBody struct {
	Token string `json:"token"`
}

// authenticate performs the login handshake and persists the new key.
// None of its requests go through the re-authentication path.
func (c *Client) authenticate(ctx context.Context) error {
	c.logger.Info("logging in", slog.String("login", c.login))

	_, err := c.do(ctx, request{
		method:   http.MethodPost,
		url:      c.authURL,
		noReauth: true,
		params: Params{
			"Login":    c.login,
			"Password": c.password,
			"Domain":   c.domain,
		},
	})
	if err != nil {
		return fmt.Errorf("%w: login form: %w", ErrAuthFailed, err)
	}

	if _, err := c.do(ctx, request{method: http.MethodGet, url: c.rootURL, noReauth: true}); err != nil {
		return fmt.Errorf("%w: opening session: %w", ErrAuthFailed, err)
	}

	resp, err := c.do(ctx, request{
		method:   http.MethodGet,
		url:      c.apiURL + "/tokens/csrf",
		noReauth: true,
		params: Params{
			"api":     apiVersion,
			"email":   c.login,
			"x-email": c.login,
		},
	})
	if err != nil {
		return fmt.Errorf("%w: requesting token: %w", ErrAuthFailed, err)
	}

	var body csrfBody
	if !resp.JSON || resp.Decode(&body) != nil || body.Token == "" {
		return fmt.Errorf("%w: token endpoint returned no token", ErrAuthFailed)
	}

	key, err := credential.New(body.Token)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrAuthFailed, err)
	}

	if err := key.SetDeadline(c.now().Add(sessionTTL)); err != nil {
		return fmt.Errorf("%w: %w", ErrAuthFailed, err)
	}

	key.Login = resp.Email
	if key.Login == "" {
		key.Login = c.login
	}

	if err := c.store.Save(ctx, key); err != nil {
		return fmt.Errorf("cloud: saving credential: %w", err)
	}

	if saver, ok := c.jar.(CookieSaver); ok {
		if err := saver.Save(); err != nil {
			c.logger.Warn("saving cookie jar failed", slog.String("error", err.Error()))
		}
	}

	c.setKey(key)

	c.logger.Info("logged in",
		slog.String("login", key.Login),
		slog.Time("deadline", key.Deadline()),
	)

	return nil
}

// reauthenticate logs in again and rediscovers endpoints. Concurrent
// callers that saw the same stale key share one handshake; a caller whose
// key was already replaced returns immediately. The shared handshake is
// detached from the cancellation of whichever caller started it, and each
// caller stops waiting when its own ctx is done.
func (c *Client) reauthenticate(ctx context.Context, stale *credential.Key) error {
	if cur := c.currentKey(); cur != nil && cur != stale {
		return nil
	}

	shared := context.WithoutCancel(ctx)

	ch := c.authGroup.DoChan("auth", func() (any, error) {
		if cur := c.currentKey(); cur != nil && cur != stale {
			return nil, nil
		}

		if err := c.authenticate(shared); err != nil {
			return nil, err
		}

		return nil, c.haveKey(shared, false)
	})

	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return fmt.Errorf("cloud: waiting for re-authentication: %w", ctx.Err())
	}
}

// Logout forgets the in-memory and stored credential.
func (c *Client) Logout(ctx context.Context) error {
	c.setKey(nil)

	if err := c.store.Clear(ctx); err != nil {
		return fmt.Errorf("cloud: clearing credential: %w", err)
	}

	return nil
}
