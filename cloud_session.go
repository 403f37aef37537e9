package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/tonimelisma/mailru-go/internal/cloud"
	"github.com/tonimelisma/mailru-go/internal/config"
	"github.com/tonimelisma/mailru-go/internal/session"
)

// CloudSession bundles a cloud client with the credential store and
// cookie jar backing it.
type CloudSession struct {
	Client *cloud.Client
	Store  session.Store
	Jar    *session.CookieJar
}

// newCloudSession builds a client from the resolved config without
// touching the network.
func newCloudSession(ctx context.Context, cc *CLIContext) (*CloudSession, error) {
	cfg := cc.Cfg

	if cfg.Login == "" {
		return nil, config.ErrNoAccount
	}

	if err := os.MkdirAll(cfg.CacheDir, session.DirPerms); err != nil {
		return nil, fmt.Errorf("creating cache directory %s: %w", cfg.CacheDir, err)
	}

	store, err := session.Open(ctx, session.Kind(cfg.Store), cfg.CacheDir, cfg.Login, cc.Logger)
	if err != nil {
		return nil, err
	}

	jar, err := session.OpenCookieJar(filepath.Join(cfg.CacheDir, session.CookieFileName))
	if err != nil {
		closeStore(store)
		return nil, err
	}

	client, err := cloud.New(clientOptions(cfg, store, jar, cc))
	if err != nil {
		closeStore(store)
		return nil, err
	}

	return &CloudSession{Client: client, Store: store, Jar: jar}, nil
}

// openCloudSession builds a client and bootstraps it: a usable cached
// credential is reused, otherwise the account logs in.
func openCloudSession(ctx context.Context, cc *CLIContext) (*CloudSession, error) {
	s, err := newCloudSession(ctx, cc)
	if err != nil {
		return nil, err
	}

	if err := s.Client.Bootstrap(ctx); err != nil {
		s.Close()

		if errors.Is(err, cloud.ErrAuthFailed) && cc.Cfg.Password == "" {
			return nil, fmt.Errorf("%w (no password configured: set [account] password or %s)", err, config.EnvPassword)
		}

		return nil, err
	}

	return s, nil
}

// clientOptions maps the resolved configuration onto cloud.Options.
func clientOptions(cfg *config.Resolved, store session.Store, jar *session.CookieJar, cc *CLIContext) cloud.Options {
	// In the config file zero disables retrying; in cloud.Options zero
	// selects the default.
	retries := cfg.MaxAuthRetries
	if retries == 0 {
		retries = -1
	}

	return cloud.Options{
		Login:           cfg.Login,
		Password:        cfg.Password,
		Store:           store,
		CookieJar:       jar,
		APIURL:          cfg.APIURL,
		AuthURL:         cfg.AuthURL,
		RootURL:         cfg.RootURL,
		Domain:          cfg.Domain,
		ConnectTimeout:  cfg.ConnectTimeout,
		RequestTimeout:  cfg.RequestTimeout,
		TransferTimeout: cfg.TransferTimeout,
		UserAgent:       cfg.UserAgent,
		MaxAuthRetries:  retries,
		VerifyUploads:   cfg.VerifyHash,
		MaxUploadSize:   cfg.MaxFileSize,
		Logger:          cc.Logger,
	}
}

// Close releases the store. The cookie jar is saved by the client after
// each handshake, so nothing is flushed here.
func (s *CloudSession) Close() {
	closeStore(s.Store)
}

func closeStore(store session.Store) {
	if c, ok := store.(io.Closer); ok {
		_ = c.Close()
	}
}
