package cloud

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
)

const (
	// listSort asks for listings ordered by name, ascending.
	listSort = `{"type":"name","order":"asc"}`

	// conflictRename makes the service pick a free name instead of failing
	// when the destination exists.
	conflictRename = "rename"
)

// List returns the entries of a remote folder in server order (by name).
// Entries of unknown type are skipped with a warning.
func (c *Client) List(ctx context.Context, folder string) ([]Entity, error) {
	resp, err := c.Query(ctx, http.MethodGet, c.apiURL+"/folder", Params{
		"home": normalizePath(folder),
		"sort": listSort,
	}, true)
	if err != nil {
		return nil, fmt.Errorf("cloud: listing %s: %w", folder, err)
	}

	if !resp.JSON {
		return nil, fmt.Errorf("%w: listing %s: not a JSON answer", ErrUnexpectedResponse, folder)
	}

	return parseListing(resp.Body, c.logger)
}

// Stat returns the entity at a remote path.
func (c *Client) Stat(ctx context.Context, remotePath string) (Entity, error) {
	resp, err := c.Query(ctx, http.MethodGet, c.apiURL+"/file", Params{
		"home": normalizePath(remotePath),
	}, true)
	if err != nil {
		return nil, fmt.Errorf("cloud: stat %s: %w", remotePath, err)
	}

	var it item
	if err := resp.Decode(&it); err != nil {
		return nil, fmt.Errorf("cloud: stat %s: %w", remotePath, err)
	}

	e, ok := parseItem(it)
	if !ok {
		return nil, fmt.Errorf("%w: stat %s: unknown item type %q", ErrUnexpectedResponse, remotePath, it.Type)
	}

	return e, nil
}

// Mkdir creates a remote folder and returns it as the service named it.
func (c *Client) Mkdir(ctx context.Context, folder string) (*Folder, error) {
	created, err := c.pathCall(ctx, "folder/add", Params{
		"home": normalizePath(folder),
	})
	if err != nil {
		return nil, fmt.Errorf("cloud: mkdir %s: %w", folder, err)
	}

	return NewFolder(created), nil
}

// Copy copies a remote file into the folder to. An existing name at the
// destination makes the service rename the copy.
func (c *Client) Copy(ctx context.Context, from, to string) (*File, error) {
	created, err := c.pathCall(ctx, "file/copy", Params{
		"home":     normalizePath(from),
		"folder":   normalizePath(to),
		"conflict": conflictRename,
	})
	if err != nil {
		return nil, fmt.Errorf("cloud: copy %s to %s: %w", from, to, err)
	}

	return NewFile(created), nil
}

// Rename gives a remote entry a new name in the same folder.
func (c *Client) Rename(ctx context.Context, from, name string) (*File, error) {
	renamed, err := c.pathCall(ctx, "file/rename", Params{
		"home": normalizePath(from),
		"name": name,
	})
	if err != nil {
		return nil, fmt.Errorf("cloud: rename %s to %s: %w", from, name, err)
	}

	return NewFile(renamed), nil
}

// MoveToFolder moves a remote entry into the folder to.
func (c *Client) MoveToFolder(ctx context.Context, from, to string) (*File, error) {
	moved, err := c.pathCall(ctx, "file/move", Params{
		"home":     normalizePath(from),
		"folder":   normalizePath(to),
		"conflict": conflictRename,
	})
	if err != nil {
		return nil, fmt.Errorf("cloud: move %s to %s: %w", from, to, err)
	}

	return NewFile(moved), nil
}

// Remove deletes a remote file or folder.
func (c *Client) Remove(ctx context.Context, remotePath string) (bool, error) {
	if _, err := c.Query(ctx, http.MethodPost, c.apiURL+"/file/remove", Params{
		"home": normalizePath(remotePath),
	}, true); err != nil {
		return false, fmt.Errorf("cloud: remove %s: %w", remotePath, err)
	}

	c.logger.Debug("removed", slog.String("path", remotePath))

	return true, nil
}

// pathCall issues a POST whose successful answer body is the resulting
// remote path.
func (c *Client) pathCall(ctx context.Context, endpoint string, params Params) (string, error) {
	resp, err := c.Query(ctx, http.MethodPost, c.apiURL+"/"+endpoint, params, true)
	if err != nil {
		return "", err
	}

	var result string
	if err := resp.Decode(&result); err != nil {
		return "", err
	}

	if result == "" {
		return "", fmt.Errorf("%w: empty path in %s answer", ErrUnexpectedResponse, endpoint)
	}

	return result, nil
}
