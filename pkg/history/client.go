// Package history fetches cursor-paginated log pages from the orchestrator
// backend over plain JSON-over-HTTP.
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/taskdeck/deckstream/pkg/api"
	"github.com/taskdeck/deckstream/pkg/errors"
)

// Direction selects which way a page extends from the cursor.
type Direction string

const (
	// Forward pages from oldest toward newest.
	Forward Direction = "forward"
	// Backward pages from newest toward oldest.
	Backward Direction = "backward"
)

// Client reads historical log pages. Pages are immutable once fetched.
type Client struct {
	base  *url.URL
	token string
	http  *http.Client
}

// NewClient creates a history client for the given backend base URL.
func NewClient(baseURL, token string) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base URL: %w", err)
	}
	return &Client{
		base:  u,
		token: token,
		http:  &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// Logs fetches one page of a process's log history. An empty cursor starts
// from the end selected by dir: Backward returns the newest page, Forward
// the oldest.
func (c *Client) Logs(ctx context.Context, processID string, limit int, cursor string, dir Direction) (*api.LogPage, error) {
	if processID == "" {
		return nil, errors.NewRequestError("process id is required")
	}

	u := *c.base
	u.Path = api.LogsPath(processID)
	q := u.Query()
	q.Set("limit", strconv.Itoa(limit))
	q.Set("direction", string(dir))
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, errors.NewRequestError("build logs request", err.Error())
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.NewRequestError("fetch logs page", err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.NewRequestError(
			fmt.Sprintf("logs request failed with status %d", resp.StatusCode))
	}

	var envelope api.Response[api.LogPage]
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, errors.NewRequestError("decode logs page", err.Error())
	}
	if !envelope.IsSuccess() {
		return nil, errors.NewRequestError(envelope.Error())
	}
	return &envelope.Data, nil
}
