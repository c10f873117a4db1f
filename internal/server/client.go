package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrNoTrack is returned when nothing is playing
var ErrNoTrack = errors.New("server: nothing playing")

// Client talks to a running daemon's local API
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a Client for the daemon listening on addr
func NewClient(addr string) *Client {
	base := addr
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}
	return &Client{
		baseURL:    strings.TrimSuffix(base, "/"),
		httpClient: &http.Client{Timeout: 2 * time.Second},
	}
}

// Session returns the daemon's session status
func (c *Client) Session(ctx context.Context) (*SessionResponse, error) {
	var out SessionResponse
	if _, err := c.do(ctx, http.MethodGet, "/api/v1/session", "", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Track returns the current track, or ErrNoTrack
func (c *Client) Track(ctx context.Context) (*TrackResponse, error) {
	var out TrackResponse
	status, err := c.do(ctx, http.MethodGet, "/api/v1/track", "", &out)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNoContent {
		return nil, ErrNoTrack
	}
	return &out, nil
}

// Connect asks the daemon to open the session
func (c *Client) Connect(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodPost, "/api/v1/session/connect", "", nil)
	return err
}

// Disconnect asks the daemon to close the session
func (c *Client) Disconnect(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodPost, "/api/v1/session/disconnect", "", nil)
	return err
}

// Lifecycle posts a foreground or background event
func (c *Client) Lifecycle(ctx context.Context, event string) error {
	_, err := c.do(ctx, http.MethodPost, "/api/v1/lifecycle/"+event, "", nil)
	return err
}

// Redirect hands an authorization redirect to the daemon
func (c *Client) Redirect(ctx context.Context, rawURL string) error {
	_, err := c.do(ctx, http.MethodPost, "/api/v1/auth/redirect", rawURL, nil)
	return err
}

func (c *Client) do(ctx context.Context, method, path, body string, out any) (int, error) {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "text/plain")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("daemon not reachable: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return resp.StatusCode, fmt.Errorf("daemon returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	if out != nil && resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}
