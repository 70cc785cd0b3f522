package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPClient makes REST calls to the screencheck server.
type HTTPClient struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewHTTPClient creates a client targeting the given base URL (e.g. "http://127.0.0.1:8090").
func NewHTTPClient(baseURL, token string) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{},
	}
}

// State fetches GET /api/state.
func (c *HTTPClient) State(ctx context.Context) (*Snapshot, error) {
	var s Snapshot
	if err := c.do(ctx, http.MethodGet, "/api/state", 10*time.Second, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Start sends POST /api/start. The call lasts as long as the picker is
// open, so only ctx bounds it.
func (c *HTTPClient) Start(ctx context.Context) (*Snapshot, error) {
	var s Snapshot
	if err := c.do(ctx, http.MethodPost, "/api/start", 0, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Stop sends POST /api/stop.
func (c *HTTPClient) Stop(ctx context.Context) (*Snapshot, error) {
	var s Snapshot
	if err := c.do(ctx, http.MethodPost, "/api/stop", 10*time.Second, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Environment fetches GET /api/environment.
func (c *HTTPClient) Environment(ctx context.Context) (*Environment, error) {
	var e Environment
	if err := c.do(ctx, http.MethodGet, "/api/environment", 10*time.Second, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

func (c *HTTPClient) do(ctx context.Context, method, path string, timeout time.Duration, out interface{}) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	c.setAuth(req)
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s %s: %d %s", method, path, resp.StatusCode, string(body))
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *HTTPClient) setAuth(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}
