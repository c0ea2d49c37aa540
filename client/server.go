package client

import (
	"context"
	"deckhost/supervisor"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"syscall"
)

// ErrHostUnreachable is returned when nothing answers at the control address.
var ErrHostUnreachable = errors.New("deckhost host is not reachable")

// APIError is a non-2xx response from the control API. Status is the
// supervisor status reported alongside the error, when there was one.
type APIError struct {
	StatusCode int
	Message    string
	Status     *supervisor.Status
}

func (e *APIError) Error() string {
	return fmt.Sprintf("control API returned %d: %s", e.StatusCode, e.Message)
}

type errorResponse struct {
	Error  string             `json:"error"`
	Status *supervisor.Status `json:"status,omitempty"`
}

type logsResponse struct {
	Logs string `json:"logs"`
}

// KillPortResult reports which processes were killed to free Port.
type KillPortResult struct {
	Port int   `json:"port"`
	Pids []int `json:"pids"`
}

// StartServer asks the host to start the backend. A zero port lets the host
// use its configured port.
func (c *Client) StartServer(ctx context.Context, port int) (supervisor.Status, error) {
	return c.statusRequest(ctx, http.MethodPost, "/api/v1/server/start", port)
}

func (c *Client) StopServer(ctx context.Context) (supervisor.Status, error) {
	return c.statusRequest(ctx, http.MethodPost, "/api/v1/server/stop", 0)
}

func (c *Client) RestartServer(ctx context.Context, port int) (supervisor.Status, error) {
	return c.statusRequest(ctx, http.MethodPost, "/api/v1/server/restart", port)
}

func (c *Client) GetServerStatus(ctx context.Context) (supervisor.Status, error) {
	return c.statusRequest(ctx, http.MethodGet, "/api/v1/server/status", 0)
}

func (c *Client) GetServerLogs(ctx context.Context) (string, error) {
	var resp logsResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/server/logs", nil, &resp); err != nil {
		return "", err
	}
	return resp.Logs, nil
}

func (c *Client) ClearServerLogs(ctx context.Context) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/server/logs", nil, nil)
}

// KillPortOwner asks the host to kill whatever listens on port. A zero port
// means the host's configured server port.
func (c *Client) KillPortOwner(ctx context.Context, port int) (KillPortResult, error) {
	var query url.Values
	if port > 0 {
		query = url.Values{"port": {strconv.Itoa(port)}}
	}

	var result KillPortResult
	if err := c.do(ctx, http.MethodPost, "/api/v1/server/kill-port", query, &result); err != nil {
		return KillPortResult{}, err
	}
	return result, nil
}

func (c *Client) statusRequest(ctx context.Context, method, path string, port int) (supervisor.Status, error) {
	var query url.Values
	if port > 0 {
		query = url.Values{"port": {strconv.Itoa(port)}}
	}

	var status supervisor.Status
	if err := c.do(ctx, method, path, query, &status); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Status != nil {
			return *apiErr.Status, err
		}
		return supervisor.Status{}, err
	}
	return status, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, out any) error {
	reqURL := c.baseURL + path
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to build request for %s: %w", path, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, syscall.ECONNREFUSED) {
			return c.unreachable()
		}
		return fmt.Errorf("failed to send request to %s: %w", reqURL, err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body from %s (status %s): %w", path, resp.Status, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: string(bodyBytes)}
		var errResp errorResponse
		if json.Unmarshal(bodyBytes, &errResp) == nil && errResp.Error != "" {
			apiErr.Message = errResp.Error
			apiErr.Status = errResp.Status
		}
		return apiErr
	}

	if out == nil || len(bodyBytes) == 0 {
		return nil
	}
	if err := json.Unmarshal(bodyBytes, out); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w. Full response body: %s", path, err, string(bodyBytes))
	}
	return nil
}

func (c *Client) unreachable() error {
	return fmt.Errorf("%w at %s: is `deckhost run` running?", ErrHostUnreachable, c.baseURL)
}
