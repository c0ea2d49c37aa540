package client

import (
	"deckhost/common"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Client talks to the control API served by `deckhost run`.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for the control API at the default address.
func NewClient() *Client {
	return NewClientWithURL(fmt.Sprintf("http://%s", common.GetControlHostPort()))
}

// NewClientWithURL creates a client for the control API at baseURL.
// Stop waits for the server to exit, so the timeout is generous.
func NewClientWithURL(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

func (c *Client) BaseURL() string {
	return c.baseURL
}
