package client

import (
	"context"
	"deckhost/supervisor"
	"errors"
	"fmt"
	"strings"
	"syscall"

	"github.com/gorilla/websocket"
)

// StreamServerEvents follows the host's event stream, calling handle for each
// event. It returns nil when the host closes the stream, ctx.Err() when ctx
// ends, and handle's error if handle fails.
func (c *Client) StreamServerEvents(ctx context.Context, handle func(supervisor.Event) error) error {
	wsURL := "ws" + strings.TrimPrefix(c.baseURL, "http") + "/api/v1/server/events"

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		if errors.Is(err, syscall.ECONNREFUSED) {
			return c.unreachable()
		}
		if resp != nil {
			return &APIError{StatusCode: resp.StatusCode, Message: "event stream rejected"}
		}
		return fmt.Errorf("failed to connect to %s: %w", wsURL, err)
	}
	defer conn.Close()

	// unblocks ReadJSON when ctx ends
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	for {
		var event supervisor.Event
		if err := conn.ReadJSON(&event); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("event stream from %s failed: %w", c.baseURL, err)
		}
		if err := handle(event); err != nil {
			return err
		}
	}
}
