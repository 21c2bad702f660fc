package gateway

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
	"github.com/harun/roundtable/internal/observability"
	"github.com/harun/roundtable/pkg/engine"
	"github.com/rs/zerolog"
)

const (
	writeTimeout = 10 * time.Second
	maxFrameSize = 1 << 20
)

// wsConn adapts a client WebSocket to engine.Conn
type wsConn struct {
	client   *Client
	registry *ClientRegistry
	logger   zerolog.Logger
}

func newWSConn(client *Client, registry *ClientRegistry, logger zerolog.Logger) *wsConn {
	client.Conn.SetReadLimit(maxFrameSize)
	return &wsConn{client: client, registry: registry, logger: logger}
}

// ReadFrame returns the next text frame within the client's rate limit.
// Over-limit frames are answered with an error event and skipped.
func (c *wsConn) ReadFrame(ctx context.Context) ([]byte, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		_, message, err := c.client.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				c.logger.Warn().Err(err).Msg("WebSocket error")
			}
			return nil, err
		}

		c.registry.UpdateActivity(c.client.ID)

		if !c.client.RateLimiter.Allow() {
			observability.RecordFrameRejected("rate_limited")
			c.logger.Warn().Msg("Client exceeded frame rate limit")
			if err := c.WriteEvent(ctx, engine.Event{
				"type":    engine.EventError,
				"message": "rate limit exceeded",
			}); err != nil {
				return nil, err
			}
			continue
		}

		return message, nil
	}
}

// WriteEvent serializes one event onto the socket
func (c *wsConn) WriteEvent(_ context.Context, ev engine.Event) error {
	c.client.writeMu.Lock()
	defer c.client.writeMu.Unlock()

	if err := c.client.Conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return c.client.Conn.WriteJSON(ev)
}
