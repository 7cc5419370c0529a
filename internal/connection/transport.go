// ABOUTME: Transport seam for the duplex channel and its websocket implementation.
// ABOUTME: WebSocketDialer opens text-frame websocket connections with coder/websocket.

package connection

import (
	"context"
	"fmt"
	"net/http"

	"github.com/coder/websocket"
)

// Conn is an open duplex channel. *wsConn satisfies it in production; tests
// substitute scripted fakes.
type Conn interface {
	// Read blocks until the next inbound frame. Any error means the channel
	// is gone.
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, data []byte) error
	Close() error
}

// Dialer opens a Conn to the given address. Dial returns once the channel
// is open or has failed.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// WebSocketDialer dials websocket channels.
type WebSocketDialer struct {
	// HTTPClient is used for the handshake. If nil, http.DefaultClient is used.
	HTTPClient *http.Client
	// Header is sent with the handshake request.
	Header http.Header
	// ReadLimit caps a single inbound frame in bytes. Zero keeps the library default.
	ReadLimit int64
}

// Dial performs the websocket handshake.
func (d *WebSocketDialer) Dial(ctx context.Context, url string) (Conn, error) {
	c, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{ //nolint:bodyclose // websocket.Dial closes the response body internally
		HTTPClient: d.HTTPClient,
		HTTPHeader: d.Header,
	})
	if err != nil {
		return nil, fmt.Errorf("dialing websocket: %w", err)
	}
	if d.ReadLimit > 0 {
		c.SetReadLimit(d.ReadLimit)
	}
	return &wsConn{conn: c}, nil
}

type wsConn struct {
	conn *websocket.Conn
}

func (c *wsConn) Read(ctx context.Context) ([]byte, error) {
	_, data, err := c.conn.Read(ctx)
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (c *wsConn) Write(ctx context.Context, data []byte) error {
	return c.conn.Write(ctx, websocket.MessageText, data)
}

func (c *wsConn) Close() error {
	return c.conn.Close(websocket.StatusNormalClosure, "client disconnect")
}
