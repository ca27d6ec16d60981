// Package wsconn is the websocket transport shared by realtime STT providers.
package wsconn

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// DefaultWriteTimeout bounds every write so a stalled socket surfaces as an error.
const DefaultWriteTimeout = 5 * time.Second

// Conn serializes writes on a gorilla websocket and makes Close idempotent.
// Reads must come from a single goroutine.
type Conn struct {
	ws           *websocket.Conn
	writeMu      sync.Mutex
	closeOnce    sync.Once
	closing      atomic.Bool
	writeTimeout time.Duration
}

// Dial opens a websocket connection.
func Dial(ctx context.Context, url string, header http.Header) (*Conn, error) {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: 10 * time.Second,
	}
	ws, resp, err := dialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket dial: %s: %w", resp.Status, err)
		}
		return nil, fmt.Errorf("websocket dial: %w", err)
	}
	return New(ws), nil
}

// New wraps an established websocket.
func New(ws *websocket.Conn) *Conn {
	return &Conn{ws: ws, writeTimeout: DefaultWriteTimeout}
}

// WriteJSON sends v as a text message.
func (c *Conn) WriteJSON(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	return c.ws.WriteJSON(v)
}

// WriteBinary sends b as a binary message.
func (c *Conn) WriteBinary(b []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	return c.ws.WriteMessage(websocket.BinaryMessage, b)
}

// Read returns the next message payload.
func (c *Conn) Read() ([]byte, error) {
	_, data, err := c.ws.ReadMessage()
	return data, err
}

// Closing reports whether Close has been called.
func (c *Conn) Closing() bool {
	return c.closing.Load()
}

// Close sends final (if non-nil) as a graceful termination message, then a
// close frame, then closes the socket. Every step is best-effort and the
// call never fails on an already-closed connection.
func (c *Conn) Close(final any) error {
	c.closeOnce.Do(func() {
		c.closing.Store(true)

		c.writeMu.Lock()
		deadline := time.Now().Add(time.Second)
		_ = c.ws.SetWriteDeadline(deadline)
		if final != nil {
			_ = c.ws.WriteJSON(final)
		}
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "closing"), deadline)
		c.writeMu.Unlock()

		_ = c.ws.Close()
	})
	return nil
}
