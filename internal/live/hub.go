// Package live streams transcript updates and echo-reference audio to
// websocket clients.
package live

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"conversation-transcriber/internal/models"
	"conversation-transcriber/internal/observability/logging"
	"conversation-transcriber/internal/observability/metrics"
)

// Streams a client can subscribe to.
const (
	StreamTranscripts = "transcripts"
	StreamEcho        = "echo"
)

const (
	clientBuffer = 64
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = (pongWait * 9) / 10
)

type message struct {
	kind int
	data []byte
}

type client struct {
	conn   *websocket.Conn
	stream string
	send   chan message
}

// Hub fans updates out to connected websocket clients. Slow clients lose
// messages rather than stalling the pipeline.
type Hub struct {
	mu       sync.RWMutex
	clients  map[*client]struct{}
	partials map[models.Speaker][]byte // latest in-progress line per speaker
	closed   bool

	upgrader websocket.Upgrader
	metrics  *metrics.Metrics
	logger   zerolog.Logger
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		clients:  make(map[*client]struct{}),
		partials: make(map[models.Speaker][]byte),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				return true // local viewer pages are served from other origins
			},
		},
		metrics: metrics.DefaultMetrics,
		logger:  logging.WithComponent("live"),
	}
}

// Push implements events.Consumer. New transcript clients are replayed the
// speakers' current partial lines so they can render in-progress text.
func (h *Hub) Push(ctx context.Context, u models.Update) error {
	payload, err := json.Marshal(u)
	if err != nil {
		return err
	}

	h.mu.Lock()
	if u.IsPartial {
		h.partials[u.Speaker] = payload
	} else {
		delete(h.partials, u.Speaker)
	}
	h.mu.Unlock()

	h.broadcast(StreamTranscripts, message{kind: websocket.TextMessage, data: payload})
	return nil
}

// ResetPartials implements events.PartialResetter. A stopped session's
// in-progress lines are not replayed to later clients.
func (h *Hub) ResetPartials() {
	h.mu.Lock()
	defer h.mu.Unlock()
	clear(h.partials)
}

// Echo implements events.EchoSink.
func (h *Hub) Echo(pcm []byte) {
	frame := make([]byte, len(pcm))
	copy(frame, pcm)
	h.broadcast(StreamEcho, message{kind: websocket.BinaryMessage, data: frame})
}

func (h *Hub) broadcast(stream string, msg message) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients {
		if c.stream != stream {
			continue
		}
		select {
		case c.send <- msg:
		default:
			if stream == StreamEcho {
				h.metrics.RecordEchoDropped()
			} else {
				h.metrics.RecordLiveDropped(stream)
			}
		}
	}
}

// Clients returns the number of clients subscribed to stream.
func (h *Hub) Clients(stream string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for c := range h.clients {
		if c.stream == stream {
			n++
		}
	}
	return n
}

// ServeTranscripts upgrades the request and streams JSON updates.
func (h *Hub) ServeTranscripts(w http.ResponseWriter, r *http.Request) {
	h.serve(StreamTranscripts, w, r)
}

// ServeEcho upgrades the request and streams binary mono PCM frames.
func (h *Hub) ServeEcho(w http.ResponseWriter, r *http.Request) {
	h.serve(StreamEcho, w, r)
}

func (h *Hub) serve(stream string, w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Str("stream", stream).Msg("WebSocket upgrade failed")
		return
	}

	c := &client{conn: conn, stream: stream, send: make(chan message, clientBuffer)}
	if !h.register(c) {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(writeWait))
		conn.Close()
		return
	}

	go h.writePump(c)
	go h.readPump(c)
}

func (h *Hub) register(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	if c.stream == StreamTranscripts {
		for _, speaker := range models.Speakers {
			if p, ok := h.partials[speaker]; ok {
				c.send <- message{kind: websocket.TextMessage, data: p}
			}
		}
	}
	h.clients[c] = struct{}{}
	h.metrics.RecordLiveClient(c.stream, 1)
	h.logger.Debug().Str("stream", c.stream).Int("clients", len(h.clients)).Msg("Client connected")
	return true
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
	h.metrics.RecordLiveClient(c.stream, -1)
	h.logger.Debug().Str("stream", c.stream).Int("clients", len(h.clients)).Msg("Client disconnected")
}

// readPump discards client messages and notices disconnects.
func (h *Hub) readPump(c *client) {
	defer h.unregister(c)

	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(msg.kind, msg.data); err != nil {
				h.unregister(c)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.unregister(c)
				return
			}
		}
	}
}

// Close disconnects every client and refuses new ones.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
		h.metrics.RecordLiveClient(c.stream, -1)
	}
	return nil
}
