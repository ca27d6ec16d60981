package wsconn

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

type received struct {
	kind int
	data string
}

// echoServer records every message and the close code it sees.
func echoServer(t *testing.T) (string, <-chan received, <-chan int) {
	t.Helper()
	msgs := make(chan received, 16)
	closed := make(chan int, 1)
	upgrader := websocket.Upgrader{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Token abc" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		for {
			kind, data, err := ws.ReadMessage()
			if err != nil {
				if ce, ok := err.(*websocket.CloseError); ok {
					closed <- ce.Code
				}
				return
			}
			msgs <- received{kind: kind, data: string(data)}
		}
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http"), msgs, closed
}

func TestDial_RejectedHandshakeIncludesStatus(t *testing.T) {
	url, _, _ := echoServer(t)

	_, err := Dial(context.Background(), url, nil)
	if err == nil || !strings.Contains(err.Error(), "401") {
		t.Errorf("expected 401 in dial error, got %v", err)
	}
}

func TestConn_WritesAndGracefulClose(t *testing.T) {
	url, msgs, closed := echoServer(t)

	c, err := Dial(context.Background(), url, http.Header{"Authorization": {"Token abc"}})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}

	if err := c.WriteBinary([]byte{1, 2}); err != nil {
		t.Fatalf("WriteBinary: %v", err)
	}
	if err := c.WriteJSON(map[string]string{"type": "ping"}); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	if c.Closing() {
		t.Error("expected not closing before Close")
	}
	if err := c.Close(map[string]string{"type": "CloseStream"}); err != nil {
		t.Errorf("Close: %v", err)
	}
	if err := c.Close(nil); err != nil {
		t.Errorf("second Close: %v", err)
	}
	if !c.Closing() {
		t.Error("expected closing after Close")
	}

	want := []received{
		{websocket.BinaryMessage, "\x01\x02"},
		{websocket.TextMessage, `{"type":"ping"}`},
		{websocket.TextMessage, `{"type":"CloseStream"}`},
	}
	for i, w := range want {
		select {
		case got := <-msgs:
			if got.kind != w.kind || strings.TrimSpace(got.data) != w.data {
				t.Errorf("message %d = %+v, want %+v", i, got, w)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("message %d not received", i)
		}
	}

	select {
	case code := <-closed:
		if code != websocket.CloseNormalClosure {
			t.Errorf("expected normal closure, got %d", code)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server never saw a close frame")
	}
}
