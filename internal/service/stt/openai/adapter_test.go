package openai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"conversation-transcriber/internal/models"
	"conversation-transcriber/internal/service/stt"
)

func TestNormalize_DeltasAccumulatePerItem(t *testing.T) {
	var p Partial

	res, p, ok, err := Normalize(Message{Type: typeDelta, ItemID: "i1", Delta: "Hel"}, p)
	if err != nil || !ok || res.Text != "Hel" || res.Kind != models.KindPartial {
		t.Fatalf("unexpected first delta result: %+v ok=%v err=%v", res, ok, err)
	}

	res, p, ok, _ = Normalize(Message{Type: typeDelta, ItemID: "i1", Delta: "lo"}, p)
	if !ok || res.Text != "Hello" {
		t.Fatalf("expected accumulated partial 'Hello', got %+v", res)
	}

	// A new item starts a fresh partial.
	res, p, ok, _ = Normalize(Message{Type: typeDelta, ItemID: "i2", Delta: "Next"}, p)
	if !ok || res.Text != "Next" || p.ItemID != "i2" {
		t.Fatalf("expected fresh partial for new item, got %+v (%+v)", res, p)
	}

	res, p, ok, _ = Normalize(Message{Type: typeCompleted, ItemID: "i2", Transcript: " Next one. "}, p)
	if !ok || res.Kind != models.KindFinal || res.Text != "Next one." {
		t.Fatalf("unexpected completed result: %+v", res)
	}
	if p != (Partial{}) {
		t.Errorf("expected partial reset after completion, got %+v", p)
	}
}

func TestNormalize_SkipsNonSpeech(t *testing.T) {
	tests := []struct {
		name string
		msg  Message
	}{
		{"blank completed", Message{Type: typeCompleted, Transcript: "   "}},
		{"marker only", Message{Type: typeCompleted, Transcript: "[BLANK_AUDIO]"}},
		{"marker delta", Message{Type: typeDelta, ItemID: "x", Delta: "<noise>"}},
		{"unknown type", Message{Type: "input_audio_buffer.speech_started"}},
		{"session created", Message{Type: "transcription_session.created"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, ok, err := Normalize(tt.msg, Partial{})
			if ok || err != nil {
				t.Errorf("expected no result and no error, got ok=%v err=%v", ok, err)
			}
		})
	}
}

func TestNormalize_Errors(t *testing.T) {
	_, _, _, err := Normalize(Message{Type: typeError, Error: &APIError{Type: "server_error", Message: "boom"}}, Partial{})
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Message != "boom" {
		t.Errorf("expected APIError, got %v", err)
	}

	_, _, _, err = Normalize(Message{Type: typeError}, Partial{})
	if err == nil {
		t.Error("expected error for error message without payload")
	}

	_, next, ok, err := Normalize(Message{Type: typeFailed, ItemID: "i1"}, Partial{ItemID: "i1", Text: "abc"})
	if ok || err != nil || next != (Partial{}) {
		t.Errorf("expected failed item to clear partial silently, got next=%+v ok=%v err=%v", next, ok, err)
	}
}

func TestSessionUpdate_Shape(t *testing.T) {
	cfg := stt.Config{LanguageCode: "en", Model: DefaultModel}
	raw, err := json.Marshal(SessionUpdate(cfg))
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var decoded map[string]any
	json.Unmarshal(raw, &decoded)
	if decoded["type"] != "transcription_session.update" {
		t.Errorf("unexpected type %v", decoded["type"])
	}
	session := decoded["session"].(map[string]any)
	if session["input_audio_format"] != "pcm16" {
		t.Errorf("unexpected format %v", session["input_audio_format"])
	}
	td := session["turn_detection"].(map[string]any)
	if td["type"] != "server_vad" || td["silence_duration_ms"].(float64) != 100 {
		t.Errorf("unexpected turn detection %v", td)
	}
}

func TestNew_RequiresAPIKey(t *testing.T) {
	if _, err := New(stt.Config{}); !errors.Is(err, stt.ErrMissingCredentials) {
		t.Errorf("expected ErrMissingCredentials, got %v", err)
	}
}

// testCallback implements stt.Callback for testing
type testCallback struct {
	mu       sync.Mutex
	partials []string
	finals   []string
	errors   []error
	gotFinal chan struct{}
}

func newTestCallback() *testCallback {
	return &testCallback{gotFinal: make(chan struct{}, 1)}
}

func (c *testCallback) OnPartial(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.partials = append(c.partials, text)
}

func (c *testCallback) OnFinal(text string, confidence float64) {
	c.mu.Lock()
	c.finals = append(c.finals, text)
	c.mu.Unlock()
	select {
	case c.gotFinal <- struct{}{}:
	default:
	}
}

func (c *testCallback) OnError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errors = append(c.errors, err)
}

func TestAdapter_RoundTrip(t *testing.T) {
	upgrader := websocket.Upgrader{}
	received := make(chan Message, 4)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()

		for i := 0; i < 2; i++ {
			var msg map[string]any
			if err := ws.ReadJSON(&msg); err != nil {
				return
			}
			m := Message{Type: msg["type"].(string)}
			if audio, ok := msg["audio"].(string); ok {
				m.Delta = audio
			}
			received <- m
		}

		ws.WriteJSON(Message{Type: typeDelta, ItemID: "i1", Delta: "Hel"})
		ws.WriteJSON(Message{Type: typeDelta, ItemID: "i1", Delta: "lo"})
		ws.WriteJSON(Message{Type: typeCompleted, ItemID: "i1", Transcript: "Hello."})

		// Hold the socket open until the client closes it.
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	a, err := New(stt.Config{APIKey: "sk-test", Endpoint: "ws" + strings.TrimPrefix(srv.URL, "http")})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	cb := newTestCallback()

	if err := a.Start(context.Background(), cb); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := a.SendAudio(context.Background(), []byte{1, 2, 3}); err != nil {
		t.Fatalf("SendAudio failed: %v", err)
	}

	first := <-received
	if first.Type != "transcription_session.update" {
		t.Errorf("expected session update first, got %s", first.Type)
	}
	second := <-received
	if second.Type != "input_audio_buffer.append" || second.Delta != base64.StdEncoding.EncodeToString([]byte{1, 2, 3}) {
		t.Errorf("unexpected append message: %+v", second)
	}

	select {
	case <-cb.gotFinal:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for final")
	}

	cb.mu.Lock()
	if len(cb.partials) != 2 || cb.partials[1] != "Hello" {
		t.Errorf("unexpected partials %v", cb.partials)
	}
	if len(cb.finals) != 1 || cb.finals[0] != "Hello." {
		t.Errorf("unexpected finals %v", cb.finals)
	}
	cb.mu.Unlock()

	if err := a.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
	if err := a.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}

	time.Sleep(50 * time.Millisecond)
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if len(cb.errors) != 0 {
		t.Errorf("expected no errors after our own close, got %v", cb.errors)
	}
}

func TestAdapter_ServerDropReportsError(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		var msg map[string]any
		ws.ReadJSON(&msg)
		ws.Close()
	}))
	defer srv.Close()

	a, _ := New(stt.Config{APIKey: "k", Endpoint: "ws" + strings.TrimPrefix(srv.URL, "http")})
	cb := newTestCallback()
	if err := a.Start(context.Background(), cb); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		cb.mu.Lock()
		n := len(cb.errors)
		cb.mu.Unlock()
		if n > 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("expected OnError after server dropped the connection")
}
