// Package openai provides a realtime transcription adapter for the OpenAI
// realtime websocket API.
package openai

import (
	"encoding/json"
	"errors"
	"fmt"

	"conversation-transcriber/internal/models"
	"conversation-transcriber/internal/service/stt"
)

// Inbound message types.
const (
	typeDelta     = "conversation.item.input_audio_transcription.delta"
	typeCompleted = "conversation.item.input_audio_transcription.completed"
	typeFailed    = "conversation.item.input_audio_transcription.failed"
	typeError     = "error"
)

// Message is the subset of inbound realtime events the adapter reads.
type Message struct {
	Type       string    `json:"type"`
	ItemID     string    `json:"item_id,omitempty"`
	Delta      string    `json:"delta,omitempty"`
	Transcript string    `json:"transcript,omitempty"`
	Error      *APIError `json:"error,omitempty"`
}

// APIError is the error payload of "error" and "...failed" events.
type APIError struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("openai realtime %s (%s): %s", e.Type, e.Code, e.Message)
}

// Partial tracks the in-progress transcript of one conversation item.
// The provider streams deltas; the channel contract wants the full text.
type Partial struct {
	ItemID string
	Text   string
}

// Result is a normalized transcript ready for the channel.
type Result struct {
	Text string
	Kind models.EventKind
}

// Normalize maps one inbound message to at most one result. It is pure: the
// caller threads the returned Partial into the next call. ok is false for
// messages that carry no speech. A non-nil error means the provider reported
// a session-level failure.
func Normalize(msg Message, prev Partial) (res Result, next Partial, ok bool, err error) {
	switch msg.Type {
	case typeDelta:
		next = prev
		if next.ItemID != msg.ItemID {
			next = Partial{ItemID: msg.ItemID}
		}
		next.Text += msg.Delta
		text := stt.CleanText(next.Text)
		if text == "" {
			return Result{}, next, false, nil
		}
		return Result{Text: text, Kind: models.KindPartial}, next, true, nil

	case typeCompleted:
		text := stt.CleanText(msg.Transcript)
		if text == "" {
			return Result{}, Partial{}, false, nil
		}
		return Result{Text: text, Kind: models.KindFinal}, Partial{}, true, nil

	case typeFailed:
		// A single item failing to transcribe is not fatal to the session.
		if prev.ItemID == msg.ItemID {
			return Result{}, Partial{}, false, nil
		}
		return Result{}, prev, false, nil

	case typeError:
		if msg.Error == nil {
			return Result{}, prev, false, errors.New("openai realtime: unspecified error")
		}
		return Result{}, prev, false, msg.Error

	default:
		return Result{}, prev, false, nil
	}
}

// Decode parses a raw inbound payload.
func Decode(raw []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return Message{}, fmt.Errorf("decode openai message: %w", err)
	}
	return msg, nil
}
