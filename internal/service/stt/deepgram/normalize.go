// Package deepgram provides a realtime transcription adapter for Deepgram's
// streaming listen websocket.
package deepgram

import (
	"encoding/json"
	"fmt"

	"conversation-transcriber/internal/models"
	"conversation-transcriber/internal/service/stt"
)

// Message is an inbound Deepgram streaming message.
type Message struct {
	Type        string  `json:"type"`
	IsFinal     bool    `json:"is_final"`
	SpeechFinal bool    `json:"speech_final"`
	Channel     Channel `json:"channel"`
	Description string  `json:"description,omitempty"`
}

// Channel holds the recognition alternatives of a Results message.
type Channel struct {
	Alternatives []Alternative `json:"alternatives"`
}

// Alternative is one recognition hypothesis.
type Alternative struct {
	Transcript string  `json:"transcript"`
	Confidence float64 `json:"confidence"`
}

// Result is a normalized transcript ready for the channel.
type Result struct {
	Text       string
	Kind       models.EventKind
	Confidence float64
}

// Normalize maps one inbound message to at most one result. Only "Results"
// messages carry speech; is_final decides Partial vs Final.
func Normalize(msg Message) (Result, bool) {
	if msg.Type != "" && msg.Type != "Results" {
		return Result{}, false
	}
	if len(msg.Channel.Alternatives) == 0 {
		return Result{}, false
	}
	alt := msg.Channel.Alternatives[0]
	text := stt.CleanText(alt.Transcript)
	if text == "" {
		return Result{}, false
	}

	kind := models.KindPartial
	if msg.IsFinal {
		kind = models.KindFinal
	}
	return Result{Text: text, Kind: kind, Confidence: alt.Confidence}, true
}

// Decode parses a raw inbound payload.
func Decode(raw []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return Message{}, fmt.Errorf("decode deepgram message: %w", err)
	}
	return msg, nil
}
