// Package stt defines the interface for Speech-to-Text adapters and the
// per-speaker transcription channel that normalizes them into canonical events.
package stt

import (
	"context"
	"errors"
	"time"

	"conversation-transcriber/internal/models"
)

// Errors surfaced by channel construction and use.
var (
	ErrChannelClosed       = errors.New("transcription channel is closed")
	ErrUnsupportedProvider = errors.New("unsupported stt provider")
	ErrMissingCredentials  = errors.New("missing stt provider credentials")
)

// Callback receives normalized transcript results from the STT provider.
// Text passed to OnPartial/OnFinal is already cleaned and never empty.
type Callback interface {
	// OnPartial is called when an interim/partial transcript is received.
	// The text is the full in-progress utterance, not a delta.
	OnPartial(text string)

	// OnFinal is called when the provider declares a fragment complete.
	OnFinal(text string, confidence float64)

	// OnError is called when the transport fails. No further callbacks follow.
	OnError(err error)
}

// Adapter defines the interface for STT providers (OpenAI, Deepgram, Google, etc.).
type Adapter interface {
	// Start opens the provider session and sends the initial configuration.
	Start(ctx context.Context, cb Callback) error

	// SendAudio sends one mono PCM frame to the provider.
	SendAudio(ctx context.Context, audio []byte) error

	// Close sends a best-effort termination message and closes the transport.
	// Must be idempotent.
	Close() error
}

// Event is the canonical transcription event every provider is normalized into.
type Event struct {
	Speaker   models.Speaker
	Text      string
	Kind      models.EventKind
	Timestamp time.Time
}

// TurnDetection tunes provider-side end-of-speech detection.
type TurnDetection struct {
	Threshold       float64       // VAD sensitivity, 0..1
	PrefixPadding   time.Duration // audio kept before detected speech
	SilenceDuration time.Duration // silence that ends a provider utterance
}

// DefaultTurnDetection returns the detection settings used when none are configured.
func DefaultTurnDetection() TurnDetection {
	return TurnDetection{
		Threshold:       0.5,
		PrefixPadding:   200 * time.Millisecond,
		SilenceDuration: 100 * time.Millisecond,
	}
}

// Config describes one provider session.
type Config struct {
	Provider      string
	LanguageCode  string
	APIKey        string
	Model         string
	Endpoint      string
	SampleRate    int
	TurnDetection TurnDetection
}
