// Package models defines the data structures shared across the transcription pipeline.
package models

import (
	"fmt"
	"time"
)

// Speaker identifies which side of the conversation an audio stream or transcript belongs to.
type Speaker string

const (
	// SpeakerMe is the local microphone.
	SpeakerMe Speaker = "me"
	// SpeakerThem is captured system/output audio.
	SpeakerThem Speaker = "them"
)

// Speakers lists both conversation sides in a stable order.
var Speakers = [2]Speaker{SpeakerMe, SpeakerThem}

// Other returns the opposite side of the conversation.
func (s Speaker) Other() Speaker {
	if s == SpeakerMe {
		return SpeakerThem
	}
	return SpeakerMe
}

// Valid reports whether s is one of the two known speakers.
func (s Speaker) Valid() bool {
	return s == SpeakerMe || s == SpeakerThem
}

// Label returns the display label used in persisted transcripts.
func (s Speaker) Label() string {
	switch s {
	case SpeakerMe:
		return "Me"
	case SpeakerThem:
		return "Them"
	default:
		return fmt.Sprintf("Unknown(%s)", string(s))
	}
}

// ParseSpeaker parses "me"/"them" (case-insensitive labels are accepted too).
func ParseSpeaker(v string) (Speaker, error) {
	switch v {
	case "me", "Me", "ME":
		return SpeakerMe, nil
	case "them", "Them", "THEM":
		return SpeakerThem, nil
	}
	return "", fmt.Errorf("unknown speaker %q", v)
}

// EventKind distinguishes in-progress transcription from provider-declared completed fragments.
type EventKind int

const (
	// KindPartial is an in-progress fragment, superseded by later partials.
	KindPartial EventKind = iota
	// KindFinal is a completed fragment for the current utterance.
	KindFinal
)

// String returns the string representation of the kind.
func (k EventKind) String() string {
	switch k {
	case KindPartial:
		return "PARTIAL"
	case KindFinal:
		return "FINAL"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int(k))
	}
}

// SessionTypeListen is the session type recorded for live conversation capture.
const SessionTypeListen = "listen"

// Session is the persisted record of one conversation.
type Session struct {
	ID        string     `json:"id" bson:"_id"`
	OwnerID   string     `json:"ownerId" bson:"owner_id"`
	Type      string     `json:"type" bson:"type"`
	StartedAt time.Time  `json:"startedAt" bson:"started_at"`
	UpdatedAt time.Time  `json:"updatedAt" bson:"updated_at"`
	EndedAt   *time.Time `json:"endedAt,omitempty" bson:"ended_at,omitempty"`
}

// Ended reports whether the session has been closed.
func (s Session) Ended() bool {
	return s.EndedAt != nil
}

// Turn is one finalized utterance attributed to a single speaker. Write-once.
type Turn struct {
	ID         string    `json:"id"`
	SessionID  string    `json:"sessionId"`
	Speaker    Speaker   `json:"speaker"`
	Text       string    `json:"text"`
	OccurredAt time.Time `json:"occurredAt"`
}

// AudioFrame is one fixed-duration chunk of mono PCM ready for a provider.
type AudioFrame struct {
	PCM        []byte
	SampleRate int
	Channels   int
	Speaker    Speaker
}

// Event types pushed downstream.
const (
	EventTypePartial = "conversation.transcript.partial"
	EventTypeFinal   = "conversation.transcript.final"
)

// Update is the downstream push shape. Partial updates replace the speaker's
// in-progress line; final updates are append-only.
type Update struct {
	EventType string  `json:"eventType"`
	SessionID string  `json:"sessionId"`
	TurnID    string  `json:"turnId,omitempty"`
	Speaker   Speaker `json:"speaker"`
	Text      string  `json:"text"`
	IsPartial bool    `json:"isPartial"`
	Timestamp int64   `json:"timestamp"`
}

// NewPartialUpdate builds a live preview update.
func NewPartialUpdate(sessionID string, speaker Speaker, text string) Update {
	return Update{
		EventType: EventTypePartial,
		SessionID: sessionID,
		Speaker:   speaker,
		Text:      text,
		IsPartial: true,
		Timestamp: time.Now().UnixMilli(),
	}
}

// NewFinalUpdate builds the append-only update for a finalized turn.
func NewFinalUpdate(t Turn) Update {
	return Update{
		EventType: EventTypeFinal,
		SessionID: t.SessionID,
		TurnID:    t.ID,
		Speaker:   t.Speaker,
		Text:      t.Text,
		IsPartial: false,
		Timestamp: t.OccurredAt.UnixMilli(),
	}
}
