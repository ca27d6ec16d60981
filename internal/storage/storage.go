// Package storage persists session records and finalized turns.
package storage

import (
	"context"
	"errors"
	"time"

	"conversation-transcriber/internal/models"
)

// Errors returned by Gateway implementations.
var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionEnded    = errors.New("session already ended")
)

// Gateway is the durable store for sessions and turns.
type Gateway interface {
	// GetOrCreateActive resumes the owner's open session of the given type,
	// or creates one.
	GetOrCreateActive(ctx context.Context, ownerID, sessionType string) (models.Session, error)

	// TouchSession updates the session's liveness timestamp.
	TouchSession(ctx context.Context, sessionID string) error

	// EndSession marks the session ended. Ended sessions are immutable.
	EndSession(ctx context.Context, sessionID string) error

	// AppendTranscript appends one finalized turn.
	AppendTranscript(ctx context.Context, turn models.Turn) error

	// ListTranscripts returns a session's turns in append order.
	ListTranscripts(ctx context.Context, sessionID string) ([]Transcript, error)
}

// Transcript is a persisted turn.
type Transcript struct {
	ID         string         `json:"id" bson:"_id"`
	SessionID  string         `json:"sessionId" bson:"session_id"`
	Speaker    models.Speaker `json:"speaker" bson:"speaker"`
	Text       string         `json:"text" bson:"text"`
	OccurredAt time.Time      `json:"occurredAt" bson:"occurred_at"`
	CreatedAt  time.Time      `json:"createdAt" bson:"created_at"`
}

// TranscriptFrom converts a turn into its stored form.
func TranscriptFrom(t models.Turn, now time.Time) Transcript {
	return Transcript{
		ID:         t.ID,
		SessionID:  t.SessionID,
		Speaker:    t.Speaker,
		Text:       t.Text,
		OccurredAt: t.OccurredAt,
		CreatedAt:  now,
	}
}
