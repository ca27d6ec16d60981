package storage

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"conversation-transcriber/internal/models"
)

// Memory is an in-process Gateway used when no database is configured.
type Memory struct {
	mu          sync.RWMutex
	sessions    map[string]*models.Session
	transcripts map[string][]Transcript
	now         func() time.Time
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		sessions:    make(map[string]*models.Session),
		transcripts: make(map[string][]Transcript),
		now:         time.Now,
	}
}

func (m *Memory) GetOrCreateActive(ctx context.Context, ownerID, sessionType string) (models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for _, s := range m.sessions {
		if s.OwnerID == ownerID && s.Type == sessionType && !s.Ended() {
			s.UpdatedAt = now
			return *s, nil
		}
	}

	s := &models.Session{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		Type:      sessionType,
		StartedAt: now,
		UpdatedAt: now,
	}
	m.sessions[s.ID] = s
	return *s, nil
}

func (m *Memory) TouchSession(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.openLocked(sessionID)
	if err != nil {
		return err
	}
	s.UpdatedAt = m.now()
	return nil
}

func (m *Memory) EndSession(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.openLocked(sessionID)
	if err != nil {
		return err
	}
	now := m.now()
	s.EndedAt = &now
	s.UpdatedAt = now
	return nil
}

func (m *Memory) AppendTranscript(ctx context.Context, turn models.Turn) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[turn.SessionID]; !ok {
		return ErrSessionNotFound
	}
	m.transcripts[turn.SessionID] = append(m.transcripts[turn.SessionID], TranscriptFrom(turn, m.now()))
	return nil
}

func (m *Memory) ListTranscripts(ctx context.Context, sessionID string) ([]Transcript, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.sessions[sessionID]; !ok {
		return nil, ErrSessionNotFound
	}
	return append([]Transcript(nil), m.transcripts[sessionID]...), nil
}

// Session returns a copy of the stored session record.
func (m *Memory) Session(sessionID string) (models.Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return models.Session{}, false
	}
	return *s, true
}

func (m *Memory) openLocked(sessionID string) (*models.Session, error) {
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	if s.Ended() {
		return nil, ErrSessionEnded
	}
	return s, nil
}
