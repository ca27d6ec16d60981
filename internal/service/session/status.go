package session

import (
	"time"

	"conversation-transcriber/internal/models"
	"conversation-transcriber/internal/service/turn"
)

// ChannelStatus describes one speaker's transcription channel.
type ChannelStatus struct {
	Open  bool   `json:"open"`
	Error string `json:"error,omitempty"`
}

// BufferStatus describes one speaker's utterance buffer.
type BufferStatus struct {
	State       string `json:"state"`
	Partial     string `json:"partial,omitempty"`
	Accumulated string `json:"accumulated,omitempty"`
}

// Status is a point-in-time view of the coordinator.
type Status struct {
	Active         bool                             `json:"active"`
	SessionID      string                           `json:"sessionId,omitempty"`
	Language       string                           `json:"language,omitempty"`
	Provider       string                           `json:"provider,omitempty"`
	StartedAt      *time.Time                       `json:"startedAt,omitempty"`
	CaptureRunning bool                             `json:"captureRunning"`
	Channels       map[models.Speaker]ChannelStatus `json:"channels,omitempty"`
	Buffers        map[models.Speaker]BufferStatus  `json:"buffers,omitempty"`
}

// Status reports the running session, if any.
func (c *Coordinator) Status() Status {
	c.mu.RLock()
	a := c.current
	c.mu.RUnlock()

	st := Status{CaptureRunning: c.capture.Running()}
	if a == nil {
		return st
	}

	started := a.startedAt
	st.Active = true
	st.SessionID = a.session.ID
	st.Language = a.language
	st.Provider = c.cfg.STT.Provider
	st.StartedAt = &started
	st.Channels = make(map[models.Speaker]ChannelStatus, len(a.channels))
	st.Buffers = make(map[models.Speaker]BufferStatus, len(models.Speakers))

	for speaker, ch := range a.channels {
		cs := ChannelStatus{Open: !ch.Closed()}
		if err := ch.Err(); err != nil {
			cs.Error = err.Error()
		}
		st.Channels[speaker] = cs
	}
	for _, speaker := range models.Speakers {
		st.Buffers[speaker] = bufferStatus(a.aggregator.Snapshot(speaker))
	}
	return st
}

func bufferStatus(s turn.Snapshot) BufferStatus {
	return BufferStatus{
		State:       s.State.String(),
		Partial:     s.Partial,
		Accumulated: s.Accumulated,
	}
}

// StopResult reports the outcome of Stop to control-surface callers.
type StopResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// ResultOf converts a Stop error.
func ResultOf(err error) StopResult {
	if err != nil {
		return StopResult{Success: false, Error: err.Error()}
	}
	return StopResult{Success: true}
}
