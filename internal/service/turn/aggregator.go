// Package turn merges per-speaker transcription events into finalized
// conversation turns.
package turn

import (
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"conversation-transcriber/internal/models"
	"conversation-transcriber/internal/observability/logging"
	"conversation-transcriber/internal/observability/metrics"
	"conversation-transcriber/internal/service/stt"
)

// DefaultDebounce is the quiet period after the last final before a turn is flushed.
const DefaultDebounce = 2000 * time.Millisecond

// Sink receives aggregator output. Calls are made while the aggregator holds
// its lock, so they arrive in emission order and must not call back into
// the aggregator.
type Sink interface {
	// EmitPartial delivers a live preview; it replaces the speaker's previous one.
	EmitPartial(speaker models.Speaker, text string)

	// EmitTurn delivers a finalized turn.
	EmitTurn(turn models.Turn)
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithDebounce overrides DefaultDebounce.
func WithDebounce(d time.Duration) Option {
	return func(a *Aggregator) {
		if d > 0 {
			a.debounce = d
		}
	}
}

// WithGenerator shares a turn ID generator across aggregators.
func WithGenerator(g *Generator) Option {
	return func(a *Aggregator) {
		if g != nil {
			a.ids = g
		}
	}
}

// Aggregator owns the two utterance buffers of one session.
//
// Rules:
//   - Partial: replaces the speaker's live text and is emitted immediately.
//   - Final: appended to the speaker's buffer; the debounce timer is restarted.
//   - Timer expiry: the buffer is flushed as one Turn.
//   - Any event for one speaker while the other has an armed timer flushes
//     the other speaker first, inside the same critical section.
type Aggregator struct {
	mu        sync.Mutex
	sessionID string
	debounce  time.Duration
	buffers   map[models.Speaker]*Buffer
	sink      Sink
	ids       *Generator
	stopped   bool

	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// NewAggregator creates an aggregator for one session.
func NewAggregator(sessionID string, sink Sink, opts ...Option) *Aggregator {
	a := &Aggregator{
		sessionID: sessionID,
		debounce:  DefaultDebounce,
		buffers: map[models.Speaker]*Buffer{
			models.SpeakerMe:   {},
			models.SpeakerThem: {},
		},
		sink:    sink,
		ids:     NewGenerator(),
		metrics: metrics.DefaultMetrics,
		logger:  logging.WithSession(sessionID).With().Str("component", "turn").Logger(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Debounce returns the configured debounce window.
func (a *Aggregator) Debounce() time.Duration {
	return a.debounce
}

// Handle applies one canonical event. Safe to call from both channels concurrently.
func (a *Aggregator) Handle(ev stt.Event) {
	if !ev.Speaker.Valid() {
		a.logger.Warn().Str("speaker", string(ev.Speaker)).Msg("Dropping event for unknown speaker")
		return
	}
	text := strings.TrimSpace(ev.Text)
	if text == "" {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stopped {
		return
	}

	other := ev.Speaker.Other()
	if a.buffers[other].Pending() {
		a.metrics.RecordInterruption(string(other))
		a.logger.Debug().
			Str("interrupted", string(other)).
			Str("by", string(ev.Speaker)).
			Msg("Interruption, flushing pending turn")
		a.flushLocked(other)
	}

	buf := a.buffers[ev.Speaker]
	switch ev.Kind {
	case models.KindPartial:
		buf.SetPartial(text)
		if a.sink != nil {
			a.sink.EmitPartial(ev.Speaker, text)
		}
	case models.KindFinal:
		buf.AppendFinal(text)
		speaker := ev.Speaker
		buf.Arm(a.debounce, func(gen uint64) { a.expire(speaker, gen) })
	default:
		a.logger.Warn().Stringer("kind", ev.Kind).Msg("Dropping event of unknown kind")
	}
}

// Flush emits the speaker's accumulated text as a turn now. A no-op on an
// empty buffer. Returns whether a turn was emitted.
func (a *Aggregator) Flush(speaker models.Speaker) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stopped || !speaker.Valid() {
		return false
	}
	return a.flushLocked(speaker)
}

// Snapshot is a read-only copy of one buffer.
type Snapshot struct {
	State       State
	Partial     string
	Accumulated string
	Deadline    time.Time
}

// Snapshot returns the current buffer contents for speaker.
func (a *Aggregator) Snapshot(speaker models.Speaker) Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	buf, ok := a.buffers[speaker]
	if !ok {
		return Snapshot{}
	}
	return Snapshot{
		State:       buf.State(),
		Partial:     buf.Partial(),
		Accumulated: buf.Accumulated(),
		Deadline:    buf.Deadline(),
	}
}

// Stop cancels both timers and discards buffered text without flushing.
// No turn is emitted after Stop returns; later events are ignored.
func (a *Aggregator) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stopped {
		return
	}
	a.stopped = true

	for _, speaker := range models.Speakers {
		if dropped := a.buffers[speaker].Reset(); dropped != "" {
			a.metrics.RecordDiscarded(string(speaker))
			a.logger.Warn().
				Str("speaker", string(speaker)).
				Int("chars", len(dropped)).
				Msg("Discarding unflushed text on stop")
		}
	}
}

// Stopped reports whether Stop has been called.
func (a *Aggregator) Stopped() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stopped
}

// expire runs on the timer goroutine.
func (a *Aggregator) expire(speaker models.Speaker, generation uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stopped || !a.buffers[speaker].Current(generation) {
		// Re-armed, flushed by an interruption, or stopped meanwhile.
		return
	}
	a.flushLocked(speaker)
}

func (a *Aggregator) flushLocked(speaker models.Speaker) bool {
	text, ok := a.buffers[speaker].Take()
	if !ok {
		return false
	}

	t := models.Turn{
		ID:         a.ids.Next(a.sessionID),
		SessionID:  a.sessionID,
		Speaker:    speaker,
		Text:       text,
		OccurredAt: time.Now(),
	}
	a.metrics.RecordTurn(string(speaker))
	a.logger.Info().
		Str("turnId", t.ID).
		Str("speaker", string(speaker)).
		Int("chars", len(text)).
		Msg("Turn finalized")

	if a.sink != nil {
		a.sink.EmitTurn(t)
	}
	return true
}
