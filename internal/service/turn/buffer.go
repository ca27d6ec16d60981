package turn

import (
	"fmt"
	"strings"
	"time"
)

// State represents the lifecycle state of one speaker's utterance buffer.
type State int

const (
	// StateIdle - nothing buffered.
	StateIdle State = iota
	// StateAccumulating - a live partial is showing, no final yet.
	StateAccumulating
	// StatePending - finals are buffered and the debounce timer is armed.
	StatePending
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateAccumulating:
		return "ACCUMULATING"
	case StatePending:
		return "PENDING"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", s)
	}
}

// Buffer holds one speaker's in-progress utterance. It is not safe for
// concurrent use; the Aggregator guards both buffers with one mutex.
//
// State transitions:
//
//	IDLE ──partial──→ ACCUMULATING ──final──→ PENDING
//	  │                                        │  ↺ final (timer restarted)
//	  └───────────────final───────────────────→┤
//	                                           └── Take()/Reset() ──→ IDLE
type Buffer struct {
	partial     string
	accumulated string
	deadline    time.Time
	timer       *time.Timer
	generation  uint64
}

// State derives the current state from the buffer contents.
func (b *Buffer) State() State {
	switch {
	case b.timer != nil:
		return StatePending
	case b.partial != "" || b.accumulated != "":
		return StateAccumulating
	default:
		return StateIdle
	}
}

// Pending reports whether a debounce timer is armed.
func (b *Buffer) Pending() bool {
	return b.timer != nil
}

// Partial returns the latest in-progress text.
func (b *Buffer) Partial() string {
	return b.partial
}

// Accumulated returns the finals merged so far.
func (b *Buffer) Accumulated() string {
	return b.accumulated
}

// Deadline returns when the armed timer fires, or the zero time.
func (b *Buffer) Deadline() time.Time {
	return b.deadline
}

// SetPartial replaces the in-progress text.
func (b *Buffer) SetPartial(text string) {
	b.partial = text
}

// AppendFinal merges a completed fragment into the accumulated text with a
// single separating space. The live partial it completes is cleared.
func (b *Buffer) AppendFinal(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	if b.accumulated == "" {
		b.accumulated = text
	} else {
		b.accumulated += " " + text
	}
	b.partial = ""
}

// Arm cancels any armed timer and schedules fire after d. fire receives the
// generation it was armed with so a stale timer can recognize itself.
func (b *Buffer) Arm(d time.Duration, fire func(generation uint64)) {
	b.disarm()
	gen := b.generation
	b.deadline = time.Now().Add(d)
	b.timer = time.AfterFunc(d, func() { fire(gen) })
}

// Current reports whether generation belongs to the armed timer.
func (b *Buffer) Current(generation uint64) bool {
	return b.timer != nil && b.generation == generation
}

// Take returns the accumulated text and resets the buffer to idle. On an
// empty or whitespace-only buffer it returns false and changes nothing.
func (b *Buffer) Take() (string, bool) {
	text := strings.TrimSpace(b.accumulated)
	if text == "" {
		return "", false
	}
	b.Reset()
	return text, true
}

// Reset cancels the timer and discards all buffered text. It returns the
// accumulated text that was dropped, if any.
func (b *Buffer) Reset() string {
	b.disarm()
	dropped := b.accumulated
	b.partial = ""
	b.accumulated = ""
	return dropped
}

func (b *Buffer) disarm() {
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	b.deadline = time.Time{}
	b.generation++
}
