// Package mock provides a mock STT adapter for running without provider
// credentials. It simulates realistic behavior: progressive partial
// transcripts as audio arrives, then exactly one final per utterance.
package mock

import (
	"context"
	"sync"
	"time"

	"conversation-transcriber/internal/service/stt"
)

// DefaultDelay approximates provider processing latency.
const DefaultDelay = 50 * time.Millisecond

// SimulatedUtterance represents a mock utterance with progressive transcripts.
type SimulatedUtterance struct {
	Partials   []string // Progressive partial transcripts
	Final      string   // Final transcript text
	Confidence float64  // Confidence score for final
}

// DefaultUtterances provides sample utterances for simulation.
var DefaultUtterances = []SimulatedUtterance{
	{
		Partials:   []string{"So", "So the", "So the rollout"},
		Final:      "So the rollout is scheduled for Thursday.",
		Confidence: 0.94,
	},
	{
		Partials:   []string{"Yes", "Yes that"},
		Final:      "Yes that works for us.",
		Confidence: 0.97,
	},
	{
		Partials:   []string{"Can you", "Can you share", "Can you share the"},
		Final:      "Can you share the migration plan?",
		Confidence: 0.91,
	},
	{
		Partials:   []string{"We've", "We've already", "We've already tested"},
		Final:      "We've already tested it in staging.",
		Confidence: 0.89,
	},
	{
		Partials:   []string{"Thanks"},
		Final:      "Thanks, talk soon.",
		Confidence: 0.98,
	},
}

// utteranceCounter staggers the starting utterance across adapters so the
// two speakers of a session don't say the same thing.
var (
	utteranceCounter int
	counterMu        sync.Mutex
)

type emission struct {
	text       string
	final      bool
	confidence float64
}

// Adapter implements stt.Adapter with scripted responses.
type Adapter struct {
	mu           sync.Mutex
	cb           stt.Callback
	utterances   []SimulatedUtterance
	current      int // index into utterances
	partialIndex int // next partial to send for the current utterance
	delay        time.Duration
	queue        chan emission
	done         chan struct{}
	closed       bool
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithDelay sets the simulated processing delay.
func WithDelay(d time.Duration) Option {
	return func(a *Adapter) { a.delay = d }
}

// WithUtterances replaces the default script.
func WithUtterances(u []SimulatedUtterance) Option {
	return func(a *Adapter) {
		if len(u) > 0 {
			a.utterances = u
		}
	}
}

// New creates a new mock STT adapter.
func New(opts ...Option) *Adapter {
	a := &Adapter{
		utterances: DefaultUtterances,
		delay:      DefaultDelay,
	}
	for _, opt := range opts {
		opt(a)
	}

	counterMu.Lock()
	a.current = utteranceCounter % len(a.utterances)
	utteranceCounter++
	counterMu.Unlock()

	return a
}

// Start begins a mock transcription session.
func (a *Adapter) Start(ctx context.Context, cb stt.Callback) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return stt.ErrChannelClosed
	}
	a.cb = cb
	a.queue = make(chan emission, 64)
	a.done = make(chan struct{})
	go a.run(cb, a.queue, a.done)
	return nil
}

// SendAudio advances the script by one step per frame: the next partial, or
// the final once all partials are out. After a final the next utterance begins.
func (a *Adapter) SendAudio(ctx context.Context, audio []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed || a.cb == nil {
		return nil
	}

	utt := a.utterances[a.current]
	var e emission
	if a.partialIndex < len(utt.Partials) {
		e = emission{text: utt.Partials[a.partialIndex]}
		a.partialIndex++
	} else {
		e = emission{text: utt.Final, final: true, confidence: utt.Confidence}
		a.partialIndex = 0
		a.current = (a.current + 1) % len(a.utterances)
	}

	select {
	case a.queue <- e:
	default:
		// Consumer is far behind; a real provider would coalesce too.
	}
	return nil
}

// Close ends the mock session. Queued emissions are discarded.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return nil
	}
	a.closed = true
	if a.done != nil {
		close(a.done)
	}
	return nil
}

func (a *Adapter) run(cb stt.Callback, queue <-chan emission, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case e := <-queue:
			if a.delay > 0 {
				t := time.NewTimer(a.delay)
				select {
				case <-done:
					t.Stop()
					return
				case <-t.C:
				}
			}
			if e.final {
				cb.OnFinal(e.text, e.confidence)
			} else {
				cb.OnPartial(e.text)
			}
		}
	}
}
