package events

import (
	"context"
	"errors"

	"conversation-transcriber/internal/models"
)

// Consumer receives live partial updates and finalized turns. Partial
// updates replace the speaker's previous one; finals are append-only.
type Consumer interface {
	Push(ctx context.Context, u models.Update) error
}

// EchoSink receives the mono "Them" frames as an echo reference.
// Delivery is best-effort and must not block.
type EchoSink interface {
	Echo(pcm []byte)
}

// PartialResetter drops any in-progress text a consumer holds for replay.
// Called when a session stops.
type PartialResetter interface {
	ResetPartials()
}

// ConsumerFunc adapts a function to Consumer.
type ConsumerFunc func(ctx context.Context, u models.Update) error

func (f ConsumerFunc) Push(ctx context.Context, u models.Update) error {
	return f(ctx, u)
}

// Multi fans updates out to several consumers. Every consumer is tried;
// errors are joined.
type Multi []Consumer

func (m Multi) Push(ctx context.Context, u models.Update) error {
	var errs []error
	for _, c := range m {
		if c == nil {
			continue
		}
		if err := c.Push(ctx, u); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Echo forwards to every member that accepts echo frames.
func (m Multi) Echo(pcm []byte) {
	for _, c := range m {
		if e, ok := c.(EchoSink); ok {
			e.Echo(pcm)
		}
	}
}

// ResetPartials forwards to every member that holds partials.
func (m Multi) ResetPartials() {
	for _, c := range m {
		if r, ok := c.(PartialResetter); ok {
			r.ResetPartials()
		}
	}
}
