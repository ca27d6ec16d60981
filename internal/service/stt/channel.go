package stt

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"conversation-transcriber/internal/models"
	"conversation-transcriber/internal/observability/logging"
	"conversation-transcriber/internal/observability/metrics"
)

// EventHandler consumes canonical events from a channel.
type EventHandler func(ev Event)

// ChannelConfig identifies a channel for logging and metrics.
type ChannelConfig struct {
	SessionID string
	Speaker   models.Speaker
	Provider  string

	// OnClosed, if set, is called once when the transport fails on its own.
	// It is not called for an explicit Close.
	OnClosed func(speaker models.Speaker, err error)
}

// Channel is one live provider connection for one speaker. It implements
// Callback, stamping provider results with its speaker and forwarding them
// as canonical events. Two channels never share state, so a stalled or failed
// provider on one side cannot block the other.
type Channel struct {
	mu      sync.Mutex
	adapter Adapter
	cfg     ChannelConfig
	handler EventHandler
	started bool
	closed  bool
	err     error

	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// NewChannel wraps adapter for one speaker.
func NewChannel(adapter Adapter, cfg ChannelConfig, handler EventHandler) *Channel {
	return &Channel{
		adapter: adapter,
		cfg:     cfg,
		handler: handler,
		metrics: metrics.DefaultMetrics,
		logger:  logging.WithChannel(cfg.SessionID, string(cfg.Speaker), cfg.Provider),
	}
}

// Speaker returns the speaker this channel transcribes.
func (c *Channel) Speaker() models.Speaker {
	return c.cfg.Speaker
}

// Start opens the provider session.
func (c *Channel) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrChannelClosed
	}
	c.mu.Unlock()

	if err := c.adapter.Start(ctx, c); err != nil {
		c.metrics.RecordChannelError(c.cfg.Provider, string(c.cfg.Speaker), "start")
		return fmt.Errorf("start %s channel for %s: %w", c.cfg.Provider, c.cfg.Speaker, err)
	}

	c.mu.Lock()
	c.started = true
	c.mu.Unlock()

	c.metrics.RecordChannelOpened(c.cfg.Provider, string(c.cfg.Speaker))
	c.logger.Info().Msg("Transcription channel opened")
	return nil
}

// Send forwards one frame to the provider.
func (c *Channel) Send(ctx context.Context, frame models.AudioFrame) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()

	if closed {
		c.metrics.RecordFrameDropped(string(c.cfg.Speaker), "channel_closed")
		return ErrChannelClosed
	}

	if err := c.adapter.SendAudio(ctx, frame.PCM); err != nil {
		c.metrics.RecordFrameDropped(string(c.cfg.Speaker), "send_error")
		return fmt.Errorf("send to %s: %w", c.cfg.Provider, err)
	}
	c.metrics.RecordFrameSent(string(c.cfg.Speaker))
	return nil
}

// Close terminates the provider session. Idempotent; closing an already
// failed transport is not an error.
func (c *Channel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	failed := c.err != nil
	started := c.started
	c.mu.Unlock()

	if started && !failed {
		c.metrics.RecordChannelClosed(string(c.cfg.Speaker))
	}

	if err := c.adapter.Close(); err != nil && !failed {
		c.logger.Warn().Err(err).Msg("Error closing transcription channel")
	}
	c.logger.Info().Msg("Transcription channel closed")
	return nil
}

// Closed reports whether the channel was closed explicitly or by a transport error.
func (c *Channel) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Err returns the transport error that closed the channel, if any.
func (c *Channel) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// --- Callback implementation ---

// OnPartial forwards an in-progress transcript.
func (c *Channel) OnPartial(text string) {
	c.emit(text, models.KindPartial)
}

// OnFinal forwards a completed fragment.
func (c *Channel) OnFinal(text string, confidence float64) {
	c.logger.Debug().Float64("confidence", confidence).Msg("Final fragment received")
	c.emit(text, models.KindFinal)
}

// OnError marks the channel closed. There is no automatic reconnect; the
// other speaker's channel is unaffected.
func (c *Channel) OnError(err error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.err = err
	started := c.started
	c.mu.Unlock()

	if started {
		c.metrics.RecordChannelClosed(string(c.cfg.Speaker))
	}
	c.metrics.RecordChannelError(c.cfg.Provider, string(c.cfg.Speaker), "transport")
	c.logger.Error().Err(err).Msg("Transcription channel transport failed, channel closed")

	// Release the socket; the adapter tolerates an already-broken transport.
	_ = c.adapter.Close()

	if c.cfg.OnClosed != nil {
		c.cfg.OnClosed(c.cfg.Speaker, err)
	}
}

func (c *Channel) emit(text string, kind models.EventKind) {
	if IsBlank(text) {
		return
	}

	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return
	}

	if kind == models.KindFinal {
		c.metrics.RecordFinalTranscript(string(c.cfg.Speaker))
	} else {
		c.metrics.RecordPartialTranscript(string(c.cfg.Speaker))
	}

	if c.handler != nil {
		c.handler(Event{
			Speaker:   c.cfg.Speaker,
			Text:      text,
			Kind:      kind,
			Timestamp: time.Now(),
		})
	}
}
