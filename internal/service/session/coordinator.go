// Package session orchestrates one live conversation: the session record,
// both transcription channels, system audio capture and turn aggregation.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"conversation-transcriber/internal/events"
	"conversation-transcriber/internal/models"
	"conversation-transcriber/internal/observability/logging"
	"conversation-transcriber/internal/observability/metrics"
	"conversation-transcriber/internal/service/audio"
	"conversation-transcriber/internal/service/stt"
	"conversation-transcriber/internal/service/stt/providers"
	"conversation-transcriber/internal/service/turn"
	"conversation-transcriber/internal/storage"
)

// ErrNotActive is returned by operations that need a running session.
var ErrNotActive = errors.New("no active session")

// Defaults for boundary timeouts.
const (
	DefaultPersistTimeout = 5 * time.Second
	DefaultPushTimeout    = 2 * time.Second
)

// Config holds coordinator settings.
type Config struct {
	OwnerID          string
	STT              stt.Config
	Debounce         time.Duration
	PersistTimeout   time.Duration
	PushTimeout      time.Duration
	MeFormat         string
	CaptureCommand   []string
	CaptureStopGrace time.Duration
}

// AdapterFactory builds a fresh provider adapter for one speaker.
type AdapterFactory func(speaker models.Speaker, cfg stt.Config) (stt.Adapter, error)

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithAdapterFactory replaces the provider registry.
func WithAdapterFactory(f AdapterFactory) Option {
	return func(c *Coordinator) { c.newAdapter = f }
}

// WithConfigValidator replaces providers.Validate.
func WithConfigValidator(v func(stt.Config) error) Option {
	return func(c *Coordinator) { c.validate = v }
}

// active is the state of one running session.
type active struct {
	session    models.Session
	language   string
	channels   map[models.Speaker]*stt.Channel
	aggregator *turn.Aggregator
	ctx        context.Context
	cancel     context.CancelFunc
	startedAt  time.Time
}

// Coordinator exposes a live conversation as start/stop/isActive. One
// instance owns one capture subprocess; sessions run one at a time.
type Coordinator struct {
	cfg        Config
	store      storage.Gateway
	downstream events.Consumer
	echo       events.EchoSink
	resetter   events.PartialResetter
	newAdapter AdapterFactory
	validate   func(stt.Config) error
	ids        *turn.Generator

	me      *audio.MeSource
	them    *audio.ThemSource
	capture *audio.Capture

	starts  singleflight.Group
	life    sync.Mutex // serializes start and stop
	mu      sync.RWMutex
	current *active

	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// New creates a coordinator. downstream may be nil.
func New(cfg Config, store storage.Gateway, downstream events.Consumer, opts ...Option) *Coordinator {
	if cfg.PersistTimeout <= 0 {
		cfg.PersistTimeout = DefaultPersistTimeout
	}
	if cfg.PushTimeout <= 0 {
		cfg.PushTimeout = DefaultPushTimeout
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = turn.DefaultDebounce
	}

	c := &Coordinator{
		cfg:        cfg,
		store:      store,
		downstream: downstream,
		newAdapter: func(_ models.Speaker, sc stt.Config) (stt.Adapter, error) {
			return providers.New(sc)
		},
		validate: providers.Validate,
		ids:      turn.NewGenerator(),
		metrics:  metrics.DefaultMetrics,
		logger:   logging.WithComponent("session"),
	}
	if e, ok := downstream.(events.EchoSink); ok {
		c.echo = e
	}
	if r, ok := downstream.(events.PartialResetter); ok {
		c.resetter = r
	}
	for _, opt := range opts {
		opt(c)
	}

	c.me = audio.NewMeSource(cfg.MeFormat, c.deliver)
	c.them = audio.NewThemSource(c.deliver, c.mirror)
	c.capture = audio.NewCapture(cfg.CaptureCommand, c.them, cfg.CaptureStopGrace)
	return c
}

// Start begins a session in languageCode. Concurrent calls collapse into
// one initialization. It returns false on failure, with nothing left running.
func (c *Coordinator) Start(ctx context.Context, languageCode string) bool {
	_, err := c.StartSession(ctx, languageCode)
	return err == nil
}

// StartSession is Start with the session and error exposed.
func (c *Coordinator) StartSession(ctx context.Context, languageCode string) (models.Session, error) {
	v, err, shared := c.starts.Do("start", func() (any, error) {
		return c.start(ctx, languageCode)
	})
	if shared {
		c.logger.Debug().Msg("Concurrent start collapsed into in-flight initialization")
	}
	if err != nil {
		return models.Session{}, err
	}
	return v.(models.Session), nil
}

func (c *Coordinator) start(ctx context.Context, languageCode string) (models.Session, error) {
	c.life.Lock()
	defer c.life.Unlock()

	sttCfg := c.cfg.STT
	if languageCode != "" {
		sttCfg.LanguageCode = languageCode
	}

	if err := c.validate(sttCfg); err != nil {
		c.metrics.RecordSessionFailed("config")
		c.logger.Error().Err(err).Str("sttProvider", sttCfg.Provider).Msg("Session start rejected")
		return models.Session{}, fmt.Errorf("start session: %w", err)
	}

	if c.IsActive() {
		c.logger.Info().Msg("Session already active, stopping it before starting a new one")
		if err := c.stop(); err != nil {
			c.logger.Warn().Err(err).Msg("Previous session stopped with errors")
		}
	}

	sctx, cancel := context.WithTimeout(ctx, c.cfg.PersistTimeout)
	sess, err := c.store.GetOrCreateActive(sctx, c.cfg.OwnerID, models.SessionTypeListen)
	cancel()
	if err != nil {
		c.metrics.RecordSessionFailed("storage")
		return models.Session{}, fmt.Errorf("create session record: %w", err)
	}

	logger := logging.WithSession(sess.ID)

	// Provider connections outlive the request that started them.
	runCtx, runCancel := context.WithCancel(context.Background())
	a := &active{
		session:   sess,
		language:  sttCfg.LanguageCode,
		channels:  make(map[models.Speaker]*stt.Channel, len(models.Speakers)),
		ctx:       runCtx,
		cancel:    runCancel,
		startedAt: time.Now(),
	}
	a.aggregator = turn.NewAggregator(sess.ID, &turnSink{c: c, sessionID: sess.ID},
		turn.WithDebounce(c.cfg.Debounce),
		turn.WithGenerator(c.ids),
	)

	if err := c.openChannels(a, sttCfg); err != nil {
		a.aggregator.Stop()
		runCancel()
		c.endRecord(sess.ID)
		c.metrics.RecordSessionFailed("channel")
		logger.Error().Err(err).Msg("Failed to open transcription channels")
		return models.Session{}, err
	}

	c.mu.Lock()
	c.current = a
	c.mu.Unlock()

	c.them.Reset()
	if c.capture.Available() {
		if err := c.capture.Start(runCtx); err != nil {
			logger.Warn().Err(err).Msg("System audio capture failed to start; Them channel will receive no frames")
		}
	} else {
		logger.Info().Msg("System audio capture not available on this platform")
	}

	c.metrics.RecordSessionStart()
	logger.Info().
		Str("language", a.language).
		Str("sttProvider", sttCfg.Provider).
		Msg("Session started")
	return sess, nil
}

// openChannels opens both speakers concurrently. On any failure every
// channel is closed again.
func (c *Coordinator) openChannels(a *active, cfg stt.Config) error {
	for _, speaker := range models.Speakers {
		adapter, err := c.newAdapter(speaker, cfg)
		if err != nil {
			closeAll(a.channels)
			return fmt.Errorf("create %s adapter: %w", speaker, err)
		}
		a.channels[speaker] = stt.NewChannel(adapter, stt.ChannelConfig{
			SessionID: a.session.ID,
			Speaker:   speaker,
			Provider:  cfg.Provider,
			OnClosed:  c.channelFailed,
		}, a.aggregator.Handle)
	}

	var g errgroup.Group
	for _, ch := range a.channels {
		g.Go(func() error {
			return ch.Start(a.ctx)
		})
	}
	if err := g.Wait(); err != nil {
		closeAll(a.channels)
		return err
	}
	return nil
}

func (c *Coordinator) channelFailed(speaker models.Speaker, err error) {
	c.logger.Warn().
		Err(err).
		Str("speaker", string(speaker)).
		Msg("Transcription channel lost; session continues one-sided")
}

func closeAll(channels map[models.Speaker]*stt.Channel) {
	var wg sync.WaitGroup
	for _, ch := range channels {
		wg.Add(1)
		go func(ch *stt.Channel) {
			defer wg.Done()
			_ = ch.Close()
		}(ch)
	}
	wg.Wait()
}

// Stop ends the running session. Pending debounced text is discarded, not
// flushed. Safe to call repeatedly and when nothing is running.
func (c *Coordinator) Stop() error {
	c.life.Lock()
	defer c.life.Unlock()
	return c.stop()
}

func (c *Coordinator) stop() error {
	c.mu.RLock()
	a := c.current
	c.mu.RUnlock()
	if a == nil {
		return nil
	}

	logger := logging.WithSession(a.session.ID)

	// Stop waits out an in-flight emit, so nothing is emitted once the
	// session reads inactive. c.life keeps current from changing meanwhile.
	a.aggregator.Stop()
	if c.resetter != nil {
		c.resetter.ResetPartials()
	}

	c.mu.Lock()
	c.current = nil
	c.mu.Unlock()

	closeAll(a.channels)

	var errs []error
	if err := c.capture.Stop(); err != nil {
		errs = append(errs, fmt.Errorf("stop capture: %w", err))
	}
	c.them.Reset()
	a.cancel()

	if err := c.endRecord(a.session.ID); err != nil {
		errs = append(errs, err)
	}

	c.metrics.RecordSessionEnd(time.Since(a.startedAt).Seconds())
	logger.Info().Dur("duration", time.Since(a.startedAt)).Msg("Session stopped")
	return errors.Join(errs...)
}

func (c *Coordinator) endRecord(sessionID string) error {
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.PersistTimeout)
	defer cancel()

	start := time.Now()
	err := c.store.EndSession(ctx, sessionID)
	c.metrics.RecordPersist("end_session", err, time.Since(start).Seconds())
	if err != nil {
		logger := logging.WithSession(sessionID)
		logger.Error().Err(err).Msg("Failed to end session record")
		return fmt.Errorf("end session record: %w", err)
	}
	return nil
}

// IsActive reports whether a session is running. A channel lost to a
// transport error leaves the session active but one-sided.
func (c *Coordinator) IsActive() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current != nil
}

// SendFrame feeds audio for speaker. Me audio arrives pre-framed and is
// checked against format; Them audio is raw interleaved stereo capture
// output and is downmixed and framed here.
func (c *Coordinator) SendFrame(ctx context.Context, speaker models.Speaker, format string, data []byte) error {
	if !c.IsActive() {
		return ErrNotActive
	}
	switch speaker {
	case models.SpeakerMe:
		return c.me.Accept(format, data)
	case models.SpeakerThem:
		_, err := c.them.Write(data)
		return err
	default:
		return fmt.Errorf("unknown speaker %q", speaker)
	}
}

// deliver routes one frame to its speaker's channel.
func (c *Coordinator) deliver(frame models.AudioFrame) {
	c.mu.RLock()
	a := c.current
	c.mu.RUnlock()
	if a == nil {
		return
	}

	ch := a.channels[frame.Speaker]
	if ch == nil {
		return
	}
	if err := ch.Send(a.ctx, frame); err != nil && !errors.Is(err, stt.ErrChannelClosed) {
		logger := logging.WithSpeaker(a.session.ID, string(frame.Speaker))
		logger.Debug().Err(err).Msg("Frame send failed")
	}
}

// mirror forwards Them frames to the echo reference.
func (c *Coordinator) mirror(frame models.AudioFrame) {
	if c.echo == nil {
		return
	}
	c.echo.Echo(frame.PCM)
}

// turnSink persists turns and pushes updates downstream.
type turnSink struct {
	c         *Coordinator
	sessionID string
}

func (s *turnSink) EmitPartial(speaker models.Speaker, text string) {
	s.c.push(models.NewPartialUpdate(s.sessionID, speaker, text))
}

// EmitTurn touches the session, appends the turn, then pushes it. Storage
// failures are logged; the turn is still delivered downstream.
func (s *turnSink) EmitTurn(t models.Turn) {
	s.c.persist(t)
	s.c.push(models.NewFinalUpdate(t))
}

func (c *Coordinator) persist(t models.Turn) {
	logger := logging.WithSpeaker(t.SessionID, string(t.Speaker))

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.PersistTimeout)
	defer cancel()

	start := time.Now()
	err := c.store.TouchSession(ctx, t.SessionID)
	c.metrics.RecordPersist("touch_session", err, time.Since(start).Seconds())
	if err != nil {
		logger.Error().Err(err).Str("turnId", t.ID).Msg("Failed to touch session")
	}

	start = time.Now()
	err = c.store.AppendTranscript(ctx, t)
	c.metrics.RecordPersist("append_transcript", err, time.Since(start).Seconds())
	if err != nil {
		logger.Error().Err(err).Str("turnId", t.ID).Msg("Failed to persist turn")
	}
}

func (c *Coordinator) push(u models.Update) {
	if c.downstream == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.PushTimeout)
	defer cancel()

	if err := c.downstream.Push(ctx, u); err != nil {
		c.logger.Warn().Err(err).Str("sessionId", u.SessionID).Str("eventType", u.EventType).Msg("Downstream push failed")
	}
}
