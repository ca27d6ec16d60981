package app

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/mongo"

	"conversation-transcriber/internal/config"
	"conversation-transcriber/internal/events"
	"conversation-transcriber/internal/live"
	"conversation-transcriber/internal/observability/logging"
	"conversation-transcriber/internal/service/audio"
	"conversation-transcriber/internal/service/session"
	"conversation-transcriber/internal/service/stt"
	"conversation-transcriber/internal/storage"
)

// Application holds process-wide state for the service.
type Application struct {
	StartupTime time.Time
	Logger      zerolog.Logger
	Cfg         *config.Config

	Store       storage.Gateway
	Publisher   *events.Publisher
	Hub         *live.Hub
	Coordinator *session.Coordinator

	mongo *mongo.Client
}

// New constructs a new Application from the provided configuration.
func New(cfg *config.Config) *Application {
	a := &Application{
		Cfg: cfg,
	}
	a.setupLogger()

	appLogger := a.Logger.With().
		Str("component", "application").
		Str("method", "New").
		Logger()

	appLogger.Info().Msg("Conversation transcriber application created")
	return a
}

// setupLogger configures the global zerolog logger and the application's own.
func (a *Application) setupLogger() {
	logging.Init(logging.Config{
		Level:      strings.ToLower(a.Cfg.Observability.LogLevel),
		Format:     a.Cfg.Observability.LogFormat,
		TimeFormat: time.RFC3339,
	})

	a.Logger = log.With().
		Str("service", a.Cfg.Service.Principal).
		Str("component", "application").
		Logger()

	a.Logger.Info().
		Str("logLevel", zerolog.GlobalLevel().String()).
		Str("logFormat", a.Cfg.Observability.LogFormat).
		Msg("Logger setup completed")
}

// Start connects storage and builds the pipeline. Only a storage connection
// failure is fatal; Kafka and capture degrade to log-only and one-sided.
func (a *Application) Start(ctx context.Context) error {
	startLogger := a.Logger.With().
		Str("method", "Start").
		Logger()

	a.StartupTime = time.Now().UTC()
	startLogger.Info().
		Time("startupTime", a.StartupTime).
		Msg("Conversation transcriber starting")

	store, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	a.Store = store

	a.Publisher = events.New(&events.Config{
		Enabled:      a.Cfg.Kafka.Enabled,
		Brokers:      a.Cfg.Kafka.Brokers,
		TopicPartial: a.Cfg.Kafka.TopicPartial,
		TopicFinal:   a.Cfg.Kafka.TopicFinal,
		Principal:    a.Cfg.Kafka.Principal,
	})
	a.Hub = live.NewHub()

	a.Coordinator = session.New(CoordinatorConfig(a.Cfg), a.Store, events.Multi{a.Hub, a.Publisher})

	startLogger.Info().
		Str("sttProvider", a.Cfg.STT.Provider).
		Str("storage", a.Cfg.Storage.Driver).
		Bool("kafka", a.Cfg.Kafka.Enabled).
		Msg("Pipeline ready")
	return nil
}

func (a *Application) openStore(ctx context.Context) (storage.Gateway, error) {
	if a.Cfg.Storage.Driver != "mongo" {
		return storage.NewMemory(), nil
	}
	if a.Cfg.Storage.MongoURI == "" {
		a.Logger.Warn().Msg("Mongo storage selected without MONGO_URI, using in-memory store")
		return storage.NewMemory(), nil
	}

	cctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := storage.Connect(cctx, a.Cfg.Storage.MongoURI)
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	a.mongo = client

	store := storage.NewMongo(client.Database(a.Cfg.Storage.MongoDatabase))
	if err := store.EnsureIndexes(cctx); err != nil {
		a.Logger.Warn().Err(err).Msg("Failed to ensure Mongo indexes")
	}
	return store, nil
}

// CoordinatorConfig maps service configuration onto the session coordinator.
func CoordinatorConfig(cfg *config.Config) session.Config {
	return session.Config{
		OwnerID: cfg.Service.OwnerID,
		STT: stt.Config{
			Provider:     cfg.STT.Provider,
			LanguageCode: cfg.STT.LanguageCode,
			APIKey:       cfg.STT.APIKey,
			Model:        cfg.STT.Model,
			Endpoint:     cfg.STT.Endpoint,
			SampleRate:   cfg.STT.SampleRateHz,
			TurnDetection: stt.TurnDetection{
				Threshold:       cfg.STT.VADThreshold,
				PrefixPadding:   cfg.STT.PrefixPadding,
				SilenceDuration: cfg.STT.SilenceDuration,
			},
		},
		Debounce:         cfg.Aggregator.Debounce,
		PersistTimeout:   cfg.Storage.PersistTimeout,
		MeFormat:         cfg.Capture.MeFormat,
		CaptureCommand:   captureCommand(cfg.Capture.Command),
		CaptureStopGrace: cfg.Capture.StopGrace,
	}
}

// captureCommand resolves the configured command; "none" disables capture.
func captureCommand(configured []string) []string {
	if len(configured) == 1 && strings.EqualFold(configured[0], "none") {
		return nil
	}
	if len(configured) > 0 {
		return configured
	}
	return audio.DefaultCaptureCommand(runtime.GOOS)
}

// Shutdown performs a best-effort cleanup before process exit.
func (a *Application) Shutdown(ctx context.Context) error {
	shutdownLogger := a.Logger.With().
		Str("method", "Shutdown").
		Logger()

	shutdownLogger.Info().Msg("Conversation transcriber shutting down")

	var errs []error
	if a.Coordinator != nil {
		if err := a.Coordinator.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stop session: %w", err))
		}
	}
	if a.Hub != nil {
		_ = a.Hub.Close()
	}
	if a.Publisher != nil {
		if err := a.Publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close publisher: %w", err))
		}
	}
	if a.mongo != nil {
		if err := a.mongo.Disconnect(ctx); err != nil {
			errs = append(errs, fmt.Errorf("disconnect mongo: %w", err))
		}
	}

	err := errors.Join(errs...)
	if err != nil {
		shutdownLogger.Warn().Err(err).Msg("Shutdown completed with errors")
	}
	return err
}
