// Package providers selects an STT adapter implementation by name.
package providers

import (
	"fmt"
	"sort"
	"strings"

	"conversation-transcriber/internal/service/stt"
	"conversation-transcriber/internal/service/stt/deepgram"
	"conversation-transcriber/internal/service/stt/google"
	"conversation-transcriber/internal/service/stt/mock"
	"conversation-transcriber/internal/service/stt/openai"
)

// Provider names accepted in configuration.
const (
	OpenAI   = "openai"
	Deepgram = "deepgram"
	Google   = "google"
	Mock     = "mock"
)

type constructor func(cfg stt.Config) (stt.Adapter, error)

var registry = map[string]constructor{
	OpenAI: func(cfg stt.Config) (stt.Adapter, error) {
		return openai.New(cfg)
	},
	Deepgram: func(cfg stt.Config) (stt.Adapter, error) {
		return deepgram.New(cfg)
	},
	Google: func(cfg stt.Config) (stt.Adapter, error) {
		return google.New(cfg)
	},
	Mock: func(cfg stt.Config) (stt.Adapter, error) {
		return mock.New(), nil
	},
}

// Names returns the supported provider names, sorted.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// New creates a fresh adapter for cfg.Provider. Each call returns an
// independent connection object.
func New(cfg stt.Config) (stt.Adapter, error) {
	ctor, ok := registry[normalize(cfg.Provider)]
	if !ok {
		return nil, fmt.Errorf("%w: %q (supported: %s)", stt.ErrUnsupportedProvider, cfg.Provider, strings.Join(Names(), ", "))
	}
	adapter, err := ctor(cfg)
	if err != nil {
		return nil, fmt.Errorf("configure %s provider: %w", cfg.Provider, err)
	}
	return adapter, nil
}

// Validate checks cfg without opening any connection.
func Validate(cfg stt.Config) error {
	adapter, err := New(cfg)
	if err != nil {
		return err
	}
	// Constructors don't dial, so this only releases local state.
	return adapter.Close()
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
