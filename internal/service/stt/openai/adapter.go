package openai

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"sync"

	"github.com/rs/zerolog"

	"conversation-transcriber/internal/models"
	"conversation-transcriber/internal/observability/logging"
	"conversation-transcriber/internal/service/stt"
	"conversation-transcriber/internal/service/stt/wsconn"
)

// Defaults for the realtime transcription endpoint.
const (
	DefaultEndpoint = "wss://api.openai.com/v1/realtime?intent=transcription"
	DefaultModel    = "gpt-4o-mini-transcribe"
)

// Adapter implements stt.Adapter over the OpenAI realtime websocket.
type Adapter struct {
	cfg    stt.Config
	mu     sync.Mutex
	conn   *wsconn.Conn
	logger zerolog.Logger
}

// New creates a new OpenAI realtime adapter.
func New(cfg stt.Config) (*Adapter, error) {
	if cfg.APIKey == "" {
		return nil, stt.ErrMissingCredentials
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	return &Adapter{
		cfg:    cfg,
		logger: logging.WithComponent("stt.openai"),
	}, nil
}

type sessionUpdate struct {
	Type    string        `json:"type"`
	Session sessionConfig `json:"session"`
}

type sessionConfig struct {
	InputAudioFormat         string         `json:"input_audio_format"`
	InputAudioTranscription  transcription  `json:"input_audio_transcription"`
	TurnDetection            turnDetection  `json:"turn_detection"`
	InputAudioNoiseReduction noiseReduction `json:"input_audio_noise_reduction"`
}

type transcription struct {
	Model    string `json:"model"`
	Language string `json:"language,omitempty"`
}

type turnDetection struct {
	Type              string  `json:"type"`
	Threshold         float64 `json:"threshold"`
	PrefixPaddingMs   int64   `json:"prefix_padding_ms"`
	SilenceDurationMs int64   `json:"silence_duration_ms"`
}

type noiseReduction struct {
	Type string `json:"type"`
}

type audioAppend struct {
	Type  string `json:"type"`
	Audio string `json:"audio"`
}

// SessionUpdate builds the initial configuration message.
func SessionUpdate(cfg stt.Config) any {
	td := cfg.TurnDetection
	if td == (stt.TurnDetection{}) {
		td = stt.DefaultTurnDetection()
	}
	return sessionUpdate{
		Type: "transcription_session.update",
		Session: sessionConfig{
			InputAudioFormat: "pcm16",
			InputAudioTranscription: transcription{
				Model:    cfg.Model,
				Language: cfg.LanguageCode,
			},
			TurnDetection: turnDetection{
				Type:              "server_vad",
				Threshold:         td.Threshold,
				PrefixPaddingMs:   td.PrefixPadding.Milliseconds(),
				SilenceDurationMs: td.SilenceDuration.Milliseconds(),
			},
			InputAudioNoiseReduction: noiseReduction{Type: "near_field"},
		},
	}
}

// Start dials the realtime endpoint and sends the session configuration.
func (a *Adapter) Start(ctx context.Context, cb stt.Callback) error {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+a.cfg.APIKey)
	header.Set("OpenAI-Beta", "realtime=v1")

	conn, err := wsconn.Dial(ctx, a.cfg.Endpoint, header)
	if err != nil {
		return err
	}
	if err := conn.WriteJSON(SessionUpdate(a.cfg)); err != nil {
		_ = conn.Close(nil)
		return err
	}

	a.mu.Lock()
	a.conn = conn
	a.mu.Unlock()

	go a.listen(conn, cb)
	return nil
}

// SendAudio sends one frame as base64 in an input_audio_buffer.append event.
func (a *Adapter) SendAudio(ctx context.Context, audio []byte) error {
	conn := a.current()
	if conn == nil {
		return stt.ErrChannelClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return conn.WriteJSON(audioAppend{
		Type:  "input_audio_buffer.append",
		Audio: base64.StdEncoding.EncodeToString(audio),
	})
}

// Close closes the websocket. The realtime API has no explicit end-of-stream
// event, so the close frame is the termination message.
func (a *Adapter) Close() error {
	conn := a.current()
	if conn == nil {
		return nil
	}
	return conn.Close(nil)
}

func (a *Adapter) current() *wsconn.Conn {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.conn
}

// listen receives realtime events and invokes callbacks.
func (a *Adapter) listen(conn *wsconn.Conn, cb stt.Callback) {
	var partial Partial
	for {
		raw, err := conn.Read()
		if err != nil {
			if !conn.Closing() {
				cb.OnError(err)
			}
			return
		}

		msg, err := Decode(raw)
		if err != nil {
			a.logger.Warn().Err(err).Msg("Skipping undecodable message")
			continue
		}

		var res Result
		var ok bool
		res, partial, ok, err = Normalize(msg, partial)
		if err != nil {
			var apiErr *APIError
			if errors.As(err, &apiErr) && apiErr.Type == "invalid_request_error" {
				// Request-level rejections don't end the session.
				a.logger.Warn().Err(err).Msg("Provider rejected a request")
				continue
			}
			cb.OnError(err)
			return
		}
		if !ok {
			continue
		}
		if res.Kind == models.KindFinal {
			cb.OnFinal(res.Text, 1)
		} else {
			cb.OnPartial(res.Text)
		}
	}
}
