package deepgram

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"

	"github.com/rs/zerolog"

	"conversation-transcriber/internal/models"
	"conversation-transcriber/internal/observability/logging"
	"conversation-transcriber/internal/service/stt"
	"conversation-transcriber/internal/service/stt/wsconn"
)

// Defaults for the listen endpoint.
const (
	DefaultEndpoint   = "wss://api.deepgram.com/v1/listen"
	DefaultModel      = "nova-3"
	DefaultSampleRate = 24000
)

// closeStream is Deepgram's graceful end-of-audio control message.
var closeStream = map[string]string{"type": "CloseStream"}

// Adapter implements stt.Adapter using Deepgram streaming.
type Adapter struct {
	cfg    stt.Config
	mu     sync.Mutex
	conn   *wsconn.Conn
	logger zerolog.Logger
}

// New creates a new Deepgram adapter.
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
	if cfg.SampleRate == 0 {
		cfg.SampleRate = DefaultSampleRate
	}
	return &Adapter{
		cfg:    cfg,
		logger: logging.WithComponent("stt.deepgram"),
	}, nil
}

// ListenURL builds the streaming URL. Deepgram takes its session
// configuration as query parameters rather than an initial message.
func ListenURL(cfg stt.Config) (string, error) {
	u, err := url.Parse(cfg.Endpoint)
	if err != nil {
		return "", fmt.Errorf("parse deepgram endpoint: %w", err)
	}
	td := cfg.TurnDetection
	if td == (stt.TurnDetection{}) {
		td = stt.DefaultTurnDetection()
	}

	q := u.Query()
	q.Set("model", cfg.Model)
	if cfg.LanguageCode != "" {
		q.Set("language", cfg.LanguageCode)
	}
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(cfg.SampleRate))
	q.Set("channels", "1")
	q.Set("interim_results", "true")
	q.Set("punctuate", "true")
	q.Set("smart_format", "true")
	q.Set("endpointing", strconv.FormatInt(td.SilenceDuration.Milliseconds(), 10))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Start dials the listen endpoint.
func (a *Adapter) Start(ctx context.Context, cb stt.Callback) error {
	listenURL, err := ListenURL(a.cfg)
	if err != nil {
		return err
	}
	header := http.Header{}
	header.Set("Authorization", "Token "+a.cfg.APIKey)

	conn, err := wsconn.Dial(ctx, listenURL, header)
	if err != nil {
		return err
	}

	a.mu.Lock()
	a.conn = conn
	a.mu.Unlock()

	go a.listen(conn, cb)
	return nil
}

// SendAudio sends one frame as a binary message.
func (a *Adapter) SendAudio(ctx context.Context, audio []byte) error {
	conn := a.current()
	if conn == nil {
		return stt.ErrChannelClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return conn.WriteBinary(audio)
}

// Close sends CloseStream, then closes the socket.
func (a *Adapter) Close() error {
	conn := a.current()
	if conn == nil {
		return nil
	}
	return conn.Close(closeStream)
}

func (a *Adapter) current() *wsconn.Conn {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.conn
}

func (a *Adapter) listen(conn *wsconn.Conn, cb stt.Callback) {
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
		if msg.Type == "Error" {
			cb.OnError(fmt.Errorf("deepgram: %s", msg.Description))
			return
		}

		res, ok := Normalize(msg)
		if !ok {
			continue
		}
		if res.Kind == models.KindFinal {
			cb.OnFinal(res.Text, res.Confidence)
		} else {
			cb.OnPartial(res.Text)
		}
	}
}
