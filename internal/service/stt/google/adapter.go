// Package google provides a Google Cloud Speech-to-Text adapter.
package google

import (
	"context"
	"errors"
	"io"
	"os"
	"sync"
	"time"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/durationpb"

	"conversation-transcriber/internal/models"
	"conversation-transcriber/internal/service/stt"
)

// Defaults for streaming recognition.
const (
	DefaultLanguageCode = "en-US"
	DefaultSampleRate   = 24000
	DefaultEncoding     = "LINEAR16"
)

// Config holds recognition settings derived from stt.Config.
type Config struct {
	LanguageCode    string
	SampleRateHz    int32
	InterimResults  bool
	AudioEncoding   string
	Model           string
	SilenceDuration time.Duration
}

// DefaultConfig returns default recognition settings.
func DefaultConfig() Config {
	return Config{
		LanguageCode:    DefaultLanguageCode,
		SampleRateHz:    DefaultSampleRate,
		InterimResults:  true,
		AudioEncoding:   DefaultEncoding,
		SilenceDuration: stt.DefaultTurnDetection().SilenceDuration,
	}
}

// ConfigFrom overlays the non-zero fields of cfg on the defaults.
func ConfigFrom(cfg stt.Config) Config {
	c := DefaultConfig()
	if cfg.LanguageCode != "" {
		c.LanguageCode = cfg.LanguageCode
	}
	if cfg.SampleRate > 0 {
		c.SampleRateHz = int32(cfg.SampleRate)
	}
	if cfg.Model != "" {
		c.Model = cfg.Model
	}
	if cfg.TurnDetection.SilenceDuration > 0 {
		c.SilenceDuration = cfg.TurnDetection.SilenceDuration
	}
	return c
}

// StreamingConfig builds the first request of a recognition stream.
func StreamingConfig(c Config) *speechpb.StreamingRecognizeRequest {
	return &speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_StreamingConfig{
			StreamingConfig: &speechpb.StreamingRecognitionConfig{
				Config: &speechpb.RecognitionConfig{
					Encoding:                   parseAudioEncoding(c.AudioEncoding),
					SampleRateHertz:            c.SampleRateHz,
					AudioChannelCount:          1,
					LanguageCode:               c.LanguageCode,
					Model:                      c.Model,
					EnableAutomaticPunctuation: true,
				},
				InterimResults:            c.InterimResults,
				EnableVoiceActivityEvents: true,
				VoiceActivityTimeout: &speechpb.StreamingRecognitionConfig_VoiceActivityTimeout{
					SpeechEndTimeout: durationpb.New(c.SilenceDuration),
				},
			},
		},
	}
}

func parseAudioEncoding(s string) speechpb.RecognitionConfig_AudioEncoding {
	if v, ok := speechpb.RecognitionConfig_AudioEncoding_value[s]; ok && v != int32(speechpb.RecognitionConfig_ENCODING_UNSPECIFIED) {
		return speechpb.RecognitionConfig_AudioEncoding(v)
	}
	return speechpb.RecognitionConfig_LINEAR16
}

// Result is a normalized transcript ready for the channel.
type Result struct {
	Text       string
	Kind       models.EventKind
	Confidence float64
}

// Normalize maps one streaming response to zero or more results.
func Normalize(resp *speechpb.StreamingRecognizeResponse) []Result {
	var out []Result
	for _, r := range resp.GetResults() {
		if len(r.GetAlternatives()) == 0 {
			continue
		}
		alt := r.GetAlternatives()[0]
		text := stt.CleanText(alt.GetTranscript())
		if text == "" {
			continue
		}
		kind := models.KindPartial
		if r.GetIsFinal() {
			kind = models.KindFinal
		}
		out = append(out, Result{Text: text, Kind: kind, Confidence: float64(alt.GetConfidence())})
	}
	return out
}

// isQuietEnd reports whether err is a normal end of stream.
func isQuietEnd(err error) bool {
	if errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) {
		return true
	}
	return status.Code(err) == codes.Canceled
}

// CredentialOptions resolves client options. APIKey, when set, names a
// service account file; otherwise GOOGLE_APPLICATION_CREDENTIALS must be set.
func CredentialOptions(cfg stt.Config) ([]option.ClientOption, error) {
	if cfg.APIKey != "" {
		return []option.ClientOption{option.WithCredentialsFile(cfg.APIKey)}, nil
	}
	if os.Getenv("GOOGLE_APPLICATION_CREDENTIALS") == "" {
		return nil, stt.ErrMissingCredentials
	}
	return nil, nil
}

// Adapter implements stt.Adapter using Google Cloud Speech-to-Text.
type Adapter struct {
	cfg  stt.Config
	opts []option.ClientOption

	mu      sync.Mutex
	client  *speech.Client
	stream  speechpb.Speech_StreamingRecognizeClient
	cancel  context.CancelFunc
	closing bool
}

// New creates a new Google STT adapter. The client is created on Start.
func New(cfg stt.Config) (*Adapter, error) {
	opts, err := CredentialOptions(cfg)
	if err != nil {
		return nil, err
	}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}
	return &Adapter{cfg: cfg, opts: opts}, nil
}

// Start begins a streaming recognition session and sends the initial config.
func (a *Adapter) Start(ctx context.Context, cb stt.Callback) error {
	client, err := speech.NewClient(ctx, a.opts...)
	if err != nil {
		return err
	}

	streamCtx, cancel := context.WithCancel(ctx)
	stream, err := client.StreamingRecognize(streamCtx)
	if err != nil {
		cancel()
		client.Close()
		return err
	}
	if err := stream.Send(StreamingConfig(ConfigFrom(a.cfg))); err != nil {
		cancel()
		client.Close()
		return err
	}

	a.mu.Lock()
	a.client = client
	a.stream = stream
	a.cancel = cancel
	a.mu.Unlock()

	go a.listen(stream, cb)
	return nil
}

// SendAudio sends audio bytes to Google Speech-to-Text.
func (a *Adapter) SendAudio(ctx context.Context, audio []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stream == nil || a.closing {
		return stt.ErrChannelClosed
	}
	return a.stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_AudioContent{
			AudioContent: audio,
		},
	})
}

// Close half-closes the stream, then tears the client down.
func (a *Adapter) Close() error {
	a.mu.Lock()
	if a.closing || a.stream == nil {
		a.closing = true
		a.mu.Unlock()
		return nil
	}
	a.closing = true
	stream, client, cancel := a.stream, a.client, a.cancel
	a.mu.Unlock()

	_ = stream.CloseSend()
	cancel()
	_ = client.Close()
	return nil
}

func (a *Adapter) isClosing() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.closing
}

// listen receives transcript responses from Google and invokes callbacks.
func (a *Adapter) listen(stream speechpb.Speech_StreamingRecognizeClient, cb stt.Callback) {
	for {
		resp, err := stream.Recv()
		if err != nil {
			if !a.isClosing() && !isQuietEnd(err) {
				cb.OnError(err)
			}
			return
		}
		if e := resp.GetError(); e != nil && e.GetCode() != 0 {
			cb.OnError(status.ErrorProto(e))
			return
		}

		for _, r := range Normalize(resp) {
			if r.Kind == models.KindFinal {
				cb.OnFinal(r.Text, r.Confidence)
			} else {
				cb.OnPartial(r.Text)
			}
		}
	}
}
