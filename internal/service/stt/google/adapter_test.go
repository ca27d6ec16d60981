package google

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"cloud.google.com/go/speech/apiv1/speechpb"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"conversation-transcriber/internal/models"
	"conversation-transcriber/internal/service/stt"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.LanguageCode != "en-US" {
		t.Errorf("expected default language 'en-US', got %s", cfg.LanguageCode)
	}
	if cfg.SampleRateHz != 24000 {
		t.Errorf("expected default sample rate 24000, got %d", cfg.SampleRateHz)
	}
	if cfg.InterimResults != true {
		t.Errorf("expected default interim results true, got %v", cfg.InterimResults)
	}
	if cfg.AudioEncoding != "LINEAR16" {
		t.Errorf("expected default encoding 'LINEAR16', got %s", cfg.AudioEncoding)
	}
}

func TestConfigFrom_Overlay(t *testing.T) {
	cfg := ConfigFrom(stt.Config{
		LanguageCode:  "es-ES",
		SampleRate:    16000,
		TurnDetection: stt.TurnDetection{SilenceDuration: 300 * time.Millisecond},
	})

	if cfg.LanguageCode != "es-ES" {
		t.Errorf("expected language 'es-ES', got %s", cfg.LanguageCode)
	}
	if cfg.SampleRateHz != 16000 {
		t.Errorf("expected sample rate 16000, got %d", cfg.SampleRateHz)
	}
	if cfg.SilenceDuration != 300*time.Millisecond {
		t.Errorf("expected silence 300ms, got %v", cfg.SilenceDuration)
	}
	if cfg.AudioEncoding != "LINEAR16" {
		t.Errorf("expected encoding to keep default, got %s", cfg.AudioEncoding)
	}
}

func TestStreamingConfig(t *testing.T) {
	req := StreamingConfig(DefaultConfig())
	sc := req.GetStreamingConfig()
	if sc == nil {
		t.Fatal("expected streaming config request")
	}
	if sc.GetConfig().GetEncoding() != speechpb.RecognitionConfig_LINEAR16 {
		t.Errorf("unexpected encoding %v", sc.GetConfig().GetEncoding())
	}
	if sc.GetConfig().GetSampleRateHertz() != 24000 {
		t.Errorf("unexpected sample rate %d", sc.GetConfig().GetSampleRateHertz())
	}
	if !sc.GetInterimResults() {
		t.Error("expected interim results enabled")
	}
	if got := sc.GetVoiceActivityTimeout().GetSpeechEndTimeout().AsDuration(); got != 100*time.Millisecond {
		t.Errorf("expected speech end timeout 100ms, got %v", got)
	}
}

func TestParseAudioEncoding(t *testing.T) {
	tests := []struct {
		input    string
		expected speechpb.RecognitionConfig_AudioEncoding
	}{
		{"LINEAR16", speechpb.RecognitionConfig_LINEAR16},
		{"MULAW", speechpb.RecognitionConfig_MULAW},
		{"FLAC", speechpb.RecognitionConfig_FLAC},
		{"OGG_OPUS", speechpb.RecognitionConfig_OGG_OPUS},
		{"WEBM_OPUS", speechpb.RecognitionConfig_WEBM_OPUS},
		{"ENCODING_UNSPECIFIED", speechpb.RecognitionConfig_LINEAR16}, // fallback
		{"linear16", speechpb.RecognitionConfig_LINEAR16},             // lowercase -> fallback
		{"invalid", speechpb.RecognitionConfig_LINEAR16},              // fallback
		{"", speechpb.RecognitionConfig_LINEAR16},                     // fallback
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := parseAudioEncoding(tt.input)
			if got != tt.expected {
				t.Errorf("parseAudioEncoding(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func result(text string, final bool, confidence float32) *speechpb.StreamingRecognitionResult {
	return &speechpb.StreamingRecognitionResult{
		IsFinal: final,
		Alternatives: []*speechpb.SpeechRecognitionAlternative{
			{Transcript: text, Confidence: confidence},
		},
	}
}

func TestNormalize(t *testing.T) {
	resp := &speechpb.StreamingRecognizeResponse{
		Results: []*speechpb.StreamingRecognitionResult{
			result("Hello there.", true, 0.9),
			result(" how ", false, 0),
			result("(noise)", false, 0),
			{IsFinal: true},
		},
	}

	got := Normalize(resp)
	if len(got) != 2 {
		t.Fatalf("expected 2 results, got %d: %+v", len(got), got)
	}
	if got[0].Kind != models.KindFinal || got[0].Text != "Hello there." {
		t.Errorf("unexpected first result %+v", got[0])
	}
	if got[1].Kind != models.KindPartial || got[1].Text != "how" {
		t.Errorf("unexpected second result %+v", got[1])
	}

	if len(Normalize(&speechpb.StreamingRecognizeResponse{})) != 0 {
		t.Error("expected no results for empty response")
	}
}

func TestIsQuietEnd(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"eof", io.EOF, true},
		{"wrapped eof", fmt.Errorf("recv: %w", io.EOF), true},
		{"context canceled", context.Canceled, true},
		{"grpc canceled", status.Error(codes.Canceled, "canceled"), true},
		{"unavailable", status.Error(codes.Unavailable, "down"), false},
		{"other", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isQuietEnd(tt.err); got != tt.want {
				t.Errorf("isQuietEnd(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestCredentialOptions(t *testing.T) {
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "")
	if _, err := CredentialOptions(stt.Config{}); !errors.Is(err, stt.ErrMissingCredentials) {
		t.Errorf("expected ErrMissingCredentials, got %v", err)
	}

	opts, err := CredentialOptions(stt.Config{APIKey: "/tmp/sa.json"})
	if err != nil || len(opts) != 1 {
		t.Errorf("expected one credentials option, got %d (err=%v)", len(opts), err)
	}

	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "/tmp/adc.json")
	opts, err = CredentialOptions(stt.Config{})
	if err != nil || len(opts) != 0 {
		t.Errorf("expected ambient credentials, got %d options (err=%v)", len(opts), err)
	}
}

func TestAdapter_CloseBeforeStart(t *testing.T) {
	a, err := New(stt.Config{APIKey: "/tmp/sa.json"})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := a.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
	if err := a.SendAudio(context.Background(), []byte{0}); !errors.Is(err, stt.ErrChannelClosed) {
		t.Errorf("expected ErrChannelClosed, got %v", err)
	}
}
