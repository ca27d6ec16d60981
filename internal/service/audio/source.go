package audio

import (
	"errors"
	"fmt"
	"mime"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"conversation-transcriber/internal/models"
	"conversation-transcriber/internal/observability/logging"
	"conversation-transcriber/internal/observability/metrics"
)

// DefaultMeFormat is the format tag expected on pre-framed microphone audio.
const DefaultMeFormat = "audio/pcm;rate=24000"

// ErrFormatMismatch is returned when a microphone frame carries an unexpected format tag.
var ErrFormatMismatch = errors.New("audio format mismatch")

// FrameFunc receives frames produced by a source.
type FrameFunc func(frame models.AudioFrame)

// ThemSource converts the system capture byte stream (24 kHz s16le stereo)
// into fixed-size mono frames. It implements io.Writer so a subprocess's
// stdout can be copied straight into it.
//
// Every emitted frame is also mirrored to the echo-reference callback. That
// side channel is fire-and-forget and must not block.
type ThemSource struct {
	mu      sync.Mutex
	carry   []byte
	framer  *Framer
	onFrame FrameFunc
	onEcho  FrameFunc
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// NewThemSource creates a Them source. onEcho may be nil.
func NewThemSource(onFrame, onEcho FrameFunc) *ThemSource {
	return &ThemSource{
		carry:   make([]byte, 0, stereoPairLength),
		framer:  NewFramer(FrameSize),
		onFrame: onFrame,
		onEcho:  onEcho,
		metrics: metrics.DefaultMetrics,
		logger:  logging.WithComponent("audio.them"),
	}
}

// Write consumes raw interleaved stereo bytes. It never fails; a short
// trailing stereo pair is carried into the next call.
func (s *ThemSource) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.metrics.RecordAudioReceived(string(models.SpeakerThem), len(p))

	data := p
	if len(s.carry) > 0 {
		data = append(append(make([]byte, 0, len(s.carry)+len(p)), s.carry...), p...)
		s.carry = s.carry[:0]
	}

	aligned := len(data) - len(data)%stereoPairLength
	if aligned < len(data) {
		s.carry = append(s.carry, data[aligned:]...)
	}

	for _, pcm := range s.framer.Push(Downmix(data[:aligned])) {
		frame := models.AudioFrame{
			PCM:        pcm,
			SampleRate: SampleRate,
			Channels:   MonoChannels,
			Speaker:    models.SpeakerThem,
		}
		if s.onFrame != nil {
			s.onFrame(frame)
		}
		if s.onEcho != nil {
			s.onEcho(frame)
		}
	}
	return len(p), nil
}

// Pending returns buffered mono bytes waiting to complete a frame.
func (s *ThemSource) Pending() int {
	return s.framer.Pending()
}

// Reset drops any partially accumulated audio.
func (s *ThemSource) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.carry = s.carry[:0]
	s.framer.Reset()
}

// MeSource forwards microphone audio that already arrives framed from the
// capture boundary. It only checks the format tag; no resampling happens here.
type MeSource struct {
	format  string
	onFrame FrameFunc
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// NewMeSource creates a Me source accepting frames tagged with format.
func NewMeSource(format string, onFrame FrameFunc) *MeSource {
	if format == "" {
		format = DefaultMeFormat
	}
	return &MeSource{
		format:  format,
		onFrame: onFrame,
		metrics: metrics.DefaultMetrics,
		logger:  logging.WithComponent("audio.me"),
	}
}

// Format returns the expected format tag.
func (s *MeSource) Format() string {
	return s.format
}

// Accept forwards pcm if format matches the expected tag.
func (s *MeSource) Accept(format string, pcm []byte) error {
	s.metrics.RecordAudioReceived(string(models.SpeakerMe), len(pcm))

	if !SameFormat(format, s.format) {
		s.metrics.RecordFrameDropped(string(models.SpeakerMe), "format")
		s.logger.Warn().
			Str("got", format).
			Str("want", s.format).
			Msg("Dropping microphone frame with unexpected format")
		return fmt.Errorf("%w: got %q, want %q", ErrFormatMismatch, format, s.format)
	}
	if len(pcm) == 0 {
		return nil
	}

	if s.onFrame != nil {
		s.onFrame(models.AudioFrame{
			PCM:        pcm,
			SampleRate: SampleRate,
			Channels:   MonoChannels,
			Speaker:    models.SpeakerMe,
		})
	}
	return nil
}

// SameFormat compares two media-type tags, ignoring case, whitespace and
// parameter order.
func SameFormat(a, b string) bool {
	at, ap, err := mime.ParseMediaType(a)
	if err != nil {
		return false
	}
	bt, bp, err := mime.ParseMediaType(b)
	if err != nil {
		return false
	}
	if at != bt || len(ap) != len(bp) {
		return false
	}
	for k, v := range ap {
		if !strings.EqualFold(bp[k], v) {
			return false
		}
	}
	return true
}
