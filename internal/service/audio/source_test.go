package audio

import (
	"bytes"
	"errors"
	"sync"
	"testing"

	"conversation-transcriber/internal/models"
)

type frameRecorder struct {
	mu     sync.Mutex
	frames []models.AudioFrame
}

func (r *frameRecorder) record(f models.AudioFrame) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, f)
}

func (r *frameRecorder) get() []models.AudioFrame {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.AudioFrame{}, r.frames...)
}

// stereoOf builds interleaved stereo whose left samples are sequential bytes
// and right samples are 0xFF.
func stereoOf(pairs int) (stereo, left []byte) {
	for i := 0; i < pairs; i++ {
		lo, hi := byte(i), byte(i>>8)
		stereo = append(stereo, lo, hi, 0xFF, 0xFF)
		left = append(left, lo, hi)
	}
	return stereo, left
}

func TestThemSource_EmitsMonoFrames(t *testing.T) {
	frames := &frameRecorder{}
	echoes := &frameRecorder{}
	src := NewThemSource(frames.record, echoes.record)

	// 2.5 frames worth of mono audio.
	pairs := FrameSize / 2 * 5 / 2
	stereo, left := stereoOf(pairs)

	n, err := src.Write(stereo)
	if err != nil || n != len(stereo) {
		t.Fatalf("Write returned n=%d err=%v", n, err)
	}

	got := frames.get()
	if len(got) != 2 {
		t.Fatalf("expected 2 frames, got %d", len(got))
	}
	for i, fr := range got {
		if fr.Speaker != models.SpeakerThem {
			t.Errorf("frame %d: expected speaker them, got %s", i, fr.Speaker)
		}
		if fr.SampleRate != SampleRate || fr.Channels != 1 {
			t.Errorf("frame %d: unexpected format %d/%d", i, fr.SampleRate, fr.Channels)
		}
		if !bytes.Equal(fr.PCM, left[i*FrameSize:(i+1)*FrameSize]) {
			t.Errorf("frame %d: pcm does not match left channel", i)
		}
	}
	if src.Pending() != FrameSize/2 {
		t.Errorf("expected %d pending bytes, got %d", FrameSize/2, src.Pending())
	}

	if len(echoes.get()) != 2 {
		t.Errorf("expected each frame mirrored to echo reference, got %d", len(echoes.get()))
	}
}

func TestThemSource_CarriesSplitStereoPairs(t *testing.T) {
	frames := &frameRecorder{}
	src := NewThemSource(frames.record, nil)

	stereo, left := stereoOf(FrameSize / 2)

	// Odd-sized writes split stereo pairs across calls.
	for off := 0; off < len(stereo); off += 7 {
		end := off + 7
		if end > len(stereo) {
			end = len(stereo)
		}
		src.Write(stereo[off:end])
	}

	got := frames.get()
	if len(got) != 1 {
		t.Fatalf("expected 1 frame, got %d", len(got))
	}
	if !bytes.Equal(got[0].PCM, left) {
		t.Error("split writes produced misaligned pcm")
	}
}

func TestThemSource_Reset(t *testing.T) {
	frames := &frameRecorder{}
	src := NewThemSource(frames.record, nil)

	src.Write(make([]byte, 1003))
	src.Reset()
	if src.Pending() != 0 {
		t.Errorf("expected 0 pending after reset, got %d", src.Pending())
	}
}

func TestMeSource_Accept(t *testing.T) {
	tests := []struct {
		name    string
		format  string
		wantErr bool
	}{
		{"exact", "audio/pcm;rate=24000", false},
		{"spacing and case", "Audio/PCM; rate=24000", false},
		{"wrong rate", "audio/pcm;rate=16000", true},
		{"wrong type", "audio/webm", true},
		{"empty", "", true},
		{"garbage", ";;;", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frames := &frameRecorder{}
			src := NewMeSource("", frames.record)

			err := src.Accept(tt.format, []byte{1, 2, 3, 4})
			if tt.wantErr {
				if !errors.Is(err, ErrFormatMismatch) {
					t.Errorf("expected ErrFormatMismatch, got %v", err)
				}
				if len(frames.get()) != 0 {
					t.Error("expected mismatched frame to be dropped")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			got := frames.get()
			if len(got) != 1 || got[0].Speaker != models.SpeakerMe {
				t.Fatalf("expected one Me frame, got %+v", got)
			}
			if !bytes.Equal(got[0].PCM, []byte{1, 2, 3, 4}) {
				t.Error("expected pcm forwarded unchanged")
			}
		})
	}
}

func TestMeSource_EmptyPayloadIgnored(t *testing.T) {
	frames := &frameRecorder{}
	src := NewMeSource(DefaultMeFormat, frames.record)

	if err := src.Accept(DefaultMeFormat, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(frames.get()) != 0 {
		t.Error("expected no frame for empty payload")
	}
}
