package main

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

var errNotWAV = errors.New("not a RIFF/WAVE file")

// wavFormat is the subset of the fmt chunk wavfeed needs.
type wavFormat struct {
	AudioFormat   uint16
	Channels      uint16
	SampleRate    uint32
	BitsPerSample uint16
}

// readWAVHeader consumes chunks up to the start of the data chunk and
// returns the format and the data length.
func readWAVHeader(r io.Reader) (wavFormat, uint32, error) {
	var riff [12]byte
	if _, err := io.ReadFull(r, riff[:]); err != nil {
		return wavFormat{}, 0, fmt.Errorf("read RIFF header: %w", err)
	}
	if string(riff[0:4]) != "RIFF" || string(riff[8:12]) != "WAVE" {
		return wavFormat{}, 0, errNotWAV
	}

	var (
		format  wavFormat
		haveFmt bool
		chunk   [8]byte
	)
	for {
		if _, err := io.ReadFull(r, chunk[:]); err != nil {
			return wavFormat{}, 0, fmt.Errorf("read chunk header: %w", err)
		}
		id := string(chunk[0:4])
		size := binary.LittleEndian.Uint32(chunk[4:8])

		switch id {
		case "fmt ":
			if size < 16 {
				return wavFormat{}, 0, fmt.Errorf("fmt chunk too short: %d", size)
			}
			body := make([]byte, size+size%2)
			if _, err := io.ReadFull(r, body); err != nil {
				return wavFormat{}, 0, fmt.Errorf("read fmt chunk: %w", err)
			}
			format = wavFormat{
				AudioFormat:   binary.LittleEndian.Uint16(body[0:2]),
				Channels:      binary.LittleEndian.Uint16(body[2:4]),
				SampleRate:    binary.LittleEndian.Uint32(body[4:8]),
				BitsPerSample: binary.LittleEndian.Uint16(body[14:16]),
			}
			haveFmt = true
		case "data":
			if !haveFmt {
				return wavFormat{}, 0, errors.New("data chunk before fmt chunk")
			}
			return format, size, nil
		default:
			// Chunks are word aligned.
			if _, err := io.CopyN(io.Discard, r, int64(size+size%2)); err != nil {
				return wavFormat{}, 0, fmt.Errorf("skip %q chunk: %w", id, err)
			}
		}
	}
}

// validate checks the file matches what the speaker's endpoint expects.
func (f wavFormat) validate(sampleRate int, channels int) error {
	if f.AudioFormat != 1 {
		return fmt.Errorf("only PCM is supported, got format %d", f.AudioFormat)
	}
	if f.BitsPerSample != 16 {
		return fmt.Errorf("expected 16-bit samples, got %d", f.BitsPerSample)
	}
	if int(f.SampleRate) != sampleRate {
		return fmt.Errorf("expected %d Hz, got %d Hz", sampleRate, f.SampleRate)
	}
	if int(f.Channels) != channels {
		return fmt.Errorf("expected %d channel(s), got %d", channels, f.Channels)
	}
	return nil
}
