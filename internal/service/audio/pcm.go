// Package audio turns raw captured audio into fixed-size mono frames for transcription.
package audio

import "time"

// Capture format produced by the system audio subprocess.
const (
	SampleRate       = 24000
	BytesPerSample   = 2 // 16-bit signed little-endian
	CaptureChannels  = 2 // interleaved stereo
	MonoChannels     = 1
	FrameDuration    = 100 * time.Millisecond
	stereoPairLength = BytesPerSample * CaptureChannels
)

// FrameSize is the byte length of one mono frame:
// sampleRate * bytesPerSample * channels * frameDuration.
const FrameSize = SampleRate * BytesPerSample * MonoChannels * int(FrameDuration/time.Millisecond) / 1000

// FrameSizeFor computes the frame length for an arbitrary mono format.
func FrameSizeFor(sampleRate, bytesPerSample int, d time.Duration) int {
	return int(int64(sampleRate) * int64(bytesPerSample) * int64(d) / int64(time.Second))
}

// Downmix reduces interleaved 16-bit stereo PCM to mono by keeping only the
// left sample of each pair. Output is exactly half the input length; a
// trailing incomplete pair is ignored.
func Downmix(stereo []byte) []byte {
	pairs := len(stereo) / stereoPairLength
	mono := make([]byte, pairs*BytesPerSample)
	for i := 0; i < pairs; i++ {
		src := i * stereoPairLength
		dst := i * BytesPerSample
		mono[dst] = stereo[src]
		mono[dst+1] = stereo[src+1]
	}
	return mono
}
