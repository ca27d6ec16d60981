package audio

import "sync"

// Framer accumulates mono PCM and slices it into constant-size frames,
// independent of how the producer chunks its writes.
type Framer struct {
	mu        sync.Mutex
	frameSize int
	buf       []byte
}

// NewFramer creates a framer emitting frames of frameSize bytes.
func NewFramer(frameSize int) *Framer {
	if frameSize <= 0 {
		frameSize = FrameSize
	}
	return &Framer{
		frameSize: frameSize,
		buf:       make([]byte, 0, frameSize*2),
	}
}

// FrameSize returns the configured frame length in bytes.
func (f *Framer) FrameSize() int {
	return f.frameSize
}

// Push appends pcm and returns every complete frame now available, oldest
// first. Leftover bytes stay buffered for the next call.
func (f *Framer) Push(pcm []byte) [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.buf = append(f.buf, pcm...)

	var frames [][]byte
	for len(f.buf) >= f.frameSize {
		frame := make([]byte, f.frameSize)
		copy(frame, f.buf[:f.frameSize])
		frames = append(frames, frame)
		f.buf = f.buf[f.frameSize:]
	}

	// Move the leftover to a fresh array so sliced-off frames can be collected.
	if len(frames) > 0 {
		rest := make([]byte, len(f.buf), f.frameSize*2)
		copy(rest, f.buf)
		f.buf = rest
	}
	return frames
}

// Pending returns the number of buffered bytes not yet forming a frame.
func (f *Framer) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.buf)
}

// Reset discards buffered bytes.
func (f *Framer) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.buf = f.buf[:0]
}
