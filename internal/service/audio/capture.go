package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"conversation-transcriber/internal/observability/logging"
	"conversation-transcriber/internal/observability/metrics"
)

// DefaultStopGrace is how long Stop waits after SIGTERM before killing.
const DefaultStopGrace = 2 * time.Second

// ErrCaptureUnavailable is returned when no capture command exists for this platform.
var ErrCaptureUnavailable = errors.New("system audio capture unavailable on this platform")

// DefaultCaptureCommand returns the built-in capture command for goos, or nil
// when system audio capture is not supported there.
func DefaultCaptureCommand(goos string) []string {
	switch goos {
	case "darwin":
		return []string{"SystemAudioDump"}
	case "linux":
		return []string{
			"parec", "--raw",
			"--format=s16le",
			fmt.Sprintf("--rate=%d", SampleRate),
			fmt.Sprintf("--channels=%d", CaptureChannels),
			"-d", "@DEFAULT_MONITOR@",
		}
	default:
		return nil
	}
}

// Capture supervises the single system audio child process. Its stdout is
// copied into sink. The parent never writes to the child.
type Capture struct {
	opMu sync.Mutex // serializes Start/Stop

	mu   sync.Mutex
	cmd  *exec.Cmd
	done chan struct{}

	command []string
	sink    io.Writer
	grace   time.Duration
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// NewCapture creates a capture supervisor. An empty command makes the
// capture unavailable.
func NewCapture(command []string, sink io.Writer, grace time.Duration) *Capture {
	if grace <= 0 {
		grace = DefaultStopGrace
	}
	return &Capture{
		command: command,
		sink:    sink,
		grace:   grace,
		metrics: metrics.DefaultMetrics,
		logger:  logging.WithComponent("audio.capture"),
	}
}

// Available reports whether a capture command is configured.
func (c *Capture) Available() bool {
	return len(c.command) > 0
}

// Running reports whether a capture process is currently alive.
func (c *Capture) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cmd != nil
}

// Done returns a channel closed when the current process exits, or nil when
// nothing is running.
func (c *Capture) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cmd == nil {
		return nil
	}
	return c.done
}

// Start spawns the capture process. Any prior process is fully stopped first
// since two concurrent captures would corrupt the framing window.
func (c *Capture) Start(ctx context.Context) error {
	if !c.Available() {
		return ErrCaptureUnavailable
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.stop()

	cmd := exec.Command(c.command[0], c.command[1:]...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("capture stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		c.metrics.RecordCaptureExit("spawn_failed")
		return fmt.Errorf("capture spawn %s: %w", c.command[0], err)
	}

	done := make(chan struct{})
	c.mu.Lock()
	c.cmd = cmd
	c.done = done
	c.mu.Unlock()

	c.metrics.RecordCaptureStart()
	c.logger.Info().
		Strs("command", c.command).
		Int("pid", cmd.Process.Pid).
		Msg("System audio capture started")

	go c.pump(cmd, stdout, done)
	return nil
}

func (c *Capture) pump(cmd *exec.Cmd, stdout io.Reader, done chan struct{}) {
	defer close(done)

	n, copyErr := io.Copy(c.sink, stdout)
	waitErr := cmd.Wait()

	c.mu.Lock()
	stopped := c.cmd != cmd
	if !stopped {
		c.cmd = nil
	}
	c.mu.Unlock()

	reason := "exited"
	if stopped {
		reason = "stopped"
	}
	c.metrics.RecordCaptureExit(reason)

	ev := c.logger.Info()
	if !stopped {
		// Them frames simply stop; the session keeps running.
		ev = c.logger.Warn()
	}
	ev.Int64("bytes", n).
		AnErr("copyErr", copyErr).
		AnErr("waitErr", waitErr).
		Str("reason", reason).
		Msg("System audio capture ended")
}

// Stop terminates the capture process if running. Safe to call repeatedly.
func (c *Capture) Stop() error {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	c.stop()
	return nil
}

func (c *Capture) stop() {
	c.mu.Lock()
	cmd := c.cmd
	done := c.done
	c.cmd = nil
	c.mu.Unlock()

	if cmd == nil || cmd.Process == nil {
		return
	}

	if err := cmd.Process.Signal(syscall.SIGTERM); err != nil {
		_ = cmd.Process.Kill()
	}

	timer := time.NewTimer(c.grace)
	defer timer.Stop()
	select {
	case <-done:
	case <-timer.C:
		c.logger.Warn().Dur("grace", c.grace).Msg("Capture did not exit after SIGTERM, killing")
		_ = cmd.Process.Kill()
		<-done
	}
}
