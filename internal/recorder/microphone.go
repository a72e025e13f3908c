package recorder

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/shizi-app/shizi/internal/apperr"
)

// DefaultCaptureCommand returns an ffmpeg invocation that writes a mono
// 44.1 kHz MP3 stream to stdout from the platform's default input.
func DefaultCaptureCommand() []string {
	var input []string
	switch runtime.GOOS {
	case "darwin":
		input = []string{"-f", "avfoundation", "-i", ":0"}
	case "windows":
		input = []string{"-f", "dshow", "-i", "audio=default"}
	default:
		input = []string{"-f", "pulse", "-i", "default"}
	}
	args := append([]string{"ffmpeg", "-hide_banner", "-loglevel", "error", "-nostdin"}, input...)
	return append(args, "-ac", "1", "-ar", "44100", "-f", "mp3", "-")
}

// CommandMicrophone captures audio with an external program that streams
// encoded audio on stdout until interrupted.
type CommandMicrophone struct {
	Command []string
	// Grace is how long Open waits for the program to fail on startup,
	// e.g. when the device is not accessible.
	Grace time.Duration
	// StopTimeout bounds the wait after interrupting the program.
	StopTimeout time.Duration
}

// NewCommandMicrophone returns a microphone running command, or the
// default ffmpeg command when command is empty.
func NewCommandMicrophone(command []string) *CommandMicrophone {
	if len(command) == 0 {
		command = DefaultCaptureCommand()
	}
	return &CommandMicrophone{
		Command:     command,
		Grace:       200 * time.Millisecond,
		StopTimeout: 3 * time.Second,
	}
}

// Open starts the capture program.
func (m *CommandMicrophone) Open(ctx context.Context) (Capture, error) {
	if len(m.Command) == 0 {
		return nil, errors.New("no capture command configured")
	}

	// The capture outlives ctx; only Stop ends it.
	cmd := exec.Command(m.Command[0], m.Command[1:]...) //nolint:gosec
	c := &commandCapture{cmd: cmd, timeout: m.StopTimeout, exited: make(chan struct{})}
	cmd.Stdout = &c.stdout
	cmd.Stderr = &c.stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start capture: %w", err)
	}
	go func() {
		c.waitErr = cmd.Wait()
		close(c.exited)
	}()

	select {
	case <-c.exited:
		return nil, classifyCaptureFailure(c.waitErr, c.stderrString())
	case <-ctx.Done():
		_, _ = c.Stop()
		return nil, ctx.Err()
	case <-time.After(m.Grace):
	}
	return c, nil
}

type commandCapture struct {
	cmd     *exec.Cmd
	timeout time.Duration

	mu     sync.Mutex
	stdout bytes.Buffer
	stderr bytes.Buffer

	exited  chan struct{}
	waitErr error
	once    sync.Once
	data    []byte
	err     error
}

func (c *commandCapture) stderrString() string {
	<-c.exited
	return strings.TrimSpace(c.stderr.String())
}

// Stop interrupts the program so it can flush the encoder, then collects
// stdout. The process is killed if it does not exit in time.
func (c *commandCapture) Stop() ([]byte, error) {
	c.once.Do(func() {
		select {
		case <-c.exited:
		default:
			if err := c.cmd.Process.Signal(os.Interrupt); err != nil {
				_ = c.cmd.Process.Kill()
			}
			select {
			case <-c.exited:
			case <-time.After(c.timeout):
				_ = c.cmd.Process.Kill()
				<-c.exited
			}
		}

		c.mu.Lock()
		defer c.mu.Unlock()
		c.data = append([]byte(nil), c.stdout.Bytes()...)
		if len(c.data) == 0 && c.waitErr != nil {
			c.err = classifyCaptureFailure(c.waitErr, strings.TrimSpace(c.stderr.String()))
		}
	})
	return c.data, c.err
}

func classifyCaptureFailure(err error, stderr string) error {
	if err == nil {
		err = errors.New("capture exited")
	}
	if stderr != "" {
		err = fmt.Errorf("%w: %s", err, stderr)
	}
	lower := strings.ToLower(stderr)
	if errors.Is(err, os.ErrPermission) ||
		strings.Contains(lower, "permission denied") ||
		strings.Contains(lower, "not permitted") ||
		strings.Contains(lower, "not authorized") {
		return apperr.New(apperr.CodePermissionDenied, "recorder.capture", err)
	}
	return fmt.Errorf("capture failed: %w", err)
}
