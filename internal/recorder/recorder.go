// Package recorder captures reference audio from the microphone.
//
// Only one capture may be open in the process at a time, across all
// Recorder values.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	"github.com/shizi-app/shizi/internal/apperr"
)

// ErrAlreadyRecording is returned by Start while a capture is open.
var ErrAlreadyRecording = apperr.New(apperr.CodeBusy, "recorder.start", errors.New("already recording"))

// active is held by the recorder that owns the capture device.
var active atomic.Bool

// Microphone opens a capture.
type Microphone interface {
	Open(ctx context.Context) (Capture, error)
}

// Capture is an open capture. Stop ends it, releases the device and
// returns everything captured.
type Capture interface {
	Stop() ([]byte, error)
}

// Recorder records one clip at a time.
type Recorder struct {
	mic Microphone
	log *log.Logger
	now func() time.Time

	mu        sync.Mutex
	sm        *stateMachine
	capture   Capture
	startedAt time.Time
}

// New creates a Recorder on mic.
func New(mic Microphone, logger *log.Logger) *Recorder {
	if logger == nil {
		logger = log.Default()
	}
	r := &Recorder{
		mic: mic,
		log: logger.With("component", "recorder"),
		now: time.Now,
		sm:  newStateMachine(),
	}
	r.sm.OnEnter(StateRecording, func() { r.startedAt = r.now() })
	r.sm.OnEnter(StateIdle, func() {
		r.capture = nil
		r.startedAt = time.Time{}
	})
	return r
}

// Start opens the microphone and begins capturing.
func (r *Recorder) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sm.Current() != StateIdle {
		return ErrAlreadyRecording
	}
	if !active.CompareAndSwap(false, true) {
		return ErrAlreadyRecording
	}
	r.sm.Transition(StateStarting)

	capture, err := r.mic.Open(ctx)
	if err != nil {
		active.Store(false)
		r.sm.Transition(StateIdle)
		return classifyOpenError(err)
	}

	r.capture = capture
	r.sm.Transition(StateRecording)
	r.log.Debug("Recording started")
	return nil
}

// Stop finishes the capture and returns the recorded bytes. It returns
// (nil, nil) when nothing is being recorded or nothing was captured.
func (r *Recorder) Stop(_ context.Context) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sm.Current() != StateRecording {
		return nil, nil
	}
	r.sm.Transition(StateStopping)

	elapsed := r.now().Sub(r.startedAt)
	data, err := r.capture.Stop()

	active.Store(false)
	r.sm.Transition(StateIdle)

	if err != nil && len(data) == 0 {
		return nil, apperr.New(apperr.CodeInvalidInput, "recorder.stop", err)
	}
	if err != nil {
		r.log.Warn("Capture ended with an error", "err", err, "bytes", len(data))
	}
	if len(data) == 0 {
		r.log.Debug("Recording stopped with no data")
		return nil, nil
	}
	r.log.Debug("Recording stopped", "bytes", len(data), "elapsed", elapsed.Round(time.Millisecond))
	return data, nil
}

// State returns the current state.
func (r *Recorder) State() StateType {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sm.Current()
}

// Recording reports whether a capture is open.
func (r *Recorder) Recording() bool { return r.State() == StateRecording }

// Elapsed returns how long the current capture has been running.
func (r *Recorder) Elapsed() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sm.Current() != StateRecording {
		return 0
	}
	return r.now().Sub(r.startedAt)
}

func classifyOpenError(err error) error {
	if apperr.CodeOf(err) != "" {
		return err
	}
	if errors.Is(err, os.ErrPermission) {
		return apperr.New(apperr.CodePermissionDenied, "recorder.start", err)
	}
	return fmt.Errorf("open microphone: %w", err)
}
