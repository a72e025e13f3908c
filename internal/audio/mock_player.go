package audio

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// MockPlayer simulates playback without producing sound. Every clip lasts
// Duration unless a test overrides it.
type MockPlayer struct {
	mu       sync.Mutex
	current  chan struct{}
	closed   bool
	duration time.Duration
	playErr  error
	last     []byte

	callbacks MockCallbacks

	state     atomic.Int32
	playCount atomic.Int64
	stopCount atomic.Int64
	doneCount atomic.Int64
}

// MockCallbacks provides hooks for testing.
type MockCallbacks struct {
	OnPlay func(audio []byte)
	OnStop func()
	OnDone func()
}

// MockPlayerMetrics counts calls for assertions.
type MockPlayerMetrics struct {
	PlayCount int64
	StopCount int64
	DoneCount int64
}

// DefaultMockPlayer returns a mock whose clips last 50ms.
func DefaultMockPlayer() *MockPlayer {
	mp := &MockPlayer{duration: 50 * time.Millisecond}
	mp.state.Store(int32(StateStopped))
	return mp
}

// NewMockPlayer returns a mock with callbacks.
func NewMockPlayer(callbacks MockCallbacks) *MockPlayer {
	mp := DefaultMockPlayer()
	mp.callbacks = callbacks
	return mp
}

// SetAudioDuration sets the simulated length of later clips.
func (mp *MockPlayer) SetAudioDuration(d time.Duration) {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	mp.duration = d
}

// SetPlayError makes later Play calls fail with err; nil clears it.
func (mp *MockPlayer) SetPlayError(err error) {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	mp.playErr = err
}

// Play simulates playback of audio.
func (mp *MockPlayer) Play(audio []byte, done func()) error {
	if len(audio) == 0 {
		return ErrEmptyAudio
	}

	mp.mu.Lock()
	if mp.closed {
		mp.mu.Unlock()
		return ErrPlayerClosed
	}
	mp.stopLocked()
	if mp.playErr != nil {
		err := mp.playErr
		mp.mu.Unlock()
		return err
	}

	mp.last = append([]byte(nil), audio...)
	stop := make(chan struct{})
	mp.current = stop
	mp.state.Store(int32(StatePlaying))
	mp.playCount.Add(1)
	d := mp.duration
	onPlay := mp.callbacks.OnPlay
	mp.mu.Unlock()

	if onPlay != nil {
		onPlay(audio)
	}

	go func() {
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-stop:
			return
		case <-timer.C:
		}

		mp.mu.Lock()
		if mp.current != stop {
			mp.mu.Unlock()
			return
		}
		mp.current = nil
		mp.state.Store(int32(StateStopped))
		onDone := mp.callbacks.OnDone
		mp.mu.Unlock()

		mp.doneCount.Add(1)
		if onDone != nil {
			onDone()
		}
		if done != nil {
			done()
		}
	}()
	return nil
}

// Stop ends the simulated clip.
func (mp *MockPlayer) Stop() error {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	mp.stopLocked()
	return nil
}

func (mp *MockPlayer) stopLocked() {
	if mp.current == nil {
		return
	}
	close(mp.current)
	mp.current = nil
	mp.state.Store(int32(StateStopped))
	mp.stopCount.Add(1)
	if mp.callbacks.OnStop != nil {
		mp.callbacks.OnStop()
	}
}

// Close stops playback and rejects later Play calls.
func (mp *MockPlayer) Close() error {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	if mp.closed {
		return errors.New("player already closed")
	}
	mp.stopLocked()
	mp.closed = true
	mp.state.Store(int32(StateClosed))
	return nil
}

// IsPlaying reports whether a simulated clip is in progress.
func (mp *MockPlayer) IsPlaying() bool {
	return PlayerState(mp.state.Load()) == StatePlaying
}

// State returns the current state.
func (mp *MockPlayer) State() PlayerState {
	return PlayerState(mp.state.Load())
}

// LastAudio returns a copy of the bytes passed to the latest Play.
func (mp *MockPlayer) LastAudio() []byte {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	return append([]byte(nil), mp.last...)
}

// Metrics returns call counters.
func (mp *MockPlayer) Metrics() MockPlayerMetrics {
	return MockPlayerMetrics{
		PlayCount: mp.playCount.Load(),
		StopCount: mp.stopCount.Load(),
		DoneCount: mp.doneCount.Load(),
	}
}

var _ Sink = (*MockPlayer)(nil)
