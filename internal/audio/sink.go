package audio

import "errors"

var (
	// ErrEmptyAudio is returned when Play is given no bytes.
	ErrEmptyAudio = errors.New("audio data is empty")
	// ErrPlayerClosed is returned after Close.
	ErrPlayerClosed = errors.New("player is closed")
)

// Sink plays one clip at a time.
//
// Play replaces any clip in progress. done fires once when the clip ends
// on its own; it does not fire for clips ended by Stop, a later Play or
// Close.
type Sink interface {
	Play(audio []byte, done func()) error
	Stop() error
	Close() error
}

// PlayerState is the state of a sink.
type PlayerState int32

const (
	StateStopped PlayerState = iota
	StatePlaying
	StateClosed
)

func (s PlayerState) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StatePlaying:
		return "playing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}
