// Package apperr classifies the failures the audio pipeline reports to the
// user. Every package wraps its errors in an *Error so callers can decide
// between a quiet notice ("no recording yet") and a real failure.
package apperr

import (
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
)

// Code identifies a failure class.
type Code string

// Failure classes.
const (
	CodeNotFound         Code = "NOT_FOUND"
	CodePermissionDenied Code = "PERMISSION_DENIED"
	CodeNetwork          Code = "NETWORK"
	CodeMalformedContent Code = "MALFORMED_CONTENT"
	CodeInvalidInput     Code = "INVALID_INPUT"
	CodeBusy             Code = "BUSY"
)

// Sentinel errors, one per code. errors.Is(err, ErrNotFound) holds for any
// *Error carrying CodeNotFound.
var (
	ErrNotFound         = errors.New("not found")
	ErrPermissionDenied = errors.New("permission denied")
	ErrNetwork          = errors.New("network failure")
	ErrMalformedContent = errors.New("malformed content")
	ErrInvalidInput     = errors.New("invalid input")
	ErrBusy             = errors.New("resource busy")
)

var sentinels = map[Code]error{
	CodeNotFound:         ErrNotFound,
	CodePermissionDenied: ErrPermissionDenied,
	CodeNetwork:          ErrNetwork,
	CodeMalformedContent: ErrMalformedContent,
	CodeInvalidInput:     ErrInvalidInput,
	CodeBusy:             ErrBusy,
}

// Error is a classified failure.
type Error struct {
	Code    Code           // failure class
	Op      string         // operation being performed, e.g. "gateway.fetch"
	Err     error          // underlying cause, may be nil
	Context map[string]any // extra key/value pairs for logging
}

// New creates a classified error.
func New(code Code, op string, err error) *Error {
	return &Error{Code: code, Op: op, Err: err}
}

// NotFound is shorthand for New(CodeNotFound, op, err).
func NotFound(op string, err error) *Error { return New(CodeNotFound, op, err) }

// Network is shorthand for New(CodeNetwork, op, err).
func Network(op string, err error) *Error { return New(CodeNetwork, op, err) }

// Malformed is shorthand for New(CodeMalformedContent, op, err).
func Malformed(op string, err error) *Error { return New(CodeMalformedContent, op, err) }

// Error implements the error interface.
func (e *Error) Error() string {
	msg := string(e.Code)
	if s, ok := sentinels[e.Code]; ok {
		msg = s.Error()
	}
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, msg, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Op, msg)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

// Is matches the sentinel for the error's code.
func (e *Error) Is(target error) bool {
	s, ok := sentinels[e.Code]
	return ok && s == target
}

// With attaches a context value and returns the error for chaining.
func (e *Error) With(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// CodeOf returns the code of the first *Error in err's chain, or "" when
// err is not classified.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsNotFound reports whether err means "no such asset or document".
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsRetryable reports whether retrying the operation may succeed.
func IsRetryable(err error) bool {
	switch CodeOf(err) {
	case CodeNetwork, CodeBusy:
		return true
	}
	return false
}

// IsFatal reports whether err should abort the current workflow instead of
// being surfaced as a notice.
func IsFatal(err error) bool {
	switch CodeOf(err) {
	case CodePermissionDenied, CodeMalformedContent:
		return true
	}
	return false
}

// Level maps an error to the log level it should be reported at. A missing
// recording is routine and only informational.
func Level(err error) log.Level {
	switch CodeOf(err) {
	case CodeNotFound:
		return log.InfoLevel
	case CodeNetwork, CodeBusy, CodeInvalidInput:
		return log.WarnLevel
	}
	return log.ErrorLevel
}

// Report logs err on logger at the level chosen by Level.
func Report(logger *log.Logger, msg string, err error) {
	if err == nil {
		return
	}
	kv := []any{"err", err}
	var e *Error
	if errors.As(err, &e) {
		for k, v := range e.Context {
			kv = append(kv, k, v)
		}
	}
	logger.Log(Level(err), msg, kv...)
}
