package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/charmbracelet/log"
)

func TestError_IsMatchesSentinel(t *testing.T) {
	err := NotFound("gateway.fetch", errors.New("HTTP 404"))

	if !errors.Is(err, ErrNotFound) {
		t.Error("expected errors.Is(err, ErrNotFound)")
	}
	if errors.Is(err, ErrNetwork) {
		t.Error("not-found error should not match ErrNetwork")
	}

	wrapped := fmt.Errorf("play: %w", err)
	if !IsNotFound(wrapped) {
		t.Error("IsNotFound should see through wrapping")
	}
	if CodeOf(wrapped) != CodeNotFound {
		t.Errorf("CodeOf = %q, want %q", CodeOf(wrapped), CodeNotFound)
	}
}

func TestError_Message(t *testing.T) {
	tests := []struct {
		err  *Error
		want string
	}{
		{New(CodeNetwork, "fetch", errors.New("timeout")), "fetch: network failure: timeout"},
		{New(CodeBusy, "recorder.start", nil), "recorder.start: resource busy"},
		{New(CodeMalformedContent, "", errors.New("bad yaml")), "malformed content: bad yaml"},
	}
	for _, tt := range tests {
		if got := tt.err.Error(); got != tt.want {
			t.Errorf("Error() = %q, want %q", got, tt.want)
		}
	}
}

func TestClassification(t *testing.T) {
	tests := []struct {
		code      Code
		retryable bool
		fatal     bool
		level     log.Level
	}{
		{CodeNotFound, false, false, log.InfoLevel},
		{CodeNetwork, true, false, log.WarnLevel},
		{CodeBusy, true, false, log.WarnLevel},
		{CodePermissionDenied, false, true, log.ErrorLevel},
		{CodeMalformedContent, false, true, log.ErrorLevel},
	}
	for _, tt := range tests {
		err := New(tt.code, "op", nil)
		if IsRetryable(err) != tt.retryable {
			t.Errorf("%s: IsRetryable = %v", tt.code, !tt.retryable)
		}
		if IsFatal(err) != tt.fatal {
			t.Errorf("%s: IsFatal = %v", tt.code, !tt.fatal)
		}
		if Level(err) != tt.level {
			t.Errorf("%s: Level = %v, want %v", tt.code, Level(err), tt.level)
		}
	}

	if CodeOf(errors.New("plain")) != "" {
		t.Error("unclassified errors should have an empty code")
	}
}

func TestError_WithContext(t *testing.T) {
	err := NotFound("gateway", nil).With("url", "https://x/a.mp3")
	if err.Context["url"] != "https://x/a.mp3" {
		t.Errorf("context not recorded: %v", err.Context)
	}
}
