package main

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/shizi-app/shizi/internal/apperr"
	"github.com/shizi-app/shizi/internal/assetpath"
	"github.com/shizi-app/shizi/internal/content"
	"github.com/shizi-app/shizi/internal/gateway"
)

func TestNormalizeArg(t *testing.T) {
	tests := map[string]string{
		" L１ ":  "L1",
		"Ｌ２":    "L2",
		"第三单元":  "第三单元",
		"口":     "口",
		"  口语 ": "口语",
	}
	for in, want := range tests {
		if got := normalizeArg(in); got != want {
			t.Errorf("normalizeArg(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestPickItem(t *testing.T) {
	e := content.Entry{Char: "口", Words: []string{"口语", "人口"}, Sentence: "我张开口。"}

	item, err := pickItem(e, 0, false)
	if err != nil || item != assetpath.CharItem("口") {
		t.Errorf("char item = %+v, %v", item, err)
	}

	item, err = pickItem(e, 2, false)
	if err != nil || item.Kind != assetpath.KindWord || item.Text != "人口" || item.Index != 1 {
		t.Errorf("word item = %+v, %v", item, err)
	}

	item, err = pickItem(e, 0, true)
	if err != nil || item.Kind != assetpath.KindSentence || item.Text != e.Sentence {
		t.Errorf("sentence item = %+v, %v", item, err)
	}

	if _, err := pickItem(e, 3, false); apperr.CodeOf(err) != apperr.CodeInvalidInput {
		t.Errorf("word out of range: %v", err)
	}
	if _, err := pickItem(content.Entry{Char: "目"}, 0, true); apperr.CodeOf(err) != apperr.CodeInvalidInput {
		t.Errorf("missing sentence: %v", err)
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{apperr.NotFound("x", errors.New("gone")), 2},
		{fmt.Errorf("wrapped: %w", apperr.New(apperr.CodeInvalidInput, "x", errors.New("bad"))), 3},
		{apperr.Network("x", errors.New("down")), 4},
		{errors.New("plain"), 1},
	}
	for _, tt := range tests {
		if got := exitCode(tt.err); got != tt.want {
			t.Errorf("exitCode(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestPrefetchSummary(t *testing.T) {
	summary, err := prefetchSummary(gateway.PrefetchResult{Total: 5, Fetched: 2, Cached: 2, Missing: 1})
	if err != nil {
		t.Fatal(err)
	}
	if summary != "2 downloaded, 2 already stored, 1 not recorded" {
		t.Errorf("summary = %q", summary)
	}

	if _, err := prefetchSummary(gateway.PrefetchResult{Total: 3, Fetched: 1, Failed: 2}); err == nil || !strings.HasPrefix(err.Error(), "2 failed") {
		t.Errorf("failed prefetch error = %v", err)
	}
	if _, err := prefetchSummary(gateway.PrefetchResult{Total: 3, Canceled: true}); err == nil || !strings.HasPrefix(err.Error(), "cancelled") {
		t.Errorf("cancelled prefetch error = %v", err)
	}
}
