package content

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shizi-app/shizi/internal/apperr"
	"github.com/shizi-app/shizi/internal/gateway"
)

const sampleL1 = `
第一单元:
  口:
    词: [口语, 人口]
    句: 我有一张口。
  目:
    词:
      - 目光
  耳:
第二单元:
  手:
    词: 手工
    句: ""
复习:
`

func writeLevel(t *testing.T, dir, level, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, DocumentName(level)), []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestParse_KeepsDocumentOrder(t *testing.T) {
	lvl, err := Parse("L1", []byte(sampleL1))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if got := strings.Join(lvl.UnitNames(), ","); got != "第一单元,第二单元,复习" {
		t.Errorf("units = %s", got)
	}
	u := lvl.Units[0]
	var chars []string
	for _, e := range u.Entries {
		chars = append(chars, e.Char)
	}
	if strings.Join(chars, "") != "口目耳" {
		t.Errorf("characters = %v", chars)
	}

	kou, _ := u.Entry("口")
	if len(kou.Words) != 2 || kou.Words[0] != "口语" || kou.Sentence != "我有一张口。" {
		t.Errorf("口 = %+v", kou)
	}
	er, _ := u.Entry("耳")
	if len(er.Words) != 0 || er.Sentence != "" {
		t.Errorf("耳 = %+v", er)
	}
	shou, _ := lvl.Units[1].Entry("手")
	if len(shou.Words) != 1 || shou.Words[0] != "手工" {
		t.Errorf("手 = %+v", shou)
	}
	if lvl.CharCount() != 4 {
		t.Errorf("CharCount = %d", lvl.CharCount())
	}
}

func TestParse_Malformed(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"syntax", "第一单元: [unclosed"},
		{"root is a list", "- 口\n- 目\n"},
		{"unit is a list", "第一单元:\n  - 口\n"},
		{"words are a mapping", "第一单元:\n  口:\n    词: {a: b}\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse("L3", []byte(tt.body))
			if !errors.Is(err, apperr.ErrMalformedContent) {
				t.Errorf("Parse = %v, want malformed content", err)
			}
		})
	}
}

func TestParse_Empty(t *testing.T) {
	lvl, err := Parse("L1", nil)
	if err != nil || len(lvl.Units) != 0 {
		t.Errorf("Parse(empty) = %+v, %v", lvl, err)
	}
}

func TestLevels_Discovery(t *testing.T) {
	tests := []struct {
		name    string
		present []string
		want    string
	}{
		{"missing L0 is skipped", []string{"L1", "L2", "L4"}, "L1,L2"},
		{"L0 included", []string{"L0", "L1"}, "L0,L1"},
		{"nothing found", nil, "L1"},
		{"gap at L1 ends discovery", []string{"L0", "L2"}, "L0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			for _, l := range tt.present {
				writeLevel(t, dir, l, sampleL1)
			}
			lib := NewLibrary(&DirSource{Dir: dir}, nil)
			if got := strings.Join(lib.Levels(context.Background()), ","); got != tt.want {
				t.Errorf("Levels = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestLevels_Cap(t *testing.T) {
	dir := t.TempDir()
	for i := 0; i <= MaxLevel+3; i++ {
		writeLevel(t, dir, LevelName(i), "")
	}
	levels := NewLibrary(&DirSource{Dir: dir}, nil).Levels(context.Background())
	if len(levels) != MaxLevel+1 || levels[len(levels)-1] != "L20" {
		t.Errorf("Levels = %v", levels)
	}
}

func TestLevels_MalformedListedButUnavailable(t *testing.T) {
	dir := t.TempDir()
	writeLevel(t, dir, "L1", sampleL1)
	writeLevel(t, dir, "L2", "第一单元: [broken")
	writeLevel(t, dir, "L3", sampleL1)

	lib := NewLibrary(&DirSource{Dir: dir}, nil)
	ctx := context.Background()

	if got := strings.Join(lib.Levels(ctx), ","); got != "L1,L2,L3" {
		t.Fatalf("Levels = %s", got)
	}
	if _, err := lib.Level(ctx, "L2"); !errors.Is(err, apperr.ErrMalformedContent) {
		t.Errorf("Level(L2) = %v, want malformed", err)
	}
	if _, err := lib.Level(ctx, "L3"); err != nil {
		t.Errorf("Level(L3) = %v", err)
	}

	// Fixing the document and invalidating makes it available.
	writeLevel(t, dir, "L2", sampleL1)
	lib.Invalidate("L2")
	if _, err := lib.Level(ctx, "L2"); err != nil {
		t.Errorf("Level(L2) after fix = %v", err)
	}
}

func TestLevel_Missing(t *testing.T) {
	lib := NewLibrary(&DirSource{Dir: t.TempDir()}, nil)
	if _, err := lib.Level(context.Background(), "L9"); !apperr.IsNotFound(err) {
		t.Errorf("Level = %v, want not found", err)
	}
}

func TestSearchAndTotal(t *testing.T) {
	dir := t.TempDir()
	writeLevel(t, dir, "L1", sampleL1)
	writeLevel(t, dir, "L2", "第一单元:\n  口:\n  火:\n")
	lib := NewLibrary(&DirSource{Dir: dir}, nil)
	ctx := context.Background()

	m, ok := lib.Search(ctx, " 口 ")
	if !ok || m.Level != "L1" || m.Unit != "第一单元" || m.Entry.Sentence != "我有一张口。" {
		t.Errorf("Search(口) = %+v, %v", m, ok)
	}
	m, ok = lib.Search(ctx, "火")
	if !ok || m.Level != "L2" {
		t.Errorf("Search(火) = %+v, %v", m, ok)
	}
	if _, ok := lib.Search(ctx, "龙"); ok {
		t.Error("Search(龙) should miss")
	}
	if got := lib.TotalChars(ctx); got != 6 {
		t.Errorf("TotalChars = %d, want 6", got)
	}
}

func TestFindUnit(t *testing.T) {
	lvl, _ := Parse("L1", []byte(sampleL1))
	tests := []struct {
		query string
		want  int
		ok    bool
	}{
		{"第二单元", 1, true},
		{"1", 0, true},
		{"Unit 2", 1, true},
		{"复", 2, true},
		{"", 0, false},
		{"zzz", 0, false},
	}
	for _, tt := range tests {
		got, ok := FindUnit(lvl, tt.query)
		if got != tt.want || ok != tt.ok {
			t.Errorf("FindUnit(%q) = %d, %v; want %d, %v", tt.query, got, ok, tt.want, tt.ok)
		}
	}
}

func TestHTTPSource(t *testing.T) {
	var lastQuery atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		lastQuery.Store(r.URL.RawQuery)
		if r.URL.Path == "/yaml/contents_L1.yaml" {
			_, _ = w.Write([]byte(sampleL1))
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	fetcher := gateway.NewHTTPFetcherWithClient(srv.Client())
	src := NewSource(srv.URL+"/yaml/", fetcher, "123")
	if _, ok := src.(*HTTPSource); !ok {
		t.Fatalf("NewSource returned %T", src)
	}

	lib := NewLibrary(src, nil)
	if got := strings.Join(lib.Levels(context.Background()), ","); got != "L1" {
		t.Errorf("Levels = %s", got)
	}
	if q, _ := lastQuery.Load().(string); q != "t=123" {
		t.Errorf("query = %q, want t=123", q)
	}
}

func TestNewSource_Dir(t *testing.T) {
	if _, ok := NewSource("./yaml", nil, "").(*DirSource); !ok {
		t.Error("paths should use a DirSource")
	}
}

func TestWatch_InvalidatesChangedLevel(t *testing.T) {
	dir := t.TempDir()
	writeLevel(t, dir, "L1", "第一单元:\n  口:\n")
	lib := NewLibrary(&DirSource{Dir: dir}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	lvl, err := lib.Level(ctx, "L1")
	if err != nil || lvl.CharCount() != 1 {
		t.Fatalf("Level = %+v, %v", lvl, err)
	}

	changed := make(chan string, 8)
	if err := lib.Watch(ctx, dir, func(level string) { changed <- level }); err != nil {
		t.Fatalf("Watch failed: %v", err)
	}
	writeLevel(t, dir, "L1", "第一单元:\n  口:\n  目:\n")

	select {
	case level := <-changed:
		if level != "L1" {
			t.Errorf("changed level = %s", level)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no change event")
	}

	// Editors may emit several events; wait for the write to land.
	deadline := time.Now().Add(3 * time.Second)
	for {
		lvl, err = lib.Level(ctx, "L1")
		if err == nil && lvl.CharCount() == 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("Level after change = %+v, %v", lvl, err)
		}
		time.Sleep(20 * time.Millisecond)
		lib.Invalidate("L1")
	}
}
