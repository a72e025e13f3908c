package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shizi-app/shizi/internal/assetpath"
	"github.com/shizi-app/shizi/internal/audio"
	"github.com/shizi-app/shizi/internal/batch"
	"github.com/shizi-app/shizi/internal/config"
	"github.com/shizi-app/shizi/internal/content"
	"github.com/shizi-app/shizi/internal/playback"
	"github.com/shizi-app/shizi/internal/recorder"
)

const lessonL1 = `
第一单元:
  口:
    词: [口语]
    句: 张开口。
  目:
第二单元:
  手:
`

type fakeMic struct{ n atomic.Int32 }

type fakeCapture struct{ data []byte }

func (c fakeCapture) Stop() ([]byte, error) { return c.data, nil }

func (m *fakeMic) Open(context.Context) (recorder.Capture, error) {
	return fakeCapture{data: []byte(fmt.Sprintf("take-%d", m.n.Add(1)))}, nil
}

func openTestApp(t *testing.T) *App {
	t.Helper()
	contentDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(contentDir, content.DocumentName("L1")), []byte(lessonL1), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := config.DefaultConfig()
	cfg.Content.Location = contentDir
	cfg.Storage.Dir = t.TempDir()
	cfg.Cache.Dir = t.TempDir()
	cfg.Database.DSN = fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	cfg.Audio.QueueDelay = 5 * time.Millisecond

	sink := audio.NewMockPlayer(audio.MockCallbacks{})
	sink.SetAudioDuration(5 * time.Millisecond)

	a, err := Open(context.Background(), cfg, nil, Options{
		Sink:          sink,
		Microphone:    &fakeMic{},
		InMemoryState: true,
	})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestRecordUploadThenQueue(t *testing.T) {
	a := openTestApp(t)
	ctx := context.Background()

	unit, err := a.Unit(ctx, "L1", "1")
	if err != nil {
		t.Fatalf("Unit failed: %v", err)
	}
	if unit.Name != "第一单元" {
		t.Fatalf("unit = %s", unit.Name)
	}

	items, paths := a.Items("L1", unit)
	if len(items) != 4 {
		t.Fatalf("items = %v", items)
	}

	// Nothing is recorded yet, so every item is skipped.
	var skipped atomic.Int32
	empty := a.NewQueue("L1", unit, batch.QueueHooks{
		OnSkip: func(int, assetpath.Item, playback.Outcome) { skipped.Add(1) },
	})
	if err := empty.Start(ctx, 0); err != nil {
		t.Fatal(err)
	}
	if s := empty.Wait(); s != batch.QueueDone || len(empty.Completed()) != 0 {
		t.Fatalf("empty queue = %s, completed %v", s, empty.Completed())
	}
	if skipped.Load() != int32(len(items)) {
		t.Errorf("skipped %d, want %d", skipped.Load(), len(items))
	}

	rs := a.NewRecordSession("L1", unit)
	for i := range items {
		if err := rs.Select(i); err != nil {
			t.Fatal(err)
		}
		if err := rs.StartRecording(ctx); err != nil {
			t.Fatal(err)
		}
		if ok, err := rs.StopRecording(ctx); !ok || err != nil {
			t.Fatalf("StopRecording = %v, %v", ok, err)
		}
	}
	if res := rs.UploadAll(ctx, nil); !res.Success() || res.Uploaded != len(items) {
		t.Fatalf("UploadAll = %+v", res)
	}

	full := a.NewQueue("L1", unit, batch.QueueHooks{})
	if err := full.Start(ctx, 0); err != nil {
		t.Fatal(err)
	}
	if s := full.Wait(); s != batch.QueueDone || len(full.Completed()) != len(items) {
		t.Fatalf("queue = %s, completed %v", s, full.Completed())
	}
	for _, p := range paths {
		if !a.Cache.Contains(a.Repo.PublicURL(p)) {
			t.Errorf("%s not cached after playing", p)
		}
	}

	stats, err := a.Repo.Stats(ctx)
	if err != nil || stats.CharCount != 2 {
		t.Errorf("Stats = %+v, %v", stats, err)
	}
}

func TestRememberAndRestore(t *testing.T) {
	a := openTestApp(t)
	ctx := context.Background()

	a.Remember(ctx, "L1", "第二单元", true)
	a.Session.SetLevel("L9", nil)
	a.Session.TeachingMode = false

	a.Restore(ctx)
	if a.Session.Level != "L1" || a.Session.UnitName() != "第二单元" {
		t.Errorf("restored %s/%s", a.Session.Level, a.Session.UnitName())
	}
	if !a.Session.TeachingMode {
		t.Error("teaching mode should be restored")
	}
	if pos, ok := a.State.LoadPosition(); !ok || !pos.TeachingMode {
		t.Errorf("saved position = %+v, %v", pos, ok)
	}

	a.Remember(ctx, "L1", "第一单元", false)
	if pos, _ := a.State.LoadPosition(); pos.TeachingMode || pos.UnitName != "第一单元" {
		t.Errorf("practice position = %+v", pos)
	}
}

func TestAccountsRecordProgress(t *testing.T) {
	a := openTestApp(t)
	ctx := context.Background()

	if _, err := a.Accounts.Login(ctx, "  小明 "); err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if err := a.Accounts.RecordCompletion(ctx, "口", "L1", "第一单元"); err != nil {
		t.Fatalf("RecordCompletion failed: %v", err)
	}
	rows, err := a.Repo.Progress(ctx, "小明")
	if err != nil || len(rows) != 1 || rows[0].Char != "口" {
		t.Errorf("Progress = %+v, %v", rows, err)
	}
}

func TestUnitNotFound(t *testing.T) {
	a := openTestApp(t)
	if _, err := a.Unit(context.Background(), "L1", "zzz"); err == nil {
		t.Error("Unit should fail for an unknown unit")
	}
}
