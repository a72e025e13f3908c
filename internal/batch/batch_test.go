package batch

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/shizi-app/shizi/internal/assetpath"
	"github.com/shizi-app/shizi/internal/backend"
	"github.com/shizi-app/shizi/internal/content"
	"github.com/shizi-app/shizi/internal/playback"
)

type stubResolver struct{}

func (stubResolver) Resolve(level, unit string, item assetpath.Item) assetpath.Path {
	return assetpath.Path(fmt.Sprintf("%s/%s/%s/%s/%d", level, unit, item.RootChar, item.Text, item.Index))
}

func sampleUnit() content.Unit {
	return content.Unit{
		Name: "第一单元",
		Entries: []content.Entry{
			{Char: "口", Words: []string{"口语", "人口"}, Sentence: "我有一张口。"},
			{Char: "耳"},
			{Char: "目", Words: []string{"目光"}},
		},
	}
}

func TestItems_Order(t *testing.T) {
	items := Items(sampleUnit())
	want := []assetpath.Item{
		assetpath.CharItem("口"),
		assetpath.WordItem("口", "口语", 0),
		assetpath.WordItem("口", "人口", 1),
		assetpath.SentenceItem("口", "我有一张口。"),
		assetpath.CharItem("耳"),
		assetpath.CharItem("目"),
		assetpath.WordItem("目", "目光", 0),
	}
	if !reflect.DeepEqual(items, want) {
		t.Errorf("Items =\n%v\nwant\n%v", items, want)
	}

	paths := Paths(stubResolver{}, "L1", "U1", items)
	if len(paths) != len(items) || paths[2] != "L1/U1/口/人口/1" {
		t.Errorf("Paths = %v", paths)
	}
}

type fakePlayer struct {
	mu       sync.Mutex
	outcomes map[assetpath.Path]playback.Outcome
	played   []assetpath.Path
	stops    int
}

func (p *fakePlayer) Play(_ context.Context, path assetpath.Path, onStopped func(playback.Outcome)) bool {
	p.mu.Lock()
	p.played = append(p.played, path)
	o, ok := p.outcomes[path]
	p.mu.Unlock()
	if !ok {
		o = playback.Ended
	}
	go onStopped(o)
	return o == playback.Ended
}

func (p *fakePlayer) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stops++
}

func (p *fakePlayer) Played() []assetpath.Path {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]assetpath.Path(nil), p.played...)
}

func waitState(t *testing.T, q *Queue) QueueState {
	t.Helper()
	res := make(chan QueueState, 1)
	go func() { res <- q.Wait() }()
	select {
	case s := <-res:
		return s
	case <-time.After(3 * time.Second):
		t.Fatal("queue did not stop")
		return QueueIdle
	}
}

func TestQueue_PlaysEveryItemAndSkipsMissing(t *testing.T) {
	items := Items(sampleUnit())
	paths := Paths(stubResolver{}, "L1", "U1", items)
	player := &fakePlayer{outcomes: map[assetpath.Path]playback.Outcome{
		paths[1]: playback.NotFound,
		paths[4]: playback.Failed,
	}}

	var (
		mu      sync.Mutex
		visited []int
		skipped []int
		dones   int
		summary [2]int
	)
	q := NewQueue(player, items, paths, time.Millisecond, QueueHooks{
		OnItem: func(i int, _ assetpath.Item) { mu.Lock(); visited = append(visited, i); mu.Unlock() },
		OnSkip: func(i int, _ assetpath.Item, _ playback.Outcome) { mu.Lock(); skipped = append(skipped, i); mu.Unlock() },
		OnDone: func(completed, total int) { mu.Lock(); dones++; summary = [2]int{completed, total}; mu.Unlock() },
	}, nil)

	if err := q.Start(context.Background(), 0); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if s := waitState(t, q); s != QueueDone {
		t.Fatalf("state = %s, want done", s)
	}

	mu.Lock()
	defer mu.Unlock()
	if !reflect.DeepEqual(visited, []int{0, 1, 2, 3, 4, 5, 6}) {
		t.Errorf("visited = %v", visited)
	}
	if !reflect.DeepEqual(skipped, []int{1, 4}) {
		t.Errorf("skipped = %v", skipped)
	}
	if dones != 1 || summary != [2]int{5, 7} {
		t.Errorf("OnDone calls = %d, summary = %v", dones, summary)
	}
	if got := q.Completed(); !reflect.DeepEqual(got, []int{0, 2, 3, 5, 6}) {
		t.Errorf("Completed = %v", got)
	}
	if len(player.Played()) != len(items) {
		t.Errorf("played %d items, want %d", len(player.Played()), len(items))
	}
}

func TestQueue_StartFromIndexResetsCompleted(t *testing.T) {
	items := Items(sampleUnit())
	paths := Paths(stubResolver{}, "L1", "U1", items)
	player := &fakePlayer{}
	q := NewQueue(player, items, paths, time.Millisecond, QueueHooks{}, nil)

	if err := q.Start(context.Background(), 0); err != nil {
		t.Fatal(err)
	}
	waitState(t, q)
	if len(q.Completed()) != len(items) {
		t.Fatalf("Completed = %v", q.Completed())
	}

	if err := q.Start(context.Background(), 5); err != nil {
		t.Fatal(err)
	}
	waitState(t, q)
	if got := q.Completed(); !reflect.DeepEqual(got, []int{5, 6}) {
		t.Errorf("Completed after restart = %v", got)
	}
}

func TestQueue_CancelDuringDelay(t *testing.T) {
	items := Items(sampleUnit())
	paths := Paths(stubResolver{}, "L1", "U1", items)
	player := &fakePlayer{}
	var dones int
	q := NewQueue(player, items, paths, time.Hour, QueueHooks{
		OnDone: func(int, int) { dones++ },
	}, nil)

	if err := q.Start(context.Background(), 0); err != nil {
		t.Fatal(err)
	}
	if err := q.Start(context.Background(), 0); !errors.Is(err, ErrQueueRunning) {
		t.Errorf("second Start = %v, want ErrQueueRunning", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for len(q.Completed()) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("first item never completed")
		}
		time.Sleep(5 * time.Millisecond)
	}
	q.Cancel()
	q.Cancel()

	if s := waitState(t, q); s != QueueCancelled {
		t.Errorf("state = %s, want cancelled", s)
	}
	if n := len(player.Played()); n != 1 {
		t.Errorf("played %d items after cancel, want 1", n)
	}
	if dones != 0 {
		t.Error("OnDone should not fire on cancel")
	}
	if q.Index() != 1 {
		t.Errorf("Index = %d, want 1", q.Index())
	}
}

type fakeCapturer struct {
	takes [][]byte
	err   error
}

func (c *fakeCapturer) Start(context.Context) error { return nil }

func (c *fakeCapturer) Stop(context.Context) ([]byte, error) {
	if c.err != nil {
		return nil, c.err
	}
	if len(c.takes) == 0 {
		return nil, nil
	}
	data := c.takes[0]
	c.takes = c.takes[1:]
	return data, nil
}

type fakeUploader struct {
	mu    sync.Mutex
	fail  map[assetpath.Path]bool
	order map[string][]string
	infos []backend.RecordInfo
}

func newFakeUploader() *fakeUploader {
	return &fakeUploader{fail: map[assetpath.Path]bool{}, order: map[string][]string{}}
}

func (u *fakeUploader) Upload(_ context.Context, path assetpath.Path, data []byte, info backend.RecordInfo) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.fail[path] {
		return errors.New("storage unavailable")
	}
	u.order[info.Char] = append(u.order[info.Char], string(data))
	u.infos = append(u.infos, info)
	return nil
}

func recordAll(t *testing.T, s *RecordSession, capt *fakeCapturer) {
	t.Helper()
	ctx := context.Background()
	for i := range s.Items() {
		if err := s.Select(i); err != nil {
			t.Fatal(err)
		}
		capt.takes = append(capt.takes, []byte(s.Items()[i].Text))
		if err := s.StartRecording(ctx); err != nil {
			t.Fatal(err)
		}
		if ok, err := s.StopRecording(ctx); !ok || err != nil {
			t.Fatalf("StopRecording = %v, %v", ok, err)
		}
	}
}

func TestRecordSession_TakeOverwrite(t *testing.T) {
	items := Items(sampleUnit())
	capt := &fakeCapturer{takes: [][]byte{[]byte("first"), []byte("second")}}
	s := NewRecordSession("L1", "U1", items, Paths(stubResolver{}, "L1", "U1", items), capt, newFakeUploader(), RecordOptions{}, nil)
	ctx := context.Background()

	for range 2 {
		if err := s.StartRecording(ctx); err != nil {
			t.Fatal(err)
		}
		if err := s.Select(3); err == nil {
			t.Error("Select while recording should fail")
		}
		if _, err := s.StopRecording(ctx); err != nil {
			t.Fatal(err)
		}
	}
	if data, _ := s.Take(0); string(data) != "second" {
		t.Errorf("take = %q, want second", data)
	}
	if s.Pending() != 1 || !s.Completed(0) || s.Completed(1) {
		t.Errorf("pending = %d", s.Pending())
	}

	// An empty capture keeps nothing.
	if err := s.StartRecording(ctx); err != nil {
		t.Fatal(err)
	}
	if ok, err := s.StopRecording(ctx); ok || err != nil {
		t.Errorf("empty StopRecording = %v, %v", ok, err)
	}
	if ok, _ := s.StopRecording(ctx); ok {
		t.Error("StopRecording while idle should keep nothing")
	}
	if err := s.Select(len(items)); err == nil {
		t.Error("Select out of range should fail")
	}
}

func TestRecordSession_UploadAllGroupsByRoot(t *testing.T) {
	items := Items(sampleUnit())
	paths := Paths(stubResolver{}, "L1", "U1", items)
	capt := &fakeCapturer{}
	up := newFakeUploader()
	var refreshed []assetpath.Path
	var refreshMu sync.Mutex
	s := NewRecordSession("L1", "U1", items, paths, capt, up, RecordOptions{
		AfterUpload: func(_ context.Context, p assetpath.Path) {
			refreshMu.Lock()
			refreshed = append(refreshed, p)
			refreshMu.Unlock()
		},
	}, nil)
	recordAll(t, s, capt)

	var progressMu sync.Mutex
	var last, calls int
	res := s.UploadAll(context.Background(), func(done, total int) {
		progressMu.Lock()
		defer progressMu.Unlock()
		calls++
		if done > last {
			last = done
		}
		if total != len(items) {
			t.Errorf("total = %d", total)
		}
	})

	if !res.Success() || res.Uploaded != len(items) {
		t.Fatalf("result = %+v", res)
	}
	if calls != len(items) || last != len(items) {
		t.Errorf("progress calls = %d, last = %d", calls, last)
	}
	want := map[string][]string{
		"口": {"口", "口语", "人口", "我有一张口。"},
		"耳": {"耳"},
		"目": {"目", "目光"},
	}
	if !reflect.DeepEqual(up.order, want) {
		t.Errorf("upload order = %v", up.order)
	}
	if s.Pending() != 0 {
		t.Errorf("pending after success = %d", s.Pending())
	}
	if len(refreshed) != len(items) {
		t.Errorf("AfterUpload ran %d times", len(refreshed))
	}
	for _, info := range up.infos {
		if info.Level != "L1" || info.Unit != "U1" || info.Kind == "" {
			t.Errorf("info = %+v", info)
		}
	}
}

func TestRecordSession_UploadAllKeepsTakesOnFailure(t *testing.T) {
	items := Items(sampleUnit())
	paths := Paths(stubResolver{}, "L1", "U1", items)
	capt := &fakeCapturer{}
	up := newFakeUploader()
	up.fail[paths[1]] = true
	s := NewRecordSession("L1", "U1", items, paths, capt, up, RecordOptions{}, nil)
	recordAll(t, s, capt)

	res := s.UploadAll(context.Background(), nil)
	if res.Success() || res.Failed != 1 || res.Uploaded != len(items)-1 || len(res.Errors) != 1 {
		t.Fatalf("result = %+v", res)
	}
	// The rest of the group still uploads in order.
	if got := up.order["口"]; !reflect.DeepEqual(got, []string{"口", "人口", "我有一张口。"}) {
		t.Errorf("口 uploads = %v", got)
	}
	if s.Pending() != len(items) {
		t.Errorf("pending = %d, want every take kept", s.Pending())
	}

	if res := NewRecordSession("L1", "U1", items, paths, capt, up, RecordOptions{}, nil).UploadAll(context.Background(), nil); res.Uploaded != 0 || !res.Success() {
		t.Errorf("empty UploadAll = %+v", res)
	}
}

func TestRecordSession_UploadCurrent(t *testing.T) {
	items := Items(sampleUnit())
	paths := Paths(stubResolver{}, "L1", "U1", items)
	capt := &fakeCapturer{takes: [][]byte{[]byte("take")}}
	up := newFakeUploader()
	s := NewRecordSession("L1", "U1", items, paths, capt, up, RecordOptions{}, nil)
	ctx := context.Background()

	if err := s.UploadCurrent(ctx); !errors.Is(err, ErrNothingRecorded) {
		t.Errorf("UploadCurrent = %v, want ErrNothingRecorded", err)
	}
	if !s.Next() || s.Current() != 1 {
		t.Fatalf("Next did not move")
	}
	if err := s.StartRecording(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := s.StopRecording(ctx); err != nil {
		t.Fatal(err)
	}
	if err := s.UploadCurrent(ctx); err != nil {
		t.Fatalf("UploadCurrent failed: %v", err)
	}
	if s.Pending() != 0 || len(up.infos) != 1 || up.infos[0].Kind != assetpath.KindWord || up.infos[0].Text != "口语" {
		t.Errorf("pending = %d, infos = %+v", s.Pending(), up.infos)
	}
}
