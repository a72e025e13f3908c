package audio

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestMockPlayer_NaturalCompletion(t *testing.T) {
	mp := DefaultMockPlayer()
	mp.SetAudioDuration(20 * time.Millisecond)

	done := make(chan struct{})
	if err := mp.Play([]byte("clip"), func() { close(done) }); err != nil {
		t.Fatalf("Play failed: %v", err)
	}
	if !mp.IsPlaying() {
		t.Error("should be playing")
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("done never fired")
	}
	if mp.IsPlaying() {
		t.Error("should be stopped after completion")
	}
	if m := mp.Metrics(); m.PlayCount != 1 || m.DoneCount != 1 || m.StopCount != 0 {
		t.Errorf("metrics = %+v", m)
	}
}

func TestMockPlayer_StopSuppressesDone(t *testing.T) {
	mp := DefaultMockPlayer()
	mp.SetAudioDuration(30 * time.Millisecond)

	var fired atomic.Int32
	if err := mp.Play([]byte("clip"), func() { fired.Add(1) }); err != nil {
		t.Fatal(err)
	}
	if err := mp.Stop(); err != nil {
		t.Fatal(err)
	}
	time.Sleep(80 * time.Millisecond)

	if fired.Load() != 0 {
		t.Error("done must not fire after Stop")
	}
	if m := mp.Metrics(); m.StopCount != 1 {
		t.Errorf("StopCount = %d, want 1", m.StopCount)
	}
}

func TestMockPlayer_PlayReplacesCurrent(t *testing.T) {
	mp := DefaultMockPlayer()
	mp.SetAudioDuration(30 * time.Millisecond)

	var first, second atomic.Int32
	_ = mp.Play([]byte("a"), func() { first.Add(1) })
	_ = mp.Play([]byte("b"), func() { second.Add(1) })
	time.Sleep(100 * time.Millisecond)

	if first.Load() != 0 || second.Load() != 1 {
		t.Errorf("first=%d second=%d, want 0 and 1", first.Load(), second.Load())
	}
	if string(mp.LastAudio()) != "b" {
		t.Errorf("LastAudio = %q", mp.LastAudio())
	}
}

func TestMockPlayer_Errors(t *testing.T) {
	mp := DefaultMockPlayer()

	if err := mp.Play(nil, nil); !errors.Is(err, ErrEmptyAudio) {
		t.Errorf("empty = %v", err)
	}

	boom := errors.New("device busy")
	mp.SetPlayError(boom)
	if err := mp.Play([]byte("x"), nil); !errors.Is(err, boom) {
		t.Errorf("Play = %v, want injected error", err)
	}
	mp.SetPlayError(nil)

	if err := mp.Close(); err != nil {
		t.Fatal(err)
	}
	if err := mp.Play([]byte("x"), nil); !errors.Is(err, ErrPlayerClosed) {
		t.Errorf("Play after Close = %v", err)
	}
	if err := mp.Close(); err == nil {
		t.Error("second Close should fail")
	}
}

func TestMockPlayer_Callbacks(t *testing.T) {
	var plays, stops atomic.Int32
	mp := NewMockPlayer(MockCallbacks{
		OnPlay: func([]byte) { plays.Add(1) },
		OnStop: func() { stops.Add(1) },
	})
	mp.SetAudioDuration(time.Second)

	_ = mp.Play([]byte("x"), nil)
	_ = mp.Stop()
	_ = mp.Stop()

	if plays.Load() != 1 || stops.Load() != 1 {
		t.Errorf("plays=%d stops=%d", plays.Load(), stops.Load())
	}
}
