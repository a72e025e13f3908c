package playback

import (
	"context"
	"sync"
	"time"

	"github.com/shizi-app/shizi/internal/assetpath"
)

// DefaultLoopDelay is the pause between repetitions.
const DefaultLoopDelay = 800 * time.Millisecond

// Loop repeats one recording until cancelled.
type Loop struct {
	ctrl  *Controller
	path  assetpath.Path
	delay time.Duration

	mu        sync.Mutex
	cancelled bool
	last      Outcome
	plays     int

	stop chan struct{}
	done chan struct{}
}

// Loop plays path repeatedly, waiting delay after each clip. It ends when
// cancelled or when a repetition does not end naturally.
func (c *Controller) Loop(ctx context.Context, path assetpath.Path, delay time.Duration) *Loop {
	if delay <= 0 {
		delay = DefaultLoopDelay
	}
	l := &Loop{
		ctrl:  c,
		path:  path,
		delay: delay,
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	go l.run(ctx)
	return l
}

func (l *Loop) run(ctx context.Context) {
	defer close(l.done)

	for {
		if l.isCancelled() {
			return
		}

		outcome := make(chan Outcome, 1)
		l.mu.Lock()
		l.plays++
		l.mu.Unlock()
		l.ctrl.Play(ctx, l.path, func(o Outcome) { outcome <- o })

		o := <-outcome
		l.mu.Lock()
		l.last = o
		l.mu.Unlock()
		if o != Ended {
			return
		}

		timer := time.NewTimer(l.delay)
		select {
		case <-timer.C:
		case <-l.stop:
			timer.Stop()
			return
		case <-ctx.Done():
			timer.Stop()
			return
		}
	}
}

// Cancel prevents further repetitions. The clip in flight, if any, plays
// to the end.
func (l *Loop) Cancel() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cancelled {
		return
	}
	l.cancelled = true
	close(l.stop)
}

func (l *Loop) isCancelled() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cancelled
}

// Done is closed when the loop has ended.
func (l *Loop) Done() <-chan struct{} { return l.done }

// Wait blocks until the loop ends and returns the last outcome.
func (l *Loop) Wait() Outcome {
	<-l.done
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.last
}

// Plays returns how many times the clip was started.
func (l *Loop) Plays() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.plays
}
