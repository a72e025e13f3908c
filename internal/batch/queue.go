package batch

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/shizi-app/shizi/internal/assetpath"
	"github.com/shizi-app/shizi/internal/playback"
)

// DefaultQueueDelay is the pause between queued items.
const DefaultQueueDelay = 100 * time.Millisecond

// ErrQueueRunning is returned by Start while the queue is playing.
var ErrQueueRunning = errors.New("queue is already playing")

// Player plays one asset at a time.
type Player interface {
	Play(ctx context.Context, path assetpath.Path, onStopped func(playback.Outcome)) bool
	Stop()
}

// QueueState is the state of a Queue.
type QueueState int

const (
	QueueIdle QueueState = iota
	QueuePlaying
	QueueDone
	QueueCancelled
)

func (s QueueState) String() string {
	switch s {
	case QueueIdle:
		return "idle"
	case QueuePlaying:
		return "playing"
	case QueueDone:
		return "done"
	case QueueCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// QueueHooks observe queue progress. All are optional and run on the
// queue goroutine.
type QueueHooks struct {
	OnItem func(index int, item assetpath.Item)
	OnSkip func(index int, item assetpath.Item, outcome playback.Outcome)
	OnDone func(completed int, total int)
}

// Queue plays a unit's items one after another.
type Queue struct {
	player Player
	items  []assetpath.Item
	paths  []assetpath.Path
	delay  time.Duration
	hooks  QueueHooks
	log    *log.Logger

	mu        sync.Mutex
	state     QueueState
	index     int
	completed map[int]bool
	cancelled bool
	stop      chan struct{}
	done      chan struct{}
}

// NewQueue creates a queue over items and their resolved paths.
func NewQueue(player Player, items []assetpath.Item, paths []assetpath.Path, delay time.Duration, hooks QueueHooks, logger *log.Logger) *Queue {
	if delay <= 0 {
		delay = DefaultQueueDelay
	}
	if logger == nil {
		logger = log.Default()
	}
	done := make(chan struct{})
	close(done)
	return &Queue{
		player:    player,
		items:     items,
		paths:     paths,
		delay:     delay,
		hooks:     hooks,
		log:       logger.With("component", "queue"),
		completed: make(map[int]bool),
		done:      done,
	}
}

// Start plays from index from to the end. The completed set is reset.
func (q *Queue) Start(ctx context.Context, from int) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.state == QueuePlaying {
		return ErrQueueRunning
	}
	if from < 0 {
		from = 0
	}
	q.state = QueuePlaying
	q.index = from
	q.completed = make(map[int]bool)
	q.cancelled = false
	q.stop = make(chan struct{})
	q.done = make(chan struct{})

	go q.run(ctx, q.stop, q.done)
	return nil
}

func (q *Queue) run(ctx context.Context, stop, done chan struct{}) {
	defer close(done)

	for {
		q.mu.Lock()
		if q.cancelled {
			q.state = QueueCancelled
			q.mu.Unlock()
			return
		}
		idx := q.index
		if idx >= len(q.items) {
			q.state = QueueDone
			completed := len(q.completed)
			q.mu.Unlock()
			q.log.Info("Queue finished", "completed", completed, "total", len(q.items))
			if q.hooks.OnDone != nil {
				q.hooks.OnDone(completed, len(q.items))
			}
			return
		}
		q.mu.Unlock()

		item := q.items[idx]
		if q.hooks.OnItem != nil {
			q.hooks.OnItem(idx, item)
		}

		outcome := make(chan playback.Outcome, 1)
		q.player.Play(ctx, q.paths[idx], func(o playback.Outcome) { outcome <- o })
		o := <-outcome

		q.mu.Lock()
		if o == playback.Ended {
			q.completed[idx] = true
		}
		q.index = idx + 1
		cancelled := q.cancelled
		q.mu.Unlock()

		if cancelled {
			continue
		}
		if o == playback.NotFound || o == playback.Failed {
			q.log.Debug("Skipping item", "text", item.Text, "outcome", o)
			if q.hooks.OnSkip != nil {
				q.hooks.OnSkip(idx, item, o)
			}
		}

		timer := time.NewTimer(q.delay)
		select {
		case <-timer.C:
		case <-stop:
			timer.Stop()
		case <-ctx.Done():
			timer.Stop()
			q.Cancel()
		}
	}
}

// Cancel stops the active item and halts advancement.
func (q *Queue) Cancel() {
	q.mu.Lock()
	if q.state != QueuePlaying || q.cancelled {
		q.mu.Unlock()
		return
	}
	q.cancelled = true
	close(q.stop)
	q.mu.Unlock()

	q.player.Stop()
}

// Wait blocks until the queue stops and returns its final state.
func (q *Queue) Wait() QueueState {
	q.mu.Lock()
	done := q.done
	q.mu.Unlock()

	<-done
	return q.State()
}

// State returns the current state.
func (q *Queue) State() QueueState {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.state
}

// Index returns the index of the next item to play.
func (q *Queue) Index() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.index
}

// Completed returns the indexes that played to the end, ascending.
func (q *Queue) Completed() []int {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]int, 0, len(q.completed))
	for i := range q.completed {
		out = append(out, i)
	}
	sort.Ints(out)
	return out
}
