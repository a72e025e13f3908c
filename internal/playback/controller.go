// Package playback plays one recording at a time.
//
// Every Play call ends with exactly one notification, whether the clip
// finished, was stopped or superseded, had no recording, or could not
// start.
package playback

import (
	"context"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/shizi-app/shizi/internal/apperr"
	"github.com/shizi-app/shizi/internal/assetpath"
	"github.com/shizi-app/shizi/internal/audio"
	"github.com/shizi-app/shizi/internal/gateway"
)

// Outcome is how a Play call ended.
type Outcome int

const (
	// Ended means the clip played to the end.
	Ended Outcome = iota
	// Stopped means Stop or a later Play ended the clip.
	Stopped
	// NotFound means no recording exists for the path.
	NotFound
	// Failed means the recording could not be fetched or started.
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Ended:
		return "ended"
	case Stopped:
		return "stopped"
	case NotFound:
		return "not found"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Source resolves paths to playable audio.
type Source interface {
	ResolvePlayableURL(ctx context.Context, path assetpath.Path) (gateway.Playable, error)
	Release()
}

// Controller owns the single playback slot.
type Controller struct {
	src  Source
	sink audio.Sink
	log  *log.Logger

	mu      sync.Mutex
	current *play
}

type play struct {
	path      assetpath.Path
	onStopped func(Outcome)
	once      sync.Once
}

func (p *play) finish(o Outcome) {
	p.once.Do(func() {
		if p.onStopped != nil {
			p.onStopped(o)
		}
	})
}

// NewController creates a Controller.
func NewController(src Source, sink audio.Sink, logger *log.Logger) *Controller {
	if logger == nil {
		logger = log.Default()
	}
	return &Controller{src: src, sink: sink, log: logger.With("component", "playback")}
}

// Play stops whatever is playing and starts path. It reports whether
// playback started; onStopped fires exactly once either way.
func (c *Controller) Play(ctx context.Context, path assetpath.Path, onStopped func(Outcome)) bool {
	p := &play{path: path, onStopped: onStopped}

	c.mu.Lock()
	prev := c.current
	c.current = p
	c.mu.Unlock()

	if prev != nil {
		_ = c.sink.Stop()
		prev.finish(Stopped)
	}

	playable, err := c.src.ResolvePlayableURL(ctx, path)

	c.mu.Lock()
	if c.current != p {
		// Superseded or stopped while resolving.
		c.mu.Unlock()
		p.finish(Stopped)
		return false
	}
	if err != nil {
		c.current = nil
		c.mu.Unlock()
		apperr.Report(c.log, "Could not load recording", err)
		if apperr.IsNotFound(err) {
			p.finish(NotFound)
		} else {
			p.finish(Failed)
		}
		return false
	}

	err = c.sink.Play(playable.Data, func() { c.ended(p) })
	if err != nil {
		c.current = nil
		c.mu.Unlock()
		c.src.Release()
		c.log.Warn("Audio playback error", "path", path, "err", err)
		p.finish(Failed)
		return false
	}
	c.mu.Unlock()

	c.log.Debug("Playing", "path", path, "cached", playable.FromCache)
	return true
}

func (c *Controller) ended(p *play) {
	c.mu.Lock()
	mine := c.current == p
	if mine {
		c.current = nil
	}
	c.mu.Unlock()

	if mine {
		c.src.Release()
	}
	p.finish(Ended)
}

// Stop ends the current clip, if any, and fires its notification.
func (c *Controller) Stop() {
	c.mu.Lock()
	p := c.current
	c.current = nil
	c.mu.Unlock()

	if p == nil {
		return
	}
	_ = c.sink.Stop()
	c.src.Release()
	p.finish(Stopped)
}

// Playing reports whether a Play call is in progress.
func (c *Controller) Playing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current != nil
}

// Current returns the path being played, or "".
func (c *Controller) Current() assetpath.Path {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return ""
	}
	return c.current.path
}
