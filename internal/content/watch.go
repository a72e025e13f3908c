package content

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"

	"github.com/fsnotify/fsnotify"
)

var documentRe = regexp.MustCompile(`^contents_(.+)\.yaml$`)

// Watch drops cached levels when their documents in dir change. A level
// appearing or disappearing resets discovery. It returns once the watch is
// established and runs until ctx is done. onChange, if set, receives the
// affected level.
func (l *Library) Watch(ctx context.Context, dir string, onChange func(level string)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	l.log.Info("Watching content", "dir", dir)

	go func() {
		defer watcher.Close() //nolint:errcheck
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				m := documentRe.FindStringSubmatch(filepath.Base(event.Name))
				if m == nil {
					continue
				}
				level := m[1]
				switch {
				case event.Has(fsnotify.Create), event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
					l.Rediscover()
				case event.Has(fsnotify.Write):
					l.Invalidate(level)
				default:
					continue
				}
				l.log.Debug("Content changed", "level", level, "event", event.Op)
				if onChange != nil {
					onChange(level)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				l.log.Debug("Watcher error", "dir", dir, "err", err)
			}
		}
	}()
	return nil
}
