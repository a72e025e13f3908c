package gateway

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/shizi-app/shizi/internal/apperr"
	"github.com/shizi-app/shizi/internal/assetpath"
)

// PrefetchResult tallies a bulk download.
type PrefetchResult struct {
	Total    int
	Fetched  int // downloaded this run
	Cached   int // already stored, skipped
	Missing  int // no recording exists
	Failed   int // network or storage errors
	Canceled bool
}

// ProgressFunc receives the number of finished items after each one.
type ProgressFunc func(done, total int)

// Prefetch downloads every path into the local store. Individual failures
// are tallied, never returned; progress is reported after each item.
// With cache busting active, each URL not yet refreshed this session is
// fetched again and overwrites its stored copy.
func (g *Gateway) Prefetch(ctx context.Context, paths []assetpath.Path, progress ProgressFunc) PrefetchResult {
	res := PrefetchResult{Total: len(paths)}

	var limiter *rate.Limiter
	if g.rate > 0 {
		limiter = rate.NewLimiter(rate.Limit(g.rate), g.concurrency)
	}

	var (
		mu   sync.Mutex
		done int
	)
	finish := func(tally func()) {
		mu.Lock()
		tally()
		done++
		n := done
		mu.Unlock()
		if progress != nil {
			progress(n, res.Total)
		}
	}

	eg, egctx := errgroup.WithContext(ctx)
	eg.SetLimit(g.concurrency)
	for _, p := range paths {
		eg.Go(func() error {
			base := g.urls.PublicURL(p)

			// The stored copy stays until a fresh one replaces it.
			if !g.needsRefresh(base) && g.store.Contains(base) {
				finish(func() { res.Cached++ })
				return nil
			}

			if limiter != nil {
				if err := limiter.Wait(egctx); err != nil {
					finish(func() { res.Failed++ })
					return nil
				}
			}

			data, err := g.fetcher.Fetch(egctx, bustURL(base, g.bustToken), g.BustActive())
			switch {
			case apperr.IsNotFound(err):
				finish(func() { res.Missing++ })
				return nil
			case err != nil:
				g.log.Debug("Prefetch failed", "url", base, "err", err)
				finish(func() { res.Failed++ })
				return nil
			}

			if err := g.store.Put(base, data); err != nil {
				g.log.Warn("Could not cache recording", "url", base, "err", err)
				finish(func() { res.Failed++ })
				return nil
			}
			g.markRefreshed(base)
			finish(func() { res.Fetched++ })
			return nil
		})
	}
	_ = eg.Wait()

	res.Canceled = ctx.Err() != nil
	g.log.Info("Prefetch finished",
		"total", res.Total, "fetched", res.Fetched, "cached", res.Cached,
		"missing", res.Missing, "failed", res.Failed)
	return res
}
