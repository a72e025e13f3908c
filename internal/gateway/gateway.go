// Package gateway resolves asset paths to playable audio, cache first.
//
// Recordings are looked up in the local store by their base public URL.
// A miss fetches the remote object and stores a copy; either way the
// caller gets an object URL over the bytes. When a cache-busting token is
// active, the first request for each URL in the session goes to the
// network and refreshes the stored copy.
package gateway

import (
	"context"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/shizi-app/shizi/internal/assetpath"
	"github.com/shizi-app/shizi/internal/cache"
)

// Store is the local audio store.
type Store interface {
	Match(url string) ([]byte, bool)
	Contains(url string) bool
	Put(url string, data []byte) error
	Delete(url string) (bool, error)
	Clear() (cache.ClearReport, error)
}

// URLResolver maps an asset path to its base public URL.
type URLResolver interface {
	PublicURL(path assetpath.Path) string
}

// Playable is a resolved recording.
type Playable struct {
	ObjectURL string // revocable handle, valid until the next resolve
	BaseURL   string // cache key and remote location
	Data      []byte
	FromCache bool
}

// Options configures a Gateway.
type Options struct {
	// BustToken enables cache busting for this session when non-empty.
	BustToken string
	// Prefetch tuning; zero values pick defaults.
	PrefetchConcurrency int
	PrefetchRate        float64 // requests per second, 0 = unlimited
}

// Gateway serves recordings from the local store and the network.
type Gateway struct {
	store   Store
	objects *cache.ObjectURLs
	fetcher Fetcher
	urls    URLResolver
	log     *log.Logger

	bustToken   string
	concurrency int
	rate        float64

	mu     sync.Mutex
	busted map[string]bool   // URLs already refreshed this session
	slots  map[string]string // playback slot -> object URL it holds
}

// New creates a Gateway.
func New(store Store, objects *cache.ObjectURLs, fetcher Fetcher, urls URLResolver, opts Options, logger *log.Logger) *Gateway {
	if logger == nil {
		logger = log.Default()
	}
	if opts.PrefetchConcurrency <= 0 {
		opts.PrefetchConcurrency = 4
	}
	return &Gateway{
		store:       store,
		objects:     objects,
		fetcher:     fetcher,
		urls:        urls,
		log:         logger.With("component", "gateway"),
		bustToken:   opts.BustToken,
		concurrency: opts.PrefetchConcurrency,
		rate:        opts.PrefetchRate,
		busted:      make(map[string]bool),
		slots:       make(map[string]string),
	}
}

// BustActive reports whether cache busting is on for this session.
func (g *Gateway) BustActive() bool { return g.bustToken != "" }

// Load returns the bytes of path, cache first, without touching the
// playback slot.
func (g *Gateway) Load(ctx context.Context, path assetpath.Path) ([]byte, bool, error) {
	base := g.urls.PublicURL(path)

	if !g.needsRefresh(base) {
		if data, ok := g.store.Match(base); ok {
			g.log.Debug("Serving from cache", "url", base)
			return data, true, nil
		}
	}

	data, err := g.fetcher.Fetch(ctx, bustURL(base, g.bustToken), g.BustActive())
	if err != nil {
		return nil, false, err
	}
	g.markRefreshed(base)

	if err := g.store.Put(base, data); err != nil {
		// Playback does not depend on the local copy.
		g.log.Warn("Could not cache recording", "url", base, "err", err)
	}
	return data, false, nil
}

// ResolvePlayableURL returns a playable object URL for path. The object
// URL issued by the previous call is revoked first.
func (g *Gateway) ResolvePlayableURL(ctx context.Context, path assetpath.Path) (Playable, error) {
	return g.ResolveInSlot(ctx, "", path)
}

// ResolveInSlot is ResolvePlayableURL for a named playback slot, such as
// one per HTTP client. Only the object URL held by the same slot is
// revoked.
func (g *Gateway) ResolveInSlot(ctx context.Context, slot string, path assetpath.Path) (Playable, error) {
	data, fromCache, err := g.Load(ctx, path)
	if err != nil {
		return Playable{}, err
	}

	g.mu.Lock()
	g.objects.Revoke(g.slots[slot])
	objectURL := g.objects.Create(data, "audio/mpeg")
	g.slots[slot] = objectURL
	g.mu.Unlock()

	return Playable{
		ObjectURL: objectURL,
		BaseURL:   g.urls.PublicURL(path),
		Data:      data,
		FromCache: fromCache,
	}, nil
}

// Release revokes the object URL held by the default playback slot.
func (g *Gateway) Release() { g.ReleaseSlot("") }

// ReleaseSlot revokes the object URL held by slot.
func (g *Gateway) ReleaseSlot(slot string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.objects.Revoke(g.slots[slot])
	delete(g.slots, slot)
}

// Invalidate drops the stored copy of path, e.g. after a re-recording.
func (g *Gateway) Invalidate(_ context.Context, path assetpath.Path) error {
	base := g.urls.PublicURL(path)
	if _, err := g.store.Delete(base); err != nil {
		return fmt.Errorf("invalidate %s: %w", base, err)
	}
	return nil
}

// Clear empties the local store.
func (g *Gateway) Clear() (cache.ClearReport, error) {
	return g.store.Clear()
}

func (g *Gateway) needsRefresh(base string) bool {
	if !g.BustActive() {
		return false
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return !g.busted[base]
}

func (g *Gateway) markRefreshed(base string) {
	if !g.BustActive() {
		return
	}
	g.mu.Lock()
	g.busted[base] = true
	g.mu.Unlock()
}
