package gateway

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shizi-app/shizi/internal/apperr"
	"github.com/shizi-app/shizi/internal/assetpath"
	"github.com/shizi-app/shizi/internal/cache"
)

type baseURLs string

func (b baseURLs) PublicURL(p assetpath.Path) string { return string(b) + "/" + p.String() }

type recordingServer struct {
	*httptest.Server
	hits      atomic.Int64
	mu        sync.Mutex
	queries   []string
	noCache   []string
	available map[string]string
}

func newRecordingServer(t *testing.T, available map[string]string) *recordingServer {
	rs := &recordingServer{available: available}
	rs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rs.hits.Add(1)
		rs.mu.Lock()
		rs.queries = append(rs.queries, r.URL.RawQuery)
		rs.noCache = append(rs.noCache, r.Header.Get("Cache-Control"))
		rs.mu.Unlock()
		body, ok := rs.available[strings.TrimPrefix(r.URL.Path, "/")]
		if !ok {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(rs.Close)
	return rs
}

func newTestGateway(t *testing.T, srv *recordingServer, opts Options) (*Gateway, *cache.Manager, *cache.ObjectURLs) {
	t.Helper()
	store, err := cache.Open(cache.Config{
		MemoryCapacity: 1 << 20,
		DiskCapacity:   1 << 20,
		Dir:            t.TempDir(),
	}, nil)
	if err != nil {
		t.Fatalf("cache.Open failed: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	objects := cache.NewObjectURLs("test")
	fetcher := NewHTTPFetcherWithClient(srv.Client())
	return New(store, objects, fetcher, baseURLs(srv.URL), opts, nil), store, objects
}

func TestResolvePlayableURL_CachesAfterFirstFetch(t *testing.T) {
	srv := newRecordingServer(t, map[string]string{"L1/Unit_1/kou/char.mp3": "kou-audio"})
	gw, store, _ := newTestGateway(t, srv, Options{})
	ctx := context.Background()
	path := assetpath.Path("L1/Unit_1/kou/char.mp3")

	first, err := gw.ResolvePlayableURL(ctx, path)
	if err != nil {
		t.Fatalf("first resolve: %v", err)
	}
	if first.FromCache {
		t.Error("first resolve should come from the network")
	}
	if string(first.Data) != "kou-audio" {
		t.Errorf("Data = %q", first.Data)
	}

	second, err := gw.ResolvePlayableURL(ctx, path)
	if err != nil {
		t.Fatalf("second resolve: %v", err)
	}
	if !second.FromCache {
		t.Error("second resolve should be served from the store")
	}
	if srv.hits.Load() != 1 {
		t.Errorf("network fetches = %d, want 1", srv.hits.Load())
	}
	if entries, _ := store.Usage(); entries != 1 {
		t.Errorf("store entries = %d, want 1", entries)
	}
	if first.BaseURL != srv.URL+"/"+path.String() {
		t.Errorf("BaseURL = %q", first.BaseURL)
	}
}

func TestResolvePlayableURL_RevokesPreviousObjectURL(t *testing.T) {
	srv := newRecordingServer(t, map[string]string{"a.mp3": "a", "b.mp3": "b"})
	gw, _, objects := newTestGateway(t, srv, Options{})
	ctx := context.Background()

	a, err := gw.ResolvePlayableURL(ctx, "a.mp3")
	if err != nil {
		t.Fatal(err)
	}
	b, err := gw.ResolvePlayableURL(ctx, "b.mp3")
	if err != nil {
		t.Fatal(err)
	}

	if _, _, err := objects.Lookup(a.ObjectURL); !errors.Is(err, cache.ErrObjectRevoked) {
		t.Error("previous object URL should be revoked")
	}
	if data, _, err := objects.Lookup(b.ObjectURL); err != nil || string(data) != "b" {
		t.Errorf("current object URL lookup = %q, %v", data, err)
	}
	if objects.Len() != 1 {
		t.Errorf("live object URLs = %d, want 1", objects.Len())
	}

	gw.Release()
	if objects.Len() != 0 {
		t.Errorf("live object URLs after Release = %d, want 0", objects.Len())
	}
}

func TestResolveInSlot_KeepsOtherSlots(t *testing.T) {
	srv := newRecordingServer(t, map[string]string{"a.mp3": "a", "b.mp3": "b"})
	gw, _, objects := newTestGateway(t, srv, Options{})
	ctx := context.Background()

	a, err := gw.ResolveInSlot(ctx, "alice", "a.mp3")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := gw.ResolveInSlot(ctx, "bob", "b.mp3"); err != nil {
		t.Fatal(err)
	}
	if data, _, err := objects.Lookup(a.ObjectURL); err != nil || string(data) != "a" {
		t.Errorf("alice's object URL = %q, %v; want still live", data, err)
	}

	if _, err := gw.ResolveInSlot(ctx, "alice", "b.mp3"); err != nil {
		t.Fatal(err)
	}
	if _, _, err := objects.Lookup(a.ObjectURL); !errors.Is(err, cache.ErrObjectRevoked) {
		t.Error("alice's previous object URL should be revoked")
	}

	gw.ReleaseSlot("alice")
	if objects.Len() != 1 {
		t.Errorf("live object URLs = %d, want 1", objects.Len())
	}
}

func TestResolvePlayableURL_NotFound(t *testing.T) {
	srv := newRecordingServer(t, nil)
	gw, store, _ := newTestGateway(t, srv, Options{})

	_, err := gw.ResolvePlayableURL(context.Background(), "missing.mp3")
	if !apperr.IsNotFound(err) {
		t.Fatalf("error = %v, want not found", err)
	}
	if entries, _ := store.Usage(); entries != 0 {
		t.Error("missing assets must not be cached")
	}
}

func TestResolvePlayableURL_CacheBusting(t *testing.T) {
	srv := newRecordingServer(t, map[string]string{"a.mp3": "fresh"})
	gw, store, _ := newTestGateway(t, srv, Options{BustToken: "1700000000000"})
	ctx := context.Background()

	base := srv.URL + "/a.mp3"
	_ = store.Put(base, []byte("stale"))

	p, err := gw.ResolvePlayableURL(ctx, "a.mp3")
	if err != nil {
		t.Fatal(err)
	}
	if string(p.Data) != "fresh" || p.FromCache {
		t.Errorf("first busted resolve = %q (cache=%v), want fresh from network", p.Data, p.FromCache)
	}
	if got, _ := store.Match(base); string(got) != "fresh" {
		t.Error("store should be refreshed under the base URL")
	}

	// Later requests in the same session are served locally.
	p, err = gw.ResolvePlayableURL(ctx, "a.mp3")
	if err != nil {
		t.Fatal(err)
	}
	if !p.FromCache {
		t.Error("second busted resolve should come from the store")
	}
	if srv.hits.Load() != 1 {
		t.Errorf("network fetches = %d, want 1", srv.hits.Load())
	}

	srv.mu.Lock()
	defer srv.mu.Unlock()
	if srv.queries[0] != "t=1700000000000" {
		t.Errorf("query = %q", srv.queries[0])
	}
	if srv.noCache[0] != "no-cache" {
		t.Errorf("Cache-Control = %q", srv.noCache[0])
	}
}

func TestInvalidate(t *testing.T) {
	srv := newRecordingServer(t, map[string]string{"a.mp3": "a"})
	gw, store, _ := newTestGateway(t, srv, Options{})
	ctx := context.Background()

	if _, err := gw.ResolvePlayableURL(ctx, "a.mp3"); err != nil {
		t.Fatal(err)
	}
	if err := gw.Invalidate(ctx, "a.mp3"); err != nil {
		t.Fatal(err)
	}
	if store.Contains(srv.URL + "/a.mp3") {
		t.Error("entry should be gone after Invalidate")
	}
	if _, err := gw.ResolvePlayableURL(ctx, "a.mp3"); err != nil {
		t.Fatal(err)
	}
	if srv.hits.Load() != 2 {
		t.Errorf("network fetches = %d, want 2", srv.hits.Load())
	}
}

func TestPrefetch(t *testing.T) {
	srv := newRecordingServer(t, map[string]string{"a.mp3": "a", "b.mp3": "b", "c.mp3": "c"})
	gw, store, _ := newTestGateway(t, srv, Options{PrefetchConcurrency: 2, PrefetchRate: 1000})
	ctx := context.Background()

	_ = store.Put(srv.URL+"/c.mp3", []byte("c"))

	var (
		mu      sync.Mutex
		reports []int
	)
	res := gw.Prefetch(ctx, []assetpath.Path{"a.mp3", "b.mp3", "c.mp3", "missing.mp3"}, func(done, total int) {
		mu.Lock()
		reports = append(reports, done)
		mu.Unlock()
		if total != 4 {
			t.Errorf("total = %d, want 4", total)
		}
	})

	if res.Fetched != 2 || res.Cached != 1 || res.Missing != 1 || res.Failed != 0 {
		t.Errorf("result = %+v", res)
	}
	if len(reports) != 4 {
		t.Fatalf("progress reported %d times, want 4", len(reports))
	}
	seen := map[int]bool{}
	for _, n := range reports {
		seen[n] = true
	}
	for i := 1; i <= 4; i++ {
		if !seen[i] {
			t.Errorf("progress %d never reported: %v", i, reports)
		}
	}
	if !store.Contains(srv.URL+"/a.mp3") || !store.Contains(srv.URL+"/b.mp3") {
		t.Error("fetched recordings should be stored")
	}
}

func TestPrefetch_BustRefetchesCached(t *testing.T) {
	srv := newRecordingServer(t, map[string]string{"a.mp3": "fresh"})
	gw, store, _ := newTestGateway(t, srv, Options{BustToken: "42"})

	_ = store.Put(srv.URL+"/a.mp3", []byte("stale"))
	res := gw.Prefetch(context.Background(), []assetpath.Path{"a.mp3"}, nil)
	if res.Fetched != 1 {
		t.Errorf("result = %+v", res)
	}
	if got, _ := store.Match(srv.URL + "/a.mp3"); string(got) != "fresh" {
		t.Errorf("stored = %q, want fresh", got)
	}

	// The refreshed URL now counts as busted for this session.
	p, err := gw.ResolvePlayableURL(context.Background(), "a.mp3")
	if err != nil || !p.FromCache {
		t.Errorf("resolve after busted prefetch = %+v, %v", p, err)
	}
}

func TestPrefetch_BustRefreshesOncePerSession(t *testing.T) {
	srv := newRecordingServer(t, map[string]string{"a.mp3": "fresh"})
	gw, store, _ := newTestGateway(t, srv, Options{BustToken: "42"})
	ctx := context.Background()

	if _, err := gw.ResolvePlayableURL(ctx, "a.mp3"); err != nil {
		t.Fatal(err)
	}
	for range 2 {
		res := gw.Prefetch(ctx, []assetpath.Path{"a.mp3"}, nil)
		if res.Cached != 1 || res.Fetched != 0 {
			t.Errorf("result = %+v, want served from the store", res)
		}
	}
	if srv.hits.Load() != 1 {
		t.Errorf("network fetches = %d, want 1", srv.hits.Load())
	}

	// A failed refresh leaves the stored copy in place.
	base := srv.URL + "/gone.mp3"
	_ = store.Put(base, []byte("kept"))
	res := gw.Prefetch(ctx, []assetpath.Path{"gone.mp3"}, nil)
	if res.Missing != 1 {
		t.Errorf("result = %+v", res)
	}
	if got, ok := store.Match(base); !ok || string(got) != "kept" {
		t.Errorf("stored copy = %q, %v; want kept", got, ok)
	}
}

func TestHTTPFetcher_Statuses(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/bad":
			w.WriteHeader(http.StatusBadRequest)
		case "/boom":
			w.WriteHeader(http.StatusBadGateway)
		case "/empty":
			w.WriteHeader(http.StatusOK)
		}
	}))
	defer srv.Close()

	f := NewHTTPFetcher(5 * time.Second)
	ctx := context.Background()

	if _, err := f.Fetch(ctx, srv.URL+"/bad", false); !apperr.IsNotFound(err) {
		t.Errorf("400 = %v, want not found", err)
	}
	if _, err := f.Fetch(ctx, srv.URL+"/empty", false); !apperr.IsNotFound(err) {
		t.Errorf("empty body = %v, want not found", err)
	}
	if _, err := f.Fetch(ctx, srv.URL+"/boom", false); !errors.Is(err, apperr.ErrNetwork) {
		t.Errorf("502 = %v, want network error", err)
	}
}

func TestBustURL(t *testing.T) {
	if got := bustURL("https://x/a.mp3", ""); got != "https://x/a.mp3" {
		t.Errorf("no token = %q", got)
	}
	if got := bustURL("https://x/a.mp3", "9"); got != "https://x/a.mp3?t=9" {
		t.Errorf("token = %q", got)
	}
	if got := bustURL("https://x/a.mp3?v=1", "9"); got != "https://x/a.mp3?v=1&t=9" {
		t.Errorf("existing query = %q", got)
	}
}
