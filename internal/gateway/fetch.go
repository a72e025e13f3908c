package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shizi-app/shizi/internal/apperr"
)

// Fetcher downloads a recording.
type Fetcher interface {
	// Fetch returns the body at url. When reload is set, intermediate HTTP
	// caches must be bypassed. Missing assets yield an apperr.ErrNotFound.
	Fetch(ctx context.Context, url string, reload bool) ([]byte, error)
}

// HTTPFetcher fetches over HTTP(S) and file:// URLs.
type HTTPFetcher struct {
	client *http.Client
}

// NewHTTPFetcher returns a fetcher with the given request timeout.
func NewHTTPFetcher(timeout time.Duration) *HTTPFetcher {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.RegisterProtocol("file", http.NewFileTransport(http.Dir("/")))
	return &HTTPFetcher{client: &http.Client{Timeout: timeout, Transport: transport}}
}

// NewHTTPFetcherWithClient wraps an existing client.
func NewHTTPFetcherWithClient(client *http.Client) *HTTPFetcher {
	return &HTTPFetcher{client: client}
}

// Fetch implements Fetcher.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string, reload bool) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, apperr.New(apperr.CodeInvalidInput, "gateway.fetch", err)
	}
	if reload {
		req.Header.Set("Cache-Control", "no-cache")
		req.Header.Set("Pragma", "no-cache")
	}

	resp, err := f.client.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, apperr.Network("gateway.fetch", err).With("url", url)
	}
	defer resp.Body.Close() //nolint:errcheck

	switch {
	case resp.StatusCode == http.StatusNotFound, resp.StatusCode == http.StatusBadRequest:
		// Storage backends answer 400 for keys that never existed.
		return nil, apperr.NotFound("gateway.fetch", fmt.Errorf("HTTP %d", resp.StatusCode)).With("url", url)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, apperr.Network("gateway.fetch", fmt.Errorf("HTTP %d", resp.StatusCode)).With("url", url)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperr.Network("gateway.fetch", err).With("url", url)
	}
	if len(body) == 0 {
		return nil, apperr.NotFound("gateway.fetch", errors.New("empty body")).With("url", url)
	}
	return body, nil
}

// bustURL appends the cache-busting token as a t query parameter.
func bustURL(base, token string) string {
	if token == "" {
		return base
	}
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + "t=" + token
}
