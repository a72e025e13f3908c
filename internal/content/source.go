package content

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/shizi-app/shizi/internal/apperr"
	"github.com/shizi-app/shizi/internal/gateway"
)

// Source reads raw level documents. A missing level yields an
// apperr.ErrNotFound.
type Source interface {
	Read(ctx context.Context, level string) ([]byte, error)
}

// NewSource picks an HTTP source for URLs and a directory source
// otherwise.
func NewSource(location string, fetcher gateway.Fetcher, bustToken string) Source {
	if strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://") {
		return &HTTPSource{Base: location, Fetcher: fetcher, BustToken: bustToken}
	}
	return &DirSource{Dir: location}
}

// HTTPSource reads documents from a base URL.
type HTTPSource struct {
	Base      string
	Fetcher   gateway.Fetcher
	BustToken string
}

// URL returns the document URL for level.
func (s *HTTPSource) URL(level string) string {
	u := strings.TrimRight(s.Base, "/") + "/" + DocumentName(level)
	if s.BustToken != "" {
		u += "?t=" + s.BustToken
	}
	return u
}

// Read implements Source.
func (s *HTTPSource) Read(ctx context.Context, level string) ([]byte, error) {
	return s.Fetcher.Fetch(ctx, s.URL(level), s.BustToken != "")
}

// DirSource reads documents from a local directory.
type DirSource struct {
	Dir string
}

// Read implements Source.
func (s *DirSource) Read(_ context.Context, level string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(s.Dir, DocumentName(level)))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, apperr.NotFound("content.read", err).With("level", level)
	}
	return data, err
}
