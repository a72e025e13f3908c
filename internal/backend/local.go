package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// LocalStore keeps recordings in a directory and serves them as file://
// URLs. It is meant for development and offline classrooms.
type LocalStore struct {
	dir string
}

// NewLocal creates a directory-backed ObjectStore.
func NewLocal(dir string) (*LocalStore, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("local store: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("local store: %w", err)
	}
	return &LocalStore{dir: abs}, nil
}

// Put writes data and a JSON sidecar holding the metadata.
func (l *LocalStore) Put(_ context.Context, key string, data []byte, meta Metadata) error {
	path, err := l.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("local store: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil { //nolint:gosec
		return fmt.Errorf("local store: %w", err)
	}
	side, err := json.Marshal(map[string]string{
		"originalText": meta.OriginalText,
		"type":         string(meta.Kind),
	})
	if err != nil {
		return err
	}
	return os.WriteFile(path+".json", side, 0o644) //nolint:gosec
}

// Delete removes the object and its sidecar.
func (l *LocalStore) Delete(_ context.Context, key string) error {
	path, err := l.path(key)
	if err != nil {
		return err
	}
	for _, p := range []string{path, path + ".json"} {
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("local store: %w", err)
		}
	}
	return nil
}

// PublicURL implements ObjectStore.
func (l *LocalStore) PublicURL(key string) string {
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(l.dir)}
	return joinURL(u.String(), key)
}

// Dir returns the root directory.
func (l *LocalStore) Dir() string { return l.dir }

// path maps key to a file under the root, refusing anything outside it.
func (l *LocalStore) path(key string) (string, error) {
	if err := checkKey(key); err != nil {
		return "", err
	}
	path := filepath.Join(l.dir, filepath.FromSlash(objectKey(key)))
	rel, err := filepath.Rel(l.dir, path)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", ErrBadKey, key)
	}
	return path, nil
}
