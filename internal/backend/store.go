// Package backend talks to the remote side of the app: an object store
// holding the recordings and a relational database with audio records,
// user progress and accounts.
package backend

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shizi-app/shizi/internal/assetpath"
)

// ContentType is the MIME type recordings are stored with.
const ContentType = "audio/mpeg"

// Metadata travels with an uploaded object.
type Metadata struct {
	OriginalText string
	Kind         assetpath.Kind
}

// ObjectStore stores recordings under their asset path and knows the
// public URL each object is served from.
type ObjectStore interface {
	// Put uploads data to key, overwriting any existing object.
	Put(ctx context.Context, key string, data []byte, meta Metadata) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// PublicURL returns the URL key is publicly readable at.
	PublicURL(key string) string
}

// ErrBadKey is returned for object keys that could leave the store root.
var ErrBadKey = errors.New("backend: bad object key")

// checkKey rejects empty, absolute and dot segments in the decoded key.
func checkKey(key string) error {
	raw := objectKey(key)
	if raw == "" || strings.HasPrefix(raw, "/") || strings.Contains(raw, "\\") {
		return fmt.Errorf("%w: %q", ErrBadKey, key)
	}
	for _, seg := range strings.Split(raw, "/") {
		if seg == "" || seg == "." || seg == ".." {
			return fmt.Errorf("%w: %q", ErrBadKey, key)
		}
	}
	return nil
}

// joinURL joins a base URL and an already-escaped key.
func joinURL(base, key string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(key, "/")
}
