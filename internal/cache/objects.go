package cache

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ObjectURLScheme prefixes every object URL.
const ObjectURLScheme = "blob:"

// ObjectURLs hands out short-lived handles over in-memory recordings, the
// way a browser turns a Blob into a playable URL. Handles live until they
// are revoked and hold their bytes alive until then.
type ObjectURLs struct {
	mu      sync.RWMutex
	objects map[string]*object
	origin  string
}

type object struct {
	data        []byte
	contentType string
	created     time.Time
}

// NewObjectURLs creates a registry whose URLs read blob:{origin}/{id}.
func NewObjectURLs(origin string) *ObjectURLs {
	return &ObjectURLs{
		objects: make(map[string]*object),
		origin:  origin,
	}
}

// Create registers data and returns its object URL.
func (o *ObjectURLs) Create(data []byte, contentType string) string {
	id := uuid.NewString()

	o.mu.Lock()
	o.objects[id] = &object{data: data, contentType: contentType, created: time.Now()}
	o.mu.Unlock()

	return ObjectURLScheme + o.origin + "/" + id
}

// Lookup returns the data behind an object URL or bare id.
func (o *ObjectURLs) Lookup(ref string) ([]byte, string, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	obj, ok := o.objects[o.id(ref)]
	if !ok {
		return nil, "", ErrObjectRevoked
	}
	return obj.data, obj.contentType, nil
}

// Revoke releases an object URL. Revoking an unknown or non-object URL is
// a no-op.
func (o *ObjectURLs) Revoke(ref string) {
	if ref == "" {
		return
	}
	o.mu.Lock()
	delete(o.objects, o.id(ref))
	o.mu.Unlock()
}

// Len returns the number of live object URLs.
func (o *ObjectURLs) Len() int {
	o.mu.RLock()
	defer o.mu.RUnlock()

	return len(o.objects)
}

// IsObjectURL reports whether ref was issued by an ObjectURLs registry.
func IsObjectURL(ref string) bool {
	return strings.HasPrefix(ref, ObjectURLScheme)
}

func (o *ObjectURLs) id(ref string) string {
	ref = strings.TrimPrefix(ref, ObjectURLScheme)
	if i := strings.LastIndexByte(ref, '/'); i >= 0 {
		return ref[i+1:]
	}
	return ref
}
