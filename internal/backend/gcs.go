package backend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// GCSConfig configures a Google Cloud Storage bucket.
type GCSConfig struct {
	Bucket        string
	PublicBaseURL string
	// Credentials is a service account key file path or inline JSON.
	// Empty uses application default credentials.
	Credentials string
	// EmulatorHost points the client at a fake-gcs-server.
	EmulatorHost string
}

// NewGCSClient builds a *storage.Client from cfg.
func NewGCSClient(ctx context.Context, cfg GCSConfig) (*storage.Client, error) {
	if host := strings.TrimRight(strings.TrimSpace(cfg.EmulatorHost), "/"); host != "" {
		return storage.NewClient(ctx, option.WithoutAuthentication(), option.WithEndpoint(host+"/storage/v1/"))
	}
	opts := []option.ClientOption{option.WithScopes(storage.ScopeReadWrite)}
	switch creds := strings.TrimSpace(cfg.Credentials); {
	case strings.HasPrefix(creds, "{"):
		opts = append(opts, option.WithCredentialsJSON([]byte(creds)))
	case creds != "":
		opts = append(opts, option.WithCredentialsFile(creds))
	}
	return storage.NewClient(ctx, opts...)
}

// GCSStore implements ObjectStore on a Google Cloud Storage bucket.
type GCSStore struct {
	client    *storage.Client
	bucket    string
	publicURL string
}

// NewGCS creates a GCS-backed ObjectStore. An empty publicBaseURL serves
// objects from storage.googleapis.com.
func NewGCS(client *storage.Client, bucket, publicBaseURL string) *GCSStore {
	if publicBaseURL == "" {
		publicBaseURL = "https://storage.googleapis.com/" + url.PathEscape(bucket)
	}
	return &GCSStore{client: client, bucket: bucket, publicURL: publicBaseURL}
}

// Put uploads data, replacing any existing object.
func (g *GCSStore) Put(ctx context.Context, key string, data []byte, meta Metadata) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := g.client.Bucket(g.bucket).Object(objectKey(key)).NewWriter(ctx)
	w.ContentType = ContentType
	w.Metadata = map[string]string{
		"originalText": meta.OriginalText,
		"type":         string(meta.Kind),
	}
	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		_ = w.Close()
		return fmt.Errorf("gcs: write %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("gcs: close writer for %s: %w", key, err)
	}
	return nil
}

// Delete removes an object; a missing object is not an error.
func (g *GCSStore) Delete(ctx context.Context, key string) error {
	err := g.client.Bucket(g.bucket).Object(objectKey(key)).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("gcs: delete %s: %w", key, err)
	}
	return nil
}

// PublicURL implements ObjectStore.
func (g *GCSStore) PublicURL(key string) string {
	return joinURL(g.publicURL, key)
}
