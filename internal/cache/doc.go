// Package cache is the local audio store. Recordings are keyed by their
// base public URL and kept in an in-memory LRU over a persistent,
// zstd-compressed disk tier; entries stay until explicitly cleared.
// ObjectURLs turns stored bytes into revocable playback handles.
package cache
