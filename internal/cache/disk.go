package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"
)

const indexFile = "index.msgpack"

// DiskCache is the persistent tier. Each recording is a file named after
// the hash of its URL, optionally zstd-compressed, and a msgpack index
// maps URLs to files so the store survives restarts.
type DiskCache struct {
	dir      string
	capacity int64
	size     int64 // bytes on disk

	encoder *zstd.Encoder
	decoder *zstd.Decoder

	index map[string]*diskEntry

	mu    sync.Mutex
	stats Stats
}

type diskEntry struct {
	URL          string    `msgpack:"url"`
	File         string    `msgpack:"file"`
	DiskSize     int64     `msgpack:"disk_size"`
	OriginalSize int64     `msgpack:"size"`
	StoredAt     time.Time `msgpack:"stored_at"`
	LastAccess   time.Time `msgpack:"last_access"`
	Compressed   bool      `msgpack:"compressed"`
}

// NewDiskCache opens (or creates) a disk tier in dir.
func NewDiskCache(dir string, capacity int64, compressionLevel int) (*DiskCache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	dc := &DiskCache{
		dir:      dir,
		capacity: capacity,
		index:    make(map[string]*diskEntry),
		stats:    Stats{Capacity: capacity},
	}

	if compressionLevel > 0 {
		var err error
		dc.encoder, err = zstd.NewWriter(nil,
			zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(compressionLevel)))
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
		}
	}
	// Files written with compression stay readable after it is turned off.
	var err error
	dc.decoder, err = zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}

	if err := dc.loadIndex(); err != nil {
		// A corrupt index only costs us the cached files.
		dc.index = make(map[string]*diskEntry)
	}
	dc.reconcile()

	return dc, nil
}

// Get reads a recording from disk.
func (dc *DiskCache) Get(key string) ([]byte, bool) {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	entry, ok := dc.index[key]
	if !ok {
		dc.stats.Misses++
		return nil, false
	}

	data, err := dc.read(entry)
	if err != nil {
		dc.drop(key, entry)
		_ = dc.saveIndex()
		dc.stats.Misses++
		return nil, false
	}

	entry.LastAccess = time.Now()
	dc.stats.Hits++
	dc.stats.LastAccess = entry.LastAccess
	return data, true
}

// Put writes a recording, replacing any existing file for the key.
func (dc *DiskCache) Put(key string, value []byte) error {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	payload, compressed := value, false
	if dc.encoder != nil && len(value) > 1024 {
		if packed := dc.encoder.EncodeAll(value, nil); len(packed) < len(value) {
			payload, compressed = packed, true
		}
	}
	n := int64(len(payload))
	if dc.capacity > 0 && n > dc.capacity {
		return ErrItemTooLarge
	}

	if existing, ok := dc.index[key]; ok {
		dc.drop(key, existing)
	}
	// A zero capacity keeps every recording until the store is cleared.
	for dc.capacity > 0 && dc.size+n > dc.capacity && len(dc.index) > 0 {
		dc.evictOldest()
	}

	file := fileNameFor(key)
	if err := writeAtomic(filepath.Join(dc.dir, file), payload); err != nil {
		return fmt.Errorf("failed to write cache file: %w", err)
	}

	now := time.Now()
	dc.index[key] = &diskEntry{
		URL:          key,
		File:         file,
		DiskSize:     n,
		OriginalSize: int64(len(value)),
		StoredAt:     now,
		LastAccess:   now,
		Compressed:   compressed,
	}
	dc.size += n

	return dc.saveIndex()
}

// Delete removes a recording. Deleting a missing key is not an error.
func (dc *DiskCache) Delete(key string) error {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	entry, ok := dc.index[key]
	if !ok {
		return nil
	}
	dc.drop(key, entry)
	return dc.saveIndex()
}

// Clear removes every recording.
func (dc *DiskCache) Clear() error {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	for key, entry := range dc.index {
		dc.drop(key, entry)
	}
	dc.size = 0
	return dc.saveIndex()
}

// Contains reports whether key has a file on disk.
func (dc *DiskCache) Contains(key string) bool {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	_, ok := dc.index[key]
	return ok
}

// Size returns the bytes used on disk.
func (dc *DiskCache) Size() int64 {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	return dc.size
}

// Stats returns a snapshot of the tier's counters.
func (dc *DiskCache) Stats() Stats {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	stats := dc.stats
	stats.Size = dc.size
	stats.Entries = int64(len(dc.index))
	stats.finish()
	return stats
}

// Entries lists the cached recordings, oldest first.
func (dc *DiskCache) Entries() []Entry {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	out := make([]Entry, 0, len(dc.index))
	for _, e := range dc.index {
		out = append(out, Entry{URL: e.URL, Size: e.OriginalSize, StoredAt: e.StoredAt, Tier: TierDisk})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StoredAt.Before(out[j].StoredAt) })
	return out
}

// OriginalSize returns the total uncompressed bytes held.
func (dc *DiskCache) OriginalSize() int64 {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	var total int64
	for _, e := range dc.index {
		total += e.OriginalSize
	}
	return total
}

// Close persists the index.
func (dc *DiskCache) Close() error {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	return dc.saveIndex()
}

func (dc *DiskCache) read(entry *diskEntry) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(dc.dir, entry.File))
	if err != nil {
		return nil, err
	}
	if !entry.Compressed {
		return data, nil
	}
	out, err := dc.decoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCacheCorrupted, err)
	}
	return out, nil
}

// drop must be called with the lock held.
func (dc *DiskCache) drop(key string, entry *diskEntry) {
	_ = os.Remove(filepath.Join(dc.dir, entry.File))
	delete(dc.index, key)
	dc.size -= entry.DiskSize
}

func (dc *DiskCache) evictOldest() {
	var oldest *diskEntry
	for _, e := range dc.index {
		if oldest == nil || e.LastAccess.Before(oldest.LastAccess) {
			oldest = e
		}
	}
	if oldest != nil {
		dc.drop(oldest.URL, oldest)
		dc.stats.Evictions++
	}
}

// reconcile drops index entries whose files disappeared and recomputes size.
func (dc *DiskCache) reconcile() {
	dc.size = 0
	for key, e := range dc.index {
		if _, err := os.Stat(filepath.Join(dc.dir, e.File)); errors.Is(err, fs.ErrNotExist) {
			delete(dc.index, key)
			continue
		}
		dc.size += e.DiskSize
	}
}

func (dc *DiskCache) loadIndex() error {
	data, err := os.ReadFile(filepath.Join(dc.dir, indexFile))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	return msgpack.Unmarshal(data, &dc.index)
}

func (dc *DiskCache) saveIndex() error {
	data, err := msgpack.Marshal(dc.index)
	if err != nil {
		return fmt.Errorf("failed to encode cache index: %w", err)
	}
	return writeAtomic(filepath.Join(dc.dir, indexFile), data)
}

func fileNameFor(key string) string {
	hash := sha256.Sum256([]byte(key))
	return hex.EncodeToString(hash[:16]) + ".mp3.cache"
}

// writeAtomic writes to a temp file first, then renames it into place.
func writeAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil { //nolint:gosec
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}
