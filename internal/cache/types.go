package cache

import (
	"errors"
	"time"
)

// StoreName is the name of the audio store, used as its directory name.
const StoreName = "shizi-audio-cache"

// Common errors for cache operations
var (
	// ErrItemTooLarge is returned when an item exceeds a tier's capacity
	ErrItemTooLarge = errors.New("item too large for cache")

	// ErrCacheCorrupted is returned when a stored file cannot be decoded
	ErrCacheCorrupted = errors.New("cache data corrupted")

	// ErrObjectRevoked is returned when an object URL was revoked or never issued
	ErrObjectRevoked = errors.New("object URL revoked")
)

// Tier identifies where an entry was found.
type Tier int

const (
	// TierMemory is the in-process LRU (fastest)
	TierMemory Tier = iota

	// TierDisk is the persistent store that survives restarts
	TierDisk
)

// String returns the string representation of the tier
func (t Tier) String() string {
	switch t {
	case TierMemory:
		return "memory"
	case TierDisk:
		return "disk"
	default:
		return "unknown"
	}
}

// Stats holds counters for one tier.
type Stats struct {
	Capacity  int64 // bytes
	Size      int64 // bytes currently held
	Entries   int64
	Hits      int64
	Misses    int64
	Evictions int64
	HitRate   float64

	LastAccess time.Time
}

func (s *Stats) finish() {
	if s.Hits+s.Misses > 0 {
		s.HitRate = float64(s.Hits) / float64(s.Hits+s.Misses)
	}
}

// Entry describes a cached recording.
type Entry struct {
	URL      string // base public URL, the cache key
	Size     int64  // uncompressed bytes
	StoredAt time.Time
	Tier     Tier
}

// Config holds configuration for the audio store.
type Config struct {
	// Memory tier
	MemoryCapacity int64 // Bytes

	// Disk tier
	DiskCapacity     int64  // Bytes, 0 = unbounded
	Dir              string // Directory for cache files
	CompressionLevel int    // Zstd compression level (1-22, 0 disables)
}

// DefaultConfig returns the default store configuration.
func DefaultConfig() Config {
	return Config{
		MemoryCapacity:   32 * 1024 * 1024,  // 32MB
		DiskCapacity:     0, // unbounded
		CompressionLevel: 3,
	}
}

// ClearReport summarizes what Clear removed.
type ClearReport struct {
	Entries int
	Bytes   int64
}

// Tiered is the behaviour shared by the memory and disk tiers.
type Tiered interface {
	Get(key string) ([]byte, bool)
	Put(key string, value []byte) error
	Delete(key string) error
	Clear() error
	Contains(key string) bool
	Size() int64
	Stats() Stats
}
