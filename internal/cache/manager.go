package cache

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/charmbracelet/log"
)

var (
	_ Tiered = (*MemoryCache)(nil)
	_ Tiered = (*DiskCache)(nil)
)

// Manager is the named audio store. It keys recordings by base public URL
// and layers the memory tier over the disk tier: reads fall through to
// disk and promote, writes go to both.
type Manager struct {
	name   string
	memory *MemoryCache
	disk   *DiskCache
	log    *log.Logger

	mu    sync.Mutex
	stats struct {
		MemoryHits int64
		DiskHits   int64
		Misses     int64
		Promotions int64
	}
}

// Open opens the store rooted at cfg.Dir.
func Open(cfg Config, logger *log.Logger) (*Manager, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("cache: directory is required")
	}
	if logger == nil {
		logger = log.Default()
	}

	disk, err := NewDiskCache(filepath.Join(cfg.Dir, StoreName), cfg.DiskCapacity, cfg.CompressionLevel)
	if err != nil {
		return nil, fmt.Errorf("failed to create disk cache: %w", err)
	}

	return &Manager{
		name:   StoreName,
		memory: NewMemoryCache(cfg.MemoryCapacity),
		disk:   disk,
		log:    logger.With("component", "cache"),
	}, nil
}

// Name returns the store name.
func (m *Manager) Name() string { return m.name }

// Match returns the recording stored under url.
func (m *Manager) Match(url string) ([]byte, bool) {
	if data, ok := m.memory.Get(url); ok {
		m.count(func() { m.stats.MemoryHits++ })
		return data, true
	}

	data, ok := m.disk.Get(url)
	if !ok {
		m.count(func() { m.stats.Misses++ })
		return nil, false
	}

	m.count(func() {
		m.stats.DiskHits++
		m.stats.Promotions++
	})
	// Promotion is best-effort; large files simply stay on disk.
	_ = m.memory.Put(url, data)
	return data, true
}

// Contains reports whether url is stored without reading it.
func (m *Manager) Contains(url string) bool {
	return m.memory.Contains(url) || m.disk.Contains(url)
}

// Put stores a recording under url, replacing any previous copy.
func (m *Manager) Put(url string, data []byte) error {
	if err := m.disk.Put(url, data); err != nil {
		return fmt.Errorf("disk cache: %w", err)
	}
	if err := m.memory.Put(url, data); err != nil && err != ErrItemTooLarge {
		return fmt.Errorf("memory cache: %w", err)
	}
	m.log.Debug("Stored recording", "url", url, "bytes", len(data))
	return nil
}

// Delete removes url from both tiers and reports whether it was present.
func (m *Manager) Delete(url string) (bool, error) {
	present := m.Contains(url)
	if err := m.memory.Delete(url); err != nil {
		return present, err
	}
	if err := m.disk.Delete(url); err != nil {
		return present, fmt.Errorf("disk cache: %w", err)
	}
	return present, nil
}

// Clear removes every recording and reports how many entries and
// uncompressed bytes were dropped.
func (m *Manager) Clear() (ClearReport, error) {
	report := ClearReport{
		Entries: len(m.disk.Entries()),
		Bytes:   m.disk.OriginalSize(),
	}
	if err := m.memory.Clear(); err != nil {
		return ClearReport{}, err
	}
	if err := m.disk.Clear(); err != nil {
		return ClearReport{}, fmt.Errorf("disk cache: %w", err)
	}
	m.log.Info("Cleared audio cache", "entries", report.Entries, "bytes", report.Bytes)
	return report, nil
}

// Entries lists what the store holds.
func (m *Manager) Entries() []Entry { return m.disk.Entries() }

// Usage returns the number of entries and their uncompressed size.
func (m *Manager) Usage() (entries int, bytes int64) {
	return len(m.disk.Entries()), m.disk.OriginalSize()
}

// Stats returns aggregated counters.
func (m *Manager) Stats() map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()

	hits := m.stats.MemoryHits + m.stats.DiskHits
	var hitRate float64
	if total := hits + m.stats.Misses; total > 0 {
		hitRate = float64(hits) / float64(total)
	}
	return map[string]any{
		"memory_hits":  m.stats.MemoryHits,
		"disk_hits":    m.stats.DiskHits,
		"misses":       m.stats.Misses,
		"promotions":   m.stats.Promotions,
		"hit_rate":     hitRate,
		"memory_stats": m.memory.Stats(),
		"disk_stats":   m.disk.Stats(),
	}
}

// Close persists the disk index.
func (m *Manager) Close() error {
	if err := m.disk.Close(); err != nil {
		return fmt.Errorf("failed to close disk cache: %w", err)
	}
	return nil
}

func (m *Manager) count(fn func()) {
	m.mu.Lock()
	fn()
	m.mu.Unlock()
}
