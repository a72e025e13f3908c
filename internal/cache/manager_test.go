package cache

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
)

func testConfig(dir string) Config {
	return Config{
		MemoryCapacity:   1024,
		DiskCapacity:     64 * 1024,
		Dir:              dir,
		CompressionLevel: 3,
	}
}

func TestManager_BasicOperations(t *testing.T) {
	m, err := Open(testConfig(t.TempDir()), log.New(os.Stderr))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer m.Close()

	url := "https://cdn.example/L1/Unit_1/kou/char.mp3"
	value := []byte("ID3-audio")

	if err := m.Put(url, value); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, ok := m.Match(url)
	if !ok {
		t.Fatal("Match failed: url not found")
	}
	if !bytes.Equal(got, value) {
		t.Errorf("Match = %q, want %q", got, value)
	}

	present, err := m.Delete(url)
	if err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if !present {
		t.Error("Delete should report the entry was present")
	}
	if _, ok := m.Match(url); ok {
		t.Error("url still matches after delete")
	}
}

func TestManager_SurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	url := "https://cdn.example/L1/Unit_2/mu/sentence.mp3"
	value := bytes.Repeat([]byte("frame"), 1000) // compressible, > 1KB

	cfg := testConfig(dir)
	cfg.MemoryCapacity = 64 * 1024

	m, err := Open(cfg, nil)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := m.Put(url, value); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened, err := Open(cfg, nil)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()

	got, ok := reopened.Match(url)
	if !ok {
		t.Fatal("entry lost across reopen")
	}
	if !bytes.Equal(got, value) {
		t.Error("entry corrupted across reopen")
	}

	stats := reopened.Stats()
	if stats["disk_hits"].(int64) != 1 {
		t.Errorf("disk_hits = %v, want 1", stats["disk_hits"])
	}

	// Promoted: the next read is served from memory.
	reopened.Match(url)
	if reopened.Stats()["memory_hits"].(int64) != 1 {
		t.Errorf("memory_hits = %v, want 1", reopened.Stats()["memory_hits"])
	}
}

func TestManager_ClearReportsUsage(t *testing.T) {
	m, err := Open(testConfig(t.TempDir()), nil)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer m.Close()

	_ = m.Put("https://cdn.example/a.mp3", make([]byte, 100))
	_ = m.Put("https://cdn.example/b.mp3", make([]byte, 250))
	// Overwrite keeps one entry per URL.
	_ = m.Put("https://cdn.example/a.mp3", make([]byte, 150))

	entries, size := m.Usage()
	if entries != 2 || size != 400 {
		t.Errorf("Usage = %d entries, %d bytes; want 2, 400", entries, size)
	}

	report, err := m.Clear()
	if err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if report.Entries != 2 || report.Bytes != 400 {
		t.Errorf("ClearReport = %+v", report)
	}
	if entries, _ := m.Usage(); entries != 0 {
		t.Errorf("entries after clear = %d", entries)
	}
}

func TestManager_LargeItemStaysOnDisk(t *testing.T) {
	m, err := Open(testConfig(t.TempDir()), nil)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer m.Close()

	url := "https://cdn.example/big.mp3"
	if err := m.Put(url, make([]byte, 4096)); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if m.memory.Contains(url) {
		t.Error("item larger than the memory tier should not be held in memory")
	}
	if _, ok := m.Match(url); !ok {
		t.Error("item should be served from disk")
	}
}

func TestDiskCache_DropsMissingFiles(t *testing.T) {
	dir := t.TempDir()
	dc, err := NewDiskCache(dir, 1<<20, 0)
	if err != nil {
		t.Fatalf("NewDiskCache failed: %v", err)
	}
	_ = dc.Put("u", []byte("data"))
	_ = dc.Close()

	files, _ := filepath.Glob(filepath.Join(dir, "*.mp3.cache"))
	if len(files) != 1 {
		t.Fatalf("expected one cache file, got %v", files)
	}
	_ = os.Remove(files[0])

	reopened, err := NewDiskCache(dir, 1<<20, 0)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	if reopened.Contains("u") {
		t.Error("index entry for a missing file should be dropped")
	}
	if reopened.Size() != 0 {
		t.Errorf("Size = %d, want 0", reopened.Size())
	}
}

func TestDiskCache_ZeroCapacityKeepsEverything(t *testing.T) {
	dc, err := NewDiskCache(t.TempDir(), 0, 0)
	if err != nil {
		t.Fatalf("NewDiskCache failed: %v", err)
	}
	defer dc.Close()

	for i := range 20 {
		if err := dc.Put(fmt.Sprintf("https://cdn.example/%d.mp3", i), make([]byte, 8192)); err != nil {
			t.Fatalf("Put %d failed: %v", i, err)
		}
	}
	for i := range 20 {
		if !dc.Contains(fmt.Sprintf("https://cdn.example/%d.mp3", i)) {
			t.Errorf("entry %d was evicted", i)
		}
	}
	if dc.Stats().Evictions != 0 {
		t.Errorf("Evictions = %d, want 0", dc.Stats().Evictions)
	}
}

func TestObjectURLs(t *testing.T) {
	reg := NewObjectURLs("shizi")

	u := reg.Create([]byte("abc"), "audio/mpeg")
	if !IsObjectURL(u) || !strings.HasPrefix(u, "blob:shizi/") {
		t.Fatalf("unexpected object URL %q", u)
	}

	data, ct, err := reg.Lookup(u)
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if string(data) != "abc" || ct != "audio/mpeg" {
		t.Errorf("Lookup = %q, %q", data, ct)
	}

	// Bare ids resolve too.
	id := u[strings.LastIndexByte(u, '/')+1:]
	if _, _, err := reg.Lookup(id); err != nil {
		t.Errorf("Lookup by id failed: %v", err)
	}

	reg.Revoke(u)
	if _, _, err := reg.Lookup(u); err != ErrObjectRevoked {
		t.Errorf("Lookup after revoke = %v, want ErrObjectRevoked", err)
	}
	if reg.Len() != 0 {
		t.Errorf("Len = %d, want 0", reg.Len())
	}

	reg.Revoke("https://not-an-object")
	reg.Revoke("")
}
