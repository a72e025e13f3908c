package content

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/sahilm/fuzzy"

	"github.com/shizi-app/shizi/internal/apperr"
	"github.com/shizi-app/shizi/internal/assetpath"
)

// MaxLevel is the highest level number probed during discovery.
const MaxLevel = 20

// FallbackLevel is listed when no level document exists.
const FallbackLevel = "L1"

// Library discovers levels and caches parsed documents for the session.
type Library struct {
	src Source
	log *log.Logger

	mu         sync.Mutex
	levels     []string
	discovered bool
	cache      map[string]*Level
	failed     map[string]error
}

// NewLibrary creates a Library over src.
func NewLibrary(src Source, logger *log.Logger) *Library {
	if logger == nil {
		logger = log.Default()
	}
	return &Library{
		src:    src,
		log:    logger.With("component", "content"),
		cache:  make(map[string]*Level),
		failed: make(map[string]error),
	}
}

// LevelName returns the name of level number i.
func LevelName(i int) string { return fmt.Sprintf("L%d", i) }

// Levels returns the available levels, probing L0, L1, ... on first use.
// A missing L0 is skipped; the first gap after it ends discovery. Levels
// whose document does not parse are listed but unavailable.
func (l *Library) Levels(ctx context.Context) []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.discovered {
		return append([]string(nil), l.levels...)
	}

	var levels []string
	for i := 0; i <= MaxLevel; i++ {
		name := LevelName(i)
		data, err := l.src.Read(ctx, name)
		if err != nil {
			if apperr.IsNotFound(err) && i == 0 {
				continue
			}
			if !apperr.IsNotFound(err) {
				l.log.Warn("Level probe failed", "level", name, "err", err)
			}
			break
		}
		levels = append(levels, name)
		l.store(name, data)
	}

	if len(levels) == 0 {
		levels = []string{FallbackLevel}
	}
	l.levels = levels
	l.discovered = true
	l.log.Debug("Discovered levels", "levels", levels)
	return append([]string(nil), levels...)
}

func (l *Library) store(name string, data []byte) {
	lvl, err := Parse(name, data)
	if err != nil {
		l.log.Warn("Level document is malformed", "level", name, "err", err)
		l.failed[name] = err
		delete(l.cache, name)
		return
	}
	l.cache[name] = lvl
	delete(l.failed, name)
}

// Level returns the parsed document for name.
func (l *Library) Level(ctx context.Context, name string) (*Level, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if lvl, ok := l.cache[name]; ok {
		return lvl, nil
	}
	if err, ok := l.failed[name]; ok {
		return nil, err
	}

	data, err := l.src.Read(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("load level %s: %w", name, err)
	}
	l.store(name, data)
	if err, ok := l.failed[name]; ok {
		return nil, err
	}
	return l.cache[name], nil
}

// Invalidate drops a cached level so the next access re-reads it.
func (l *Library) Invalidate(name string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.cache, name)
	delete(l.failed, name)
}

// Rediscover forgets the level list and every cached document.
func (l *Library) Rediscover() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.discovered = false
	l.levels = nil
	l.cache = make(map[string]*Level)
	l.failed = make(map[string]error)
}

// Match locates a character in the library.
type Match struct {
	Level string
	Unit  string
	Entry Entry
}

// Search finds the first unit, in level then document order, containing
// char.
func (l *Library) Search(ctx context.Context, char string) (Match, bool) {
	char = strings.TrimSpace(char)
	for _, name := range l.Levels(ctx) {
		lvl, err := l.Level(ctx, name)
		if err != nil {
			continue
		}
		for _, u := range lvl.Units {
			if e, ok := u.Entry(char); ok {
				return Match{Level: name, Unit: u.Name, Entry: e}, true
			}
		}
	}
	return Match{}, false
}

// TotalChars counts the characters of every available level.
func (l *Library) TotalChars(ctx context.Context) int {
	total := 0
	for _, name := range l.Levels(ctx) {
		if lvl, err := l.Level(ctx, name); err == nil {
			total += lvl.CharCount()
		}
	}
	return total
}

// FindUnit looks a unit up by display name or unit code, then by
// fuzzy match on the display name.
func FindUnit(lvl *Level, query string) (int, bool) {
	query = strings.TrimSpace(query)
	if query == "" || len(lvl.Units) == 0 {
		return 0, false
	}
	for i, u := range lvl.Units {
		if u.Name == query {
			return i, true
		}
	}

	code := assetpath.UnitCode(query)
	for i, u := range lvl.Units {
		if assetpath.UnitCode(u.Name) == code {
			return i, true
		}
	}

	matches := fuzzy.Find(query, lvl.UnitNames())
	if len(matches) > 0 {
		return matches[0].Index, true
	}
	return 0, false
}
