// Package session holds per-run navigation state and the small amount of
// state that survives between runs.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	badger "github.com/dgraph-io/badger/v4"
)

// Keys of the persisted state.
const (
	PositionKey     = "shizi_position"
	UserKey         = "shizi_user"
	ForceRefreshKey = "shizi_force_refresh"
)

// Position is the last place the user was looking at.
type Position struct {
	Level        string `json:"level"`
	UnitIndex    int    `json:"unitIndex"`
	UnitName     string `json:"unitName"`
	TeachingMode bool   `json:"isTeachingMode"`
	Timestamp    int64  `json:"timestamp"`
}

// Store persists state in a badger database.
type Store struct {
	db  *badger.DB
	now func() time.Time
}

// StoreOptions configures OpenStore.
type StoreOptions struct {
	Dir      string
	InMemory bool
	Logger   *log.Logger
}

// OpenStore opens or creates the state database.
func OpenStore(opts StoreOptions) (*Store, error) {
	if !opts.InMemory && opts.Dir == "" {
		return nil, errors.New("session: Dir is required for on-disk mode")
	}
	dbOpts := badger.DefaultOptions(opts.Dir)
	if opts.InMemory {
		dbOpts = dbOpts.WithInMemory(true)
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	dbOpts = dbOpts.WithLogger(badgerLogger{logger.With("component", "badger")})

	db, err := badger.Open(dbOpts)
	if err != nil {
		return nil, fmt.Errorf("open state store: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) get(key string) ([]byte, bool, error) {
	var val []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		val, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

func (s *Store) set(key string, value []byte) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), value)
	})
}

func (s *Store) delete(key string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
}

// SavePosition records pos, stamping the current time.
func (s *Store) SavePosition(pos Position) error {
	pos.Timestamp = s.now().UnixMilli()
	data, err := json.Marshal(pos)
	if err != nil {
		return err
	}
	return s.set(PositionKey, data)
}

// LoadPosition returns the saved position. A missing or unreadable record
// yields ok == false.
func (s *Store) LoadPosition() (Position, bool) {
	data, ok, err := s.get(PositionKey)
	if err != nil || !ok {
		return Position{}, false
	}
	var pos Position
	if err := json.Unmarshal(data, &pos); err != nil {
		return Position{}, false
	}
	return pos, true
}

// User returns the logged-in username, or "".
func (s *Store) User() string {
	data, ok, err := s.get(UserKey)
	if err != nil || !ok {
		return ""
	}
	return string(data)
}

// SetUser persists the logged-in username.
func (s *Store) SetUser(name string) error { return s.set(UserKey, []byte(name)) }

// ClearUser forgets the logged-in username.
func (s *Store) ClearUser() error { return s.delete(UserKey) }

// MarkForceRefresh makes the next session bypass cached copies once.
func (s *Store) MarkForceRefresh() error { return s.set(ForceRefreshKey, []byte("true")) }

// ConsumeForceRefresh reports whether the marker was set and clears it.
func (s *Store) ConsumeForceRefresh() (bool, error) {
	var marked bool
	err := s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(ForceRefreshKey))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		val, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		marked = string(val) == "true"
		return txn.Delete([]byte(ForceRefreshKey))
	})
	return marked, err
}

// badgerLogger routes badger's messages to charmbracelet/log. Badger is
// chatty at info level, so info becomes debug.
type badgerLogger struct{ l *log.Logger }

func (b badgerLogger) Errorf(format string, args ...any)   { b.l.Errorf(format, args...) }
func (b badgerLogger) Warningf(format string, args ...any) { b.l.Warnf(format, args...) }
func (b badgerLogger) Infof(format string, args ...any)    { b.l.Debugf(format, args...) }
func (b badgerLogger) Debugf(format string, args ...any)   { b.l.Debugf(format, args...) }
