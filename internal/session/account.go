package session

import (
	"context"
	"errors"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/shizi-app/shizi/internal/apperr"
	"github.com/shizi-app/shizi/internal/backend"
)

// Directory finds or creates learners and records their progress.
type Directory interface {
	EnsureUser(ctx context.Context, username string) (*backend.AppUser, error)
	InsertProgress(ctx context.Context, username, char, level, unit string) error
}

// Accounts manages the plaintext login. There is no authentication.
type Accounts struct {
	store *Store
	dir   Directory
	log   *log.Logger
}

// NewAccounts creates Accounts.
func NewAccounts(store *Store, dir Directory, logger *log.Logger) *Accounts {
	if logger == nil {
		logger = log.Default()
	}
	return &Accounts{store: store, dir: dir, log: logger.With("component", "accounts")}
}

// Login finds or creates name and remembers it.
func (a *Accounts) Login(ctx context.Context, name string) (*backend.AppUser, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperr.New(apperr.CodeInvalidInput, "session.login", errors.New("username is empty"))
	}
	user, err := a.dir.EnsureUser(ctx, name)
	if err != nil {
		return nil, err
	}
	if err := a.store.SetUser(user.Username); err != nil {
		return nil, err
	}
	a.log.Info("Logged in", "user", user.Username)
	return user, nil
}

// Logout forgets the current user.
func (a *Accounts) Logout() error { return a.store.ClearUser() }

// Current returns the logged-in username, or "".
func (a *Accounts) Current() string { return a.store.User() }

// RecordCompletion stores a finished practice for the current user. It
// is a no-op when nobody is logged in.
func (a *Accounts) RecordCompletion(ctx context.Context, char, level, unit string) error {
	user := a.Current()
	if user == "" {
		return nil
	}
	if err := a.dir.InsertProgress(ctx, user, char, level, unit); err != nil {
		return err
	}
	a.log.Debug("Progress saved", "user", user, "char", char)
	return nil
}
