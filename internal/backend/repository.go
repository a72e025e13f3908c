package backend

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/shizi-app/shizi/internal/apperr"
	"github.com/shizi-app/shizi/internal/assetpath"
)

// ErrNoDatabase is returned by queries when no database is configured.
var ErrNoDatabase = errors.New("backend: no database configured")

// RecordInfo describes where a recording belongs in the course.
type RecordInfo struct {
	Level string
	Unit  string
	Char  string
	Text  string
	Kind  assetpath.Kind
}

// AudioStats summarizes the audio library.
type AudioStats struct {
	CharCount int64        // characters with a character-kind recording
	Latest    *AudioRecord // most recently created record, nil when empty
}

// Repository is the narrow surface the app needs from the backend.
type Repository struct {
	store ObjectStore
	db    *gorm.DB
	log   *log.Logger
	now   func() time.Time
}

// NewRepository combines an object store and an optional database.
func NewRepository(store ObjectStore, db *gorm.DB, logger *log.Logger) *Repository {
	if logger == nil {
		logger = log.Default()
	}
	return &Repository{
		store: store,
		db:    db,
		log:   logger.With("component", "backend"),
		now:   time.Now,
	}
}

// PublicURL returns the public URL of an asset path.
func (r *Repository) PublicURL(path assetpath.Path) string {
	return r.store.PublicURL(path.String())
}

// Upload stores a recording with upsert semantics and records it in
// audio_records. Once the object is stored, a failure to write the record
// is logged and not returned.
func (r *Repository) Upload(ctx context.Context, path assetpath.Path, data []byte, info RecordInfo) error {
	if len(data) == 0 {
		return apperr.New(apperr.CodeInvalidInput, "backend.upload", errors.New("empty recording"))
	}
	if err := checkKey(path.String()); err != nil {
		return apperr.New(apperr.CodeInvalidInput, "backend.upload", err)
	}
	kind := info.Kind
	if kind == "" {
		kind = assetpath.InferKind(info.Char, info.Text)
		r.log.Warn("Upload without kind, inferred", "kind", kind, "text", info.Text)
	}

	r.log.Debug("Uploading recording", "path", path, "bytes", len(data), "kind", kind)
	if err := r.store.Put(ctx, path.String(), data, Metadata{OriginalText: info.Text, Kind: kind}); err != nil {
		return apperr.Network("backend.upload", err).With("path", path.String())
	}

	rec := AudioRecord{
		Path:      path.String(),
		Level:     info.Level,
		Unit:      info.Unit,
		Char:      info.Char,
		Type:      string(kind),
		CreatedAt: r.now(),
	}
	if err := r.UpsertRecord(ctx, &rec); err != nil && !errors.Is(err, ErrNoDatabase) {
		r.log.Error("Recording stored but audio record failed", "path", path, "err", err)
	}
	return nil
}

// UpsertRecord inserts rec or updates the record with the same path.
func (r *Repository) UpsertRecord(ctx context.Context, rec *AudioRecord) error {
	if r.db == nil {
		return ErrNoDatabase
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "path"}},
		DoUpdates: clause.AssignmentColumns([]string{"level", "unit", "char", "type", "created_at"}),
	}).Create(rec).Error
}

// Records returns every audio record.
func (r *Repository) Records(ctx context.Context) ([]AudioRecord, error) {
	if r.db == nil {
		return nil, ErrNoDatabase
	}
	var out []AudioRecord
	if err := r.db.WithContext(ctx).Order("id").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list audio records: %w", err)
	}
	return out, nil
}

// Stats counts character recordings and finds the latest record.
func (r *Repository) Stats(ctx context.Context) (AudioStats, error) {
	if r.db == nil {
		return AudioStats{}, ErrNoDatabase
	}
	var stats AudioStats
	db := r.db.WithContext(ctx)
	if err := db.Model(&AudioRecord{}).Where("type = ?", string(assetpath.KindCharacter)).Count(&stats.CharCount).Error; err != nil {
		return AudioStats{}, fmt.Errorf("count audio records: %w", err)
	}

	var latest AudioRecord
	err := db.Order("created_at DESC").Order("id DESC").Limit(1).Take(&latest).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
	case err != nil:
		return AudioStats{}, fmt.Errorf("latest audio record: %w", err)
	default:
		stats.Latest = &latest
	}
	return stats, nil
}

// InsertProgress records that username completed char.
func (r *Repository) InsertProgress(ctx context.Context, username, char, level, unit string) error {
	if r.db == nil {
		return ErrNoDatabase
	}
	row := UserProgress{
		Username:    username,
		Char:        char,
		Level:       level,
		Unit:        unit,
		CompletedAt: r.now(),
	}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("insert progress: %w", err)
	}
	return nil
}

// Progress returns the progress rows of username in completion order.
func (r *Repository) Progress(ctx context.Context, username string) ([]UserProgress, error) {
	if r.db == nil {
		return nil, ErrNoDatabase
	}
	var out []UserProgress
	err := r.db.WithContext(ctx).
		Where("username = ?", username).
		Order("completed_at").Order("id").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("list progress: %w", err)
	}
	return out, nil
}

// EnsureUser finds username or creates it.
func (r *Repository) EnsureUser(ctx context.Context, username string) (*AppUser, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, apperr.New(apperr.CodeInvalidInput, "backend.user", errors.New("empty username"))
	}
	if r.db == nil {
		return nil, ErrNoDatabase
	}
	user := AppUser{Username: username}
	err := r.db.WithContext(ctx).
		Where(AppUser{Username: username}).
		Attrs(AppUser{CreatedAt: r.now()}).
		FirstOrCreate(&user).Error
	if err != nil {
		return nil, fmt.Errorf("ensure user: %w", err)
	}
	return &user, nil
}
