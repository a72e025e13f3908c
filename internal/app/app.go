// Package app wires the configured components together for the CLI and
// the HTTP server.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
	"gorm.io/gorm"

	"github.com/shizi-app/shizi/internal/apperr"
	"github.com/shizi-app/shizi/internal/assetpath"
	"github.com/shizi-app/shizi/internal/audio"
	"github.com/shizi-app/shizi/internal/backend"
	"github.com/shizi-app/shizi/internal/batch"
	"github.com/shizi-app/shizi/internal/cache"
	"github.com/shizi-app/shizi/internal/config"
	"github.com/shizi-app/shizi/internal/content"
	"github.com/shizi-app/shizi/internal/gateway"
	"github.com/shizi-app/shizi/internal/playback"
	"github.com/shizi-app/shizi/internal/recorder"
	"github.com/shizi-app/shizi/internal/session"
)

// ObjectOrigin is the origin part of every object URL.
const ObjectOrigin = "shizi"

// App holds the long-lived components of one run.
type App struct {
	Config config.Config
	Log    *log.Logger

	Resolver *assetpath.Resolver
	Cache    *cache.Manager
	Objects  *cache.ObjectURLs
	Fetcher  *gateway.HTTPFetcher
	Gateway  *gateway.Gateway
	Library  *content.Library
	Repo     *backend.Repository
	DB       *gorm.DB
	State    *session.Store
	Session  *session.Context
	Accounts *session.Accounts
	Sink     audio.Sink
	Playback *playback.Controller
	Recorder *recorder.Recorder

	closers []func() error
}

// Options adjusts Open for tests and special commands.
type Options struct {
	// Sink replaces the audio device.
	Sink audio.Sink
	// Store replaces the configured object store.
	Store backend.ObjectStore
	// Microphone replaces the capture command.
	Microphone recorder.Microphone
	// InMemoryState keeps the position and login in memory only.
	InMemoryState bool
}

// Open builds every component from cfg. Components are closed in reverse
// order by Close.
func Open(ctx context.Context, cfg config.Config, logger *log.Logger, opts Options) (_ *App, err error) {
	if logger == nil {
		logger = log.Default()
	}
	a := &App{Config: cfg, Log: logger}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	a.State, err = session.OpenStore(session.StoreOptions{Dir: cfg.StateDir, InMemory: opts.InMemoryState, Logger: logger})
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, a.State.Close)

	a.Session, err = session.NewContext(a.State, cfg.Network.BustToken)
	if err != nil {
		return nil, err
	}
	if a.Session.BustToken != "" {
		logger.Info("Refreshing cached recordings this session", "token", a.Session.BustToken)
	}

	store := opts.Store
	if store == nil {
		if store, err = openObjectStore(ctx, cfg.Storage); err != nil {
			return nil, err
		}
	}

	a.DB, err = backend.OpenDB(backend.DBConfig{Driver: cfg.Database.Driver, DSN: cfg.Database.DSN, Debug: cfg.Database.Debug})
	if err != nil {
		// Playback works without the database.
		logger.Warn("Database unavailable, records and progress are disabled", "err", err)
		a.DB = nil
	} else if sqlDB, dbErr := a.DB.DB(); dbErr == nil {
		a.closers = append(a.closers, sqlDB.Close)
	}
	a.Repo = backend.NewRepository(store, a.DB, logger)
	a.Accounts = session.NewAccounts(a.State, a.Repo, logger)

	a.Cache, err = cache.Open(cache.Config{
		Dir:              cfg.Cache.Dir,
		MemoryCapacity:   int64(cfg.Cache.MemoryMB) << 20,
		DiskCapacity:     int64(cfg.Cache.DiskMB) << 20,
		CompressionLevel: cfg.Cache.Compression,
	}, logger)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, a.Cache.Close)

	a.Resolver = assetpath.NewResolver(assetpath.NewPinyinRomanizer())
	a.Objects = cache.NewObjectURLs(ObjectOrigin)
	a.Fetcher = gateway.NewHTTPFetcher(cfg.Network.Timeout)
	a.Gateway = gateway.New(a.Cache, a.Objects, a.Fetcher, a.Repo, gateway.Options{
		BustToken:           a.Session.BustToken,
		PrefetchConcurrency: cfg.Network.PrefetchConcurrency,
		PrefetchRate:        cfg.Network.PrefetchRate,
	}, logger)
	a.Library = content.NewLibrary(content.NewSource(cfg.Content.Location, a.Fetcher, a.Session.BustToken), logger)

	a.Sink = opts.Sink
	if a.Sink == nil {
		a.Sink, err = newSink(cfg.Audio)
		if err != nil {
			return nil, err
		}
	}
	a.closers = append(a.closers, a.Sink.Close)
	a.Playback = playback.NewController(a.Gateway, a.Sink, logger)

	mic := opts.Microphone
	if mic == nil {
		mic = recorder.NewCommandMicrophone(cfg.Recorder.Command)
	}
	a.Recorder = recorder.New(mic, logger)
	return a, nil
}

func openObjectStore(ctx context.Context, cfg config.StorageConfig) (backend.ObjectStore, error) {
	switch cfg.Driver {
	case "s3":
		client := backend.NewS3Client(backend.S3Config{
			Endpoint:        cfg.S3.Endpoint,
			Region:          cfg.S3.Region,
			Bucket:          cfg.S3.Bucket,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
			PublicBaseURL:   cfg.PublicBaseURL,
			PathStyle:       cfg.S3.PathStyle,
		})
		return backend.NewS3(client, cfg.S3.Bucket, cfg.PublicBaseURL), nil
	case "gcs":
		client, err := backend.NewGCSClient(ctx, backend.GCSConfig{
			Bucket:        cfg.GCS.Bucket,
			PublicBaseURL: cfg.PublicBaseURL,
			Credentials:   cfg.GCS.Credentials,
			EmulatorHost:  cfg.GCS.EmulatorHost,
		})
		if err != nil {
			return nil, fmt.Errorf("gcs client: %w", err)
		}
		return backend.NewGCS(client, cfg.GCS.Bucket, cfg.PublicBaseURL), nil
	default:
		local, err := backend.NewLocal(cfg.Dir)
		if err != nil {
			return nil, err
		}
		return local, nil
	}
}

func newSink(cfg config.AudioConfig) (audio.Sink, error) {
	if cfg.Mock {
		return audio.DefaultMockPlayer(), nil
	}
	pc := audio.DefaultPlayerConfig()
	pc.SampleRate = cfg.SampleRate
	pc.BufferSize = cfg.BufferSize
	p, err := audio.NewPlayer(pc)
	if err != nil {
		return nil, err
	}
	if err := p.SetVolume(cfg.Volume); err != nil {
		return nil, err
	}
	return p, nil
}

// Close releases every component, most recently opened first.
func (a *App) Close() error {
	if a == nil {
		return nil
	}
	if a.Playback != nil {
		a.Playback.Stop()
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// Unit loads level and finds the unit matching query: an exact name, a
// unit number or a fuzzy match.
func (a *App) Unit(ctx context.Context, level, query string) (content.Unit, error) {
	lvl, err := a.Library.Level(ctx, level)
	if err != nil {
		return content.Unit{}, err
	}
	i, ok := content.FindUnit(lvl, query)
	if !ok {
		return content.Unit{}, apperr.NotFound("app.unit", fmt.Errorf("no unit matching %q in %s", query, level))
	}
	return lvl.Units[i], nil
}

// Items lists the items of unit and their asset paths.
func (a *App) Items(level string, unit content.Unit) ([]assetpath.Item, []assetpath.Path) {
	items := batch.Items(unit)
	return items, batch.Paths(a.Resolver, level, unit.Name, items)
}

// Path resolves one item.
func (a *App) Path(level, unit string, item assetpath.Item) assetpath.Path {
	return a.Resolver.Resolve(level, unit, item)
}

// NewQueue builds a queue over unit.
func (a *App) NewQueue(level string, unit content.Unit, hooks batch.QueueHooks) *batch.Queue {
	items, paths := a.Items(level, unit)
	return batch.NewQueue(a.Playback, items, paths, a.Config.Audio.QueueDelay, hooks, a.Log)
}

// NewRecordSession builds a record session over unit. Uploaded paths are
// dropped from the local store so the next play fetches the new take.
func (a *App) NewRecordSession(level string, unit content.Unit) *batch.RecordSession {
	items, paths := a.Items(level, unit)
	return batch.NewRecordSession(level, unit.Name, items, paths, a.Recorder, a.Repo, batch.RecordOptions{
		AfterUpload: func(ctx context.Context, path assetpath.Path) {
			if err := a.Gateway.Invalidate(ctx, path); err != nil {
				a.Log.Warn("Could not drop cached copy", "path", path, "err", err)
			}
		},
	}, a.Log)
}

// Remember saves level, unit and mode as the navigation position.
// Failures are logged.
func (a *App) Remember(ctx context.Context, level, unit string, teaching bool) {
	a.Session.TeachingMode = teaching
	if lvl, err := a.Library.Level(ctx, level); err == nil {
		a.Session.SetLevel(level, lvl.UnitNames())
		if i, ok := content.FindUnit(lvl, unit); ok {
			a.Session.UnitIndex = i
		}
	}
	if err := a.State.SavePosition(a.Session.Position()); err != nil {
		a.Log.Warn("Could not save position", "err", err)
	}
}

// Restore loads the saved position into the session, falling back to the
// first discovered level. It does nothing when no level exists.
func (a *App) Restore(ctx context.Context) {
	levels := a.Library.Levels(ctx)
	if len(levels) == 0 {
		return
	}
	pos, ok := a.State.LoadPosition()
	level := levels[0]
	if ok {
		for _, l := range levels {
			if l == pos.Level {
				level = l
			}
		}
	}
	var units []string
	if lvl, err := a.Library.Level(ctx, level); err == nil {
		units = lvl.UnitNames()
	}
	a.Session.SetLevel(level, units)
	if ok {
		a.Session.Restore(pos)
	}
}
