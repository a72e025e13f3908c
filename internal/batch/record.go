package batch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/shizi-app/shizi/internal/apperr"
	"github.com/shizi-app/shizi/internal/assetpath"
	"github.com/shizi-app/shizi/internal/backend"
)

// ErrNothingRecorded is returned when an upload has no recording to send.
var ErrNothingRecorded = errors.New("nothing recorded")

// Capturer records one clip at a time.
type Capturer interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) ([]byte, error)
}

// Uploader stores a recording remotely.
type Uploader interface {
	Upload(ctx context.Context, path assetpath.Path, data []byte, info backend.RecordInfo) error
}

// RecordOptions configures a RecordSession.
type RecordOptions struct {
	// AfterUpload runs for every successfully uploaded path, e.g. to drop
	// a stale cached copy.
	AfterUpload func(ctx context.Context, path assetpath.Path)
}

// UploadResult tallies an upload run.
type UploadResult struct {
	Uploaded int
	Failed   int
	Errors   []error
}

// Success reports whether nothing failed.
func (r UploadResult) Success() bool { return r.Failed == 0 }

// RecordSession records every item of one unit and uploads the takes.
type RecordSession struct {
	level, unit string
	items       []assetpath.Item
	paths       []assetpath.Path
	rec         Capturer
	up          Uploader
	opts        RecordOptions
	log         *log.Logger

	mu        sync.Mutex
	current   int
	recording bool
	takes     map[int][]byte
	completed map[int]bool
}

// NewRecordSession creates a session over a unit's items and paths.
func NewRecordSession(level, unit string, items []assetpath.Item, paths []assetpath.Path, rec Capturer, up Uploader, opts RecordOptions, logger *log.Logger) *RecordSession {
	if logger == nil {
		logger = log.Default()
	}
	return &RecordSession{
		level:     level,
		unit:      unit,
		items:     items,
		paths:     paths,
		rec:       rec,
		up:        up,
		opts:      opts,
		log:       logger.With("component", "batch-record", "level", level, "unit", unit),
		takes:     make(map[int][]byte),
		completed: make(map[int]bool),
	}
}

// Items returns the unit's items.
func (s *RecordSession) Items() []assetpath.Item { return s.items }

// Select makes index the current item.
func (s *RecordSession) Select(index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 0 || index >= len(s.items) {
		return apperr.New(apperr.CodeInvalidInput, "batch.select", fmt.Errorf("index %d out of range [0,%d)", index, len(s.items)))
	}
	if s.recording {
		return apperr.New(apperr.CodeBusy, "batch.select", errors.New("recording in progress"))
	}
	s.current = index
	return nil
}

// Current returns the current item index.
func (s *RecordSession) Current() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Next selects the following item and reports whether it moved.
func (s *RecordSession) Next() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.recording || s.current+1 >= len(s.items) {
		return false
	}
	s.current++
	return true
}

// StartRecording starts capturing the current item.
func (s *RecordSession) StartRecording(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.items) == 0 {
		return apperr.New(apperr.CodeInvalidInput, "batch.record", errors.New("unit has no items"))
	}
	if err := s.rec.Start(ctx); err != nil {
		return err
	}
	s.recording = true
	return nil
}

// StopRecording ends the capture and keeps the take for the current item,
// replacing any earlier take. It reports whether a take was kept.
func (s *RecordSession) StopRecording(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.recording {
		return false, nil
	}
	s.recording = false

	data, err := s.rec.Stop(ctx)
	if err != nil {
		return false, err
	}
	if len(data) == 0 {
		return false, nil
	}
	s.takes[s.current] = data
	s.completed[s.current] = true
	s.log.Debug("Take kept", "index", s.current, "text", s.items[s.current].Text, "bytes", len(data))
	return true, nil
}

// Take returns the kept recording of index.
func (s *RecordSession) Take(index int) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.takes[index]
	return data, ok
}

// Pending returns how many takes await upload.
func (s *RecordSession) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.takes)
}

// Completed reports whether index has a take this session.
func (s *RecordSession) Completed(index int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.completed[index]
}

func (s *RecordSession) upload(ctx context.Context, index int, data []byte) error {
	item := s.items[index]
	path := s.paths[index]
	err := s.up.Upload(ctx, path, data, backend.RecordInfo{
		Level: s.level,
		Unit:  s.unit,
		Char:  item.RootChar,
		Text:  item.Text,
		Kind:  item.Kind,
	})
	if err != nil {
		return fmt.Errorf("upload %q: %w", item.Text, err)
	}
	if s.opts.AfterUpload != nil {
		s.opts.AfterUpload(ctx, path)
	}
	return nil
}

// UploadCurrent uploads the current item's take and drops it locally.
func (s *RecordSession) UploadCurrent(ctx context.Context) error {
	s.mu.Lock()
	index := s.current
	data, ok := s.takes[index]
	s.mu.Unlock()
	if !ok {
		return ErrNothingRecorded
	}

	if err := s.upload(ctx, index, data); err != nil {
		return err
	}
	s.mu.Lock()
	if bytes.Equal(s.takes[index], data) {
		delete(s.takes, index)
	}
	s.mu.Unlock()
	return nil
}

// UploadAll uploads every take. Takes are grouped by root character;
// groups run in parallel and each group uploads in item order. The local
// takes are dropped only when every upload succeeded. progress receives
// the number of successful uploads.
func (s *RecordSession) UploadAll(ctx context.Context, progress func(done, total int)) UploadResult {
	s.mu.Lock()
	groups := make(map[string][]int)
	var order []string
	takes := make(map[int][]byte, len(s.takes))
	for index, data := range s.takes {
		takes[index] = data
		root := s.items[index].RootChar
		if _, ok := groups[root]; !ok {
			order = append(order, root)
		}
		groups[root] = append(groups[root], index)
	}
	s.mu.Unlock()

	total := len(takes)
	if total == 0 {
		return UploadResult{}
	}

	var (
		uploaded, failed atomic.Int32
		errMu            sync.Mutex
		errs             []error
	)
	var eg errgroup.Group
	for _, root := range order {
		indexes := groups[root]
		sort.Ints(indexes)
		eg.Go(func() error {
			for _, index := range indexes {
				if err := s.upload(ctx, index, takes[index]); err != nil {
					failed.Add(1)
					apperr.Report(s.log, "Upload failed", err)
					errMu.Lock()
					errs = append(errs, err)
					errMu.Unlock()
					continue
				}
				n := uploaded.Add(1)
				if progress != nil {
					progress(int(n), total)
				}
			}
			return nil
		})
	}
	_ = eg.Wait()

	res := UploadResult{Uploaded: int(uploaded.Load()), Failed: int(failed.Load()), Errors: errs}
	if res.Success() {
		s.mu.Lock()
		for index, data := range takes {
			if bytes.Equal(s.takes[index], data) {
				delete(s.takes, index)
			}
		}
		s.mu.Unlock()
		s.log.Info("Uploaded all recordings", "count", res.Uploaded)
	} else {
		s.log.Warn("Some uploads failed", "uploaded", res.Uploaded, "failed", res.Failed)
	}
	return res
}
