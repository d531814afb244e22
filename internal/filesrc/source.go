// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of a1s

// Package filesrc serves the records of a dataset file and follows changes
// made to it on disk.
package filesrc

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/a1s/gridsource/internal/datasource"
	"github.com/a1s/gridsource/internal/logger"
	"github.com/a1s/gridsource/internal/memory"
	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultDebounce is the quiet period awaited after a file event before
// reloading.
const DefaultDebounce = 200 * time.Millisecond

// Source is a data source backed by a dataset file. Edits are written back
// to the file for writable formats.
type Source struct {
	*memory.Source

	path     string
	format   Format
	debounce time.Duration
	cancelFn context.CancelFunc
	mx       sync.Mutex
}

// New returns a source over the file at path. The format is detected from
// the extension. Extra options configure the underlying memory source.
func New(path string, opts ...memory.Option) (*Source, error) {
	f := DetectFormat(path)
	if f == FormatUnknown {
		return nil, fmt.Errorf("unsupported dataset file %q", path)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	oo := []memory.Option{
		memory.WithName(filepath.Base(abs)),
		memory.WithStore(&fileStore{path: abs, format: f}),
	}
	oo = append(oo, opts...)
	if !f.Writable() {
		oo = append(oo, memory.WithReadOnly(true))
	}

	return &Source{
		Source:   memory.New(oo...),
		path:     abs,
		format:   f,
		debounce: DefaultDebounce,
	}, nil
}

// Path returns the dataset file path.
func (s *Source) Path() string {
	return s.path
}

// Format returns the dataset file format.
func (s *Source) Format() Format {
	return s.format
}

// SetDebounce sets the quiet period awaited before reloading.
func (s *Source) SetDebounce(d time.Duration) {
	s.mx.Lock()
	defer s.mx.Unlock()
	s.debounce = d
}

// Watch reloads the file whenever it changes until ctx is done or Stop is
// called. Each reload is announced incrementally.
func (s *Source) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	// Editors and atomic writers replace the file, so watch its directory.
	if err := w.Add(filepath.Dir(s.path)); err != nil {
		w.Close()
		return fmt.Errorf("failed to watch %s: %w", s.path, err)
	}

	s.mx.Lock()
	if s.cancelFn != nil {
		s.cancelFn()
	}
	watchCtx, cancel := context.WithCancel(ctx)
	s.cancelFn = cancel
	debounce := s.debounce
	s.mx.Unlock()

	logger.Info("Watching dataset", zap.String("path", s.path))
	go s.watchLoop(watchCtx, w, debounce)

	return nil
}

// Stop ends the current watch.
func (s *Source) Stop() {
	s.mx.Lock()
	defer s.mx.Unlock()
	if s.cancelFn != nil {
		s.cancelFn()
		s.cancelFn = nil
	}
}

// Close stops watching and releases the source.
func (s *Source) Close() error {
	s.Stop()
	return s.Source.Close()
}

func (s *Source) watchLoop(ctx context.Context, w *fsnotify.Watcher, debounce time.Duration) {
	defer w.Close()

	var (
		timer  *time.Timer
		reload = make(chan struct{}, 1)
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != s.path || !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			logger.Debug("Dataset changed", zap.String("file", ev.Name), zap.String("op", ev.Op.String()))
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounce, func() {
				select {
				case reload <- struct{}{}:
				default:
				}
			})
		case <-reload:
			if err := s.Refresh(ctx); err != nil {
				logger.Error("Failed to reload dataset", zap.String("path", s.path), zap.Error(err))
			}
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			logger.Error("File watcher error", zap.Error(err))
			s.ReportFailure(err)
		}
	}
}

// fileStore persists records to the dataset file.
type fileStore struct {
	path   string
	format Format
	mx     sync.Mutex
}

func (f *fileStore) Open() error {
	_, err := os.Stat(f.path)
	return err
}

func (f *fileStore) Close() error { return nil }

func (f *fileStore) Load(ctx context.Context) ([]datasource.Record, error) {
	f.mx.Lock()
	defer f.mx.Unlock()
	return ReadFile(ctx, f.path, f.format)
}

func (f *fileStore) Save(_ context.Context, rr []datasource.Record) error {
	f.mx.Lock()
	defer f.mx.Unlock()
	return f.write(rr)
}

func (f *fileStore) Put(ctx context.Context, rec datasource.Record) error {
	id, err := rec.ID()
	if err != nil {
		return err
	}

	f.mx.Lock()
	defer f.mx.Unlock()
	rr, err := ReadFile(ctx, f.path, f.format)
	if err != nil {
		return err
	}
	for i, r := range rr {
		if rid, _ := r.ID(); rid == id {
			rr[i] = rec
			return f.write(rr)
		}
	}

	return &datasource.NotFoundError{ID: id}
}

func (f *fileStore) Delete(ctx context.Context, ids ...datasource.ID) error {
	drop := make(map[datasource.ID]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}

	f.mx.Lock()
	defer f.mx.Unlock()
	rr, err := ReadFile(ctx, f.path, f.format)
	if err != nil {
		return err
	}
	kept := rr[:0]
	for _, r := range rr {
		if id, _ := r.ID(); !has(drop, id) {
			kept = append(kept, r)
		}
	}

	return f.write(kept)
}

func (f *fileStore) write(rr []datasource.Record) error {
	if !f.format.Writable() {
		return &datasource.UnsupportedOperationError{Op: "write " + f.format.String()}
	}
	raw, err := Encode(rr, f.format)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", f.path, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.path), "."+filepath.Base(f.path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if fi, err := os.Stat(f.path); err == nil {
		_ = tmp.Chmod(fi.Mode().Perm())
	}
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	return os.Rename(tmp.Name(), f.path)
}

func has(m map[datasource.ID]struct{}, id datasource.ID) bool {
	_, ok := m[id]
	return ok
}
