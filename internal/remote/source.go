// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of a1s

// Package remote implements a data source paging its records from an I/O
// backend on demand.
package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/a1s/gridsource/internal/datasource"
	"github.com/a1s/gridsource/internal/logger"
	"go.uber.org/zap"
)

// Fetcher reads records from a backend.
type Fetcher interface {
	// Count returns the number of records held by the backend.
	Count(ctx context.Context) (int, error)

	// Fetch returns up to limit records starting at offset.
	Fetch(ctx context.Context, offset, limit int) ([]datasource.Record, error)
}

// Updater is implemented by fetchers able to write a field back.
type Updater interface {
	Update(ctx context.Context, id datasource.ID, key string, value any) error
}

// Options configures a Source.
type Options struct {
	// Name labels the source in logs.
	Name string
	// PageSize is the number of records fetched at once.
	PageSize int
	// CacheTTL is how long a fetched page is served before a background
	// refresh re-reads the backend.
	CacheTTL time.Duration
	// MaxPages bounds the number of cached pages.
	MaxPages int
	// RefreshRate is the Watch polling interval.
	RefreshRate time.Duration
}

const (
	// DefaultPageSize is the page size used when none is configured.
	DefaultPageSize = 100

	// DefaultRefreshRate is the polling interval used when none is configured.
	DefaultRefreshRate = 5 * time.Second
)

var _ interface {
	datasource.DataSource
	datasource.ValueSetter
	datasource.CapabilityReporter
	datasource.Refresher
	datasource.Watcher
} = (*Source)(nil)

// Source is a paged data source. It declares the clamp range policy since
// the backend count may change between calls.
//
// Results of a GetRange issued before a structural event are not
// revalidated; consumers re-fetch after the event. GetRecordByID only
// resolves records returned by an earlier retrieval.
type Source struct {
	fetcher  Fetcher
	opts     Options
	emitter  datasource.Emitter
	cache    *PageCache
	count    int
	byID     map[datasource.ID]datasource.Record
	gen      uint64
	stale    atomic.Bool
	cancelFn context.CancelFunc
	writeMx  sync.Mutex
	mx       sync.RWMutex
}

// New returns a source reading through f. It becomes ready on Open.
func New(f Fetcher, opts Options) *Source {
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	if opts.RefreshRate <= 0 {
		opts.RefreshRate = DefaultRefreshRate
	}
	if opts.Name == "" {
		opts.Name = "remote"
	}

	return &Source{
		fetcher: f,
		opts:    opts,
		cache:   NewPageCache(&CacheConfig{DefaultTTL: opts.CacheTTL, MaxEntries: opts.MaxPages}),
		byID:    make(map[datasource.ID]datasource.Record),
	}
}

// Open counts the backend records then makes the source ready.
func (s *Source) Open(ctx context.Context) error {
	n, err := s.fetcher.Count(ctx)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", s.opts.Name, err)
	}

	s.mx.Lock()
	s.count = n
	s.mx.Unlock()
	s.emitter.MarkReady()
	logger.Debug("Opened remote source", zap.String("source", s.opts.Name), zap.Int("count", n))

	return nil
}

// IsReady implements datasource.DataSource.
func (s *Source) IsReady() bool {
	return s.emitter.IsReady()
}

// Subscribe implements datasource.DataSource.
func (s *Source) Subscribe(l datasource.Listener) func() {
	return s.emitter.Subscribe(l)
}

// RangePolicy implements datasource.DataSource.
func (s *Source) RangePolicy() datasource.RangePolicy {
	return datasource.RangeClamp
}

// Capabilities implements datasource.CapabilityReporter.
func (s *Source) Capabilities() datasource.Capability {
	if _, ok := s.fetcher.(Updater); ok {
		return datasource.CapSetValue
	}
	return 0
}

// RecordCount implements datasource.DataSource. It returns the count as of
// the last announced change without contacting the backend.
func (s *Source) RecordCount(context.Context) (int, error) {
	s.mx.RLock()
	defer s.mx.RUnlock()
	return s.count, nil
}

// GetData implements datasource.DataSource.
func (s *Source) GetData(ctx context.Context) ([]datasource.Record, error) {
	n, _ := s.RecordCount(ctx)
	return s.GetRange(ctx, 0, n)
}

// GetRange implements datasource.DataSource.
func (s *Source) GetRange(ctx context.Context, start, end int) ([]datasource.Record, error) {
	s.mx.RLock()
	count, gen := s.count, s.gen
	s.mx.RUnlock()

	start, end, _ = datasource.CheckRange(start, end, count, datasource.RangeClamp)
	if start == end {
		return []datasource.Record{}, nil
	}

	ps := s.opts.PageSize
	out := make([]datasource.Record, 0, end-start)
	var expired bool
	defer func() {
		if expired {
			s.refreshStale()
		}
	}()
	for p := start / ps; p*ps < end; p++ {
		rr, old, err := s.page(ctx, p, gen)
		if err != nil {
			return nil, err
		}
		expired = expired || old
		lo, hi := max(start-p*ps, 0), min(end-p*ps, len(rr))
		if lo >= hi {
			break
		}
		out = append(out, rr[lo:hi]...)
	}

	return datasource.CloneRecords(out), nil
}

// page returns page p and whether it outlived its TTL. Expired pages are
// still served so retrievals stay consistent with the announced count; the
// backend is re-read through Refresh, which announces the difference.
func (s *Source) page(ctx context.Context, p int, gen uint64) ([]datasource.Record, bool, error) {
	if rr, ok := s.cache.Peek(p); ok {
		return rr, s.cache.Expired(p), nil
	}

	rr, err := s.fetcher.Fetch(ctx, p*s.opts.PageSize, s.opts.PageSize)
	if err != nil {
		return nil, false, fmt.Errorf("failed to fetch page %d of %s: %w", p, s.opts.Name, err)
	}
	logger.Debug("Fetched page",
		zap.String("source", s.opts.Name),
		zap.Int("page", p),
		zap.Int("records", len(rr)),
	)

	s.mx.Lock()
	defer s.mx.Unlock()
	if gen != s.gen {
		return rr, false, nil
	}
	s.cache.Set(p, rr)
	for _, r := range rr {
		if id, err := r.ID(); err == nil {
			s.byID[id] = r
		}
	}

	return rr, false, nil
}

// refreshStale starts a single background refresh.
func (s *Source) refreshStale() {
	if !s.stale.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer s.stale.Store(false)
		if err := s.Refresh(context.Background()); err != nil {
			s.ReportFailure(err)
		}
	}()
}

// GetRecordByID implements datasource.DataSource.
func (s *Source) GetRecordByID(id datasource.ID) (datasource.Record, error) {
	s.mx.RLock()
	defer s.mx.RUnlock()

	r, ok := s.byID[id]
	if !ok {
		return nil, &datasource.NotFoundError{ID: id}
	}

	return r.Clone(), nil
}

// SetValue implements datasource.ValueSetter.
func (s *Source) SetValue(ctx context.Context, id datasource.ID, key string, value any) error {
	u, ok := s.fetcher.(Updater)
	if !ok {
		return &datasource.UnsupportedOperationError{Op: "setValue"}
	}
	if key == datasource.IDKey {
		return datasource.ErrImmutableID
	}

	s.writeMx.Lock()
	defer s.writeMx.Unlock()

	s.mx.RLock()
	cur, known := s.byID[id]
	s.mx.RUnlock()
	if !known {
		return &datasource.NotFoundError{ID: id}
	}
	if err := u.Update(ctx, id, key, value); err != nil {
		return fmt.Errorf("failed to update %s.%s: %w", id, key, err)
	}

	rec := cur.Clone()
	rec[key] = value
	s.mx.Lock()
	s.byID[id] = rec
	s.cache.Update(rec)
	s.mx.Unlock()

	s.emitter.Emit(datasource.DataChangedEvent(datasource.Change{
		Values: []datasource.Cell{{RowID: id, Key: key}},
		Rows:   []datasource.Record{rec.Clone()},
	}))

	return nil
}

// Refresh re-reads the backend. When every page of the last snapshot is
// cached the difference is announced incrementally, otherwise the source
// drops its cache and emits dataloaded.
func (s *Source) Refresh(ctx context.Context) error {
	s.writeMx.Lock()
	defer s.writeMx.Unlock()

	n, err := s.fetcher.Count(ctx)
	if err != nil {
		return fmt.Errorf("failed to refresh %s: %w", s.opts.Name, err)
	}

	old, full := s.snapshot()
	if !full {
		s.reset(n)
		s.emitter.Emit(datasource.DataLoadedEvent())
		return nil
	}

	pages, cur, err := s.fetchAll(ctx, n)
	if err != nil {
		return err
	}
	delta, err := datasource.Diff(old, cur)
	if err != nil {
		logger.Warn("Cannot diff remote snapshot", zap.String("source", s.opts.Name), zap.Error(err))
		s.reset(n)
		s.emitter.Emit(datasource.DataLoadedEvent())
		return nil
	}

	s.mx.Lock()
	s.gen++
	s.count = len(cur)
	s.cache.Replace(pages)
	clear(s.byID)
	for _, r := range cur {
		id, _ := r.ID()
		s.byID[id] = r
	}
	s.mx.Unlock()

	if !delta.Empty() {
		s.emitter.Emit(delta.Events()...)
	}

	return nil
}

func (s *Source) snapshot() ([]datasource.Record, bool) {
	s.mx.RLock()
	defer s.mx.RUnlock()

	ps := s.opts.PageSize
	rr := make([]datasource.Record, 0, s.count)
	for p := 0; p*ps < s.count; p++ {
		page, ok := s.cache.Peek(p)
		if !ok {
			return nil, false
		}
		rr = append(rr, page...)
	}
	if len(rr) != s.count {
		return nil, false
	}

	return rr, true
}

func (s *Source) fetchAll(ctx context.Context, n int) (map[int][]datasource.Record, []datasource.Record, error) {
	ps := s.opts.PageSize
	pages := make(map[int][]datasource.Record)
	all := make([]datasource.Record, 0, n)
	for p := 0; p*ps < n; p++ {
		rr, err := s.fetcher.Fetch(ctx, p*ps, ps)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to fetch page %d of %s: %w", p, s.opts.Name, err)
		}
		pages[p] = rr
		all = append(all, rr...)
		if len(rr) < ps {
			break
		}
	}

	return pages, all, nil
}

func (s *Source) reset(n int) {
	s.mx.Lock()
	defer s.mx.Unlock()

	s.gen++
	s.count = n
	s.cache.Invalidate()
	clear(s.byID)
}

// Watch refreshes the source periodically until ctx is done or Stop is
// called.
func (s *Source) Watch(ctx context.Context) error {
	s.mx.Lock()
	if s.cancelFn != nil {
		s.cancelFn()
	}
	watchCtx, cancel := context.WithCancel(ctx)
	s.cancelFn = cancel
	s.mx.Unlock()

	if !s.IsReady() {
		if err := s.Open(watchCtx); err != nil {
			s.ReportFailure(err)
			return err
		}
	}
	go s.watchLoop(watchCtx)

	return nil
}

func (s *Source) watchLoop(ctx context.Context) {
	ticker := time.NewTicker(s.opts.RefreshRate)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Refresh(ctx); err != nil && !errors.Is(err, context.Canceled) {
				s.ReportFailure(err)
			}
		}
	}
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

// Close stops watching and closes the fetcher if it holds resources.
func (s *Source) Close() error {
	s.Stop()
	if c, ok := s.fetcher.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// ReportFailure notifies listeners of a backend failure.
func (s *Source) ReportFailure(err error) {
	logger.Warn("Remote source failure", zap.String("source", s.opts.Name), zap.Error(err))
	s.emitter.Fail(err)
}
