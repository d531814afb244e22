// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of a1s

package remote

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/a1s/gridsource/internal/conformance"
	"github.com/a1s/gridsource/internal/datasource"
)

type fakeFetcher struct {
	records []datasource.Record
	fetches int
	fail    error
	mx      sync.Mutex
}

func (f *fakeFetcher) Count(context.Context) (int, error) {
	f.mx.Lock()
	defer f.mx.Unlock()
	if f.fail != nil {
		return 0, f.fail
	}
	return len(f.records), nil
}

func (f *fakeFetcher) Fetch(_ context.Context, offset, limit int) ([]datasource.Record, error) {
	f.mx.Lock()
	defer f.mx.Unlock()
	if f.fail != nil {
		return nil, f.fail
	}
	f.fetches++
	if offset >= len(f.records) {
		return nil, nil
	}
	end := min(offset+limit, len(f.records))
	return datasource.CloneRecords(f.records[offset:end]), nil
}

func (f *fakeFetcher) apply(m datasource.Mutation) error {
	f.mx.Lock()
	defer f.mx.Unlock()
	res, err := datasource.ApplyMutation(f.records, m)
	if err != nil {
		return err
	}
	f.records = res.Records
	return nil
}

func (f *fakeFetcher) set(rr []datasource.Record) {
	f.mx.Lock()
	defer f.mx.Unlock()
	f.records = rr
}

type fakeUpdater struct {
	*fakeFetcher
}

func (f fakeUpdater) Update(_ context.Context, id datasource.ID, key string, value any) error {
	f.mx.Lock()
	defer f.mx.Unlock()
	for _, r := range f.records {
		if rid, _ := r.ID(); rid == id {
			r[key] = value
			return nil
		}
	}
	return &datasource.NotFoundError{ID: id}
}

type harnessSource struct {
	*Source
	backend *fakeFetcher
}

func openRemote(t *testing.T, f Fetcher, opts Options) *Source {
	s := New(f, opts)
	if err := s.Open(context.Background()); err != nil {
		t.Fatalf("Failed to open source: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestConformance(t *testing.T) {
	for _, ps := range []int{1, 3, 100} {
		t.Run(fmt.Sprintf("page-%d", ps), func(t *testing.T) {
			conformance.Run(t, conformance.Harness{
				Open: func(t *testing.T, rr []datasource.Record) datasource.DataSource {
					f := &fakeFetcher{records: datasource.CloneRecords(rr)}
					return harnessSource{Source: openRemote(t, fakeUpdater{f}, Options{PageSize: ps}), backend: f}
				},
				Pending: func(t *testing.T, rr []datasource.Record) (datasource.DataSource, func()) {
					s := New(&fakeFetcher{records: rr}, Options{PageSize: ps})
					return s, func() {
						if err := s.Open(context.Background()); err != nil {
							t.Fatalf("Failed to open source: %v", err)
						}
					}
				},
				Mutate: func(ctx context.Context, ds datasource.DataSource, m datasource.Mutation) error {
					h := ds.(harnessSource)
					if err := h.backend.apply(m); err != nil {
						return err
					}
					return h.Refresh(ctx)
				},
				Rounds: 60,
			})
		})
	}
}

func TestReadOnlyFetcher(t *testing.T) {
	ctx := context.Background()
	s := openRemote(t, &fakeFetcher{records: conformance.Colors()}, Options{})
	if _, err := s.GetData(ctx); err != nil {
		t.Fatalf("Failed to get data: %v", err)
	}

	if datasource.Supports(s, datasource.CapSetValue) || datasource.Supports(s, datasource.CapSort) {
		t.Fatalf("Unexpected capabilities %v", datasource.Capabilities(s))
	}
	if err := datasource.SetValue(ctx, s, datasource.IntID(1), "name", "x"); !datasource.IsUnsupported(err) {
		t.Fatalf("Expected unsupported but got %v", err)
	}
}

func TestPagesAreCached(t *testing.T) {
	ctx := context.Background()
	f := &fakeFetcher{records: conformance.Colors()}
	s := openRemote(t, f, Options{PageSize: 2, CacheTTL: time.Minute})

	if _, err := s.GetRange(ctx, 0, 3); err != nil {
		t.Fatalf("Failed to get range: %v", err)
	}
	if _, err := s.GetRange(ctx, 1, 4); err != nil {
		t.Fatalf("Failed to get range: %v", err)
	}
	if f.fetches != 2 {
		t.Fatalf("Expected 2 page fetches but got %d", f.fetches)
	}
}

func TestExpiredPagesAreServedUntilRefreshed(t *testing.T) {
	ctx := context.Background()
	f := &fakeFetcher{records: []datasource.Record{
		{"id": 1, "name": "a"},
		{"id": 2, "name": "b"},
		{"id": 3, "name": "c"},
		{"id": 4, "name": "d"},
	}}
	s := openRemote(t, f, Options{PageSize: 2, CacheTTL: 200 * time.Millisecond})

	if _, err := s.GetRange(ctx, 0, 2); err != nil {
		t.Fatalf("Failed to get range: %v", err)
	}
	time.Sleep(120 * time.Millisecond)
	if _, err := s.GetRange(ctx, 2, 4); err != nil {
		t.Fatalf("Failed to get range: %v", err)
	}

	m := datasource.NewMirror(ctx, s)
	m.Attach()
	defer m.Detach()

	err := f.apply(datasource.Mutation{Insert: []datasource.Block{{At: 0, Records: []datasource.Record{{"id": 9, "name": "X"}}}}})
	if err != nil {
		t.Fatalf("Failed to mutate backend: %v", err)
	}
	time.Sleep(120 * time.Millisecond)

	rr, err := s.GetRange(ctx, 0, 4)
	if err != nil {
		t.Fatalf("Failed to get range: %v", err)
	}
	if e := []string{"a", "b", "c", "d"}; !reflect.DeepEqual(conformance.Names(rr), e) {
		t.Fatalf("Expected the announced snapshot %v but got %v", e, conformance.Names(rr))
	}

	e := []string{"X", "a", "b", "c", "d"}
	deadline := time.Now().Add(5 * time.Second)
	for !reflect.DeepEqual(conformance.Names(m.Records()), e) {
		if time.Now().After(deadline) {
			t.Fatalf("Expected the mirror to reach %v but got %v", e, conformance.Names(m.Records()))
		}
		time.Sleep(5 * time.Millisecond)
		if _, err := s.GetData(ctx); err != nil {
			t.Fatalf("Failed to get data: %v", err)
		}
	}
	if err := m.Err(); err != nil {
		t.Fatalf("Mirror failed: %v", err)
	}
	if n, _ := s.RecordCount(ctx); n != 5 {
		t.Fatalf("Expected 5 records but got %d", n)
	}
}

func TestLookupOnlyResolvesFetchedRecords(t *testing.T) {
	ctx := context.Background()
	f := &fakeFetcher{records: conformance.Colors()}
	s := openRemote(t, f, Options{PageSize: 2})

	if _, err := s.GetRecordByID(datasource.IntID(1)); !datasource.IsNotFound(err) {
		t.Fatalf("Expected not found before any fetch but got %v", err)
	}
	if _, err := s.GetRange(ctx, 0, 1); err != nil {
		t.Fatalf("Failed to get range: %v", err)
	}
	if _, err := s.GetRecordByID(datasource.IntID(2)); err != nil {
		t.Fatalf("Expected page mates to resolve: %v", err)
	}
	if _, err := s.GetRecordByID(datasource.IntID(3)); !datasource.IsNotFound(err) {
		t.Fatalf("Expected unfetched record to be unknown but got %v", err)
	}
	if f.fetches != 1 {
		t.Fatalf("Expected lookups not to fetch, got %d fetches", f.fetches)
	}
}

func TestRefreshWithoutFullCacheEmitsDataLoaded(t *testing.T) {
	ctx := context.Background()
	f := &fakeFetcher{records: conformance.Colors()}
	s := openRemote(t, f, Options{PageSize: 2})
	if _, err := s.GetRange(ctx, 0, 2); err != nil {
		t.Fatalf("Failed to get range: %v", err)
	}

	var rec conformance.Recorder
	s.Subscribe(rec.Listener())
	f.set(conformance.Colors()[:3])
	if err := s.Refresh(ctx); err != nil {
		t.Fatalf("Failed to refresh: %v", err)
	}

	if !reflect.DeepEqual(rec.Kinds(), []datasource.EventKind{datasource.EventDataLoaded}) {
		t.Fatalf("Expected dataloaded but got %v", rec.Kinds())
	}
	if n, _ := s.RecordCount(ctx); n != 3 {
		t.Fatalf("Expected 3 records but got %d", n)
	}
}

func TestRefreshAnnouncesValueChanges(t *testing.T) {
	ctx := context.Background()
	f := &fakeFetcher{records: conformance.Colors()}
	s := openRemote(t, f, Options{PageSize: 3})
	m := datasource.NewMirror(ctx, s)
	m.Attach()

	var rec conformance.Recorder
	s.Subscribe(rec.Listener())
	next := conformance.Colors()
	next[2]["name"] = "lime"
	f.set(next)
	if err := s.Refresh(ctx); err != nil {
		t.Fatalf("Failed to refresh: %v", err)
	}

	if len(rec.Events) != 1 || rec.Events[0].Kind != datasource.EventDataChanged {
		t.Fatalf("Expected one datachanged but got %v", rec.Events)
	}
	e := []datasource.Cell{{RowID: datasource.IntID(3), Key: "name"}}
	if !reflect.DeepEqual(rec.Events[0].Change.Values, e) {
		t.Fatalf("Expected %v but got %v", e, rec.Events[0].Change.Values)
	}
	if r, _ := m.Row(2); r["name"] != "lime" {
		t.Fatalf("Expected mirror to pick up the change but got %v", r)
	}
}

func TestWatchReportsFailures(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f := &fakeFetcher{records: conformance.Colors()}
	s := New(f, Options{RefreshRate: 5 * time.Millisecond})
	defer s.Close()

	failed := make(chan error, 1)
	s.Subscribe(&failListener{ch: failed})
	if err := s.Watch(ctx); err != nil {
		t.Fatalf("Failed to watch: %v", err)
	}
	if !s.IsReady() {
		t.Fatal("Expected watch to open the source")
	}

	boom := errors.New("boom")
	f.mx.Lock()
	f.fail = boom
	f.mx.Unlock()

	select {
	case err := <-failed:
		if !errors.Is(err, boom) {
			t.Fatalf("Expected boom but got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for a failure report")
	}
}

type failListener struct {
	ch chan error
}

func (f *failListener) Ready()                         {}
func (f *failListener) RowsAdded(datasource.Range)     {}
func (f *failListener) RowsRemoved(datasource.Range)   {}
func (f *failListener) DataLoaded()                    {}
func (f *failListener) DataChanged(datasource.Change) {}

func (f *failListener) LoadFailed(err error) {
	select {
	case f.ch <- err:
	default:
	}
}

func TestPageCacheEviction(t *testing.T) {
	c := NewPageCache(&CacheConfig{DefaultTTL: time.Minute, MaxEntries: 2})
	c.Set(0, []datasource.Record{{"id": 1}})
	time.Sleep(time.Millisecond)
	c.Set(1, []datasource.Record{{"id": 2}})
	time.Sleep(time.Millisecond)
	c.Set(2, []datasource.Record{{"id": 3}})

	if _, ok := c.Peek(0); ok {
		t.Fatal("Expected the oldest page to be evicted")
	}
	if c.Len() != 2 {
		t.Fatalf("Expected 2 pages but got %d", c.Len())
	}
	if !c.Update(datasource.Record{"id": 3, "name": "x"}) {
		t.Fatal("Expected update to find the record")
	}
	rr, _ := c.Get(2)
	if rr[0]["name"] != "x" {
		t.Fatalf("Unexpected page %v", rr)
	}
}
