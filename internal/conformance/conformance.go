// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of a1s

// Package conformance checks that a data source honours the event protocol
// a grid relies on.
package conformance

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"reflect"
	"testing"

	"github.com/a1s/gridsource/internal/datasource"
)

// Harness adapts a backend to the suite. Open is required, the other hooks
// are optional and the properties needing them are skipped when nil.
type Harness struct {
	// Open returns a ready source holding records in order.
	Open func(t *testing.T, records []datasource.Record) datasource.DataSource

	// Pending returns a source that is not ready yet and a function making
	// it ready.
	Pending func(t *testing.T, records []datasource.Record) (datasource.DataSource, func())

	// Mutate applies one structural update to a source returned by Open.
	Mutate func(ctx context.Context, ds datasource.DataSource, m datasource.Mutation) error

	// Seed drives the random replay property. Zero picks a fixed seed.
	Seed int64

	// Rounds sets the number of random updates replayed. Zero means 200.
	Rounds int
}

// Colors returns the sample dataset used by the concrete scenarios.
func Colors() []datasource.Record {
	return []datasource.Record{
		{"id": 1, "name": "red"},
		{"id": 2, "name": "blue"},
		{"id": 3, "name": "green"},
		{"id": 4, "name": "orange"},
	}
}

// Run executes every property supported by h.
func Run(t *testing.T, h Harness) {
	t.Helper()

	t.Run("ReadyOnce", func(t *testing.T) { testReadyOnce(t, h) })
	t.Run("RangeMatchesData", func(t *testing.T) { testRangeMatchesData(t, h) })
	t.Run("RangePolicy", func(t *testing.T) { testRangePolicy(t, h) })
	t.Run("LookupByID", func(t *testing.T) { testLookup(t, h) })
	t.Run("SetValue", func(t *testing.T) { testSetValue(t, h) })
	t.Run("Sort", func(t *testing.T) { testSort(t, h) })
	t.Run("InsertScenario", func(t *testing.T) { testInsertScenario(t, h) })
	t.Run("RemoveScenario", func(t *testing.T) { testRemoveScenario(t, h) })
	t.Run("RandomReplay", func(t *testing.T) { testRandomReplay(t, h) })
}

// Recorder collects events delivered to it.
type Recorder struct {
	Events []datasource.Event
}

// Listener returns the listener feeding the recorder.
func (r *Recorder) Listener() datasource.Listener {
	return datasource.ListenerFunc(func(e datasource.Event) {
		r.Events = append(r.Events, e)
	})
}

// Kinds returns the recorded event kinds.
func (r *Recorder) Kinds() []datasource.EventKind {
	kk := make([]datasource.EventKind, 0, len(r.Events))
	for _, e := range r.Events {
		kk = append(kk, e.Kind)
	}
	return kk
}

// Names returns the name field of each record.
func Names(rr []datasource.Record) []string {
	out := make([]string, 0, len(rr))
	for _, r := range rr {
		out = append(out, fmt.Sprint(r["name"]))
	}
	return out
}

func testReadyOnce(t *testing.T, h Harness) {
	if h.Pending == nil {
		t.Skip("harness has no pending source")
	}

	ds, makeReady := h.Pending(t, Colors())
	var (
		rec         Recorder
		readyBefore bool
	)
	ds.Subscribe(datasource.ListenerFunc(func(e datasource.Event) {
		if e.Kind == datasource.EventReady {
			readyBefore = true
		}
	}))
	ds.Subscribe(rec.Listener())

	if ds.IsReady() {
		t.Fatal("Expected source not to be ready before it is made ready")
	}
	makeReady()
	if !ds.IsReady() {
		t.Fatal("Expected source to be ready")
	}
	if !readyBefore {
		t.Fatal("Expected a ready event")
	}
	makeReady()

	var n int
	for _, k := range rec.Kinds() {
		if k == datasource.EventReady {
			n++
		}
	}
	if n != 1 {
		t.Fatalf("Expected exactly one ready event but got %d", n)
	}
	if !ds.IsReady() {
		t.Fatal("Expected source to stay ready")
	}
}

func testRangeMatchesData(t *testing.T, h Harness) {
	ctx := context.Background()
	ds := h.Open(t, Colors())

	all, err := ds.GetData(ctx)
	if err != nil {
		t.Fatalf("Failed to get data: %v", err)
	}
	n, err := ds.RecordCount(ctx)
	if err != nil {
		t.Fatalf("Failed to count records: %v", err)
	}
	rr, err := ds.GetRange(ctx, 0, n)
	if err != nil {
		t.Fatalf("Failed to get range: %v", err)
	}
	if !reflect.DeepEqual(Names(all), Names(rr)) || n != len(all) {
		t.Fatalf("Expected %v but got %v", Names(all), Names(rr))
	}
	if e := Names(Colors()); !reflect.DeepEqual(Names(all), e) {
		t.Fatalf("Expected %v but got %v", e, Names(all))
	}
}

func testRangePolicy(t *testing.T, h Harness) {
	ctx := context.Background()
	ds := h.Open(t, Colors())
	n, err := ds.RecordCount(ctx)
	if err != nil {
		t.Fatalf("Failed to count records: %v", err)
	}

	for i := 0; i < 3; i++ {
		rr, err := ds.GetRange(ctx, 1, n+3)
		switch ds.RangePolicy() {
		case datasource.RangeStrict:
			var re *datasource.RangeError
			if !errors.As(err, &re) {
				t.Fatalf("Expected a RangeError under strict policy but got %v", err)
			}
		case datasource.RangeClamp:
			if err != nil {
				t.Fatalf("Expected clamping but got %v", err)
			}
			if len(rr) != n-1 {
				t.Fatalf("Expected %d clamped records but got %d", n-1, len(rr))
			}
		}
	}

	if ds.RangePolicy() == datasource.RangeStrict {
		if _, err := ds.GetRange(ctx, -1, 1); !datasource.IsRange(err) {
			t.Fatalf("Expected a RangeError for a negative start but got %v", err)
		}
		if _, err := ds.GetRange(ctx, 2, 1); !datasource.IsRange(err) {
			t.Fatalf("Expected a RangeError for an inverted range but got %v", err)
		}
	}
}

func testLookup(t *testing.T, h Harness) {
	ctx := context.Background()
	ds := h.Open(t, Colors())
	if _, err := ds.GetData(ctx); err != nil {
		t.Fatalf("Failed to get data: %v", err)
	}

	r, err := ds.GetRecordByID(datasource.IntID(3))
	if err != nil {
		t.Fatalf("Failed to look up record: %v", err)
	}
	if r["name"] != "green" {
		t.Fatalf("Expected green but got %v", r["name"])
	}

	_, err = ds.GetRecordByID(datasource.IntID(42))
	var nf *datasource.NotFoundError
	if !errors.As(err, &nf) || nf.ID != datasource.IntID(42) {
		t.Fatalf("Expected a NotFoundError but got %v", err)
	}
}

func testSetValue(t *testing.T, h Harness) {
	ctx := context.Background()
	ds := h.Open(t, Colors())
	if _, err := ds.GetData(ctx); err != nil {
		t.Fatalf("Failed to get data: %v", err)
	}

	if !datasource.Supports(ds, datasource.CapSetValue) {
		err := datasource.SetValue(ctx, ds, datasource.IntID(2), "name", "navy")
		if !datasource.IsUnsupported(err) {
			t.Fatalf("Expected an UnsupportedOperationError but got %v", err)
		}
		return
	}

	var changed bool
	ds.Subscribe(datasource.ListenerFunc(func(e datasource.Event) {
		if e.Kind != datasource.EventDataChanged {
			return
		}
		for _, c := range e.Change.Values {
			if c.RowID == datasource.IntID(2) && c.Key == "name" {
				changed = true
			}
		}
	}))

	if err := datasource.SetValue(ctx, ds, datasource.IntID(2), "name", "navy"); err != nil {
		t.Fatalf("Failed to set value: %v", err)
	}
	if !changed {
		t.Fatal("Expected a datachanged event referencing the cell before returning")
	}
	r, err := ds.GetRecordByID(datasource.IntID(2))
	if err != nil {
		t.Fatalf("Failed to look up record: %v", err)
	}
	if r["name"] != "navy" {
		t.Fatalf("Expected navy but got %v", r["name"])
	}

	if err := datasource.SetValue(ctx, ds, datasource.IntID(42), "name", "x"); !datasource.IsNotFound(err) {
		t.Fatalf("Expected a NotFoundError but got %v", err)
	}
}

func testSort(t *testing.T, h Harness) {
	ctx := context.Background()
	ds := h.Open(t, Colors())
	order := datasource.Order{{Key: "name", Direction: datasource.SortAscending}}

	if !datasource.Supports(ds, datasource.CapSort) {
		if err := datasource.Sort(ctx, ds, nil, order); !datasource.IsUnsupported(err) {
			t.Fatalf("Expected an UnsupportedOperationError but got %v", err)
		}
		return
	}

	var rec Recorder
	ds.Subscribe(rec.Listener())
	if err := datasource.Sort(ctx, ds, nil, order); err != nil {
		t.Fatalf("Failed to sort: %v", err)
	}
	if !reflect.DeepEqual(rec.Kinds(), []datasource.EventKind{datasource.EventDataLoaded}) {
		t.Fatalf("Expected a single dataloaded but got %v", rec.Kinds())
	}

	rr, err := ds.GetData(ctx)
	if err != nil {
		t.Fatalf("Failed to get data: %v", err)
	}
	e := []string{"blue", "green", "orange", "red"}
	if !reflect.DeepEqual(Names(rr), e) {
		t.Fatalf("Expected %v but got %v", e, Names(rr))
	}
}

func testInsertScenario(t *testing.T, h Harness) {
	if h.Mutate == nil {
		t.Skip("harness cannot mutate")
	}
	ctx := context.Background()
	ds := h.Open(t, Colors())
	mirror := attach(t, ds)
	var rec Recorder
	ds.Subscribe(rec.Listener())

	err := h.Mutate(ctx, ds, datasource.Mutation{Insert: []datasource.Block{
		{At: 1, Records: []datasource.Record{{"id": 5, "name": "mauve"}}},
		{At: 3, Records: []datasource.Record{{"id": 6, "name": "teal"}, {"id": 7, "name": "purple"}}},
	}})
	if err != nil {
		t.Fatalf("Failed to insert: %v", err)
	}

	ee := []datasource.Event{datasource.RowsAddedEvent(1, 2), datasource.RowsAddedEvent(3, 5)}
	if !reflect.DeepEqual(rec.Events, ee) {
		t.Fatalf("Expected %v but got %v", ee, rec.Events)
	}
	e := []string{"red", "mauve", "blue", "teal", "purple", "green", "orange"}
	assertNames(t, ds, mirror, e)
}

func testRemoveScenario(t *testing.T, h Harness) {
	if h.Mutate == nil {
		t.Skip("harness cannot mutate")
	}
	ctx := context.Background()
	ds := h.Open(t, []datasource.Record{
		{"id": 1, "name": "red"},
		{"id": 5, "name": "mauve"},
		{"id": 2, "name": "blue"},
		{"id": 6, "name": "teal"},
		{"id": 7, "name": "purple"},
		{"id": 3, "name": "green"},
		{"id": 4, "name": "orange"},
	})
	mirror := attach(t, ds)
	var rec Recorder
	ds.Subscribe(rec.Listener())

	err := h.Mutate(ctx, ds, datasource.Mutation{
		Remove: []datasource.ID{datasource.IntID(6), datasource.IntID(7), datasource.IntID(5)},
	})
	if err != nil {
		t.Fatalf("Failed to remove: %v", err)
	}

	ee := []datasource.Event{datasource.RowsRemovedEvent(3, 5), datasource.RowsRemovedEvent(1, 2)}
	if !reflect.DeepEqual(rec.Events, ee) {
		t.Fatalf("Expected %v but got %v", ee, rec.Events)
	}
	assertNames(t, ds, mirror, []string{"red", "blue", "green", "orange"})
}

func testRandomReplay(t *testing.T, h Harness) {
	if h.Mutate == nil {
		t.Skip("harness cannot mutate")
	}
	ctx := context.Background()
	seed, rounds := h.Seed, h.Rounds
	if seed == 0 {
		seed = 20240601
	}
	if rounds == 0 {
		rounds = 200
	}
	rnd := rand.New(rand.NewSource(seed))

	ds := h.Open(t, Colors())
	mirror := attach(t, ds)
	model := Colors()
	nextID := int64(100)

	for round := 0; round < rounds; round++ {
		m := randomMutation(rnd, model, &nextID)
		res, err := datasource.ApplyMutation(model, m)
		if err != nil {
			t.Fatalf("Round %d: invalid generated mutation: %v", round, err)
		}
		if err := h.Mutate(ctx, ds, m); err != nil {
			t.Fatalf("Round %d: failed to mutate: %v", round, err)
		}
		model = res.Records

		if err := mirror.Err(); err != nil {
			t.Fatalf("Round %d: mirror failed: %v", round, err)
		}
		got, e := Names(mirror.Records()), Names(model)
		if !reflect.DeepEqual(got, e) {
			t.Fatalf("Round %d (seed %d): mirror diverged\nexpected %v\n     got %v", round, seed, e, got)
		}
	}

	rr, err := ds.GetData(ctx)
	if err != nil {
		t.Fatalf("Failed to get data: %v", err)
	}
	if !reflect.DeepEqual(Names(rr), Names(mirror.Records())) {
		t.Fatalf("Expected mirror to match source")
	}
}

func randomMutation(rnd *rand.Rand, model []datasource.Record, nextID *int64) datasource.Mutation {
	var m datasource.Mutation
	for _, r := range model {
		if rnd.Intn(4) == 0 {
			id, _ := r.ID()
			m.Remove = append(m.Remove, id)
		}
	}
	rnd.Shuffle(len(m.Remove), func(i, j int) { m.Remove[i], m.Remove[j] = m.Remove[j], m.Remove[i] })

	size := len(model) - len(m.Remove)
	for b := rnd.Intn(4); b > 0; b-- {
		block := datasource.Block{At: rnd.Intn(size + 1)}
		for n := 1 + rnd.Intn(3); n > 0; n-- {
			*nextID++
			block.Records = append(block.Records, datasource.Record{
				"id":   *nextID,
				"name": fmt.Sprintf("c%d", *nextID),
			})
		}
		size += len(block.Records)
		m.Insert = append(m.Insert, block)
	}

	return m
}

func attach(t *testing.T, ds datasource.DataSource) *datasource.Mirror {
	t.Helper()

	m := datasource.NewMirror(context.Background(), ds)
	m.Attach()
	t.Cleanup(m.Detach)
	if err := m.Err(); err != nil {
		t.Fatalf("Failed to attach mirror: %v", err)
	}

	return m
}

func assertNames(t *testing.T, ds datasource.DataSource, m *datasource.Mirror, e []string) {
	t.Helper()

	rr, err := ds.GetData(context.Background())
	if err != nil {
		t.Fatalf("Failed to get data: %v", err)
	}
	if !reflect.DeepEqual(Names(rr), e) {
		t.Fatalf("Expected source %v but got %v", e, Names(rr))
	}
	if err := m.Err(); err != nil {
		t.Fatalf("Mirror failed: %v", err)
	}
	if got := Names(m.Records()); !reflect.DeepEqual(got, e) {
		t.Fatalf("Expected mirror %v but got %v", e, got)
	}
}
