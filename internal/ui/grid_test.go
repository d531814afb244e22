// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of a1s

package ui

import (
	"context"
	"errors"
	"testing"

	"github.com/a1s/gridsource/internal/datasource"
	"github.com/a1s/gridsource/internal/memory"
	"github.com/a1s/gridsource/internal/render"
	"github.com/derailed/tcell/v2"
)

func newGrid(t *testing.T, rr []datasource.Record, oo ...memory.Option) (*Grid, *memory.Source) {
	t.Helper()

	ctx := context.Background()
	s := memory.New(oo...)
	if err := s.Open(ctx); err != nil {
		t.Fatalf("Failed to open source: %v", err)
	}
	if rr != nil {
		if err := s.Load(ctx, rr); err != nil {
			t.Fatalf("Failed to load records: %v", err)
		}
	}

	g := NewGrid(ctx, "colors", s, Inline)
	g.Init()
	t.Cleanup(g.Close)

	return g, s
}

func colors() []datasource.Record {
	return []datasource.Record{
		{"id": 1, "name": "red"},
		{"id": 2, "name": "blue"},
	}
}

func assertColumn(t *testing.T, g *Grid, col int, ee ...string) {
	t.Helper()

	if n := g.GetRowCount(); n != len(ee)+1 {
		t.Fatalf("Expected %d rows but got %d", len(ee)+1, n)
	}
	for i, e := range ee {
		if s := g.GetCell(i+1, col).Text; s != e {
			t.Fatalf("Row %d: expected %q but got %q", i+1, e, s)
		}
	}
}

func TestGridInit(t *testing.T) {
	g, _ := newGrid(t, colors())

	if s := g.GetCell(0, 0).Text; s != "id" {
		t.Fatalf("Expected the id header but got %q", s)
	}
	if s := g.GetCell(0, 1).Text; s != "name" {
		t.Fatalf("Expected the name header but got %q", s)
	}
	assertColumn(t, g, 1, "red", "blue")
	if s := g.GetTitle(); s != " <colors>[2] " {
		t.Fatalf("Unexpected title %q", s)
	}
}

func TestGridInsertRemove(t *testing.T) {
	ctx := context.Background()
	g, s := newGrid(t, colors())

	if err := s.Insert(ctx, 1, datasource.Record{"id": 3, "name": "green"}); err != nil {
		t.Fatalf("Failed to insert: %v", err)
	}
	assertColumn(t, g, 1, "red", "green", "blue")
	if c := g.GetCell(2, 1).Color; c != render.AddColor {
		t.Fatalf("Expected the added color but got %v", c)
	}

	if err := s.Remove(ctx, datasource.IntID(1), datasource.IntID(2)); err != nil {
		t.Fatalf("Failed to remove: %v", err)
	}
	assertColumn(t, g, 1, "green")
	if n := g.Mirror().Len(); n != 1 {
		t.Fatalf("Expected 1 mirrored record but got %d", n)
	}
}

func TestGridNewColumn(t *testing.T) {
	ctx := context.Background()
	g, s := newGrid(t, colors())

	if err := s.Insert(ctx, 2, datasource.Record{"id": 3, "name": "white", "hex": "#fff"}); err != nil {
		t.Fatalf("Failed to insert: %v", err)
	}
	if i := g.Header().IndexOf("hex"); i != 2 {
		t.Fatalf("Expected hex as the third column but got %d", i)
	}
	assertColumn(t, g, 2, render.MissingValue, render.MissingValue, "#fff")
}

func TestGridSetValue(t *testing.T) {
	ctx := context.Background()
	g, _ := newGrid(t, colors())

	if err := g.SetValue(ctx, datasource.IntID(2), "name", "navy"); err != nil {
		t.Fatalf("Failed to set value: %v", err)
	}
	assertColumn(t, g, 1, "red", "navy")
	if c := g.GetCell(2, 1).Color; c != render.ModColor {
		t.Fatalf("Expected the modified color but got %v", c)
	}
	if c := g.GetCell(1, 1).Color; c != render.StdColor {
		t.Fatalf("Expected the standard color but got %v", c)
	}
}

func TestGridSort(t *testing.T) {
	ctx := context.Background()
	g, _ := newGrid(t, colors())

	if err := g.SortBy(ctx, "name"); err != nil {
		t.Fatalf("Failed to sort: %v", err)
	}
	assertColumn(t, g, 1, "blue", "red")
	if s := g.GetCell(0, 1).Text; s != "name ▲" {
		t.Fatalf("Expected an ascending marker but got %q", s)
	}

	if err := g.SortBy(ctx, "name"); err != nil {
		t.Fatalf("Failed to sort: %v", err)
	}
	assertColumn(t, g, 1, "red", "blue")
	if s := g.GetCell(0, 1).Text; s != "name ▼" {
		t.Fatalf("Expected a descending marker but got %q", s)
	}
	if s := g.GetTitle(); s != " <colors>[2] sorted by name desc " {
		t.Fatalf("Unexpected title %q", s)
	}
}

func TestGridReadOnly(t *testing.T) {
	ctx := context.Background()
	g, _ := newGrid(t, colors(), memory.WithReadOnly(true))

	var reported error
	g.SetErrorFn(func(err error) { reported = err })

	if err := g.SortBy(ctx, "name"); !datasource.IsUnsupported(err) {
		t.Fatalf("Expected an unsupported error but got %v", err)
	}
	if len(g.Order()) != 0 {
		t.Fatalf("Expected the order to be restored but got %v", g.Order())
	}
	if err := g.SetValue(ctx, datasource.IntID(1), "name", "pink"); !datasource.IsUnsupported(err) {
		t.Fatalf("Expected an unsupported error but got %v", err)
	}

	g.Select(1, 1)
	g.keyboard(tcell.NewEventKey(tcell.KeyRune, 'e', tcell.ModNone))
	if !datasource.IsUnsupported(reported) {
		t.Fatalf("Expected an unsupported error to be reported but got %v", reported)
	}
}

func TestGridEmpty(t *testing.T) {
	ctx := context.Background()
	g, s := newGrid(t, nil)

	if s := g.GetCell(1, 0).Text; s != "No records" {
		t.Fatalf("Expected a placeholder but got %q", s)
	}

	if err := s.Insert(ctx, 0, datasource.Record{"id": 9, "name": "black"}); err != nil {
		t.Fatalf("Failed to insert: %v", err)
	}
	assertColumn(t, g, 0, "9")
	assertColumn(t, g, 1, "black")

	if err := s.Remove(ctx, datasource.IntID(9)); err != nil {
		t.Fatalf("Failed to remove: %v", err)
	}
	if s := g.GetCell(1, 0).Text; s != "No records" {
		t.Fatalf("Expected a placeholder but got %q", s)
	}
}

func TestGridEditHandler(t *testing.T) {
	g, _ := newGrid(t, colors())

	var (
		id       datasource.ID
		key, cur string
		reported error
	)
	g.SetEditFn(func(i datasource.ID, k, c string) { id, key, cur = i, k, c })
	g.SetErrorFn(func(err error) { reported = err })

	g.Select(2, 1)
	if evt := g.keyboard(tcell.NewEventKey(tcell.KeyRune, 'e', tcell.ModNone)); evt != nil {
		t.Fatal("Expected the edit key to be consumed")
	}
	if id != datasource.IntID(2) || key != "name" || cur != "blue" {
		t.Fatalf("Unexpected edit request %v %q %q", id, key, cur)
	}

	g.Select(1, 0)
	g.keyboard(tcell.NewEventKey(tcell.KeyEnter, 0, tcell.ModNone))
	if !errors.Is(reported, datasource.ErrImmutableID) {
		t.Fatalf("Expected an immutable id error but got %v", reported)
	}
}

func TestGridNavigation(t *testing.T) {
	g, _ := newGrid(t, colors())

	g.Select(1, 0)
	g.keyboard(tcell.NewEventKey(tcell.KeyRune, 'j', tcell.ModNone))
	if row, _ := g.GetSelection(); row != 2 {
		t.Fatalf("Expected row 2 but got %d", row)
	}
	g.keyboard(tcell.NewEventKey(tcell.KeyRune, 'k', tcell.ModNone))
	g.keyboard(tcell.NewEventKey(tcell.KeyRune, 'k', tcell.ModNone))
	if row, _ := g.GetSelection(); row != 1 {
		t.Fatalf("Expected the header to be skipped, got row %d", row)
	}
	if evt := g.keyboard(tcell.NewEventKey(tcell.KeyRune, 'z', tcell.ModNone)); evt == nil {
		t.Fatal("Expected an unbound key to be passed on")
	}
}

func TestGridHints(t *testing.T) {
	g, _ := newGrid(t, colors())

	visible := make(map[string]string)
	for _, h := range g.Hints() {
		if h.Visible {
			visible[h.Mnemonic] = h.Description
		}
	}
	e := map[string]string{"s": "Sort", "e": "Edit", "r": "Refresh"}
	for k, d := range e {
		if visible[k] != d {
			t.Fatalf("Expected hint <%s> %s but got %v", k, d, visible)
		}
	}
}

func TestChangedKeys(t *testing.T) {
	c := datasource.Change{
		Values: []datasource.Cell{
			{RowID: datasource.IntID(1), Key: "name"},
			{RowID: datasource.IntID(2), Key: "hex"},
		},
		Rows: []datasource.Record{{"id": 1, "name": "red"}, {"id": 3}},
	}

	uu := map[string]struct {
		id datasource.ID
		e  []string
	}{
		"values-win": {id: datasource.IntID(1), e: []string{"name"}},
		"values":     {id: datasource.IntID(2), e: []string{"hex"}},
		"row-only":   {id: datasource.IntID(3)},
	}

	for k := range uu {
		u := uu[k]
		t.Run(k, func(t *testing.T) {
			kk := changedKeys(c, u.id)
			if u.e == nil {
				if kk != nil {
					t.Fatalf("Expected the whole row but got %v", kk)
				}
				return
			}
			if len(kk) != len(u.e) {
				t.Fatalf("Expected keys %v but got %v", u.e, kk)
			}
			for _, key := range u.e {
				if _, ok := kk[key]; !ok {
					t.Fatalf("Expected key %q in %v", key, kk)
				}
			}
		})
	}
}
