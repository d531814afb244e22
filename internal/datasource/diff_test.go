// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of a1s

package datasource

import (
	"reflect"
	"testing"
)

func TestDiff(t *testing.T) {
	uu := map[string]struct {
		old, cur []Record
		e        []Event
	}{
		"same": {
			old: colors("red", "blue"),
			cur: colors("red", "blue"),
		},
		"insert": {
			old: colors("red", "blue", "green", "orange"),
			cur: colors("red", "mauve", "blue", "teal", "purple", "green", "orange"),
			e:   []Event{RowsAddedEvent(1, 2), RowsAddedEvent(3, 5)},
		},
		"remove": {
			old: colors("red", "mauve", "blue", "teal", "purple", "green", "orange"),
			cur: colors("red", "blue", "green", "orange"),
			e:   []Event{RowsRemovedEvent(3, 5), RowsRemovedEvent(1, 2)},
		},
		"reorder": {
			old: colors("red", "blue", "green"),
			cur: colors("green", "red", "blue"),
			e:   []Event{DataLoadedEvent()},
		},
		"reorder-with-insert": {
			old: colors("red", "blue"),
			cur: colors("blue", "teal", "red"),
			e:   []Event{DataLoadedEvent()},
		},
	}

	for k := range uu {
		u := uu[k]
		t.Run(k, func(t *testing.T) {
			d, err := Diff(u.old, u.cur)
			if err != nil {
				t.Fatalf("Failed to diff: %v", err)
			}
			if got := d.Events(); len(got) != len(u.e) || (len(got) > 0 && !reflect.DeepEqual(got, u.e)) {
				t.Fatalf("Expected %v but got %v", u.e, got)
			}
		})
	}
}

func TestDiffChangedCells(t *testing.T) {
	old := []Record{
		{"id": "a", "name": "red", "size": 1},
		{"id": "b", "name": "blue", "tags": map[string]any{"x": 1}},
	}
	cur := []Record{
		{"id": "a", "name": "red", "size": 2},
		{"id": "b", "name": "navy", "tags": map[string]any{"x": 2}},
	}

	d, err := Diff(old, cur)
	if err != nil {
		t.Fatalf("Failed to diff: %v", err)
	}
	if d.Reordered || len(d.Added) != 0 || len(d.Removed) != 0 {
		t.Fatalf("Unexpected structural delta %+v", d)
	}

	got := make(map[Cell]bool)
	for _, c := range d.Changed {
		got[c] = true
	}
	for _, c := range []Cell{
		{RowID: StringID("a"), Key: "size"},
		{RowID: StringID("b"), Key: "name"},
		{RowID: StringID("b"), Key: "tags"},
	} {
		if !got[c] {
			t.Fatalf("Expected cell %v in %v", c, d.Changed)
		}
	}
	if len(d.Changed) != 3 {
		t.Fatalf("Expected 3 changed cells but got %v", d.Changed)
	}
	if len(d.Rows) != 2 {
		t.Fatalf("Expected 2 changed rows but got %d", len(d.Rows))
	}

	ee := d.Events()
	if len(ee) != 1 || ee[0].Kind != EventDataChanged {
		t.Fatalf("Expected a single datachanged but got %v", ee)
	}
}

func TestDiffDuplicateIDs(t *testing.T) {
	if _, err := Diff(nil, []Record{{"id": 1}, {"id": 1}}); err == nil {
		t.Fatal("Expected an error for duplicate ids")
	}
}

func TestTopKey(t *testing.T) {
	uu := map[string]struct {
		k  string
		ok bool
	}{
		"":         {},
		"/name":    {k: "name", ok: true},
		"/tags/x":  {k: "tags", ok: true},
		"/a~1b/c":  {k: "a/b", ok: true},
		"/t~0ilde": {k: "t~ilde", ok: true},
	}

	for ptr, u := range uu {
		k, ok := topKey(ptr)
		if k != u.k || ok != u.ok {
			t.Fatalf("%q: expected %q/%t but got %q/%t", ptr, u.k, u.ok, k, ok)
		}
	}
}
