// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of a1s

package render

import (
	"reflect"
	"testing"
	"time"

	"github.com/a1s/gridsource/internal/datasource"
	"github.com/derailed/tview"
)

func TestColumns(t *testing.T) {
	rr := []datasource.Record{
		{"id": 1, "name": "red", "size10": 10, "size2": 2.5},
		{"id": 2, "name": "blue", "size2": nil, "tags": []any{"a"}},
	}

	h := Columns(rr)
	e := []string{"id", "name", "size2", "size10", "tags"}
	if !reflect.DeepEqual(h.Keys(), e) {
		t.Fatalf("Expected %v but got %v", e, h.Keys())
	}

	aligns := map[string]int{
		"id":     tview.AlignLeft,
		"name":   tview.AlignLeft,
		"size2":  tview.AlignRight,
		"size10": tview.AlignRight,
		"tags":   tview.AlignLeft,
	}
	for k, a := range aligns {
		if c := h[h.IndexOf(k)]; c.Align != a {
			t.Fatalf("%s: expected align %d but got %d", k, a, c.Align)
		}
	}

	if h.IndexOf("nope") != -1 {
		t.Fatal("Expected an unknown column to be missing")
	}
	if !h.Covers(rr[1]) || h.Covers(datasource.Record{"id": 3, "color": "x"}) {
		t.Fatal("Unexpected header coverage")
	}
	if e := (Header{{Key: IDColumn}}); !reflect.DeepEqual(Columns(nil), e) {
		t.Fatalf("Expected %v but got %v", e, Columns(nil))
	}
}

func TestValue(t *testing.T) {
	uu := map[string]struct {
		v any
		e string
	}{
		"nil":    {v: nil, e: NullValue},
		"string": {v: "red", e: "red"},
		"bool":   {v: true, e: "true"},
		"int":    {v: 42, e: "42"},
		"float":  {v: 2.5, e: "2.5"},
		"whole":  {v: 3.0, e: "3"},
		"time":   {v: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC), e: "2024-01-02T03:04:05Z"},
		"map":    {v: map[string]any{"a": 1}, e: `{"a":1}`},
		"slice":  {v: []any{"a", 2}, e: `["a",2]`},
		"id":     {v: datasource.IntID(7), e: "7"},
	}

	for k := range uu {
		u := uu[k]
		t.Run(k, func(t *testing.T) {
			if s := Value(u.v); s != u.e {
				t.Fatalf("Expected %q but got %q", u.e, s)
			}
		})
	}
}

func TestCell(t *testing.T) {
	r := datasource.Record{"id": 1, "name": "red"}
	if s, ok := Cell(r, "name"); !ok || s != "red" {
		t.Fatalf("Expected red but got %q", s)
	}
	if s, ok := Cell(r, "size"); ok || s != MissingValue {
		t.Fatalf("Expected a missing value but got %q", s)
	}
}

func TestParseValue(t *testing.T) {
	uu := map[string]struct {
		text    string
		current any
		e       any
	}{
		"string-stays": {text: "42", current: "x", e: "42"},
		"int":          {text: "42", current: 1, e: int64(42)},
		"float":        {text: "2.5", current: 1.0, e: 2.5},
		"bool":         {text: "false", current: true, e: false},
		"null":         {text: "null", current: 1, e: nil},
		"null-marker":  {text: NullValue, current: nil, e: nil},
		"json":         {text: `{"a":1}`, current: nil, e: map[string]any{"a": float64(1)}},
		"bad-json":     {text: "{nope", current: nil, e: "{nope"},
		"text":         {text: "blue", current: nil, e: "blue"},
		"empty":        {text: "", current: 3, e: ""},
	}

	for k := range uu {
		u := uu[k]
		t.Run(k, func(t *testing.T) {
			if v := ParseValue(u.text, u.current); !reflect.DeepEqual(v, u.e) {
				t.Fatalf("Expected %#v but got %#v", u.e, v)
			}
		})
	}
}

func TestTruncate(t *testing.T) {
	uu := map[string]struct {
		s   string
		max int
		e   string
	}{
		"short": {s: "abc", max: 5, e: "abc"},
		"long":  {s: "abcdef", max: 4, e: "abc…"},
		"runes": {s: "ééééé", max: 3, e: "éé…"},
		"tiny":  {s: "abc", max: 1, e: "a"},
	}

	for k := range uu {
		u := uu[k]
		t.Run(k, func(t *testing.T) {
			if s := Truncate(u.s, u.max); s != u.e {
				t.Fatalf("Expected %q but got %q", u.e, s)
			}
		})
	}
}
