// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of a1s

package datasource

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"testing"
)

func TestParseID(t *testing.T) {
	uu := map[string]struct {
		v   any
		e   ID
		err bool
	}{
		"string":      {v: "a", e: StringID("a")},
		"int":         {v: 7, e: IntID(7)},
		"uint8":       {v: uint8(7), e: IntID(7)},
		"float":       {v: float64(7), e: IntID(7)},
		"number":      {v: json.Number("12"), e: IntID(12)},
		"fraction":    {v: 1.5, err: true},
		"nil":         {v: nil, err: true},
		"empty":       {v: "", err: true},
		"unsupported": {v: []int{1}, err: true},
	}

	for k := range uu {
		u := uu[k]
		t.Run(k, func(t *testing.T) {
			id, err := ParseID(u.v)
			if u.err {
				if err == nil {
					t.Fatalf("Expected an error for %v", u.v)
				}
				return
			}
			if err != nil {
				t.Fatalf("Failed to parse id: %v", err)
			}
			if id != u.e {
				t.Fatalf("Expected %v but got %v", u.e, id)
			}
		})
	}
}

func TestIDKeyDistinguishesTypes(t *testing.T) {
	if StringID("1") == IntID(1) || StringID("1").Key() == IntID(1).Key() {
		t.Fatal("Expected string and integer ids to differ")
	}
	if StringID("1").String() != IntID(1).String() {
		t.Fatal("Expected identical display forms")
	}
	raw, err := json.Marshal([]ID{StringID("a"), IntID(2)})
	if err != nil {
		t.Fatalf("Failed to marshal ids: %v", err)
	}
	if string(raw) != `["a",2]` {
		t.Fatalf("Unexpected json %s", raw)
	}
}

func TestRecordKeys(t *testing.T) {
	r := Record{"name": "red", "id": 1, "age": 3}
	if got := r.Keys(); !reflect.DeepEqual(got, []string{"id", "age", "name"}) {
		t.Fatalf("Unexpected keys %v", got)
	}
}

func TestChangeRowIDs(t *testing.T) {
	c := Change{
		Values: []Cell{{RowID: IntID(1), Key: "a"}, {RowID: IntID(1), Key: "b"}},
		Rows:   []Record{{"id": 2}, {"id": 1}},
	}
	if got := c.RowIDs(); !reflect.DeepEqual(got, []ID{IntID(1), IntID(2)}) {
		t.Fatalf("Unexpected ids %v", got)
	}
}

func TestNaturalComparator(t *testing.T) {
	rr := []Record{
		{"id": 1, "name": "item10", "size": 3},
		{"id": 2, "name": "item2", "size": 3},
		{"id": 3, "size": 1},
	}
	byName := NaturalComparator(Order{{Key: "name"}})
	if byName(rr[1], rr[0]) >= 0 {
		t.Fatal("Expected item2 before item10")
	}
	if byName(rr[2], rr[1]) >= 0 {
		t.Fatal("Expected missing values first")
	}

	bySize := NaturalComparator(Order{{Key: "size", Direction: SortDescending}, {Key: "name"}})
	if bySize(rr[1], rr[0]) >= 0 || bySize(rr[0], rr[2]) >= 0 {
		t.Fatal("Unexpected descending order")
	}
}

func TestOrderToggle(t *testing.T) {
	var o Order
	o = o.Toggle("name")
	if o[0].Direction != SortAscending {
		t.Fatalf("Expected ascending but got %v", o)
	}
	o = o.Toggle("name")
	if o[0].Direction != SortDescending {
		t.Fatalf("Expected descending but got %v", o)
	}
	o = o.Toggle("size")
	if o.String() != "size asc" {
		t.Fatalf("Unexpected order %v", o)
	}
}

type readOnly struct{ DataSource }

type editable struct {
	readOnly
	caps Capability
}

func (editable) SetValue(context.Context, ID, string, any) error { return nil }

func (editable) Sort(context.Context, Comparator, Order) error { return nil }

func (e editable) Capabilities() Capability { return e.caps }

func TestCapabilities(t *testing.T) {
	ctx := context.Background()
	if Supports(readOnly{}, CapSetValue) || Supports(readOnly{}, CapSort) {
		t.Fatal("Expected no capabilities")
	}
	err := SetValue(ctx, readOnly{}, IntID(1), "a", 1)
	var ue *UnsupportedOperationError
	if !errors.As(err, &ue) || !IsUnsupported(err) || ue.Op != "setValue" {
		t.Fatalf("Expected an unsupported error but got %v", err)
	}
	if err := Sort(ctx, readOnly{}, nil, nil); !IsUnsupported(err) {
		t.Fatalf("Expected an unsupported error but got %v", err)
	}

	e := editable{caps: CapSort}
	if Supports(e, CapSetValue) || !Supports(e, CapSort) {
		t.Fatalf("Unexpected capabilities %v", Capabilities(e))
	}
	if err := Sort(ctx, e, nil, nil); err != nil {
		t.Fatalf("Failed to sort: %v", err)
	}
	if Capabilities(editable{caps: CapSort | CapSetValue}).String() != "setValue,sort" {
		t.Fatal("Expected both capabilities")
	}
}
