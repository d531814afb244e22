// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of a1s

package datasource

import (
	"errors"
	"reflect"
	"testing"
)

func TestRuns(t *testing.T) {
	uu := map[string]struct {
		in []int
		e  []Range
	}{
		"empty":      {},
		"single":     {in: []int{3}, e: []Range{{3, 4}}},
		"contiguous": {in: []int{4, 2, 3}, e: []Range{{2, 5}}},
		"split":      {in: []int{1, 3, 4}, e: []Range{{1, 2}, {3, 5}}},
		"dups":       {in: []int{5, 5, 6, 0}, e: []Range{{0, 1}, {5, 7}}},
	}

	for k := range uu {
		u := uu[k]
		t.Run(k, func(t *testing.T) {
			if got := Runs(u.in); !reflect.DeepEqual(got, u.e) {
				t.Fatalf("Expected %v but got %v", u.e, got)
			}
		})
	}
}

func TestInsertEventsAscending(t *testing.T) {
	ee := InsertEvents([]int{4, 1, 3})
	e := []Event{RowsAddedEvent(1, 2), RowsAddedEvent(3, 5)}
	if !reflect.DeepEqual(ee, e) {
		t.Fatalf("Expected %v but got %v", e, ee)
	}
}

func TestRemoveEventsDescending(t *testing.T) {
	ee := RemoveEvents([]int{1, 3, 4})
	e := []Event{RowsRemovedEvent(3, 5), RowsRemovedEvent(1, 2)}
	if !reflect.DeepEqual(ee, e) {
		t.Fatalf("Expected %v but got %v", e, ee)
	}
}

func TestStructuralEventsRemovalsFirst(t *testing.T) {
	ee := StructuralEvents([]int{0}, []int{2})
	if len(ee) != 2 || ee[0].Kind != EventRowsRemoved || ee[1].Kind != EventRowsAdded {
		t.Fatalf("Unexpected events %v", ee)
	}
}

func TestCheckRange(t *testing.T) {
	uu := map[string]struct {
		start, end, count int
		policy            RangePolicy
		s, e              int
		err               bool
	}{
		"strict-ok":        {start: 1, end: 3, count: 4, s: 1, e: 3},
		"strict-full":      {start: 0, end: 4, count: 4, s: 0, e: 4},
		"strict-empty":     {start: 2, end: 2, count: 4, s: 2, e: 2},
		"strict-negative":  {start: -1, end: 2, count: 4, err: true},
		"strict-inverted":  {start: 3, end: 2, count: 4, err: true},
		"strict-overflow":  {start: 0, end: 5, count: 4, err: true},
		"clamp-overflow":   {start: 2, end: 9, count: 4, policy: RangeClamp, s: 2, e: 4},
		"clamp-negative":   {start: -3, end: 2, count: 4, policy: RangeClamp, s: 0, e: 2},
		"clamp-past":       {start: 7, end: 9, count: 4, policy: RangeClamp, s: 4, e: 4},
		"clamp-inverted":   {start: 3, end: 1, count: 4, policy: RangeClamp, s: 3, e: 3},
		"clamp-empty-data": {start: 0, end: 10, count: 0, policy: RangeClamp, s: 0, e: 0},
	}

	for k := range uu {
		u := uu[k]
		t.Run(k, func(t *testing.T) {
			s, e, err := CheckRange(u.start, u.end, u.count, u.policy)
			if u.err {
				var re *RangeError
				if !errors.As(err, &re) || !IsRange(err) {
					t.Fatalf("Expected a range error but got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Failed to check range: %v", err)
			}
			if s != u.s || e != u.e {
				t.Fatalf("Expected [%d,%d) but got [%d,%d)", u.s, u.e, s, e)
			}
		})
	}
}
