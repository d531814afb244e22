// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of a1s

package datasource

import (
	"errors"
	"reflect"
	"testing"
)

func colors(names ...string) []Record {
	ids := map[string]int64{
		"red": 1, "blue": 2, "green": 3, "orange": 4, "mauve": 5, "teal": 6, "purple": 7,
	}
	rr := make([]Record, 0, len(names))
	for _, n := range names {
		rr = append(rr, Record{"id": ids[n], "name": n})
	}
	return rr
}

func names(rr []Record) []string {
	out := make([]string, 0, len(rr))
	for _, r := range rr {
		out = append(out, r["name"].(string))
	}
	return out
}

func TestApplyMutationInsertBatch(t *testing.T) {
	base := colors("red", "blue", "green", "orange")
	res, err := ApplyMutation(base, Mutation{Insert: []Block{
		{At: 1, Records: colors("mauve")},
		{At: 3, Records: colors("teal", "purple")},
	}})
	if err != nil {
		t.Fatalf("Failed to apply mutation: %v", err)
	}

	e := []string{"red", "mauve", "blue", "teal", "purple", "green", "orange"}
	if got := names(res.Records); !reflect.DeepEqual(got, e) {
		t.Fatalf("Expected %v but got %v", e, got)
	}
	ee := []Event{RowsAddedEvent(1, 2), RowsAddedEvent(3, 5)}
	if !reflect.DeepEqual(res.Events(), ee) {
		t.Fatalf("Expected %v but got %v", ee, res.Events())
	}
	if len(base) != 4 {
		t.Fatalf("Input was modified: %v", names(base))
	}
}

func TestApplyMutationRemoveBatch(t *testing.T) {
	base := colors("red", "mauve", "blue", "teal", "purple", "green", "orange")
	res, err := ApplyMutation(base, Mutation{Remove: []ID{IntID(6), IntID(7), IntID(5)}})
	if err != nil {
		t.Fatalf("Failed to apply mutation: %v", err)
	}

	e := []string{"red", "blue", "green", "orange"}
	if got := names(res.Records); !reflect.DeepEqual(got, e) {
		t.Fatalf("Expected %v but got %v", e, got)
	}
	ee := []Event{RowsRemovedEvent(3, 5), RowsRemovedEvent(1, 2)}
	if !reflect.DeepEqual(res.Events(), ee) {
		t.Fatalf("Expected %v but got %v", ee, res.Events())
	}
}

func TestApplyMutationMixed(t *testing.T) {
	base := colors("red", "blue", "green")
	res, err := ApplyMutation(base, Mutation{
		Remove: []ID{IntID(2)},
		Insert: []Block{{At: 2, Records: colors("teal")}, {At: 0, Records: colors("mauve")}},
	})
	if err != nil {
		t.Fatalf("Failed to apply mutation: %v", err)
	}

	e := []string{"mauve", "red", "green", "teal"}
	if got := names(res.Records); !reflect.DeepEqual(got, e) {
		t.Fatalf("Expected %v but got %v", e, got)
	}
	ee := []Event{RowsRemovedEvent(1, 2), RowsAddedEvent(0, 1), RowsAddedEvent(3, 4)}
	if !reflect.DeepEqual(res.Events(), ee) {
		t.Fatalf("Expected %v but got %v", ee, res.Events())
	}
}

func TestApplyMutationErrors(t *testing.T) {
	base := colors("red", "blue")
	uu := map[string]struct {
		m   Mutation
		err error
	}{
		"unknown":     {m: Mutation{Remove: []ID{IntID(9)}}, err: ErrNotFound},
		"twice":       {m: Mutation{Remove: []ID{IntID(1), IntID(1)}}, err: ErrDuplicateID},
		"twice-apart": {m: Mutation{Remove: []ID{IntID(1), IntID(2), IntID(1)}}, err: ErrDuplicateID},
		"dup-insert":  {m: Mutation{Insert: []Block{{At: 0, Records: colors("blue")}}}, err: ErrDuplicateID},
		"no-id":       {m: Mutation{Insert: []Block{{At: 0, Records: []Record{{"name": "x"}}}}}, err: ErrMissingID},
		"out-of-band": {m: Mutation{Insert: []Block{{At: 3, Records: colors("teal")}}}, err: ErrRange},
	}

	for k := range uu {
		u := uu[k]
		t.Run(k, func(t *testing.T) {
			_, err := ApplyMutation(base, u.m)
			if !errors.Is(err, u.err) {
				t.Fatalf("Expected %v but got %v", u.err, err)
			}
		})
	}
}

func TestApplyMutationReuseRemovedID(t *testing.T) {
	base := colors("red", "blue")
	res, err := ApplyMutation(base, Mutation{
		Remove: []ID{IntID(1)},
		Insert: []Block{{At: 1, Records: []Record{{"id": 1, "name": "red again"}}}},
	})
	if err != nil {
		t.Fatalf("Failed to apply mutation: %v", err)
	}
	if got := names(res.Records); !reflect.DeepEqual(got, []string{"blue", "red again"}) {
		t.Fatalf("Unexpected records %v", got)
	}
}
