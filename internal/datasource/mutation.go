// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of a1s

package datasource

import (
	"fmt"
)

// Block inserts Records at position At. Positions of a block account for the
// removals and earlier blocks of the same mutation.
type Block struct {
	At      int
	Records []Record
}

// Mutation is one logical structural update: Remove is applied first, then
// each Insert block in order.
type Mutation struct {
	Remove []ID
	Insert []Block
}

// Empty returns true if the mutation changes nothing.
func (m Mutation) Empty() bool {
	if len(m.Remove) > 0 {
		return false
	}
	for _, b := range m.Insert {
		if len(b.Records) > 0 {
			return false
		}
	}
	return true
}

// MutationResult holds the outcome of ApplyMutation.
type MutationResult struct {
	// Records is the final arrangement.
	Records []Record
	// Removed lists the original positions of removed records.
	Removed []int
	// Added lists the final positions of inserted records.
	Added []int
}

// Events returns the ordered structural events announcing the mutation.
func (r MutationResult) Events() []Event {
	return StructuralEvents(r.Removed, r.Added)
}

type slot struct {
	rec   Record
	added bool
}

// ApplyMutation computes the outcome of m over records without modifying
// records. It fails without a partial result if an id is unknown, missing or
// duplicated, or if a block position is out of bounds.
func ApplyMutation(records []Record, m Mutation) (MutationResult, error) {
	index := make(map[ID]int, len(records))
	for i, r := range records {
		id, err := r.ID()
		if err != nil {
			return MutationResult{}, fmt.Errorf("record at %d: %w", i, err)
		}
		index[id] = i
	}

	gone := make(map[int]struct{}, len(m.Remove))
	seen := make(map[ID]struct{}, len(m.Remove))
	removed := make([]int, 0, len(m.Remove))
	for _, id := range m.Remove {
		if _, ok := seen[id]; ok {
			return MutationResult{}, fmt.Errorf("%w: %s removed twice", ErrDuplicateID, id)
		}
		seen[id] = struct{}{}
		pos, ok := index[id]
		if !ok {
			return MutationResult{}, &NotFoundError{ID: id}
		}
		gone[pos] = struct{}{}
		removed = append(removed, pos)
		delete(index, id)
	}

	ss := make([]slot, 0, len(records))
	for i, r := range records {
		if _, ok := gone[i]; !ok {
			ss = append(ss, slot{rec: r})
		}
	}

	for _, b := range m.Insert {
		if b.At < 0 || b.At > len(ss) {
			return MutationResult{}, &RangeError{Start: b.At, End: b.At + len(b.Records), Count: len(ss)}
		}
		block := make([]slot, 0, len(b.Records))
		for _, r := range b.Records {
			id, err := r.ID()
			if err != nil {
				return MutationResult{}, err
			}
			if _, ok := index[id]; ok {
				return MutationResult{}, fmt.Errorf("%w: %s", ErrDuplicateID, id)
			}
			index[id] = -1
			block = append(block, slot{rec: r, added: true})
		}
		ss = append(ss[:b.At], append(block, ss[b.At:]...)...)
	}

	res := MutationResult{
		Records: make([]Record, len(ss)),
		Removed: removed,
	}
	for i, s := range ss {
		res.Records[i] = s.rec
		if s.added {
			res.Added = append(res.Added, i)
		}
	}

	return res, nil
}
