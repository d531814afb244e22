// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of a1s

package datasource

import (
	"fmt"
	"strings"

	"github.com/wI2L/jsondiff"
)

// Delta describes how one snapshot of records became another.
type Delta struct {
	// Removed lists positions in the old snapshot.
	Removed []int
	// Added lists positions in the new snapshot.
	Added []int
	// Changed lists the cells of surviving records whose value changed.
	Changed []Cell
	// Rows holds the new version of every changed record.
	Rows []Record
	// Reordered is set when surviving records changed relative order.
	Reordered bool
}

// Empty returns true if both snapshots are identical.
func (d Delta) Empty() bool {
	return !d.Reordered && len(d.Removed) == 0 && len(d.Added) == 0 && len(d.Changed) == 0
}

// Events returns the events announcing the delta. A reorder cannot be
// expressed with range events and yields a single dataloaded.
func (d Delta) Events() []Event {
	if d.Reordered {
		return []Event{{Kind: EventDataLoaded}}
	}
	ee := StructuralEvents(d.Removed, d.Added)
	if len(d.Changed) > 0 {
		ee = append(ee, Event{
			Kind:   EventDataChanged,
			Change: Change{Values: d.Changed, Rows: d.Rows},
		})
	}

	return ee
}

// Diff compares two snapshots by record id.
func Diff(old, cur []Record) (Delta, error) {
	oldIdx, err := indexByID(old)
	if err != nil {
		return Delta{}, fmt.Errorf("old snapshot: %w", err)
	}
	curIdx, err := indexByID(cur)
	if err != nil {
		return Delta{}, fmt.Errorf("new snapshot: %w", err)
	}

	var (
		d              Delta
		oldKept, kept []ID
	)
	for i, r := range old {
		id, _ := r.ID()
		if _, ok := curIdx[id]; !ok {
			d.Removed = append(d.Removed, i)
			continue
		}
		oldKept = append(oldKept, id)
	}
	for i, r := range cur {
		id, _ := r.ID()
		j, ok := oldIdx[id]
		if !ok {
			d.Added = append(d.Added, i)
			continue
		}
		kept = append(kept, id)
		cells, err := diffCells(id, old[j], r)
		if err != nil {
			return Delta{}, err
		}
		if len(cells) > 0 {
			d.Changed = append(d.Changed, cells...)
			d.Rows = append(d.Rows, r)
		}
	}
	for i := range kept {
		if kept[i] != oldKept[i] {
			d.Reordered = true
			break
		}
	}

	return d, nil
}

func indexByID(rr []Record) (map[ID]int, error) {
	idx := make(map[ID]int, len(rr))
	for i, r := range rr {
		id, err := r.ID()
		if err != nil {
			return nil, fmt.Errorf("record at %d: %w", i, err)
		}
		if _, ok := idx[id]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateID, id)
		}
		idx[id] = i
	}

	return idx, nil
}

func diffCells(id ID, o, n Record) ([]Cell, error) {
	patch, err := jsondiff.Compare(map[string]any(o), map[string]any(n))
	if err != nil {
		return nil, fmt.Errorf("failed to compare record %s: %w", id, err)
	}
	if len(patch) == 0 {
		return nil, nil
	}

	seen := make(map[string]struct{}, len(patch))
	cells := make([]Cell, 0, len(patch))
	add := func(k string) {
		if _, ok := seen[k]; ok {
			return
		}
		seen[k] = struct{}{}
		cells = append(cells, Cell{RowID: id, Key: k})
	}
	for _, op := range patch {
		k, ok := topKey(string(op.Path))
		if !ok {
			for _, k := range unionKeys(o, n) {
				add(k)
			}
			continue
		}
		add(k)
	}

	return cells, nil
}

// topKey returns the first segment of a JSON pointer.
func topKey(ptr string) (string, bool) {
	if ptr == "" || ptr == "/" {
		return "", false
	}
	ptr = strings.TrimPrefix(ptr, "/")
	if i := strings.IndexByte(ptr, '/'); i >= 0 {
		ptr = ptr[:i]
	}
	ptr = strings.ReplaceAll(ptr, "~1", "/")

	return strings.ReplaceAll(ptr, "~0", "~"), true
}

func unionKeys(o, n Record) []string {
	m := o.Clone()
	for k, v := range n {
		m[k] = v
	}
	return m.Keys()
}
