// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of a1s

package datasource

import "sort"

// Runs groups positions into maximal contiguous ranges, sorted ascending.
// Duplicate positions are ignored.
func Runs(positions []int) []Range {
	if len(positions) == 0 {
		return nil
	}
	pp := make([]int, len(positions))
	copy(pp, positions)
	sort.Ints(pp)

	rr := make([]Range, 0, 1)
	cur := Range{Start: pp[0], End: pp[0] + 1}
	for _, p := range pp[1:] {
		switch {
		case p < cur.End:
		case p == cur.End:
			cur.End++
		default:
			rr = append(rr, cur)
			cur = Range{Start: p, End: p + 1}
		}
	}

	return append(rr, cur)
}

// InsertEvents returns the rowsadded events announcing records inserted at
// the given final positions. Blocks are emitted lowest first so each range is
// expressed in post-insertion positions of its own block.
func InsertEvents(finalPositions []int) []Event {
	runs := Runs(finalPositions)
	ee := make([]Event, 0, len(runs))
	for _, r := range runs {
		ee = append(ee, Event{Kind: EventRowsAdded, Range: r})
	}

	return ee
}

// RemoveEvents returns the rowsremoved events announcing records removed from
// the given original positions. Blocks are emitted highest first so each range
// is expressed in pre-removal positions of its own block.
func RemoveEvents(originalPositions []int) []Event {
	runs := Runs(originalPositions)
	ee := make([]Event, 0, len(runs))
	for i := len(runs) - 1; i >= 0; i-- {
		ee = append(ee, Event{Kind: EventRowsRemoved, Range: runs[i]})
	}

	return ee
}

// StructuralEvents returns the events of one logical update removing records
// at original positions then inserting records at final positions.
func StructuralEvents(removed, added []int) []Event {
	return append(RemoveEvents(removed), InsertEvents(added)...)
}

// CheckRange validates [start, end) against count records according to
// policy. Under RangeClamp the returned bounds are trimmed to [0, count].
func CheckRange(start, end, count int, policy RangePolicy) (int, int, error) {
	if policy == RangeClamp {
		start, end = max(start, 0), min(end, count)
		if start > count {
			start = count
		}
		if end < start {
			end = start
		}
		return start, end, nil
	}
	if start < 0 || end < start || end > count {
		return 0, 0, &RangeError{Start: start, End: end, Count: count}
	}

	return start, end, nil
}
