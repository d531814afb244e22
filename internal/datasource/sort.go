// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of a1s

package datasource

import (
	"fmt"
	"strings"

	"github.com/fvbommel/sortorder"
)

// SortDirection represents a sort direction.
type SortDirection int

const (
	// SortAscending orders smallest first.
	SortAscending SortDirection = iota
	// SortDescending orders largest first.
	SortDescending
)

func (d SortDirection) String() string {
	if d == SortDescending {
		return "desc"
	}
	return "asc"
}

// SortKey orders records by one field.
type SortKey struct {
	Key       string
	Direction SortDirection
}

func (k SortKey) String() string {
	return k.Key + " " + k.Direction.String()
}

// Order lists sort keys by decreasing precedence.
type Order []SortKey

func (o Order) String() string {
	ss := make([]string, 0, len(o))
	for _, k := range o {
		ss = append(ss, k.String())
	}
	return strings.Join(ss, ", ")
}

// Toggle returns an order sorting by key alone. The direction flips when key
// already leads the order, otherwise it starts ascending.
func (o Order) Toggle(key string) Order {
	if len(o) > 0 && o[0].Key == key {
		d := SortAscending
		if o[0].Direction == SortAscending {
			d = SortDescending
		}
		return Order{{Key: key, Direction: d}}
	}
	return Order{{Key: key, Direction: SortAscending}}
}

// Comparator returns a negative number when a sorts before b, a positive one
// when after and zero when they are equivalent.
type Comparator func(a, b Record) int

// NaturalComparator compares records field by field following order.
// Numbers compare numerically, everything else in natural string order.
// Missing values sort first.
func NaturalComparator(order Order) Comparator {
	return func(a, b Record) int {
		for _, k := range order {
			c := CompareValues(a[k.Key], b[k.Key])
			if c == 0 {
				continue
			}
			if k.Direction == SortDescending {
				return -c
			}
			return c
		}
		return 0
	}
}

// CompareValues compares two field values.
func CompareValues(v1, v2 any) int {
	switch {
	case v1 == nil && v2 == nil:
		return 0
	case v1 == nil:
		return -1
	case v2 == nil:
		return 1
	}
	if f1, ok := asFloat(v1); ok {
		if f2, ok := asFloat(v2); ok {
			switch {
			case f1 < f2:
				return -1
			case f1 > f2:
				return 1
			default:
				return 0
			}
		}
	}

	s1, s2 := fmt.Sprint(v1), fmt.Sprint(v2)
	switch {
	case s1 == s2:
		return 0
	case sortorder.NaturalLess(s1, s2):
		return -1
	default:
		return 1
	}
}

func asFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case int:
		return float64(t), true
	case int8:
		return float64(t), true
	case int16:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case uint:
		return float64(t), true
	case uint8:
		return float64(t), true
	case uint16:
		return float64(t), true
	case uint32:
		return float64(t), true
	case uint64:
		return float64(t), true
	case float32:
		return float64(t), true
	case float64:
		return t, true
	case ID:
		if t.IsNumeric() {
			return float64(t.n), true
		}
	}
	return 0, false
}
