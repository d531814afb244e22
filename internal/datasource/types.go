// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of a1s

// Package datasource defines the contract a grid uses to read, observe and
// mutate a collection of records regardless of where the records live.
package datasource

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
)

// IDKey is the record field holding the record identifier.
const IDKey = "id"

// ID identifies a record. It holds either a string or an integer.
type ID struct {
	s   string
	n   int64
	num bool
}

// StringID returns a string identifier.
func StringID(s string) ID {
	return ID{s: s}
}

// IntID returns an integer identifier.
func IntID(n int64) ID {
	return ID{n: n, num: true}
}

// ParseID converts a raw field value into an ID.
// Integral floats are accepted since JSON decoding yields float64 numbers.
func ParseID(v any) (ID, error) {
	switch t := v.(type) {
	case nil:
		return ID{}, ErrMissingID
	case ID:
		return t, nil
	case string:
		if t == "" {
			return ID{}, ErrMissingID
		}
		return StringID(t), nil
	case int:
		return IntID(int64(t)), nil
	case int8:
		return IntID(int64(t)), nil
	case int16:
		return IntID(int64(t)), nil
	case int32:
		return IntID(int64(t)), nil
	case int64:
		return IntID(t), nil
	case uint:
		return IntID(int64(t)), nil
	case uint8:
		return IntID(int64(t)), nil
	case uint16:
		return IntID(int64(t)), nil
	case uint32:
		return IntID(int64(t)), nil
	case uint64:
		if t > math.MaxInt64 {
			return ID{}, fmt.Errorf("id %d overflows int64", t)
		}
		return IntID(int64(t)), nil
	case float32:
		return floatID(float64(t))
	case float64:
		return floatID(t)
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return IntID(n), nil
		}
		f, err := t.Float64()
		if err != nil {
			return ID{}, fmt.Errorf("invalid numeric id %q: %w", t, err)
		}
		return floatID(f)
	default:
		return ID{}, fmt.Errorf("unsupported id type %T", v)
	}
}

func floatID(f float64) (ID, error) {
	if f != math.Trunc(f) || math.IsInf(f, 0) || math.IsNaN(f) {
		return ID{}, fmt.Errorf("id %v is not an integer", f)
	}
	return IntID(int64(f)), nil
}

// IsZero returns true for the zero ID, which never identifies a record.
func (id ID) IsZero() bool {
	return !id.num && id.s == ""
}

// IsNumeric returns true if the id holds an integer.
func (id ID) IsNumeric() bool {
	return id.num
}

// Value returns the id as a string or an int64.
func (id ID) Value() any {
	if id.num {
		return id.n
	}
	return id.s
}

// String returns the id in its display form.
func (id ID) String() string {
	if id.num {
		return strconv.FormatInt(id.n, 10)
	}
	return id.s
}

// Key returns a type-tagged representation, so that "1" and 1 never collide.
func (id ID) Key() string {
	if id.num {
		return "n:" + strconv.FormatInt(id.n, 10)
	}
	return "s:" + id.s
}

// MarshalJSON encodes the id as a JSON string or number.
func (id ID) MarshalJSON() ([]byte, error) {
	return json.Marshal(id.Value())
}

// Record is a structured value carrying at least an id field.
type Record map[string]any

// ID returns the record identifier.
func (r Record) ID() (ID, error) {
	return ParseID(r[IDKey])
}

// Clone returns a shallow copy of the record.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Keys returns the record field names, id first then alphabetical.
func (r Record) Keys() []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		if k != IDKey {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	if _, ok := r[IDKey]; ok {
		keys = append([]string{IDKey}, keys...)
	}
	return keys
}

// CloneRecords returns shallow copies of the given records.
func CloneRecords(rr []Record) []Record {
	out := make([]Record, len(rr))
	for i, r := range rr {
		out[i] = r.Clone()
	}
	return out
}

// Range is a half-open interval [Start, End) of positions.
type Range struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Len returns the number of positions covered.
func (r Range) Len() int {
	if r.End < r.Start {
		return 0
	}
	return r.End - r.Start
}

// Empty returns true if the range covers no position.
func (r Range) Empty() bool {
	return r.Len() == 0
}

func (r Range) String() string {
	return fmt.Sprintf("[%d,%d)", r.Start, r.End)
}

// Cell identifies one changed value by row id and column key.
type Cell struct {
	RowID ID     `json:"rowId"`
	Key   string `json:"columnKey"`
}

// Change describes a datachanged event. Values lists the changed cells, Rows
// the changed records. Both empty means the affected rows must be reconciled
// by the consumer.
type Change struct {
	Values []Cell   `json:"values,omitempty"`
	Rows   []Record `json:"rows,omitempty"`
}

// Empty returns true if the change carries no descriptor.
func (c Change) Empty() bool {
	return len(c.Values) == 0 && len(c.Rows) == 0
}

// RowIDs returns the distinct row ids referenced by the change, in order of
// first appearance.
func (c Change) RowIDs() []ID {
	seen := make(map[ID]struct{}, len(c.Values)+len(c.Rows))
	ids := make([]ID, 0, len(c.Values)+len(c.Rows))
	add := func(id ID) {
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	for _, v := range c.Values {
		add(v.RowID)
	}
	for _, r := range c.Rows {
		if id, err := r.ID(); err == nil {
			add(id)
		}
	}
	return ids
}

// RangePolicy declares how GetRange treats out of bounds requests.
type RangePolicy int

const (
	// RangeStrict fails out of bounds requests with a RangeError.
	RangeStrict RangePolicy = iota
	// RangeClamp trims out of bounds requests to the available records.
	RangeClamp
)

func (p RangePolicy) String() string {
	switch p {
	case RangeStrict:
		return "strict"
	case RangeClamp:
		return "clamp"
	default:
		return fmt.Sprintf("Unknown(%d)", int(p))
	}
}

// ParseRangePolicy converts a configuration value into a RangePolicy.
func ParseRangePolicy(s string) (RangePolicy, error) {
	switch s {
	case "", "strict":
		return RangeStrict, nil
	case "clamp":
		return RangeClamp, nil
	default:
		return RangeStrict, fmt.Errorf("unknown range policy %q", s)
	}
}

// Capability flags optional operations.
type Capability uint8

const (
	// CapSetValue flags support for SetValue.
	CapSetValue Capability = 1 << iota
	// CapSort flags support for Sort.
	CapSort
)

// Has returns true if all flags of o are set.
func (c Capability) Has(o Capability) bool {
	return c&o == o
}

func (c Capability) String() string {
	switch {
	case c.Has(CapSetValue | CapSort):
		return "setValue,sort"
	case c.Has(CapSetValue):
		return "setValue"
	case c.Has(CapSort):
		return "sort"
	default:
		return "readonly"
	}
}
