// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of a1s

package render

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/a1s/gridsource/internal/datasource"
	"github.com/derailed/tview"
	"github.com/fvbommel/sortorder"
)

// Column describes one grid column.
type Column struct {
	Key   string
	Align int
}

// Header represents the grid columns in display order.
type Header []Column

// Keys returns the column keys.
func (h Header) Keys() []string {
	kk := make([]string, 0, len(h))
	for _, c := range h {
		kk = append(kk, c.Key)
	}
	return kk
}

// IndexOf returns the position of key in the header or -1.
func (h Header) IndexOf(key string) int {
	for i, c := range h {
		if c.Key == key {
			return i
		}
	}
	return -1
}

// Covers returns true if every field of r has a column.
func (h Header) Covers(r datasource.Record) bool {
	for k := range r {
		if h.IndexOf(k) < 0 {
			return false
		}
	}
	return true
}

// Columns derives the header from the union of the record fields. The id
// column leads, the others follow in natural order. Columns holding only
// numbers are right aligned.
func Columns(rr []datasource.Record) Header {
	numeric := make(map[string]bool)
	for _, r := range rr {
		for k, v := range r {
			if v == nil {
				if _, ok := numeric[k]; !ok {
					numeric[k] = true
				}
				continue
			}
			isNum := IsNumber(v)
			if n, ok := numeric[k]; ok {
				numeric[k] = n && isNum
			} else {
				numeric[k] = isNum
			}
		}
	}

	kk := make([]string, 0, len(numeric))
	for k := range numeric {
		if k != IDColumn {
			kk = append(kk, k)
		}
	}
	slices.SortFunc(kk, func(a, b string) int {
		switch {
		case sortorder.NaturalLess(a, b):
			return -1
		case sortorder.NaturalLess(b, a):
			return 1
		default:
			return 0
		}
	})

	h := make(Header, 0, len(kk)+1)
	h = append(h, Column{Key: IDColumn, Align: tview.AlignLeft})
	for _, k := range kk {
		align := tview.AlignLeft
		if numeric[k] {
			align = tview.AlignRight
		}
		h = append(h, Column{Key: k, Align: align})
	}

	return h
}

// IsNumber returns true for numeric values.
func IsNumber(v any) bool {
	switch v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64, json.Number:
		return true
	default:
		return false
	}
}

// Cell renders field key of r. The boolean is false when the field is absent.
func Cell(r datasource.Record, key string) (string, bool) {
	v, ok := r[key]
	if !ok {
		return MissingValue, false
	}
	return Truncate(Value(v), MaxCellWidth), true
}

// Value renders a field value as text.
func Value(v any) string {
	switch t := v.(type) {
	case nil:
		return NullValue
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return formatFloat(t)
	case float32:
		return formatFloat(float64(t))
	case time.Time:
		return t.UTC().Format(time.RFC3339)
	case fmt.Stringer:
		return t.String()
	case map[string]any, []any:
		raw, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprintf("%v", t)
		}
		return string(raw)
	default:
		return fmt.Sprintf("%v", t)
	}
}

func formatFloat(f float64) string {
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// ParseValue converts edited text back into a field value. Numbers, booleans,
// null and JSON documents are decoded; anything else stays a string. The
// current value steers the conversion so a string field stays a string.
func ParseValue(text string, current any) any {
	if _, ok := current.(string); ok {
		return text
	}

	s := strings.TrimSpace(text)
	switch s {
	case "":
		return text
	case NullValue, "null":
		return nil
	case "true":
		return true
	case "false":
		return false
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	if strings.HasPrefix(s, "{") || strings.HasPrefix(s, "[") {
		var v any
		if err := json.Unmarshal([]byte(s), &v); err == nil {
			return v
		}
	}

	return text
}

// Truncate truncates a string to max runes.
func Truncate(s string, max int) string {
	rr := []rune(s)
	if len(rr) <= max {
		return s
	}
	if max <= 1 {
		return string(rr[:max])
	}
	return string(rr[:max-1]) + "…"
}
