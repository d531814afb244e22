// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of a1s

package datasource

import "context"

// DataSource provides records to a grid.
//
// Retrieval methods block until the records are available; sources backed by
// I/O honour ctx for cancellation. GetRecordByID never performs I/O and only
// resolves records the source already holds.
type DataSource interface {
	// IsReady returns true once the source has emitted its ready event.
	IsReady() bool

	// RecordCount returns the number of records, consistent with the last
	// structural event emitted.
	RecordCount(ctx context.Context) (int, error)

	// GetData returns all records in their current order.
	GetData(ctx context.Context) ([]Record, error)

	// GetRange returns the records at positions [start, end).
	// Out of bounds handling follows RangePolicy.
	GetRange(ctx context.Context, start, end int) ([]Record, error)

	// GetRecordByID returns a previously observed record.
	// Returns a NotFoundError if the id is unknown.
	GetRecordByID(id ID) (Record, error)

	// RangePolicy declares how GetRange treats out of bounds requests.
	RangePolicy() RangePolicy

	// Subscribe registers a listener and returns a function removing it.
	Subscribe(Listener) (unsubscribe func())
}

// ValueSetter is implemented by editable sources.
type ValueSetter interface {
	// SetValue updates field key of record id. A successful call emits a
	// datachanged event referencing id and key before returning.
	SetValue(ctx context.Context, id ID, key string, value any) error
}

// Sorter is implemented by sources able to reorder their records.
type Sorter interface {
	// Sort reorders the records then emits dataloaded.
	// A nil comparator is derived from order.
	Sort(ctx context.Context, cmp Comparator, order Order) error
}

// CapabilityReporter is implemented by sources whose optional capabilities
// depend on runtime configuration.
type CapabilityReporter interface {
	Capabilities() Capability
}

// Refresher is implemented by sources able to re-read their backend on demand.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// Watcher is implemented by sources able to follow backend changes.
type Watcher interface {
	Watch(ctx context.Context) error
}

// Capabilities returns the optional capabilities ds supports.
func Capabilities(ds DataSource) Capability {
	var c Capability
	if _, ok := ds.(ValueSetter); ok {
		c |= CapSetValue
	}
	if _, ok := ds.(Sorter); ok {
		c |= CapSort
	}
	if r, ok := ds.(CapabilityReporter); ok {
		c &= r.Capabilities()
	}
	return c
}

// Supports returns true if ds offers every capability in c.
func Supports(ds DataSource, c Capability) bool {
	return Capabilities(ds).Has(c)
}

// SetValue updates a field of ds, failing with an UnsupportedOperationError
// when ds is read-only.
func SetValue(ctx context.Context, ds DataSource, id ID, key string, value any) error {
	if !Supports(ds, CapSetValue) {
		return &UnsupportedOperationError{Op: "setValue"}
	}
	return ds.(ValueSetter).SetValue(ctx, id, key, value)
}

// Sort reorders ds, failing with an UnsupportedOperationError when ds cannot
// be sorted.
func Sort(ctx context.Context, ds DataSource, cmp Comparator, order Order) error {
	if !Supports(ds, CapSort) {
		return &UnsupportedOperationError{Op: "sort"}
	}
	return ds.(Sorter).Sort(ctx, cmp, order)
}
