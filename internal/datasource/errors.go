// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of a1s

package datasource

import (
	"errors"
	"fmt"
)

// Common errors returned by data sources.
var (
	// ErrRange is matched by every RangeError.
	ErrRange = errors.New("range out of bounds")

	// ErrNotFound is matched by every NotFoundError.
	ErrNotFound = errors.New("record not found")

	// ErrUnsupported is matched by every UnsupportedOperationError.
	ErrUnsupported = errors.New("unsupported operation")

	// ErrNotReady is returned by mutations issued before the source is ready.
	ErrNotReady = errors.New("data source is not ready")

	// ErrMissingID is returned when a record carries no usable id.
	ErrMissingID = errors.New("record has no id")

	// ErrDuplicateID is returned when two records share an id.
	ErrDuplicateID = errors.New("duplicate record id")

	// ErrImmutableID is returned when SetValue targets the id field.
	ErrImmutableID = errors.New("record id cannot be changed")
)

// RangeError reports an out of bounds retrieval.
type RangeError struct {
	Start int
	End   int
	Count int
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("range [%d,%d) out of bounds for %d records", e.Start, e.End, e.Count)
}

// Is matches ErrRange.
func (e *RangeError) Is(target error) bool {
	return target == ErrRange
}

// NotFoundError reports an id unknown to the source.
type NotFoundError struct {
	ID ID
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("record %q not found", e.ID.String())
}

// Is matches ErrNotFound.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// UnsupportedOperationError reports a call to a capability the source lacks.
type UnsupportedOperationError struct {
	Op string
}

func (e *UnsupportedOperationError) Error() string {
	return fmt.Sprintf("data source does not support %s", e.Op)
}

// Is matches ErrUnsupported.
func (e *UnsupportedOperationError) Is(target error) bool {
	return target == ErrUnsupported
}

// IsNotFound returns true if err reports an unknown id.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsRange returns true if err reports an out of bounds range.
func IsRange(err error) bool {
	return errors.Is(err, ErrRange)
}

// IsUnsupported returns true if err reports a missing capability.
func IsUnsupported(err error) bool {
	return errors.Is(err, ErrUnsupported)
}
