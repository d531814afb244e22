// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of a1s

package config

import (
	"github.com/a1s/gridsource/internal/config/data"
)

// NewFlags creates a new Flags instance with default values set.
func NewFlags() *data.Flags {
	f := data.NewFlags()
	*f.PageSize = DefaultPageSize
	*f.RefreshRate = DefaultRefreshRate
	*f.RangePolicy = DefaultRangePolicy
	*f.LogLevel = DefaultLogLevel

	return f
}

// IsBoolSet returns true if a bool pointer is non-nil and true.
func IsBoolSet(b *bool) bool {
	return b != nil && *b
}

// IsStringSet returns true if a string pointer is non-nil and non-empty.
func IsStringSet(s *string) bool {
	return s != nil && *s != ""
}
