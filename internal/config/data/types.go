// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of a1s

package data

// Flags represents CLI command-line flags. A nil field was not given.
type Flags struct {
	ConfigFile  *string
	Table       *string
	Key         *string
	PageSize    *int
	RefreshRate *float32 // seconds
	RangePolicy *string
	ReadOnly    *bool
	Write       *bool
	LogLevel    *string
	LogFile     *string
	Profile     *string
	Region      *string
}

// NewFlags creates a new Flags instance with all pointer fields initialized.
func NewFlags() *Flags {
	return &Flags{
		ConfigFile:  new(string),
		Table:       new(string),
		Key:         new(string),
		PageSize:    new(int),
		RefreshRate: new(float32),
		RangePolicy: new(string),
		ReadOnly:    new(bool),
		Write:       new(bool),
		LogLevel:    new(string),
		LogFile:     new(string),
		Profile:     new(string),
		Region:      new(string),
	}
}
