// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of a1s

// Package render turns records into grid columns and cell text.
package render

import "github.com/derailed/tcell/v2"

const (
	// MissingValue is shown for absent fields.
	MissingValue = "<none>"
	// NullValue is shown for explicit nulls.
	NullValue = "<null>"

	// IDColumn is always the leading column.
	IDColumn = "id"

	// MaxCellWidth caps the width of rendered cells.
	MaxCellWidth = 64
)

var (
	// ModColor cell modified color
	ModColor tcell.Color = tcell.ColorYellow

	// AddColor row added color
	AddColor tcell.Color = tcell.ColorBlue

	// ErrColor error color
	ErrColor tcell.Color = tcell.ColorRed

	// StdColor row default color
	StdColor tcell.Color = tcell.ColorWhite

	// HeaderColor header row color
	HeaderColor tcell.Color = tcell.ColorYellow

	// MissingColor color of absent fields
	MissingColor tcell.Color = tcell.ColorGray
)
