// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of a1s

package ui

import (
	"fmt"

	"github.com/derailed/tcell/v2"
	"github.com/derailed/tview"
)

const editorTitleFmt = " Edit %s of %s "

// Editor is a one line input collecting a new cell value.
type Editor struct {
	*tview.InputField

	submitFn func(string)
	cancelFn func()
}

// NewEditor returns an editor for field key of the record labelled id,
// prefilled with current.
func NewEditor(id, key, current string) *Editor {
	e := &Editor{InputField: tview.NewInputField()}
	e.SetBorder(true)
	e.SetTitle(fmt.Sprintf(editorTitleFmt, key, id))
	e.SetLabel(key + ": ")
	e.SetText(current)
	e.SetFieldBackgroundColor(tcell.ColorDefault)
	e.SetBackgroundColor(tcell.ColorDefault)
	e.SetDoneFunc(e.done)

	return e
}

// SetSubmitFn sets the callback receiving the edited text.
func (e *Editor) SetSubmitFn(fn func(string)) {
	e.submitFn = fn
}

// SetCancelFn sets the callback run when editing is abandoned.
func (e *Editor) SetCancelFn(fn func()) {
	e.cancelFn = fn
}

func (e *Editor) done(key tcell.Key) {
	switch key {
	case tcell.KeyEnter:
		if e.submitFn != nil {
			e.submitFn(e.GetText())
		}
	case tcell.KeyEsc:
		if e.cancelFn != nil {
			e.cancelFn()
		}
	}
}

// Centered wraps p in a box of the given width and height centered on the
// screen.
func Centered(p tview.Primitive, width, height int) tview.Primitive {
	return tview.NewFlex().
		AddItem(nil, 0, 1, false).
		AddItem(tview.NewFlex().SetDirection(tview.FlexRow).
			AddItem(nil, 0, 1, false).
			AddItem(p, height, 1, true).
			AddItem(nil, 0, 1, false), width, 1, true).
		AddItem(nil, 0, 1, false)
}
