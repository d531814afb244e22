// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of a1s

package ui

import (
	"github.com/derailed/tcell/v2"
	"github.com/derailed/tview"
)

// ErrorDialogID names the error dialog page.
const ErrorDialogID = "error-dialog"

// Dialog is a modal message stacked over the current page.
type Dialog struct {
	*tview.Modal

	pages  *Pages
	pageID string
	doneFn func()
}

// NewDialog returns a dialog shown as page pageID with the given buttons.
func NewDialog(pages *Pages, pageID, msg string, buttons ...string) *Dialog {
	d := &Dialog{
		Modal:  tview.NewModal(),
		pages:  pages,
		pageID: pageID,
	}
	d.SetText(msg)
	d.AddButtons(buttons)
	d.SetBackgroundColor(tcell.ColorDefault)
	d.SetDoneFunc(func(int, string) { d.Dismiss() })

	return d
}

// SetDoneFn sets the function run once the dialog is dismissed.
func (d *Dialog) SetDoneFn(fn func()) *Dialog {
	d.doneFn = fn
	return d
}

// Show stacks the dialog, replacing an earlier copy still on screen.
func (d *Dialog) Show() {
	d.pages.Remove(d.pageID)
	d.pages.Push(d.pageID, d, true)
}

// Dismiss removes the dialog.
func (d *Dialog) Dismiss() {
	d.pages.Remove(d.pageID)
	if d.doneFn != nil {
		d.doneFn()
	}
}

// ErrorDialog returns a dialog reporting a backend failure.
func ErrorDialog(pages *Pages, msg string) *Dialog {
	d := NewDialog(pages, ErrorDialogID, msg, "OK")
	d.SetTextColor(tcell.ColorRed)
	d.SetButtonBackgroundColor(tcell.ColorRed)
	d.SetButtonTextColor(tcell.ColorWhite)

	return d
}
