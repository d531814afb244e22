// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of a1s

package view

import (
	"encoding/json"
	"fmt"

	"github.com/a1s/gridsource/internal/datasource"
	"github.com/a1s/gridsource/internal/ui"
	"github.com/derailed/tcell/v2"
	"github.com/derailed/tview"
	"gopkg.in/yaml.v3"
)

const describeTitleFmt = " %s [%s] "

// Describe displays one record in full.
type Describe struct {
	*tview.TextView

	record  datasource.Record
	format  string
	actions *ui.KeyActions
	backFn  func()
	wrapOn  bool
}

// NewDescribe creates a detail view of r.
func NewDescribe(r datasource.Record) *Describe {
	d := &Describe{
		TextView: tview.NewTextView(),
		record:   r,
		format:   "yaml",
		actions:  ui.NewKeyActions(),
	}

	d.SetDynamicColors(false)
	d.SetWrap(false)
	d.SetScrollable(true)
	d.SetBorder(true)
	d.SetBorderPadding(0, 0, 1, 1)
	d.SetBorderColor(tcell.ColorAqua)
	d.bindKeys()
	d.SetInputCapture(d.actions.Handle)
	d.Refresh()

	return d
}

// Hints returns the menu hints for this view.
func (d *Describe) Hints() ui.MenuHints {
	return d.actions.Hints()
}

// SetBackFn sets the callback for back navigation.
func (d *Describe) SetBackFn(fn func()) {
	d.backFn = fn
}

// Format returns the current output format.
func (d *Describe) Format() string {
	return d.format
}

// Refresh renders the record in the current format.
func (d *Describe) Refresh() {
	id, _ := d.record.ID()
	d.SetTitle(fmt.Sprintf(describeTitleFmt, id, d.format))

	out, err := d.render()
	if err != nil {
		d.SetText(fmt.Sprintf("Failed to render record: %v", err))
		return
	}
	d.SetText(out)
	d.ScrollToBeginning()
}

func (d *Describe) render() (string, error) {
	if d.format == "json" {
		raw, err := json.MarshalIndent(d.record, "", "  ")
		return string(raw), err
	}
	raw, err := yaml.Marshal(map[string]any(d.record))
	return string(raw), err
}

func (d *Describe) bindKeys() {
	d.actions.Bulk(ui.KeyMap{
		tcell.Key('y'): ui.NewKeyAction("YAML", d.formatCmd("yaml"), true),
		tcell.Key('J'): ui.NewKeyAction("JSON", d.formatCmd("json"), true),
		tcell.Key('w'): ui.NewKeyAction("Wrap", d.toggleWrap, true),
		tcell.KeyEsc:   ui.NewKeyAction("Back", d.back, true),
		tcell.Key('q'): ui.NewKeyAction("Back", d.back, false),
	})
}

func (d *Describe) formatCmd(format string) ui.ActionHandler {
	return func(*tcell.EventKey) *tcell.EventKey {
		d.format = format
		d.Refresh()
		return nil
	}
}

// toggleWrap toggles word wrap on/off.
func (d *Describe) toggleWrap(*tcell.EventKey) *tcell.EventKey {
	d.wrapOn = !d.wrapOn
	d.SetWrap(d.wrapOn)
	return nil
}

func (d *Describe) back(*tcell.EventKey) *tcell.EventKey {
	if d.backFn != nil {
		d.backFn()
	}
	return nil
}
