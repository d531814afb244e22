// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of a1s

package ui

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/derailed/tcell/v2"
	"github.com/derailed/tview"
)

const (
	menuIndexFmt = " [yellow::b]<%d>[white::-] %s "
	menuPlainFmt = " [yellow::b]<%s>[white::-] %s "
)

// Menu presents the key hints of the focused component on one line.
type Menu struct {
	*tview.Table
}

// NewMenu returns a new menu.
func NewMenu() *Menu {
	m := &Menu{
		Table: tview.NewTable(),
	}
	m.SetBackgroundColor(tcell.ColorDefault)
	m.SetBorderPadding(0, 0, 1, 1)

	return m
}

// HydrateMenu populate menu ui from hints.
func (m *Menu) HydrateMenu(hh MenuHints) {
	m.Clear()
	sort.Sort(hh)

	var col int
	for _, h := range hh {
		if !h.Visible || h.IsBlank() {
			continue
		}
		c := tview.NewTableCell(formatMenu(h))
		c.SetBackgroundColor(tcell.ColorDefault)
		m.SetCell(0, col, c)
		col++
	}
}

func formatMenu(h MenuHint) string {
	if h.Mnemonic == "" || h.Description == "" {
		return ""
	}

	i, err := strconv.Atoi(h.Mnemonic)
	if err == nil {
		return fmt.Sprintf(menuIndexFmt, i, h.Description)
	}

	return fmt.Sprintf(menuPlainFmt, h.Mnemonic, h.Description)
}
