// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of a1s

// Package ui holds the terminal widgets rendering a data source.
package ui

import (
	"maps"
	"slices"
	"strconv"

	"github.com/derailed/tcell/v2"
)

// QueueFunc runs f on the UI goroutine.
type QueueFunc func(f func())

// Inline runs f right away. Used when no application loop is running.
func Inline(f func()) { f() }

// MenuHint represents a keyboard mnemonic.
type MenuHint struct {
	Mnemonic    string
	Description string
	Visible     bool
}

// IsBlank checks if menu hint is a placeholder.
func (m MenuHint) IsBlank() bool {
	return m.Mnemonic == "" && m.Description == "" && !m.Visible
}

// MenuHints represents a collection of hints.
type MenuHints []MenuHint

// Len returns the hints length.
func (h MenuHints) Len() int {
	return len(h)
}

// Swap swaps two elements.
func (h MenuHints) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
}

// Less returns true if first hint is less than second.
func (h MenuHints) Less(i, j int) bool {
	n, err1 := strconv.Atoi(h[i].Mnemonic)
	m, err2 := strconv.Atoi(h[j].Mnemonic)
	if err1 == nil && err2 == nil {
		return n < m
	}
	if err1 == nil && err2 != nil {
		return true
	}
	if err1 != nil && err2 == nil {
		return false
	}
	return h[i].Description < h[j].Description
}

// Hinter represent a menu mnemonic provider.
type Hinter interface {
	// Hints returns a collection of menu hints.
	Hints() MenuHints
}

// ActionHandler handles a keyboard event.
type ActionHandler func(*tcell.EventKey) *tcell.EventKey

// KeyAction represents a keyboard action.
type KeyAction struct {
	Description string
	Action      ActionHandler
	Visible     bool
}

// NewKeyAction returns a new keyboard action.
func NewKeyAction(d string, a ActionHandler, display bool) KeyAction {
	return KeyAction{Description: d, Action: a, Visible: display}
}

// KeyMap binds keys to actions. Runes are stored as tcell.Key(rune).
type KeyMap map[tcell.Key]KeyAction

// KeyActions tracks the actions of a component.
type KeyActions struct {
	actions KeyMap
}

// NewKeyActions returns an empty action set.
func NewKeyActions() *KeyActions {
	return &KeyActions{actions: make(KeyMap)}
}

// Add binds an action.
func (a *KeyActions) Add(k tcell.Key, ka KeyAction) {
	a.actions[k] = ka
}

// Bulk binds several actions.
func (a *KeyActions) Bulk(km KeyMap) {
	maps.Copy(a.actions, km)
}

// Delete unbinds keys.
func (a *KeyActions) Delete(kk ...tcell.Key) {
	for _, k := range kk {
		delete(a.actions, k)
	}
}

// Get returns the action bound to k.
func (a *KeyActions) Get(k tcell.Key) (KeyAction, bool) {
	ka, ok := a.actions[k]
	return ka, ok
}

// Hints returns the visible actions as menu hints.
func (a *KeyActions) Hints() MenuHints {
	kk := slices.Sorted(maps.Keys(a.actions))
	hh := make(MenuHints, 0, len(kk))
	for _, k := range kk {
		ka := a.actions[k]
		hh = append(hh, MenuHint{
			Mnemonic:    keyName(k),
			Description: ka.Description,
			Visible:     ka.Visible,
		})
	}
	return hh
}

// Handle dispatches evt to its bound action. Unbound events are returned.
func (a *KeyActions) Handle(evt *tcell.EventKey) *tcell.EventKey {
	k := evt.Key()
	if k == tcell.KeyRune {
		k = tcell.Key(evt.Rune())
	}
	if ka, ok := a.actions[k]; ok {
		return ka.Action(evt)
	}
	return evt
}

func keyName(k tcell.Key) string {
	if name, ok := tcell.KeyNames[k]; ok {
		return name
	}
	return string(rune(k))
}
