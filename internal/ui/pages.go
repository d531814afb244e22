// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of a1s

package ui

import (
	"github.com/derailed/tview"
)

// Pages stacks the main view and its modal overlays.
type Pages struct {
	*tview.Pages
	stack []string
}

// NewPages returns a new pages manager.
func NewPages() *Pages {
	return &Pages{
		Pages: tview.NewPages(),
		stack: make([]string, 0),
	}
}

// Push adds a new page on top of the others.
func (p *Pages) Push(name string, page tview.Primitive, resize bool) {
	p.stack = append(p.stack, name)
	p.AddPage(name, page, resize, true)
}

// Pop removes the top page.
func (p *Pages) Pop() (string, bool) {
	if len(p.stack) == 0 {
		return "", false
	}

	name := p.stack[len(p.stack)-1]
	p.stack = p.stack[:len(p.stack)-1]
	p.RemovePage(name)

	return name, true
}

// Current returns the top page name.
func (p *Pages) Current() string {
	if len(p.stack) == 0 {
		return ""
	}
	return p.stack[len(p.stack)-1]
}

// StackSize returns the stack depth.
func (p *Pages) StackSize() int {
	return len(p.stack)
}

// Remove removes the named page wherever it sits in the stack.
func (p *Pages) Remove(name string) {
	for i, n := range p.stack {
		if n == name {
			p.stack = append(p.stack[:i], p.stack[i+1:]...)
			p.RemovePage(name)
			return
		}
	}
}
