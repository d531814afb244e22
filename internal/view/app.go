// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of a1s

// Package view assembles the terminal application around a data source grid.
package view

import (
	"context"
	"sync"

	"github.com/a1s/gridsource/internal/datasource"
	"github.com/a1s/gridsource/internal/logger"
	"github.com/a1s/gridsource/internal/ui"
	"github.com/derailed/tcell/v2"
	"github.com/derailed/tview"
	"go.uber.org/zap"
)

const (
	mainPage     = "main"
	editorPage   = "editor"
	describePage = "describe"

	editorWidth = 64
)

// AppOptions tunes the application.
type AppOptions struct {
	// Watch follows backend changes when the source supports it.
	Watch bool
}

// App represents the main application container.
type App struct {
	*tview.Application

	name    string
	src     datasource.DataSource
	opts    AppOptions
	pages   *ui.Pages
	grid    *ui.Grid
	flash   *ui.Flash
	menu    *ui.Menu
	ctx     context.Context
	cancel  context.CancelFunc
	running bool
	mx      sync.RWMutex
}

// NewApp creates a new application showing src.
func NewApp(name string, src datasource.DataSource, opts AppOptions) *App {
	return &App{
		Application: tview.NewApplication(),
		name:        name,
		src:         src,
		opts:        opts,
		pages:       ui.NewPages(),
		menu:        ui.NewMenu(),
	}
}

// Init builds the application layout and starts following the source.
func (a *App) Init(ctx context.Context) error {
	a.ctx, a.cancel = context.WithCancel(ctx)
	ctx = a.ctx

	a.flash = ui.NewFlash(a.queue)
	a.grid = ui.NewGrid(ctx, a.name, a.src, a.queue)
	a.grid.SetEditFn(a.edit)
	a.grid.SetErrorFn(a.flash.Err)
	a.grid.SetFailureFn(a.fail)
	a.grid.Actions().Add(tcell.Key('d'), ui.NewKeyAction("Describe", a.describe, true))
	a.grid.Init()

	a.pages.Push(mainPage, a.buildLayout(), true)
	a.SetRoot(a.pages, true)
	a.SetFocus(a.grid)
	a.menu.HydrateMenu(a.grid.Hints())
	a.Application.SetInputCapture(a.keyboard)

	if a.opts.Watch {
		if w, ok := a.src.(datasource.Watcher); ok {
			if err := w.Watch(ctx); err != nil {
				logger.Warn("Cannot watch data source", zap.String("source", a.name), zap.Error(err))
				a.fail(err)
			}
		}
	}

	return nil
}

// Run starts the application.
func (a *App) Run() error {
	a.mx.Lock()
	a.running = true
	a.mx.Unlock()

	return a.Application.Run()
}

// Stop stops the application.
func (a *App) Stop() {
	a.mx.Lock()
	defer a.mx.Unlock()

	a.running = false
	if a.cancel != nil {
		a.cancel()
	}
	if a.grid != nil {
		a.grid.Close()
	}
	a.Application.Stop()
}

// IsRunning returns whether the application is currently running.
func (a *App) IsRunning() bool {
	a.mx.RLock()
	defer a.mx.RUnlock()

	return a.running
}

// Grid returns the record grid.
func (a *App) Grid() *ui.Grid {
	return a.grid
}

// Flash returns the flash message handler.
func (a *App) Flash() *ui.Flash {
	return a.flash
}

// Pages returns the page stack.
func (a *App) Pages() *ui.Pages {
	return a.pages
}

// queue runs f on the UI goroutine once the application loop runs.
func (a *App) queue(f func()) {
	if !a.IsRunning() {
		f()
		return
	}
	go a.Application.QueueUpdateDraw(f)
}

// buildLayout creates the main UI layout.
func (a *App) buildLayout() *tview.Flex {
	return tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(a.grid, 0, 1, true).
		AddItem(a.flash, 1, 0, false).
		AddItem(a.menu, 1, 0, false)
}

// keyboard handles global keyboard events.
func (a *App) keyboard(evt *tcell.EventKey) *tcell.EventKey {
	if a.pages.Current() != mainPage {
		return evt
	}

	switch evt.Key() {
	case tcell.KeyCtrlC:
		a.Stop()
		return nil
	case tcell.KeyRune:
		if evt.Rune() == 'q' {
			a.Stop()
			return nil
		}
	}

	return evt
}

func (a *App) edit(id datasource.ID, key, current string) {
	e := ui.NewEditor(id.String(), key, current)
	e.SetCancelFn(a.closePage(editorPage))
	e.SetSubmitFn(func(text string) {
		a.closePage(editorPage)()
		go func() {
			if err := a.grid.SetValue(a.ctx, id, key, text); err != nil {
				logger.Warn("Edit failed", zap.String("id", id.String()), zap.String("key", key), zap.Error(err))
				a.flash.Err(err)
				return
			}
			a.flash.Infof("Updated %s of %s", key, id)
		}()
	})

	a.pages.Push(editorPage, ui.Centered(e, editorWidth, 3), true)
	a.SetFocus(e)
}

func (a *App) describe(*tcell.EventKey) *tcell.EventKey {
	r, _, ok := a.grid.Selected()
	if !ok {
		return nil
	}

	d := NewDescribe(r)
	d.SetBackFn(a.closePage(describePage))
	a.pages.Push(describePage, d, true)
	a.menu.HydrateMenu(d.Hints())
	a.SetFocus(d)

	return nil
}

// fail reports a backend failure in a dialog held until acknowledged.
func (a *App) fail(err error) {
	a.flash.Err(err)
	a.queue(func() {
		d := ui.ErrorDialog(a.pages, err.Error())
		d.SetDoneFn(func() {
			a.menu.HydrateMenu(a.grid.Hints())
			a.SetFocus(a.grid)
		})
		d.Show()
		a.SetFocus(d)
	})
}

func (a *App) closePage(name string) func() {
	return func() {
		a.pages.Remove(name)
		a.menu.HydrateMenu(a.grid.Hints())
		a.SetFocus(a.grid)
	}
}
