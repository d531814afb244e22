// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of a1s

package view

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/a1s/gridsource/internal/datasource"
	"github.com/a1s/gridsource/internal/memory"
	"github.com/a1s/gridsource/internal/ui"
	"github.com/derailed/tcell/v2"
)

func newApp(t *testing.T) (*App, *memory.Source) {
	t.Helper()

	ctx := context.Background()
	s := memory.New()
	if err := s.Open(ctx); err != nil {
		t.Fatalf("Failed to open source: %v", err)
	}
	if err := s.Load(ctx, []datasource.Record{{"id": 1, "name": "red"}, {"id": 2, "name": "blue"}}); err != nil {
		t.Fatalf("Failed to load records: %v", err)
	}

	a := NewApp("colors", s, AppOptions{Watch: true})
	if err := a.Init(ctx); err != nil {
		t.Fatalf("Failed to init app: %v", err)
	}
	t.Cleanup(a.Stop)

	return a, s
}

func TestAppInit(t *testing.T) {
	a, _ := newApp(t)

	if n := a.Grid().GetRowCount(); n != 3 {
		t.Fatalf("Expected 3 rows but got %d", n)
	}
	if p := a.Pages().Current(); p != mainPage {
		t.Fatalf("Expected the main page but got %q", p)
	}
	if a.IsRunning() {
		t.Fatal("Expected the app to be idle")
	}
}

func TestAppDescribe(t *testing.T) {
	a, _ := newApp(t)

	a.Grid().Select(2, 1)
	a.describe(nil)
	if p := a.Pages().Current(); p != describePage {
		t.Fatalf("Expected the describe page but got %q", p)
	}

	_, front := a.Pages().GetFrontPage()
	d, ok := front.(*Describe)
	if !ok {
		t.Fatalf("Expected a describe view but got %T", front)
	}
	if txt := d.GetText(true); !strings.Contains(txt, "name: blue") {
		t.Fatalf("Expected a yaml record but got %q", txt)
	}

	d.actions.Handle(tcell.NewEventKey(tcell.KeyRune, 'J', tcell.ModNone))
	if txt := d.GetText(true); d.Format() != "json" || !strings.Contains(txt, `"name": "blue"`) {
		t.Fatalf("Expected a json record but got %q", txt)
	}

	d.actions.Handle(tcell.NewEventKey(tcell.KeyEsc, 0, tcell.ModNone))
	if p := a.Pages().Current(); p != mainPage {
		t.Fatalf("Expected the main page but got %q", p)
	}
}

func TestAppEdit(t *testing.T) {
	a, s := newApp(t)

	a.edit(datasource.IntID(1), "name", "red")
	if p := a.Pages().Current(); p != editorPage {
		t.Fatalf("Expected the editor page but got %q", p)
	}
	if evt := a.keyboard(tcell.NewEventKey(tcell.KeyRune, 'q', tcell.ModNone)); evt == nil {
		t.Fatal("Expected keys to reach the editor")
	}
	a.closePage(editorPage)()
	if p := a.Pages().Current(); p != mainPage {
		t.Fatalf("Expected the main page but got %q", p)
	}

	if err := a.Grid().SetValue(context.Background(), datasource.IntID(1), "name", "pink"); err != nil {
		t.Fatalf("Failed to set value: %v", err)
	}
	r, err := s.GetRecordByID(datasource.IntID(1))
	if err != nil {
		t.Fatalf("Failed to get record: %v", err)
	}
	if r["name"] != "pink" {
		t.Fatalf("Expected pink but got %v", r["name"])
	}
	if txt := a.Grid().GetCell(1, 1).Text; txt != "pink" {
		t.Fatalf("Expected the grid to show pink but got %q", txt)
	}
}

func TestAppFailureDialog(t *testing.T) {
	a, s := newApp(t)

	s.ReportFailure(errors.New("backend down"))
	if p := a.Pages().Current(); p != ui.ErrorDialogID {
		t.Fatalf("Expected the error dialog but got %q", p)
	}
	if txt := a.Flash().GetText(true); !strings.Contains(txt, "backend down") {
		t.Fatalf("Expected the failure to be flashed but got %q", txt)
	}

	_, p := a.Pages().GetFrontPage()
	d, ok := p.(*ui.Dialog)
	if !ok {
		t.Fatalf("Expected a dialog but got %T", p)
	}
	d.Dismiss()
	if p := a.Pages().Current(); p != mainPage {
		t.Fatalf("Expected the main page back but got %q", p)
	}
	if a.GetFocus() != a.Grid() {
		t.Fatal("Expected the grid to regain focus")
	}
}

func TestDescribeRecord(t *testing.T) {
	d := NewDescribe(datasource.Record{"id": "a", "tags": []any{"x", "y"}})

	var back bool
	d.SetBackFn(func() { back = true })
	d.actions.Handle(tcell.NewEventKey(tcell.KeyRune, 'q', tcell.ModNone))
	if !back {
		t.Fatal("Expected the back function to run")
	}
	if txt := d.GetText(true); !strings.Contains(txt, "- x") {
		t.Fatalf("Unexpected yaml %q", txt)
	}
	if !strings.Contains(d.GetTitle(), "a") {
		t.Fatalf("Unexpected title %q", d.GetTitle())
	}
}

func TestAppStop(t *testing.T) {
	a, _ := newApp(t)

	done := make(chan struct{})
	go func() {
		a.keyboard(tcell.NewEventKey(tcell.KeyCtrlC, 0, tcell.ModNone))
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Expected stop to return")
	}
	if a.IsRunning() {
		t.Fatal("Expected the app to be stopped")
	}
}
