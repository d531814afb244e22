// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of a1s

package ui

import (
	"context"
	"fmt"
	"sync"

	"github.com/a1s/gridsource/internal/datasource"
	"github.com/a1s/gridsource/internal/logger"
	"github.com/a1s/gridsource/internal/render"
	"github.com/derailed/tcell/v2"
	"github.com/derailed/tview"
	"go.uber.org/zap"
)

const (
	gridTitleFmt   = " <%s>[%d] "
	sortedTitleFmt = " <%s>[%d] sorted by %s "
)

// EditFunc is asked to collect a new value for a cell.
type EditFunc func(id datasource.ID, key, current string)

// ErrorFunc reports a failed grid operation.
type ErrorFunc func(error)

// Grid renders a data source in a table. The rows follow the source events
// through a mirror; table row i+1 shows mirror row i.
type Grid struct {
	*tview.Table

	ctx     context.Context
	name    string
	src     datasource.DataSource
	mirror  *datasource.Mirror
	queue   QueueFunc
	actions *KeyActions
	header  render.Header
	order   datasource.Order
	editFn  EditFunc
	errFn   ErrorFunc
	failFn  ErrorFunc
	unsub   func()

	// placeholder is set while row 1 shows a message instead of a record.
	placeholder bool

	pending   []func()
	pendingMx sync.Mutex
	mx        sync.RWMutex
}

// NewGrid returns a grid over src. Table updates are run through queue.
func NewGrid(ctx context.Context, name string, src datasource.DataSource, queue QueueFunc) *Grid {
	if queue == nil {
		queue = Inline
	}
	return &Grid{
		Table:   tview.NewTable(),
		ctx:     ctx,
		name:    name,
		src:     src,
		mirror:  datasource.NewMirror(ctx, src),
		queue:   queue,
		actions: NewKeyActions(),
		header:  render.Header{{Key: render.IDColumn}},
	}
}

// Init configures the table and starts following the source.
func (g *Grid) Init() {
	g.SetFixed(1, 0)
	g.SetBorder(true)
	g.SetBorderAttributes(tcell.AttrBold)
	g.SetBorderPadding(0, 0, 1, 1)
	g.SetSelectable(true, true)
	g.SetBackgroundColor(tcell.ColorDefault)
	g.SetBorderColor(tcell.ColorWhite)
	g.SetInputCapture(g.keyboard)
	g.bindKeys()
	g.showNoData("Loading...")
	g.updateTitle()

	g.mirror.SetHook(g.apply)
	g.unsub = g.src.Subscribe(failureReporter{g: g})
	g.mirror.Attach()
	if g.src.IsReady() {
		rr := g.mirror.Records()
		g.post(func() { g.rebuild(rr) })
	}
}

// Close stops following the source.
func (g *Grid) Close() {
	g.mirror.Detach()
	if g.unsub != nil {
		g.unsub()
	}
}

// SetEditFn sets the function collecting cell edits.
func (g *Grid) SetEditFn(f EditFunc) {
	g.mx.Lock()
	defer g.mx.Unlock()
	g.editFn = f
}

// SetErrorFn sets the function reporting failures.
func (g *Grid) SetErrorFn(f ErrorFunc) {
	g.mx.Lock()
	defer g.mx.Unlock()
	g.errFn = f
}

// SetFailureFn sets the function reporting backend failures. Failures go
// to the error function when unset.
func (g *Grid) SetFailureFn(f ErrorFunc) {
	g.mx.Lock()
	defer g.mx.Unlock()
	g.failFn = f
}

// Actions returns the key actions.
func (g *Grid) Actions() *KeyActions {
	return g.actions
}

// Hints returns menu hints for key bindings.
func (g *Grid) Hints() MenuHints {
	return g.actions.Hints()
}

// Mirror returns the records currently shown.
func (g *Grid) Mirror() *datasource.Mirror {
	return g.mirror
}

// Header returns the displayed columns.
func (g *Grid) Header() render.Header {
	g.mx.RLock()
	defer g.mx.RUnlock()
	return g.header
}

// Order returns the sort order applied through the grid.
func (g *Grid) Order() datasource.Order {
	g.mx.RLock()
	defer g.mx.RUnlock()
	return g.order
}

// Selected returns the record and column key under the cursor.
func (g *Grid) Selected() (datasource.Record, string, bool) {
	row, col := g.GetSelection()
	h := g.Header()
	if row < 1 || col < 0 || col >= len(h) {
		return nil, "", false
	}
	r, ok := g.mirror.Row(row - 1)
	if !ok {
		return nil, "", false
	}

	return r, h[col].Key, true
}

// SortBy sorts the source by key, flipping the direction when key already
// leads the order.
func (g *Grid) SortBy(ctx context.Context, key string) error {
	g.mx.Lock()
	prev := g.order
	g.order = prev.Toggle(key)
	order := g.order
	g.mx.Unlock()

	if err := datasource.Sort(ctx, g.src, nil, order); err != nil {
		g.mx.Lock()
		g.order = prev
		g.mx.Unlock()
		return err
	}

	return nil
}

// SetValue parses text and stores it in field key of record id.
func (g *Grid) SetValue(ctx context.Context, id datasource.ID, key, text string) error {
	var current any
	if i, ok := g.mirror.IndexOf(id); ok {
		if r, ok := g.mirror.Row(i); ok {
			current = r[key]
		}
	}

	return datasource.SetValue(ctx, g.src, id, key, render.ParseValue(text, current))
}

// Refresh re-reads the source backend when it supports it.
func (g *Grid) Refresh(ctx context.Context) error {
	r, ok := g.src.(datasource.Refresher)
	if !ok {
		return &datasource.UnsupportedOperationError{Op: "refresh"}
	}
	return r.Refresh(ctx)
}

func (g *Grid) bindKeys() {
	g.actions.Bulk(KeyMap{
		tcell.Key('s'):  NewKeyAction("Sort", g.sortHandler, true),
		tcell.Key('e'):  NewKeyAction("Edit", g.editHandler, true),
		tcell.KeyEnter: NewKeyAction("Edit", g.editHandler, false),
		tcell.Key('r'):  NewKeyAction("Refresh", g.refreshHandler, true),
		tcell.KeyCtrlR: NewKeyAction("Refresh", g.refreshHandler, false),
	})
}

// keyboard handles table keyboard input.
func (g *Grid) keyboard(evt *tcell.EventKey) *tcell.EventKey {
	row, col := g.GetSelection()
	rowCount := g.GetRowCount()

	if evt.Key() == tcell.KeyRune {
		switch evt.Rune() {
		case 'j':
			if row < rowCount-1 {
				g.Select(row+1, col)
			}
			return nil
		case 'k':
			if row > 1 {
				g.Select(row-1, col)
			}
			return nil
		case 'g':
			if rowCount > 1 {
				g.Select(1, col)
			}
			return nil
		case 'G':
			if rowCount > 1 {
				g.Select(rowCount-1, col)
			}
			return nil
		}
	}

	return g.actions.Handle(evt)
}

func (g *Grid) sortHandler(*tcell.EventKey) *tcell.EventKey {
	_, key, ok := g.Selected()
	if !ok {
		return nil
	}
	go g.run("sort", func(ctx context.Context) error { return g.SortBy(ctx, key) })

	return nil
}

func (g *Grid) editHandler(*tcell.EventKey) *tcell.EventKey {
	if !datasource.Supports(g.src, datasource.CapSetValue) {
		g.report(&datasource.UnsupportedOperationError{Op: "setValue"})
		return nil
	}
	r, key, ok := g.Selected()
	if !ok {
		return nil
	}
	id, err := r.ID()
	if err != nil {
		g.report(err)
		return nil
	}
	if key == render.IDColumn {
		g.report(datasource.ErrImmutableID)
		return nil
	}

	g.mx.RLock()
	f := g.editFn
	g.mx.RUnlock()
	if f != nil {
		current := ""
		if v, ok := r[key]; ok {
			current = render.Value(v)
		}
		f(id, key, current)
	}

	return nil
}

func (g *Grid) refreshHandler(*tcell.EventKey) *tcell.EventKey {
	go g.run("refresh", g.Refresh)
	return nil
}

func (g *Grid) run(op string, f func(context.Context) error) {
	if err := f(g.ctx); err != nil {
		logger.Warn("Grid operation failed", zap.String("op", op), zap.String("source", g.name), zap.Error(err))
		g.report(err)
	}
}

func (g *Grid) report(err error) {
	g.mx.RLock()
	f := g.errFn
	g.mx.RUnlock()
	if f != nil {
		f(err)
	}
}

// post queues f behind the table updates already pending, so updates reach
// the table in event order whatever the queue does.
func (g *Grid) post(f func()) {
	g.pendingMx.Lock()
	g.pending = append(g.pending, f)
	first := len(g.pending) == 1
	g.pendingMx.Unlock()

	if first {
		g.queue(g.drain)
	}
}

func (g *Grid) drain() {
	g.pendingMx.Lock()
	ff := g.pending
	g.pending = nil
	g.pendingMx.Unlock()

	for _, f := range ff {
		f()
	}
}

// apply runs after the mirror replayed e and snapshots what the table needs.
func (g *Grid) apply(e datasource.Event) {
	switch e.Kind {
	case datasource.EventReady, datasource.EventDataLoaded:
		rr := g.mirror.Records()
		g.post(func() { g.rebuild(rr) })

	case datasource.EventRowsAdded:
		rr := make([]datasource.Record, 0, e.Range.Len())
		for i := e.Range.Start; i < e.Range.End; i++ {
			if r, ok := g.mirror.Row(i); ok {
				rr = append(rr, r)
			}
		}
		start := e.Range.Start
		g.post(func() { g.insertRows(start, rr) })

	case datasource.EventRowsRemoved:
		r := e.Range
		g.post(func() { g.removeRows(r) })

	case datasource.EventDataChanged:
		if e.Change.Empty() {
			rr := g.mirror.Records()
			g.post(func() { g.rebuild(rr) })
			return
		}
		uu := make([]rowUpdate, 0, len(e.Change.RowIDs()))
		for _, id := range e.Change.RowIDs() {
			i, ok := g.mirror.IndexOf(id)
			if !ok {
				continue
			}
			r, _ := g.mirror.Row(i)
			uu = append(uu, rowUpdate{row: i, record: r, keys: changedKeys(e.Change, id)})
		}
		g.post(func() { g.updateRows(uu) })
	}
}

type rowUpdate struct {
	row    int
	record datasource.Record
	keys   map[string]struct{}
}

// changedKeys returns the keys changed for id. A row only listed in
// c.Rows has no cell detail and yields nil, meaning the whole row.
func changedKeys(c datasource.Change, id datasource.ID) map[string]struct{} {
	kk := make(map[string]struct{})
	for _, v := range c.Values {
		if v.RowID == id {
			kk[v.Key] = struct{}{}
		}
	}
	if len(kk) > 0 {
		return kk
	}
	for _, r := range c.Rows {
		if rid, err := r.ID(); err == nil && rid == id {
			return nil
		}
	}

	return kk
}

func (g *Grid) rebuild(rr []datasource.Record) {
	row, col := g.GetSelection()
	h := render.Columns(rr)
	g.mx.Lock()
	g.header = h
	g.mx.Unlock()

	g.Clear()
	g.placeholder = false
	g.paintHeader()
	for i, r := range rr {
		g.paintRow(i+1, r, render.StdColor, nil)
	}
	if len(rr) == 0 {
		g.showNoData("No records")
	}
	g.updateTitle()

	if row < 1 {
		row = 1
	}
	if row > len(rr) {
		row = len(rr)
	}
	if col >= len(h) {
		col = len(h) - 1
	}
	if row >= 1 {
		g.Select(row, max(col, 0))
	}
}

func (g *Grid) insertRows(start int, rr []datasource.Record) {
	if g.placeholder {
		g.RemoveRow(1)
		g.placeholder = false
	}
	if from, ok := g.extendHeader(rr); ok {
		g.paintHeader()
		g.repaintMissing(from)
	}

	for i, r := range rr {
		row := start + 1 + i
		if row < g.GetRowCount() {
			g.InsertRow(row)
		}
		g.paintRow(row, r, render.AddColor, nil)
	}
	g.updateTitle()
}

func (g *Grid) removeRows(r datasource.Range) {
	for i := r.Start; i < r.End; i++ {
		g.RemoveRow(r.Start + 1)
	}
	if g.GetRowCount() <= 1 {
		g.showNoData("No records")
	}
	g.updateTitle()
}

func (g *Grid) updateRows(uu []rowUpdate) {
	rr := make([]datasource.Record, 0, len(uu))
	for _, u := range uu {
		rr = append(rr, u.record)
	}
	if from, ok := g.extendHeader(rr); ok {
		g.paintHeader()
		g.repaintMissing(from)
	}

	for _, u := range uu {
		g.paintRow(u.row+1, u.record, render.StdColor, u.keys)
	}
}

// extendHeader appends columns for fields the header lacks and returns the
// index of the first added column.
func (g *Grid) extendHeader(rr []datasource.Record) (int, bool) {
	g.mx.Lock()
	defer g.mx.Unlock()

	from := len(g.header)

	var extra []datasource.Record
	for _, r := range rr {
		if !g.header.Covers(r) {
			extra = append(extra, r)
		}
	}
	if len(extra) == 0 {
		return from, false
	}
	for _, c := range render.Columns(extra) {
		if g.header.IndexOf(c.Key) < 0 {
			g.header = append(g.header, c)
		}
	}

	return from, true
}

// repaintMissing fills the cells of the columns added from index from.
func (g *Grid) repaintMissing(from int) {
	if g.placeholder {
		return
	}
	h := g.Header()
	for row := 1; row < g.GetRowCount(); row++ {
		for col := from; col < len(h); col++ {
			g.SetCell(row, col, missingCell(h[col]))
		}
	}
}

func (g *Grid) paintHeader() {
	h := g.Header()
	order := g.Order()
	for col, c := range h {
		text := c.Key
		cell := tview.NewTableCell(text)
		cell.SetTextColor(render.HeaderColor)
		cell.SetBackgroundColor(tcell.ColorDefault)
		cell.SetAlign(c.Align)
		cell.SetExpansion(1)
		cell.SetSelectable(false)
		if len(order) > 0 && order[0].Key == c.Key {
			arrow := " ▲"
			if order[0].Direction == datasource.SortDescending {
				arrow = " ▼"
			}
			cell.SetText(text + arrow)
			cell.SetAttributes(tcell.AttrBold)
		}
		g.SetCell(0, col, cell)
	}
}

// paintRow draws record r on row. A nil keys set repaints every cell with
// color, otherwise only the listed cells are repainted, in the modified color.
func (g *Grid) paintRow(row int, r datasource.Record, color tcell.Color, keys map[string]struct{}) {
	for col, c := range g.Header() {
		if keys != nil {
			if _, ok := keys[c.Key]; !ok {
				continue
			}
		}
		text, ok := render.Cell(r, c.Key)
		cell := tview.NewTableCell(tview.Escape(text))
		cell.SetBackgroundColor(tcell.ColorDefault)
		cell.SetAlign(c.Align)
		cell.SetExpansion(1)
		switch {
		case !ok:
			cell.SetTextColor(render.MissingColor)
		case keys != nil:
			cell.SetTextColor(render.ModColor)
		default:
			cell.SetTextColor(color)
		}
		if col == 0 {
			if id, err := r.ID(); err == nil {
				cell.SetReference(id)
			}
		}
		g.SetCell(row, col, cell)
	}
}

func missingCell(c render.Column) *tview.TableCell {
	cell := tview.NewTableCell(tview.Escape(render.MissingValue))
	cell.SetTextColor(render.MissingColor)
	cell.SetBackgroundColor(tcell.ColorDefault)
	cell.SetAlign(c.Align)
	cell.SetExpansion(1)
	return cell
}

// showNoData displays a placeholder below the header.
func (g *Grid) showNoData(msg string) {
	for g.GetRowCount() > 1 {
		g.RemoveRow(g.GetRowCount() - 1)
	}
	if g.GetRowCount() == 0 {
		g.paintHeader()
	}
	cell := tview.NewTableCell(msg)
	cell.SetTextColor(tcell.ColorGray)
	cell.SetAlign(tview.AlignCenter)
	cell.SetSelectable(false)
	g.SetCell(1, 0, cell)
	g.placeholder = true
}

func (g *Grid) updateTitle() {
	n := g.mirror.Len()
	order := g.Order()
	if len(order) > 0 {
		g.SetTitle(fmt.Sprintf(sortedTitleFmt, g.name, n, order))
		return
	}
	g.SetTitle(fmt.Sprintf(gridTitleFmt, g.name, n))
}

// failureReporter forwards backend failures to the grid.
type failureReporter struct {
	g *Grid
}

func (f failureReporter) Ready()                        {}
func (f failureReporter) RowsAdded(datasource.Range)    {}
func (f failureReporter) RowsRemoved(datasource.Range)  {}
func (f failureReporter) DataLoaded()                   {}
func (f failureReporter) DataChanged(datasource.Change) {}

// LoadFailed implements datasource.FailureListener.
func (f failureReporter) LoadFailed(err error) {
	f.g.mx.RLock()
	fn := f.g.failFn
	f.g.mx.RUnlock()
	if fn == nil {
		f.g.report(err)
		return
	}
	fn(err)
}
