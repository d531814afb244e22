// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of a1s

package datasource

import (
	"context"
	"fmt"
	"sync"
)

// MirrorHook is called after the mirror applied an event.
type MirrorHook func(Event)

// Mirror is a consumer-side copy of a data source kept current by replaying
// its events with literal index semantics. Added ranges are fetched from the
// source when the event is delivered.
type Mirror struct {
	ctx   context.Context
	src   DataSource
	rows  []Record
	index map[ID]int
	err   error
	hook  MirrorHook
	unsub func()
	mx    sync.RWMutex
}

// NewMirror returns a mirror of src. Fetches issued while replaying use ctx.
func NewMirror(ctx context.Context, src DataSource) *Mirror {
	return &Mirror{
		ctx:   ctx,
		src:   src,
		index: make(map[ID]int),
	}
}

// SetHook registers a function called after each applied event.
func (m *Mirror) SetHook(h MirrorHook) {
	m.mx.Lock()
	defer m.mx.Unlock()
	m.hook = h
}

// Attach subscribes the mirror to its source and syncs it if the source is
// already ready.
func (m *Mirror) Attach() {
	unsub := m.src.Subscribe(m)
	m.mx.Lock()
	m.unsub = unsub
	m.mx.Unlock()
	if m.src.IsReady() {
		m.sync()
	}
}

// Detach unsubscribes the mirror.
func (m *Mirror) Detach() {
	m.mx.Lock()
	unsub := m.unsub
	m.unsub = nil
	m.mx.Unlock()
	if unsub != nil {
		unsub()
	}
}

// Records returns a copy of the mirrored records.
func (m *Mirror) Records() []Record {
	m.mx.RLock()
	defer m.mx.RUnlock()

	out := make([]Record, len(m.rows))
	copy(out, m.rows)
	return out
}

// Len returns the number of mirrored records.
func (m *Mirror) Len() int {
	m.mx.RLock()
	defer m.mx.RUnlock()
	return len(m.rows)
}

// Row returns the record at position i.
func (m *Mirror) Row(i int) (Record, bool) {
	m.mx.RLock()
	defer m.mx.RUnlock()

	if i < 0 || i >= len(m.rows) {
		return nil, false
	}
	return m.rows[i], true
}

// IndexOf returns the position of id in the mirror.
func (m *Mirror) IndexOf(id ID) (int, bool) {
	m.mx.RLock()
	defer m.mx.RUnlock()

	i, ok := m.index[id]
	return i, ok
}

// Err returns the first error met while replaying.
func (m *Mirror) Err() error {
	m.mx.RLock()
	defer m.mx.RUnlock()
	return m.err
}

// Ready implements Listener.
func (m *Mirror) Ready() {
	m.sync()
	m.notify(Event{Kind: EventReady})
}

// DataLoaded implements Listener.
func (m *Mirror) DataLoaded() {
	m.sync()
	m.notify(Event{Kind: EventDataLoaded})
}

// RowsAdded implements Listener.
func (m *Mirror) RowsAdded(r Range) {
	rr, err := m.src.GetRange(m.ctx, r.Start, r.End)
	if err == nil && len(rr) != r.Len() {
		err = fmt.Errorf("fetched %d records for %s", len(rr), r)
	}
	if err != nil {
		m.fail(fmt.Errorf("rowsadded %s: %w", r, err))
		return
	}

	m.mx.Lock()
	if r.Start < 0 || r.Start > len(m.rows) {
		m.mx.Unlock()
		m.fail(&RangeError{Start: r.Start, End: r.End, Count: len(m.rows)})
		return
	}
	m.rows = append(m.rows[:r.Start], append(CloneRecords(rr), m.rows[r.Start:]...)...)
	m.reindex()
	m.mx.Unlock()

	m.notify(Event{Kind: EventRowsAdded, Range: r})
}

// RowsRemoved implements Listener.
func (m *Mirror) RowsRemoved(r Range) {
	m.mx.Lock()
	if r.Start < 0 || r.End < r.Start || r.End > len(m.rows) {
		m.mx.Unlock()
		m.fail(&RangeError{Start: r.Start, End: r.End, Count: len(m.rows)})
		return
	}
	m.rows = append(m.rows[:r.Start], m.rows[r.End:]...)
	m.reindex()
	m.mx.Unlock()

	m.notify(Event{Kind: EventRowsRemoved, Range: r})
}

// DataChanged implements Listener.
func (m *Mirror) DataChanged(c Change) {
	if c.Empty() {
		m.sync()
		m.notify(Event{Kind: EventDataChanged, Change: c})
		return
	}

	given := make(map[ID]Record, len(c.Rows))
	for _, r := range c.Rows {
		if id, err := r.ID(); err == nil {
			given[id] = r
		}
	}
	for _, id := range c.RowIDs() {
		rec, ok := given[id]
		if !ok {
			var err error
			if rec, err = m.src.GetRecordByID(id); err != nil {
				m.fail(fmt.Errorf("datachanged %s: %w", id, err))
				continue
			}
		}
		m.mx.Lock()
		if i, ok := m.index[id]; ok {
			m.rows[i] = rec.Clone()
		}
		m.mx.Unlock()
	}

	m.notify(Event{Kind: EventDataChanged, Change: c})
}

func (m *Mirror) sync() {
	rr, err := m.src.GetData(m.ctx)
	if err != nil {
		m.fail(fmt.Errorf("sync: %w", err))
		return
	}

	m.mx.Lock()
	defer m.mx.Unlock()
	m.rows = CloneRecords(rr)
	m.reindex()
}

func (m *Mirror) reindex() {
	clear(m.index)
	for i, r := range m.rows {
		if id, err := r.ID(); err == nil {
			m.index[id] = i
		}
	}
}

func (m *Mirror) fail(err error) {
	m.mx.Lock()
	defer m.mx.Unlock()
	if m.err == nil {
		m.err = err
	}
}

func (m *Mirror) notify(e Event) {
	m.mx.RLock()
	h := m.hook
	m.mx.RUnlock()
	if h != nil {
		h(e)
	}
}
