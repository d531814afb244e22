// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of a1s

package datasource

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// EventKind identifies a data source event.
type EventKind int

const (
	// EventReady signals the source accepts queries.
	EventReady EventKind = iota + 1
	// EventRowsAdded signals a contiguous block of inserted records.
	EventRowsAdded
	// EventRowsRemoved signals a contiguous block of removed records.
	EventRowsRemoved
	// EventDataLoaded signals the consumer must discard its view and re-fetch.
	EventDataLoaded
	// EventDataChanged signals values changed without reordering.
	EventDataChanged
)

func (k EventKind) String() string {
	switch k {
	case EventReady:
		return "ready"
	case EventRowsAdded:
		return "rowsadded"
	case EventRowsRemoved:
		return "rowsremoved"
	case EventDataLoaded:
		return "dataloaded"
	case EventDataChanged:
		return "datachanged"
	default:
		return fmt.Sprintf("Unknown(%d)", int(k))
	}
}

// Event is a single notification. Range is set for structural events,
// Change for datachanged.
type Event struct {
	Kind   EventKind
	Range  Range
	Change Change
}

func (e Event) String() string {
	switch e.Kind {
	case EventRowsAdded, EventRowsRemoved:
		return fmt.Sprintf("%s(%d,%d)", e.Kind, e.Range.Start, e.Range.End)
	case EventDataChanged:
		return fmt.Sprintf("%s(%d values, %d rows)", e.Kind, len(e.Change.Values), len(e.Change.Rows))
	default:
		return e.Kind.String()
	}
}

// RowsAddedEvent returns a rowsadded event for [start, end).
func RowsAddedEvent(start, end int) Event {
	return Event{Kind: EventRowsAdded, Range: Range{Start: start, End: end}}
}

// RowsRemovedEvent returns a rowsremoved event for [start, end).
func RowsRemovedEvent(start, end int) Event {
	return Event{Kind: EventRowsRemoved, Range: Range{Start: start, End: end}}
}

// DataLoadedEvent returns a dataloaded event.
func DataLoadedEvent() Event {
	return Event{Kind: EventDataLoaded}
}

// DataChangedEvent returns a datachanged event.
func DataChangedEvent(c Change) Event {
	return Event{Kind: EventDataChanged, Change: c}
}

// Listener observes a data source.
type Listener interface {
	// Ready notifies the source accepts queries.
	Ready()

	// RowsAdded notifies records were inserted at post-insertion positions r.
	RowsAdded(r Range)

	// RowsRemoved notifies records were removed from pre-removal positions r.
	RowsRemoved(r Range)

	// DataLoaded notifies the whole dataset must be re-fetched.
	DataLoaded()

	// DataChanged notifies values changed.
	DataChanged(c Change)
}

// FailureListener is optionally implemented by listeners interested in
// backend failures that do not change the dataset.
type FailureListener interface {
	LoadFailed(error)
}

// ListenerFunc adapts a function receiving events to a Listener.
type ListenerFunc func(Event)

// Ready implements Listener.
func (f ListenerFunc) Ready() { f(Event{Kind: EventReady}) }

// RowsAdded implements Listener.
func (f ListenerFunc) RowsAdded(r Range) { f(Event{Kind: EventRowsAdded, Range: r}) }

// RowsRemoved implements Listener.
func (f ListenerFunc) RowsRemoved(r Range) { f(Event{Kind: EventRowsRemoved, Range: r}) }

// DataLoaded implements Listener.
func (f ListenerFunc) DataLoaded() { f(Event{Kind: EventDataLoaded}) }

// DataChanged implements Listener.
func (f ListenerFunc) DataChanged(c Change) { f(Event{Kind: EventDataChanged, Change: c}) }

// Deliver invokes the listener method matching e.
func Deliver(l Listener, e Event) {
	switch e.Kind {
	case EventReady:
		l.Ready()
	case EventRowsAdded:
		l.RowsAdded(e.Range)
	case EventRowsRemoved:
		l.RowsRemoved(e.Range)
	case EventDataLoaded:
		l.DataLoaded()
	case EventDataChanged:
		l.DataChanged(e.Change)
	}
}

type subscription struct {
	id uint64
	l  Listener
}

// pending is a queued delivery, either an event or a failure.
type pending struct {
	ev  Event
	err error
}

// Emitter dispatches events to listeners in a single total order.
//
// Every listener sees every event in the same order, and a handler runs to
// completion before the next event is dispatched. Events emitted while a
// dispatch is in progress, including from within a handler, are queued and
// delivered after the events already queued. The events of one Emit call are
// delivered contiguously. Failures share the same queue.
type Emitter struct {
	listeners   []subscription
	nextID      uint64
	queue       []pending
	dispatching bool
	ready       atomic.Bool
	mx          sync.Mutex
}

// Subscribe registers l and returns a function removing it.
// The returned function is idempotent.
func (e *Emitter) Subscribe(l Listener) func() {
	e.mx.Lock()
	e.nextID++
	id := e.nextID
	e.listeners = append(e.listeners, subscription{id: id, l: l})
	e.mx.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { e.unsubscribe(id) })
	}
}

func (e *Emitter) unsubscribe(id uint64) {
	e.mx.Lock()
	defer e.mx.Unlock()

	for i, s := range e.listeners {
		if s.id == id {
			e.listeners = append(e.listeners[:i:i], e.listeners[i+1:]...)
			return
		}
	}
}

// ListenerCount returns the number of registered listeners.
func (e *Emitter) ListenerCount() int {
	e.mx.Lock()
	defer e.mx.Unlock()
	return len(e.listeners)
}

// IsReady returns true once MarkReady has been called.
func (e *Emitter) IsReady() bool {
	return e.ready.Load()
}

// MarkReady flips the emitter to ready and emits the ready event.
// Only the first call emits; it returns true if this call did.
func (e *Emitter) MarkReady() bool {
	if !e.ready.CompareAndSwap(false, true) {
		return false
	}
	e.dispatch(pending{ev: Event{Kind: EventReady}})
	return true
}

// Emit dispatches events in order. Ready events are dropped since readiness
// is only signalled through MarkReady.
func (e *Emitter) Emit(events ...Event) {
	batch := make([]pending, 0, len(events))
	for _, ev := range events {
		if ev.Kind == EventReady {
			continue
		}
		batch = append(batch, pending{ev: ev})
	}
	if len(batch) == 0 {
		return
	}
	e.dispatch(batch...)
}

// Fail reports err to listeners implementing FailureListener, in order with
// the events already queued.
func (e *Emitter) Fail(err error) {
	if err == nil {
		return
	}
	e.dispatch(pending{err: err})
}

func (e *Emitter) dispatch(batch ...pending) {
	e.mx.Lock()
	e.queue = append(e.queue, batch...)
	if e.dispatching {
		e.mx.Unlock()
		return
	}
	e.dispatching = true

	for {
		if len(e.queue) == 0 {
			e.dispatching = false
			e.mx.Unlock()
			return
		}
		p := e.queue[0]
		e.queue = e.queue[1:]
		listeners := make([]subscription, len(e.listeners))
		copy(listeners, e.listeners)
		e.mx.Unlock()

		for _, s := range listeners {
			if p.err == nil {
				Deliver(s.l, p.ev)
				continue
			}
			if fl, ok := s.l.(FailureListener); ok {
				fl.LoadFailed(p.err)
			}
		}

		e.mx.Lock()
	}
}
