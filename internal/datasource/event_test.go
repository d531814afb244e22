// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of a1s

package datasource

import (
	"errors"
	"reflect"
	"sync"
	"testing"
)

type recorder struct {
	events []Event
	fails  []error
	mx     sync.Mutex
}

func (r *recorder) listener() ListenerFunc {
	return func(e Event) {
		r.mx.Lock()
		defer r.mx.Unlock()
		r.events = append(r.events, e)
	}
}

func (r *recorder) kinds() []EventKind {
	r.mx.Lock()
	defer r.mx.Unlock()
	kk := make([]EventKind, 0, len(r.events))
	for _, e := range r.events {
		kk = append(kk, e.Kind)
	}
	return kk
}

type failRecorder struct {
	ListenerFunc
	errs []error
}

func (f *failRecorder) LoadFailed(err error) {
	f.errs = append(f.errs, err)
}

func TestEmitterReadyOnce(t *testing.T) {
	var (
		e Emitter
		r recorder
	)
	e.Subscribe(r.listener())

	if e.IsReady() {
		t.Fatal("Expected not ready")
	}
	if !e.MarkReady() {
		t.Fatal("Expected first MarkReady to emit")
	}
	if e.MarkReady() {
		t.Fatal("Expected second MarkReady to be a no-op")
	}
	e.Emit(Event{Kind: EventReady}, DataLoadedEvent())

	if !e.IsReady() {
		t.Fatal("Expected ready")
	}
	if got := r.kinds(); !reflect.DeepEqual(got, []EventKind{EventReady, EventDataLoaded}) {
		t.Fatalf("Unexpected events %v", got)
	}
}

func TestEmitterUnsubscribe(t *testing.T) {
	var (
		e      Emitter
		r1, r2 recorder
	)
	unsub := e.Subscribe(r1.listener())
	e.Subscribe(r2.listener())
	e.Emit(DataLoadedEvent())
	unsub()
	unsub()
	e.Emit(DataLoadedEvent())

	if e.ListenerCount() != 1 {
		t.Fatalf("Expected 1 listener but got %d", e.ListenerCount())
	}
	if len(r1.kinds()) != 1 || len(r2.kinds()) != 2 {
		t.Fatalf("Unexpected deliveries %v / %v", r1.kinds(), r2.kinds())
	}
}

func TestEmitterReentrantEmitIsQueued(t *testing.T) {
	var (
		e     Emitter
		order []string
	)
	e.Subscribe(ListenerFunc(func(ev Event) {
		order = append(order, "a:"+ev.String())
		if ev.Kind == EventRowsAdded {
			e.Emit(DataLoadedEvent())
		}
	}))
	e.Subscribe(ListenerFunc(func(ev Event) {
		order = append(order, "b:"+ev.String())
	}))

	e.Emit(RowsAddedEvent(0, 1), RowsRemovedEvent(0, 1))

	exp := []string{
		"a:rowsadded(0,1)", "b:rowsadded(0,1)",
		"a:rowsremoved(0,1)", "b:rowsremoved(0,1)",
		"a:dataloaded", "b:dataloaded",
	}
	if !reflect.DeepEqual(order, exp) {
		t.Fatalf("Expected %v but got %v", exp, order)
	}
}

func TestEmitterTotalOrderAcrossGoroutines(t *testing.T) {
	var (
		e      Emitter
		r1, r2 recorder
		wg     sync.WaitGroup
	)
	e.Subscribe(r1.listener())
	e.Subscribe(r2.listener())

	for i := range 20 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			e.Emit(RowsAddedEvent(i, i+1), RowsRemovedEvent(i, i+1))
		}(i)
	}
	wg.Wait()

	if !reflect.DeepEqual(r1.events, r2.events) {
		t.Fatal("Expected every listener to observe the same order")
	}
	if len(r1.events) != 40 {
		t.Fatalf("Expected 40 events but got %d", len(r1.events))
	}
	for i := 0; i < len(r1.events); i += 2 {
		a, b := r1.events[i], r1.events[i+1]
		if a.Kind != EventRowsAdded || b.Kind != EventRowsRemoved || a.Range != b.Range {
			t.Fatalf("Batch split at %d: %v %v", i, a, b)
		}
	}
}

func TestEmitterFail(t *testing.T) {
	var (
		e Emitter
		r recorder
	)
	f := failRecorder{ListenerFunc: r.listener()}
	e.Subscribe(&f)
	e.Subscribe(r.listener())

	boom := errors.New("boom")
	e.Fail(boom)
	if len(f.errs) != 1 || !errors.Is(f.errs[0], boom) {
		t.Fatalf("Unexpected failures %v", f.errs)
	}
	if len(r.kinds()) != 0 {
		t.Fatalf("Expected no events but got %v", r.kinds())
	}
}

type orderedListener struct {
	ListenerFunc
	name  string
	order *[]string
}

func (o *orderedListener) LoadFailed(err error) {
	*o.order = append(*o.order, o.name+":"+err.Error())
}

func TestEmitterFailIsQueuedBehindEvents(t *testing.T) {
	var (
		e     Emitter
		order []string
	)
	a := &orderedListener{name: "a", order: &order}
	a.ListenerFunc = func(ev Event) {
		order = append(order, "a:"+ev.String())
		if ev.Kind == EventDataLoaded {
			e.Fail(errors.New("boom"))
		}
	}
	b := &orderedListener{name: "b", order: &order}
	b.ListenerFunc = func(ev Event) {
		order = append(order, "b:"+ev.String())
	}
	e.Subscribe(a)
	e.Subscribe(b)

	e.Emit(DataLoadedEvent(), RowsAddedEvent(0, 1))

	exp := []string{
		"a:dataloaded", "b:dataloaded",
		"a:rowsadded(0,1)", "b:rowsadded(0,1)",
		"a:boom", "b:boom",
	}
	if !reflect.DeepEqual(order, exp) {
		t.Fatalf("Expected %v but got %v", exp, order)
	}
}

func TestEventKindString(t *testing.T) {
	uu := map[EventKind]string{
		EventReady:       "ready",
		EventRowsAdded:   "rowsadded",
		EventRowsRemoved: "rowsremoved",
		EventDataLoaded:  "dataloaded",
		EventDataChanged: "datachanged",
		EventKind(42):    "Unknown(42)",
	}
	for k, e := range uu {
		if k.String() != e {
			t.Fatalf("Expected %q but got %q", e, k.String())
		}
	}
}
