// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of a1s

// Package memory implements a data source holding its records in process
// memory, optionally writing every change through to a record store.
package memory

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/a1s/gridsource/internal/datasource"
	"github.com/a1s/gridsource/internal/logger"
	"github.com/a1s/gridsource/internal/storage"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var _ interface {
	datasource.DataSource
	datasource.ValueSetter
	datasource.Sorter
	datasource.CapabilityReporter
	datasource.Refresher
} = (*Source)(nil)

// IDGenerator returns a fresh record id.
type IDGenerator func() datasource.ID

// UUIDGenerator returns random string ids.
func UUIDGenerator() datasource.ID {
	return datasource.StringID(uuid.NewString())
}

// Option configures a Source.
type Option func(*Source)

// WithRangePolicy sets how GetRange treats out of bounds requests.
func WithRangePolicy(p datasource.RangePolicy) Option {
	return func(s *Source) { s.policy = p }
}

// WithStore writes every change through to store before it is announced.
func WithStore(store storage.RecordStore) Option {
	return func(s *Source) { s.store = store }
}

// WithIDGenerator assigns ids to incoming records lacking one.
func WithIDGenerator(g IDGenerator) Option {
	return func(s *Source) { s.idGen = g }
}

// WithReadOnly hides the SetValue and Sort capabilities.
func WithReadOnly(b bool) Option {
	return func(s *Source) { s.readOnly = b }
}

// WithName labels the source in logs.
func WithName(n string) Option {
	return func(s *Source) { s.name = n }
}

// Source is an in-memory data source.
//
// Mutations are serialized: each one is applied then announced before the
// next starts, so listeners always observe the source in the state the event
// describes. Listeners must not mutate the source synchronously from a
// handler. Reads never wait for a mutation to be announced.
type Source struct {
	name     string
	emitter  datasource.Emitter
	records  []datasource.Record
	index    map[datasource.ID]int
	order    datasource.Order
	policy   datasource.RangePolicy
	store    storage.RecordStore
	idGen    IDGenerator
	readOnly bool
	writeMx  sync.Mutex
	mx       sync.RWMutex
}

// New returns an empty source. It becomes ready on the first Load.
func New(opts ...Option) *Source {
	s := Source{
		name:  "memory",
		index: make(map[datasource.ID]int),
	}
	for _, o := range opts {
		o(&s)
	}

	return &s
}

// Open loads the records held by the configured store.
func (s *Source) Open(ctx context.Context) error {
	if s.store == nil {
		return s.Load(ctx, nil)
	}
	if err := s.store.Open(); err != nil {
		return err
	}
	rr, err := s.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load %s: %w", s.name, err)
	}

	return s.load(ctx, rr, false)
}

// Close releases the configured store.
func (s *Source) Close() error {
	if s.store == nil {
		return nil
	}
	return s.store.Close()
}

// IsReady implements datasource.DataSource.
func (s *Source) IsReady() bool {
	return s.emitter.IsReady()
}

// Subscribe implements datasource.DataSource.
func (s *Source) Subscribe(l datasource.Listener) func() {
	return s.emitter.Subscribe(l)
}

// RangePolicy implements datasource.DataSource.
func (s *Source) RangePolicy() datasource.RangePolicy {
	return s.policy
}

// Capabilities implements datasource.CapabilityReporter.
func (s *Source) Capabilities() datasource.Capability {
	if s.readOnly {
		return 0
	}
	return datasource.CapSetValue | datasource.CapSort
}

// RecordCount implements datasource.DataSource.
func (s *Source) RecordCount(context.Context) (int, error) {
	s.mx.RLock()
	defer s.mx.RUnlock()
	return len(s.records), nil
}

// GetData implements datasource.DataSource.
func (s *Source) GetData(context.Context) ([]datasource.Record, error) {
	s.mx.RLock()
	defer s.mx.RUnlock()
	return datasource.CloneRecords(s.records), nil
}

// GetRange implements datasource.DataSource.
func (s *Source) GetRange(_ context.Context, start, end int) ([]datasource.Record, error) {
	s.mx.RLock()
	defer s.mx.RUnlock()

	start, end, err := datasource.CheckRange(start, end, len(s.records), s.policy)
	if err != nil {
		return nil, err
	}

	return datasource.CloneRecords(s.records[start:end]), nil
}

// GetRecordByID implements datasource.DataSource.
func (s *Source) GetRecordByID(id datasource.ID) (datasource.Record, error) {
	s.mx.RLock()
	defer s.mx.RUnlock()

	i, ok := s.index[id]
	if !ok {
		return nil, &datasource.NotFoundError{ID: id}
	}

	return s.records[i].Clone(), nil
}

// SortOrder returns the order applied by the last Sort.
func (s *Source) SortOrder() datasource.Order {
	s.mx.RLock()
	defer s.mx.RUnlock()
	return slices.Clone(s.order)
}

// Load replaces the whole collection. The first call makes the source
// ready, later ones emit dataloaded.
func (s *Source) Load(ctx context.Context, records []datasource.Record) error {
	return s.load(ctx, records, true)
}

func (s *Source) load(ctx context.Context, records []datasource.Record, persist bool) error {
	s.writeMx.Lock()
	defer s.writeMx.Unlock()

	rr, err := s.prepare(records)
	if err != nil {
		return err
	}
	if _, err := indexOf(rr); err != nil {
		return err
	}
	if persist {
		if err := s.save(ctx, rr); err != nil {
			return err
		}
	}
	s.commit(rr)

	if !s.emitter.MarkReady() {
		s.emitter.Emit(datasource.DataLoadedEvent())
	}
	logger.Debug("Loaded records", zap.String("source", s.name), zap.Int("count", len(rr)))

	return nil
}

// Insert adds records at position at.
func (s *Source) Insert(ctx context.Context, at int, records ...datasource.Record) error {
	return s.Apply(ctx, datasource.Mutation{Insert: []datasource.Block{{At: at, Records: records}}})
}

// InsertBatch adds several blocks in one update. Each block position
// accounts for the blocks before it.
func (s *Source) InsertBatch(ctx context.Context, blocks ...datasource.Block) error {
	return s.Apply(ctx, datasource.Mutation{Insert: blocks})
}

// Remove deletes the records with the given ids in one update.
func (s *Source) Remove(ctx context.Context, ids ...datasource.ID) error {
	return s.Apply(ctx, datasource.Mutation{Remove: ids})
}

// Apply performs a structural update then announces it with range events,
// removals first. Nothing is applied nor emitted if the update is invalid.
func (s *Source) Apply(ctx context.Context, m datasource.Mutation) error {
	if !s.IsReady() {
		return datasource.ErrNotReady
	}
	if m.Empty() {
		return nil
	}

	s.writeMx.Lock()
	defer s.writeMx.Unlock()

	blocks := make([]datasource.Block, 0, len(m.Insert))
	for _, b := range m.Insert {
		rr, err := s.prepare(b.Records)
		if err != nil {
			return err
		}
		blocks = append(blocks, datasource.Block{At: b.At, Records: rr})
	}
	m.Insert = blocks

	res, err := datasource.ApplyMutation(s.snapshot(), m)
	if err != nil {
		return err
	}
	if err := s.save(ctx, res.Records); err != nil {
		return err
	}
	s.commit(res.Records)
	s.emitter.Emit(res.Events()...)

	logger.Debug("Applied mutation",
		zap.String("source", s.name),
		zap.Int("removed", len(res.Removed)),
		zap.Int("added", len(res.Added)),
	)

	return nil
}

// Replace swaps the collection for records and announces the difference
// incrementally when possible.
func (s *Source) Replace(ctx context.Context, records []datasource.Record) error {
	return s.replace(ctx, records, true)
}

func (s *Source) replace(ctx context.Context, records []datasource.Record, persist bool) error {
	if !s.IsReady() {
		return s.load(ctx, records, persist)
	}

	s.writeMx.Lock()
	defer s.writeMx.Unlock()

	rr, err := s.prepare(records)
	if err != nil {
		return err
	}
	delta, err := datasource.Diff(s.snapshot(), rr)
	if err != nil {
		return err
	}
	if delta.Empty() {
		return nil
	}
	if persist {
		if err := s.save(ctx, rr); err != nil {
			return err
		}
	}
	s.commit(rr)
	s.emitter.Emit(delta.Events()...)

	return nil
}

// Refresh re-reads the configured store.
func (s *Source) Refresh(ctx context.Context) error {
	if s.store == nil {
		return nil
	}
	rr, err := s.store.Load(ctx)
	if err != nil {
		s.ReportFailure(err)
		return err
	}

	return s.replace(ctx, rr, false)
}

// SetValue implements datasource.ValueSetter.
func (s *Source) SetValue(ctx context.Context, id datasource.ID, key string, value any) error {
	if s.readOnly {
		return &datasource.UnsupportedOperationError{Op: "setValue"}
	}
	if key == datasource.IDKey {
		return datasource.ErrImmutableID
	}

	s.writeMx.Lock()
	defer s.writeMx.Unlock()

	s.mx.RLock()
	i, ok := s.index[id]
	var rec datasource.Record
	if ok {
		rec = s.records[i].Clone()
	}
	s.mx.RUnlock()
	if !ok {
		return &datasource.NotFoundError{ID: id}
	}

	rec[key] = value
	if s.store != nil {
		if err := s.store.Put(ctx, rec); err != nil {
			return fmt.Errorf("failed to persist %s.%s: %w", id, key, err)
		}
	}

	s.mx.Lock()
	s.records[i] = rec
	s.mx.Unlock()

	s.emitter.Emit(datasource.DataChangedEvent(datasource.Change{
		Values: []datasource.Cell{{RowID: id, Key: key}},
		Rows:   []datasource.Record{rec.Clone()},
	}))

	return nil
}

// Sort implements datasource.Sorter. The sort is stable.
func (s *Source) Sort(ctx context.Context, cmp datasource.Comparator, order datasource.Order) error {
	if s.readOnly {
		return &datasource.UnsupportedOperationError{Op: "sort"}
	}
	if cmp == nil {
		cmp = datasource.NaturalComparator(order)
	}

	s.writeMx.Lock()
	defer s.writeMx.Unlock()

	rr := s.snapshot()
	slices.SortStableFunc(rr, func(a, b datasource.Record) int { return cmp(a, b) })
	if err := s.save(ctx, rr); err != nil {
		return err
	}

	s.mx.Lock()
	s.order = slices.Clone(order)
	s.mx.Unlock()
	s.commit(rr)
	s.emitter.Emit(datasource.DataLoadedEvent())

	return nil
}

// ReportFailure notifies listeners of a backend failure that left the
// collection unchanged.
func (s *Source) ReportFailure(err error) {
	logger.Warn("Data source failure", zap.String("source", s.name), zap.Error(err))
	s.emitter.Fail(err)
}

func (s *Source) prepare(records []datasource.Record) ([]datasource.Record, error) {
	rr := make([]datasource.Record, 0, len(records))
	for i, r := range records {
		r = r.Clone()
		if _, err := r.ID(); err != nil {
			if !errors.Is(err, datasource.ErrMissingID) || s.idGen == nil {
				return nil, fmt.Errorf("record at %d: %w", i, err)
			}
			r[datasource.IDKey] = s.idGen().Value()
		}
		rr = append(rr, r)
	}

	return rr, nil
}

func (s *Source) save(ctx context.Context, rr []datasource.Record) error {
	if s.store == nil {
		return nil
	}
	if err := s.store.Save(ctx, rr); err != nil {
		return fmt.Errorf("failed to persist %s: %w", s.name, err)
	}
	return nil
}

func (s *Source) snapshot() []datasource.Record {
	s.mx.RLock()
	defer s.mx.RUnlock()
	return slices.Clone(s.records)
}

func (s *Source) commit(rr []datasource.Record) {
	idx, _ := indexOf(rr)

	s.mx.Lock()
	defer s.mx.Unlock()
	s.records, s.index = rr, idx
}

func indexOf(rr []datasource.Record) (map[datasource.ID]int, error) {
	idx := make(map[datasource.ID]int, len(rr))
	for i, r := range rr {
		id, err := r.ID()
		if err != nil {
			return nil, fmt.Errorf("record at %d: %w", i, err)
		}
		if _, ok := idx[id]; ok {
			return nil, fmt.Errorf("%w: %s", datasource.ErrDuplicateID, id)
		}
		idx[id] = i
	}

	return idx, nil
}
