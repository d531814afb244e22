// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of a1s

package storage

import (
	"context"
	"sync"

	"github.com/a1s/gridsource/internal/datasource"
)

// MemoryStore implements RecordStore in process memory.
type MemoryStore struct {
	records []datasource.Record
	mx      sync.RWMutex
}

// NewMemoryStore creates a new MemoryStore.
func NewMemoryStore(records ...datasource.Record) *MemoryStore {
	return &MemoryStore{records: datasource.CloneRecords(records)}
}

// Open implements RecordStore.
func (s *MemoryStore) Open() error { return nil }

// Close implements RecordStore.
func (s *MemoryStore) Close() error { return nil }

// Load implements RecordStore.
func (s *MemoryStore) Load(context.Context) ([]datasource.Record, error) {
	s.mx.RLock()
	defer s.mx.RUnlock()
	return datasource.CloneRecords(s.records), nil
}

// Save implements RecordStore.
func (s *MemoryStore) Save(_ context.Context, records []datasource.Record) error {
	s.mx.Lock()
	defer s.mx.Unlock()
	s.records = datasource.CloneRecords(records)
	return nil
}

// Put implements RecordStore.
func (s *MemoryStore) Put(_ context.Context, rec datasource.Record) error {
	id, err := rec.ID()
	if err != nil {
		return err
	}

	s.mx.Lock()
	defer s.mx.Unlock()
	for i, r := range s.records {
		if rid, _ := r.ID(); rid == id {
			s.records[i] = rec.Clone()
			return nil
		}
	}

	return &datasource.NotFoundError{ID: id}
}

// Delete implements RecordStore.
func (s *MemoryStore) Delete(_ context.Context, ids ...datasource.ID) error {
	drop := make(map[datasource.ID]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}

	s.mx.Lock()
	defer s.mx.Unlock()
	kept := s.records[:0]
	for _, r := range s.records {
		if id, _ := r.ID(); !contains(drop, id) {
			kept = append(kept, r)
		}
	}
	s.records = kept

	return nil
}

func contains(m map[datasource.ID]struct{}, id datasource.ID) bool {
	_, ok := m[id]
	return ok
}
