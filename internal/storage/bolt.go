// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of a1s

package storage

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/a1s/gridsource/internal/datasource"
	"github.com/a1s/gridsource/internal/logger"
	bolt "go.etcd.io/bbolt"
	"go.uber.org/zap"
)

const (
	// DefaultBoltFileMode is the default file mode for the BoltDB file
	DefaultBoltFileMode = 0600

	// DefaultBoltTimeout is the default timeout for acquiring the BoltDB file lock
	DefaultBoltTimeout = 1 * time.Second
)

var (
	recordBucket = []byte("records")
	idBucket     = []byte("ids")
)

// BoltOptions configures the BoltDB storage
type BoltOptions struct {
	// Path to the BoltDB file
	Path string
	// File mode for the BoltDB file
	FileMode os.FileMode
	// Timeout for acquiring the file lock
	Timeout time.Duration
}

// BoltStore implements RecordStore using BoltDB. Records are stored as JSON
// keyed by their position, with a secondary bucket mapping ids to positions.
type BoltStore struct {
	db      *bolt.DB
	options BoltOptions
}

// NewBoltStore creates a new BoltStore with the given options
func NewBoltStore(opts BoltOptions) *BoltStore {
	if opts.FileMode == 0 {
		opts.FileMode = DefaultBoltFileMode
	}
	if opts.Timeout == 0 {
		opts.Timeout = DefaultBoltTimeout
	}

	return &BoltStore{options: opts}
}

// Path returns the database file path.
func (s *BoltStore) Path() string {
	return s.options.Path
}

// Open initializes the BoltDB database
func (s *BoltStore) Open() error {
	if s.options.Path == "" {
		return fmt.Errorf("no bolt database path configured")
	}
	logger.Info("Opening BoltDB database", zap.String("path", s.options.Path))

	if err := os.MkdirAll(filepath.Dir(s.options.Path), 0755); err != nil {
		return fmt.Errorf("failed to create directory for database: %w", err)
	}
	db, err := bolt.Open(s.options.Path, s.options.FileMode, &bolt.Options{Timeout: s.options.Timeout})
	if err != nil {
		return fmt.Errorf("failed to open BoltDB: %w", err)
	}
	s.db = db

	err = s.db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{recordBucket, idBucket} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("failed to create %s bucket: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		s.db.Close()
		s.db = nil
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	return nil
}

// Close closes the BoltDB database
func (s *BoltStore) Close() error {
	if s.db == nil {
		return nil
	}
	logger.Info("Closing BoltDB database", zap.String("path", s.options.Path))
	err := s.db.Close()
	s.db = nil

	return err
}

// Load implements RecordStore.
func (s *BoltStore) Load(ctx context.Context) ([]datasource.Record, error) {
	if s.db == nil {
		return nil, fmt.Errorf("bolt store %s is not open", s.options.Path)
	}

	var rr []datasource.Record
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		rr, err = loadTx(tx)
		return err
	})
	logger.Debug("Loaded records", zap.String("path", s.options.Path), zap.Int("count", len(rr)))

	return rr, err
}

// Save implements RecordStore.
func (s *BoltStore) Save(ctx context.Context, records []datasource.Record) error {
	if s.db == nil {
		return fmt.Errorf("bolt store %s is not open", s.options.Path)
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		return saveTx(tx, records)
	})
}

// Put implements RecordStore.
func (s *BoltStore) Put(ctx context.Context, rec datasource.Record) error {
	if s.db == nil {
		return fmt.Errorf("bolt store %s is not open", s.options.Path)
	}
	id, err := rec.ID()
	if err != nil {
		return err
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		pos := tx.Bucket(idBucket).Get([]byte(id.Key()))
		if pos == nil {
			return &datasource.NotFoundError{ID: id}
		}
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("failed to marshal record %s: %w", id, err)
		}
		if err := tx.Bucket(recordBucket).Put(pos, data); err != nil {
			return fmt.Errorf("failed to store record %s: %w", id, err)
		}
		return nil
	})
}

// Delete implements RecordStore. Positions are renumbered.
func (s *BoltStore) Delete(ctx context.Context, ids ...datasource.ID) error {
	if s.db == nil {
		return fmt.Errorf("bolt store %s is not open", s.options.Path)
	}
	drop := make(map[datasource.ID]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		rr, err := loadTx(tx)
		if err != nil {
			return err
		}
		kept := make([]datasource.Record, 0, len(rr))
		for _, r := range rr {
			if id, _ := r.ID(); !contains(drop, id) {
				kept = append(kept, r)
			}
		}
		return saveTx(tx, kept)
	})
}

func loadTx(tx *bolt.Tx) ([]datasource.Record, error) {
	b := tx.Bucket(recordBucket)
	if b == nil {
		return nil, fmt.Errorf("records bucket not found")
	}

	rr := make([]datasource.Record, 0)
	err := b.ForEach(func(k, v []byte) error {
		var r datasource.Record
		if err := json.Unmarshal(v, &r); err != nil {
			return fmt.Errorf("failed to unmarshal record %d: %w", binary.BigEndian.Uint64(k), err)
		}
		rr = append(rr, r)
		return nil
	})

	return rr, err
}

func saveTx(tx *bolt.Tx, records []datasource.Record) error {
	for _, name := range [][]byte{recordBucket, idBucket} {
		if err := tx.DeleteBucket(name); err != nil && !errors.Is(err, bolt.ErrBucketNotFound) {
			return fmt.Errorf("failed to reset %s bucket: %w", name, err)
		}
	}
	rb, err := tx.CreateBucket(recordBucket)
	if err != nil {
		return fmt.Errorf("failed to create records bucket: %w", err)
	}
	ib, err := tx.CreateBucket(idBucket)
	if err != nil {
		return fmt.Errorf("failed to create ids bucket: %w", err)
	}

	for i, r := range records {
		id, err := r.ID()
		if err != nil {
			return fmt.Errorf("record at %d: %w", i, err)
		}
		data, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("failed to marshal record %s: %w", id, err)
		}
		pos := positionKey(i)
		if err := rb.Put(pos, data); err != nil {
			return fmt.Errorf("failed to store record %s: %w", id, err)
		}
		if err := ib.Put([]byte(id.Key()), pos); err != nil {
			return fmt.Errorf("failed to index record %s: %w", id, err)
		}
	}

	return nil
}

func positionKey(i int) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, uint64(i))
	return k
}
