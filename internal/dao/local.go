// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of a1s

package dao

import (
	"context"
	"fmt"

	"github.com/a1s/gridsource/internal/filesrc"
	"github.com/a1s/gridsource/internal/memory"
	"github.com/a1s/gridsource/internal/storage"
)

func init() {
	Register("file", openFile)
	Register("bolt", openBolt)
	Register("memory", openMemory)
}

func localOptions(f *Factory) []memory.Option {
	opts := f.Options()
	return []memory.Option{
		memory.WithRangePolicy(opts.RangePolicy),
		memory.WithReadOnly(opts.ReadOnly),
	}
}

// openFile serves file://path.json and bare paths.
func openFile(ctx context.Context, f *Factory, l Location) (Source, error) {
	s, err := filesrc.New(l.Target, localOptions(f)...)
	if err != nil {
		return nil, err
	}
	if err := s.Open(ctx); err != nil {
		return nil, err
	}

	return s, nil
}

// openBolt serves bolt://path.db. Records lacking an id get a generated one.
func openBolt(ctx context.Context, f *Factory, l Location) (Source, error) {
	store := storage.NewBoltStore(storage.BoltOptions{Path: l.Target})
	oo := append(localOptions(f),
		memory.WithName(l.Target),
		memory.WithStore(store),
		memory.WithIDGenerator(memory.UUIDGenerator),
	)
	s := memory.New(oo...)
	if err := s.Open(ctx); err != nil {
		s.Close()
		return nil, err
	}

	return s, nil
}

// openMemory serves memory://name, a source held in memory. The seed
// parameter names a dataset file, in any format filesrc reads, loaded once;
// later edits are not written back.
func openMemory(ctx context.Context, f *Factory, l Location) (Source, error) {
	oo := append(localOptions(f),
		memory.WithName(l.Target),
		memory.WithIDGenerator(memory.UUIDGenerator),
	)
	if seed := l.Param("seed", ""); seed != "" {
		rr, err := filesrc.ReadFile(ctx, seed, filesrc.DetectFormat(seed))
		if err != nil {
			return nil, fmt.Errorf("failed to seed %s: %w", l.Target, err)
		}
		oo = append(oo, memory.WithStore(storage.NewMemoryStore(rr...)))
	}
	s := memory.New(oo...)
	if err := s.Open(ctx); err != nil {
		return nil, err
	}

	return s, nil
}
