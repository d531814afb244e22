// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of a1s

// Package storage persists the records held by a data source.
package storage

import (
	"context"

	"github.com/a1s/gridsource/internal/datasource"
)

// RecordStore defines the interface for persistent storage of an ordered
// record collection.
type RecordStore interface {
	// Open initializes the storage and makes it ready for use
	Open() error

	// Close closes the storage and releases any resources
	Close() error

	// Load returns every stored record in order
	Load(ctx context.Context) ([]datasource.Record, error)

	// Save replaces the stored collection
	Save(ctx context.Context, records []datasource.Record) error

	// Put replaces the stored record sharing the id of rec
	Put(ctx context.Context, rec datasource.Record) error

	// Delete removes the records with the given ids
	Delete(ctx context.Context, ids ...datasource.ID) error
}
