// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of a1s

package remote

import (
	"slices"
	"sync"
	"time"

	"github.com/a1s/gridsource/internal/datasource"
)

// PageEntry is a cached page of records.
type PageEntry struct {
	Records   []datasource.Record
	Timestamp time.Time
	RefreshAt time.Time
}

// CacheConfig configures a PageCache.
type CacheConfig struct {
	DefaultTTL time.Duration
	MaxEntries int
}

// PageCache holds fetched pages keyed by page number. Expired pages are
// kept so the last observed snapshot remains available for diffing.
type PageCache struct {
	entries    map[int]*PageEntry
	defaultTTL time.Duration
	maxEntries int
	mx         sync.RWMutex
}

// NewPageCache returns a new cache.
func NewPageCache(cfg *CacheConfig) *PageCache {
	defaultTTL := 30 * time.Second
	maxEntries := 1000

	if cfg != nil {
		if cfg.DefaultTTL > 0 {
			defaultTTL = cfg.DefaultTTL
		}
		if cfg.MaxEntries > 0 {
			maxEntries = cfg.MaxEntries
		}
	}

	return &PageCache{
		entries:    make(map[int]*PageEntry),
		defaultTTL: defaultTTL,
		maxEntries: maxEntries,
	}
}

// Get returns a page that has not expired.
func (c *PageCache) Get(page int) ([]datasource.Record, bool) {
	c.mx.RLock()
	defer c.mx.RUnlock()

	entry, ok := c.entries[page]
	if !ok || time.Now().After(entry.RefreshAt) {
		return nil, false
	}

	return entry.Records, true
}

// Expired returns true if page is cached past its TTL.
func (c *PageCache) Expired(page int) bool {
	c.mx.RLock()
	defer c.mx.RUnlock()

	entry, ok := c.entries[page]
	return ok && time.Now().After(entry.RefreshAt)
}

// Peek returns a page even if it expired.
func (c *PageCache) Peek(page int) ([]datasource.Record, bool) {
	c.mx.RLock()
	defer c.mx.RUnlock()

	entry, ok := c.entries[page]
	if !ok {
		return nil, false
	}

	return entry.Records, true
}

// Set stores a page.
func (c *PageCache) Set(page int, rr []datasource.Record) {
	c.mx.Lock()
	defer c.mx.Unlock()
	c.set(page, rr)
}

// Replace swaps every page at once.
func (c *PageCache) Replace(pages map[int][]datasource.Record) {
	c.mx.Lock()
	defer c.mx.Unlock()

	c.entries = make(map[int]*PageEntry, len(pages))
	for p, rr := range pages {
		c.set(p, rr)
	}
}

func (c *PageCache) set(page int, rr []datasource.Record) {
	if _, ok := c.entries[page]; !ok && len(c.entries) >= c.maxEntries {
		c.evictOldest()
	}

	now := time.Now()
	c.entries[page] = &PageEntry{
		Records:   rr,
		Timestamp: now,
		RefreshAt: now.Add(c.defaultTTL),
	}
}

func (c *PageCache) evictOldest() {
	var (
		oldest     int
		oldestTime time.Time
		first      = true
	)
	for k, v := range c.entries {
		if first || v.Timestamp.Before(oldestTime) {
			oldest, oldestTime, first = k, v.Timestamp, false
		}
	}
	if !first {
		delete(c.entries, oldest)
	}
}

// Update replaces the cached copy of the record sharing rec's id. Pages
// already handed out are left untouched.
func (c *PageCache) Update(rec datasource.Record) bool {
	id, err := rec.ID()
	if err != nil {
		return false
	}

	c.mx.Lock()
	defer c.mx.Unlock()
	for _, e := range c.entries {
		for i, r := range e.Records {
			if rid, _ := r.ID(); rid == id {
				rr := slices.Clone(e.Records)
				rr[i] = rec
				e.Records = rr
				return true
			}
		}
	}

	return false
}

// Len returns the number of cached pages.
func (c *PageCache) Len() int {
	c.mx.RLock()
	defer c.mx.RUnlock()
	return len(c.entries)
}

// Invalidate drops every page.
func (c *PageCache) Invalidate() {
	c.mx.Lock()
	defer c.mx.Unlock()

	c.entries = make(map[int]*PageEntry)
}
