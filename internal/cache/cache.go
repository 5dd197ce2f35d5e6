// Copyright © by Sentri Authors 2024-2026. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

// Package cache implements the Result Cache (C7): a concurrent map from
// normalized domain to the last emitted Record, with an in-flight marker
// so concurrent probes for the same domain coalesce onto a single
// computation rather than each issuing a redundant federation lookup.
package cache

import (
	"sync"

	boom "github.com/tylertreat/BoomFilters"

	"github.com/copyleftdev/sentri/internal/record"
)

const (
	defaultMaxEntries  = 100_000
	bloomFilterCells   = 1_000_000
	bloomFalsePositive = 0.01
)

type entry struct {
	record *record.Record
	ready  chan struct{}
}

// Cache is a bounded, concurrency-safe store of one Record per normalized
// domain for the lifetime of a single run. It never persists across runs.
type Cache struct {
	mu         sync.Mutex
	entries    map[string]*entry
	maxEntries int
	seen       *boom.StableBloomFilter
}

// New builds an empty Cache bounded to maxEntries (0 selects the default).
func New(maxEntries int) *Cache {
	if maxEntries <= 0 {
		maxEntries = defaultMaxEntries
	}
	return &Cache{
		entries:    make(map[string]*entry),
		maxEntries: maxEntries,
		seen:       boom.NewDefaultStableBloomFilter(bloomFilterCells, bloomFalsePositive),
	}
}

// Get returns the cached Record for domain and true if one is present and
// not still in flight.
func (c *Cache) Get(domain string) (*record.Record, bool) {
	if !c.seen.Test([]byte(domain)) {
		return nil, false
	}

	c.mu.Lock()
	e, ok := c.entries[domain]
	c.mu.Unlock()
	if !ok {
		return nil, false
	}

	<-e.ready
	if e.record == nil {
		return nil, false
	}
	return e.record, true
}

// ClaimResult describes whether the caller became responsible for computing
// the Record (Owner) or must await an in-flight computation (Wait).
type ClaimResult struct {
	Owner  bool
	Record *record.Record
}

// Claim either returns an already-computed Record, attaches the caller to
// an in-flight computation, or marks the caller as the owner responsible
// for computing and later calling Store or Abort.
func (c *Cache) Claim(domain string) ClaimResult {
	c.mu.Lock()
	e, ok := c.entries[domain]
	if ok {
		c.mu.Unlock()
		<-e.ready
		return ClaimResult{Owner: false, Record: e.record}
	}

	c.evictIfFull()
	e = &entry{ready: make(chan struct{})}
	c.entries[domain] = e
	c.mu.Unlock()

	return ClaimResult{Owner: true}
}

// Store completes an in-flight computation this caller owns, publishing r
// to any waiters and future lookups.
func (c *Cache) Store(domain string, r *record.Record) {
	c.mu.Lock()
	e, ok := c.entries[domain]
	c.mu.Unlock()
	if !ok {
		return
	}
	e.record = r
	c.seen.Add([]byte(domain))
	close(e.ready)
}

// Abort drops the in-flight marker without publishing a result, so a later
// probe for the same domain starts again from scratch rather than hanging
// on a computation that was cancelled mid-flight.
func (c *Cache) Abort(domain string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[domain]
	if !ok {
		return
	}
	delete(c.entries, domain)
	close(e.ready)
}

// evictIfFull drops one random-victim entry when the cache is at capacity.
// Go's map iteration order is randomized per the runtime, so the first
// completed entry yielded by a fresh range is an adequate random victim
// without tracking insertion order separately. In-flight entries are never
// evicted, so their Store or Abort still reaches every waiter; when all
// entries are in flight nothing is evicted. Caller must hold c.mu.
func (c *Cache) evictIfFull() {
	if len(c.entries) < c.maxEntries {
		return
	}
	for victim, e := range c.entries {
		select {
		case <-e.ready:
			delete(c.entries, victim)
			return
		default:
		}
	}
}

// Len reports the number of entries currently tracked, including in-flight ones.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
