// Package cache holds the in-memory result cache for profile analyses.
// Entries live for the lifetime of the process; there is no size bound,
// only explicit clearing. Freshness is the caller's call: Get returns the
// computed-at timestamp and the caller decides whether the entry is stale.
package cache

import (
	"encoding/json"
	"sort"
	"sync"
	"time"

	"gramscout/models"
)

type entry struct {
	record     *models.AnalysisRecord
	computedAt time.Time
	sizeBytes  int64
}

// Cache is safe for concurrent use.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]entry
}

// Stats summarizes cache contents for the operational surface.
type Stats struct {
	Entries     int      `json:"cached_profiles"`
	Identifiers []string `json:"profiles"`
	SizeBytes   int64    `json:"size_bytes"`
}

func New() *Cache {
	return &Cache{entries: map[string]entry{}}
}

// Get returns the cached record for username and when it was computed.
func (c *Cache) Get(username string) (*models.AnalysisRecord, time.Time, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[username]
	if !ok {
		return nil, time.Time{}, false
	}
	return e.record, e.computedAt, true
}

// Put stores or overwrites the record for username.
func (c *Cache) Put(username string, rec *models.AnalysisRecord, computedAt time.Time) {
	var size int64
	if data, err := json.Marshal(rec); err == nil {
		size = int64(len(data))
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[username] = entry{record: rec, computedAt: computedAt, sizeBytes: size}
}

// Clear drops every entry and reports how many were removed.
func (c *Cache) Clear() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := len(c.entries)
	c.entries = map[string]entry{}
	return n
}

// Stats reports entry count, identifiers and approximate payload size.
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s := Stats{Entries: len(c.entries)}
	for username, e := range c.entries {
		s.Identifiers = append(s.Identifiers, username)
		s.SizeBytes += e.sizeBytes
	}
	sort.Strings(s.Identifiers)
	return s
}
