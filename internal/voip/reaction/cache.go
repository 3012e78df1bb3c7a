// Package reaction holds the latest user reaction until the application reads it.
package reaction

import (
	"maps"
	"sync"
)

// Reaction is the user's response to a presented incoming call
type Reaction string

const (
	Accepted Reaction = "Accepted"
	Rejected Reaction = "Rejected"
)

// Record pairs a reaction with the push payload of the call it answered
type Record struct {
	Reaction Reaction
	Payload  map[string]any
}

// Cache keeps at most one unread record. A new record overwrites an unread one.
type Cache struct {
	mu      sync.Mutex
	pending *Record
}

// NewCache creates an empty cache
func NewCache() *Cache {
	return &Cache{}
}

// Record stores the reaction, replacing any unread record.
// It reports whether an unread record was overwritten.
func (c *Cache) Record(r Reaction, payload map[string]any) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	overwritten := c.pending != nil
	c.pending = &Record{Reaction: r, Payload: maps.Clone(payload)}
	return overwritten
}

// Consume returns the pending record and clears it
func (c *Cache) Consume() (Record, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pending == nil {
		return Record{}, false
	}
	rec := *c.pending
	c.pending = nil
	return rec, true
}

// Pending reports whether an unread record exists
func (c *Cache) Pending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending != nil
}
