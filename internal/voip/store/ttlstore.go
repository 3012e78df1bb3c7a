// Package store provides a generic in-memory map whose entries expire.
package store

import (
	"sync"
	"time"
)

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// a zero expiresAt never expires
func (e *entry[V]) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// TTLStore is a map with per-entry expiry and a background sweeper.
// Expired entries are reported to the eviction callback, entries removed
// with Take or Delete are not.
type TTLStore[K comparable, V any] struct {
	mu      sync.Mutex
	items   map[K]*entry[V]
	stopCh  chan struct{}
	once    sync.Once
	onEvict func(key K, value V)
}

// NewTTLStore creates a store swept every cleanupInterval.
func NewTTLStore[K comparable, V any](cleanupInterval time.Duration, onEvict func(key K, value V)) *TTLStore[K, V] {
	s := &TTLStore[K, V]{
		items:   make(map[K]*entry[V]),
		stopCh:  make(chan struct{}),
		onEvict: onEvict,
	}
	go s.cleanupLoop(cleanupInterval)
	return s
}

// Set stores a value with the given TTL. A ttl of zero or less keeps the
// entry until it is taken or deleted.
func (s *TTLStore[K, V]) Set(key K, value V, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := &entry[V]{value: value}
	if ttl > 0 {
		e.expiresAt = time.Now().Add(ttl)
	}
	s.items[key] = e
}

// Get returns the value if present and not expired
func (s *TTLStore[K, V]) Get(key K) (V, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.items[key]
	if !ok || e.expired(time.Now()) {
		var zero V
		return zero, false
	}
	return e.value, true
}

// Take removes the entry and returns it, so only one caller can claim it
func (s *TTLStore[K, V]) Take(key K) (V, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.items[key]
	if !ok || e.expired(time.Now()) {
		var zero V
		return zero, false
	}
	delete(s.items, key)
	return e.value, true
}

// Delete removes a key from the store
func (s *TTLStore[K, V]) Delete(key K) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.items[key]; ok {
		delete(s.items, key)
		return true
	}
	return false
}

// Len returns the number of live entries
func (s *TTLStore[K, V]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	n := 0
	for _, e := range s.items {
		if !e.expired(now) {
			n++
		}
	}
	return n
}

// Close stops the sweeper. Remaining entries are dropped without eviction.
func (s *TTLStore[K, V]) Close() {
	s.once.Do(func() {
		close(s.stopCh)
		s.mu.Lock()
		s.items = make(map[K]*entry[V])
		s.mu.Unlock()
	})
}

func (s *TTLStore[K, V]) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweep()
		case <-s.stopCh:
			return
		}
	}
}

// sweep removes expired entries and calls the eviction callback outside the lock
func (s *TTLStore[K, V]) sweep() {
	type evicted struct {
		key   K
		value V
	}

	now := time.Now()
	s.mu.Lock()
	var expired []evicted
	for key, e := range s.items {
		if e.expired(now) {
			expired = append(expired, evicted{key, e.value})
			delete(s.items, key)
		}
	}
	s.mu.Unlock()

	if s.onEvict == nil {
		return
	}
	for _, e := range expired {
		s.onEvict(e.key, e.value)
	}
}
