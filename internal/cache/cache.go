// package cache holds in-memory library snapshots with a freshness window.
//
// A [Slot] stores one value and when it was fetched; a [Store] keeps one slot per key.
// Values are swapped whole under a lock, so readers never see a partially written value.
// Stale values are kept so callers can fall back to them when a refetch fails.
package cache

import (
	"sync"
	"time"
)

// Slot is a single cached value with the time it was fetched.
type Slot[T any] struct {
	mu        sync.RWMutex
	value     T
	fetchedAt time.Time
	ttl       time.Duration
	present   bool
	now       func() time.Time
}

// NewSlot returns an empty slot whose values are fresh for ttl. A zero ttl means never fresh.
func NewSlot[T any](ttl time.Duration) *Slot[T] {
	return &Slot[T]{ttl: ttl, now: time.Now}
}

// Set replaces the value and stamps it with the current time.
func (s *Slot[T]) Set(v T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.value = v
	s.fetchedAt = s.now()
	s.present = true
}

// Get returns the value, whether one is present, and whether it is still fresh.
func (s *Slot[T]) Get() (v T, ok, fresh bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.present {
		return v, false, false
	}
	return s.value, true, s.now().Sub(s.fetchedAt) < s.ttl
}

// FetchedAt returns when the current value was stored, or the zero time.
func (s *Slot[T]) FetchedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fetchedAt
}

// Clear drops the value.
func (s *Slot[T]) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	var zero T
	s.value = zero
	s.fetchedAt = time.Time{}
	s.present = false
}

// Store keeps one [Slot] per key, e.g. per user.
type Store[T any] struct {
	mu    sync.Mutex
	slots map[string]*Slot[T]
	ttl   time.Duration
	now   func() time.Time
}

// NewStore creates a store whose slots share ttl.
func NewStore[T any](ttl time.Duration) *Store[T] {
	return &Store[T]{slots: make(map[string]*Slot[T]), ttl: ttl, now: time.Now}
}

// Slot returns the slot for key, creating it if needed.
func (s *Store[T]) Slot(key string) *Slot[T] {
	s.mu.Lock()
	defer s.mu.Unlock()
	slot, ok := s.slots[key]
	if !ok {
		slot = &Slot[T]{ttl: s.ttl, now: s.now}
		s.slots[key] = slot
	}
	return slot
}

// Peek returns the slot for key without creating one.
func (s *Store[T]) Peek(key string) (*Slot[T], bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	slot, ok := s.slots[key]
	return slot, ok
}

// Rename moves the slot at from to to, replacing any slot already there.
// It reports whether from existed.
func (s *Store[T]) Rename(from, to string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	slot, ok := s.slots[from]
	if !ok {
		return false
	}
	delete(s.slots, from)
	s.slots[to] = slot
	return true
}

// Delete removes key's slot.
func (s *Store[T]) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.slots, key)
}

// Len returns the number of keys.
func (s *Store[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.slots)
}

// Prune drops slots whose values are older than maxAge and returns how many were removed.
func (s *Store[T]) Prune(maxAge time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	now := s.now()
	for key, slot := range s.slots {
		if now.Sub(slot.FetchedAt()) > maxAge {
			delete(s.slots, key)
			removed++
		}
	}
	return removed
}
