package cache

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process LRU cache with an optional per-entry TTL.
type MemoryStore struct {
	mu  sync.Mutex
	cap int
	ttl time.Duration
	now func() time.Time

	// Doubly-linked list for LRU ordering (most recent at head).
	head, tail *lruEntry
	items      map[string]*lruEntry
}

type lruEntry struct {
	key     string
	value   []byte
	expires time.Time // zero means no expiry
	prev    *lruEntry
	next    *lruEntry
}

// NewMemoryStore creates an LRU cache holding at most capacity entries.
// Capacity must be >= 1; a zero ttl keeps entries until they are evicted.
func NewMemoryStore(capacity int, ttl time.Duration) *MemoryStore {
	if capacity < 1 {
		capacity = 1
	}
	return &MemoryStore{
		cap:   capacity,
		ttl:   ttl,
		now:   time.Now,
		items: make(map[string]*lruEntry, capacity),
	}
}

// Get returns a copy of the value stored under key.
func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.items[key]
	if !ok {
		return nil, ErrNotFound
	}
	if s.expired(e) {
		s.remove(e)
		delete(s.items, key)
		return nil, ErrNotFound
	}
	s.moveToFront(e)
	return append([]byte(nil), e.value...), nil
}

// Put stores a copy of value under key, evicting the least recently used
// entry when the store is full.
func (s *MemoryStore) Put(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := append([]byte(nil), value...)
	var expires time.Time
	if s.ttl > 0 {
		expires = s.now().Add(s.ttl)
	}

	if e, ok := s.items[key]; ok {
		e.value = v
		e.expires = expires
		s.moveToFront(e)
		return nil
	}
	e := &lruEntry{key: key, value: v, expires: expires}
	s.items[key] = e
	s.pushFront(e)
	if len(s.items) > s.cap {
		s.evict()
	}
	return nil
}

// Remove deletes keys; missing keys are ignored.
func (s *MemoryStore) Remove(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range keys {
		if e, ok := s.items[key]; ok {
			s.remove(e)
			delete(s.items, key)
		}
	}
	return nil
}

// Len reports the number of entries, including expired ones not yet purged.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

func (s *MemoryStore) expired(e *lruEntry) bool {
	return !e.expires.IsZero() && !s.now().Before(e.expires)
}

func (s *MemoryStore) pushFront(e *lruEntry) {
	e.prev = nil
	e.next = s.head
	if s.head != nil {
		s.head.prev = e
	}
	s.head = e
	if s.tail == nil {
		s.tail = e
	}
}

func (s *MemoryStore) moveToFront(e *lruEntry) {
	if s.head == e {
		return
	}
	s.remove(e)
	s.pushFront(e)
}

func (s *MemoryStore) remove(e *lruEntry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		s.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		s.tail = e.prev
	}
	e.prev = nil
	e.next = nil
}

func (s *MemoryStore) evict() {
	if s.tail == nil {
		return
	}
	e := s.tail
	s.remove(e)
	delete(s.items, e.key)
}
