// Package dedup provides bounded event deduplication with a durable snapshot.
package dedup

import (
	"time"

	"github.com/whalewatch/engine/internal/store"
)

// DefaultCapacity is the number of event IDs retained before eviction.
const DefaultCapacity = 5000

// SeenStore remembers which event IDs have already been processed. Membership
// is O(1); once capacity is reached the oldest remembered ID is evicted.
// The store is owned by the engine loop and is not safe for concurrent use.
type SeenStore struct {
	capacity int
	seen     map[string]struct{}
	order    []string // FIFO ring over seen insertion order
	head     int
	size     int
}

// NewSeenStore creates a SeenStore with the given capacity.
func NewSeenStore(capacity int) *SeenStore {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	return &SeenStore{
		capacity: capacity,
		seen:     make(map[string]struct{}, capacity),
		order:    make([]string, capacity),
	}
}

// Seen reports whether id has been observed before.
func (s *SeenStore) Seen(id string) bool {
	_, ok := s.seen[id]
	return ok
}

// Mark records id as observed. Marking an already-seen id is a no-op, so a
// duplicate never refreshes its position in the eviction order. Returns true
// if the id was newly recorded.
func (s *SeenStore) Mark(id string) bool {
	if _, ok := s.seen[id]; ok {
		return false
	}

	if s.size == s.capacity {
		oldest := s.order[s.head]
		delete(s.seen, oldest)
		s.order[s.head] = id
		s.head = (s.head + 1) % s.capacity
	} else {
		s.order[(s.head+s.size)%s.capacity] = id
		s.size++
	}

	s.seen[id] = struct{}{}
	return true
}

// Len returns the number of remembered IDs.
func (s *SeenStore) Len() int {
	return s.size
}

// IDs returns the remembered IDs in insertion order, oldest first.
func (s *SeenStore) IDs() []string {
	out := make([]string, 0, s.size)
	for i := 0; i < s.size; i++ {
		out = append(out, s.order[(s.head+i)%s.capacity])
	}
	return out
}

// Admit decides whether an event should be processed: unseen and within the
// age window relative to now. Admitted events are marked as seen. Stale
// events are also marked so they are never reconsidered.
func (s *SeenStore) Admit(ev store.Event, now time.Time, ageWindow time.Duration) bool {
	if s.Seen(ev.ID) {
		return false
	}
	s.Mark(ev.ID)
	if ageWindow > 0 && now.Sub(ev.Timestamp) > ageWindow {
		return false
	}
	return true
}
