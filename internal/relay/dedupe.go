package relay

import "sync"

// seenSet remembers recently consumed message IDs so retried fanout
// deliveries are dropped at the point of consumption. Bounded by a ring:
// when full, the oldest remembered ID is forgotten.
type seenSet struct {
	mu   sync.Mutex
	ids  map[string]bool
	ring []string
	next int
}

func newSeenSet(capacity int) *seenSet {
	return &seenSet{
		ids:  make(map[string]bool, capacity),
		ring: make([]string, capacity),
	}
}

// observe records id and reports whether it was already seen.
func (s *seenSet) observe(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ids[id] {
		return true
	}
	if old := s.ring[s.next]; old != "" {
		delete(s.ids, old)
	}
	s.ring[s.next] = id
	s.next = (s.next + 1) % len(s.ring)
	s.ids[id] = true
	return false
}
