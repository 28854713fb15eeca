package roster

import (
	"context"
	"sort"
	"sync"
)

// MemoryRoster is a process-local Roster for tests and degraded runs.
type MemoryRoster struct {
	mu     sync.Mutex
	online map[string]bool
}

// NewMemoryRoster creates an empty roster.
func NewMemoryRoster() *MemoryRoster {
	return &MemoryRoster{online: make(map[string]bool)}
}

func (r *MemoryRoster) MarkOnline(_ context.Context, userID string) error {
	r.mu.Lock()
	r.online[userID] = true
	r.mu.Unlock()
	return nil
}

func (r *MemoryRoster) MarkOffline(_ context.Context, userID string) error {
	r.mu.Lock()
	delete(r.online, userID)
	r.mu.Unlock()
	return nil
}

func (r *MemoryRoster) IsOnline(_ context.Context, userID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.online[userID], nil
}

func (r *MemoryRoster) Online(_ context.Context) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	users := make([]string, 0, len(r.online))
	for u := range r.online {
		users = append(users, u)
	}
	sort.Strings(users)
	return users, nil
}
