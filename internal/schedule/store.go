package schedule

import (
	"context"
	"sync"
)

// Store persists one schedule document per user. Load returns an empty list,
// not an error, for a user that has never saved.
type Store interface {
	Save(ctx context.Context, userID string, items []Item) error
	Load(ctx context.Context, userID string) ([]Item, error)
}

type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string][]Item
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: map[string][]Item{}}
}

func (s *MemoryStore) Save(_ context.Context, userID string, items []Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[userID] = cloneItems(items)
	return nil
}

func (s *MemoryStore) Load(_ context.Context, userID string) ([]Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneItems(s.docs[userID]), nil
}

func cloneItems(items []Item) []Item {
	out := make([]Item, len(items))
	for i, it := range items {
		it.Days = append([]Day(nil), it.Days...)
		out[i] = it
	}
	return out
}
