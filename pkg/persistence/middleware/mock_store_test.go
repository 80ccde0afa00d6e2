package middleware_test

import (
	"context"
	"sort"
	"sync"

	"github.com/aretw0/tutorgraph/pkg/domain"
)

type memoryStore struct {
	mu   sync.Mutex
	data map[string]domain.State
}

func newMemoryStore() *memoryStore {
	return &memoryStore{data: make(map[string]domain.State)}
}

func (s *memoryStore) Save(_ context.Context, id string, state domain.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[id] = state.Clone()
	return nil
}

func (s *memoryStore) Load(_ context.Context, id string) (domain.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.data[id]
	if !ok {
		return domain.State{}, domain.ErrSessionNotFound
	}
	return state.Clone(), nil
}

func (s *memoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, id)
	return nil
}

func (s *memoryStore) List(context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.data))
	for id := range s.data {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}
