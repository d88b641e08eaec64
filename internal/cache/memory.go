package cache

import (
	"context"
	"sync"
)

// MemoryStore garde les paniers en mémoire (mode local, sans Redis).
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

func (m *MemoryStore) Namespace(namespace string) Storage {
	return &memoryStorage{store: m, namespace: namespace}
}

type memoryStorage struct {
	store     *MemoryStore
	namespace string
}

func (s *memoryStorage) Get(_ context.Context, key string) ([]byte, error) {
	s.store.mu.RLock()
	defer s.store.mu.RUnlock()

	data, ok := s.store.data[s.key(key)]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (s *memoryStorage) Set(_ context.Context, key string, value []byte) error {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()

	stored := make([]byte, len(value))
	copy(stored, value)
	s.store.data[s.key(key)] = stored
	return nil
}

func (s *memoryStorage) Delete(_ context.Context, key string) error {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()

	delete(s.store.data, s.key(key))
	return nil
}

func (s *memoryStorage) key(key string) string {
	if s.namespace == "" {
		return key
	}
	return key + ":" + s.namespace
}
