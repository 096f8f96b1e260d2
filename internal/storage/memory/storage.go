// Package memory is an in-process object store used by tests and local runs.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/aliskhannn/image-distributor/internal/storage"
)

// Storage keeps objects in a map keyed by container and key.
type Storage struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

// NewStorage creates an empty store.
func NewStorage() *Storage {
	return &Storage{objects: make(map[string][]byte)}
}

func id(container, key string) string { return container + "/" + key }

// Put stores a copy of data.
func (s *Storage) Put(_ context.Context, container, key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.objects[id(container, key)] = append([]byte(nil), data...)
	return nil
}

// Get returns a copy of the stored object.
func (s *Storage) Get(_ context.Context, container, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.objects[id(container, key)]
	if !ok {
		return nil, fmt.Errorf("%s: %w", id(container, key), storage.ErrNotFound)
	}
	return append([]byte(nil), data...), nil
}

// Len returns the number of stored objects.
func (s *Storage) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}
