// Package objectstore is the object-storage boundary for project assets.
// Every asset a project owns lives under the key prefix "projects/{id}/",
// and purge operates purely on that prefix.
package objectstore

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// Store abstracts the bucket operations the pipeline needs.
type Store interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
	List(ctx context.Context, prefix string) ([]string, error)
	// DeletePrefix removes every object under prefix. Deleting an empty
	// prefix is success.
	DeletePrefix(ctx context.Context, prefix string) error
}

// ProjectPrefix returns the asset prefix owned by a project.
func ProjectPrefix(projectID string) string {
	return "projects/" + projectID + "/"
}

// MemoryStore is the in-process Store used by tests.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string][]byte)}
}

func (s *MemoryStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	s.objects[key] = cp
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.objects[key]
	if !ok {
		return nil, &NotFoundError{Key: key}
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	return cp, nil
}

func (s *MemoryStore) List(ctx context.Context, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var keys []string
	for k := range s.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *MemoryStore) DeletePrefix(ctx context.Context, prefix string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k := range s.objects {
		if strings.HasPrefix(k, prefix) {
			delete(s.objects, k)
		}
	}
	return nil
}

// NotFoundError reports a missing object key.
type NotFoundError struct {
	Key string
}

func (e *NotFoundError) Error() string { return "object not found: " + e.Key }
