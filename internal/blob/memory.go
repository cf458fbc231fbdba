package blob

import (
	"context"
	"fmt"
	"io"
	"sync"
)

// MemoryStore keeps written objects in memory for tests.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

// NewMemory returns an empty MemoryStore.
func NewMemory() *MemoryStore {
	return &MemoryStore{objects: make(map[string][]byte)}
}

// PutObject records the object and returns a mem:// URI.
func (s *MemoryStore) PutObject(_ context.Context, path string, _ string, r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read data: %w", err)
	}
	s.mu.Lock()
	s.objects[path] = data
	s.mu.Unlock()
	return fmt.Sprintf("mem://%s", path), nil
}

// Object returns the stored bytes for path.
func (s *MemoryStore) Object(path string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.objects[path]
	return data, ok
}
