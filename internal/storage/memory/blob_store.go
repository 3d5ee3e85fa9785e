package memory

import (
	"context"
	"sync"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// blobStoreInMemory - in-memory реализация BlobStore для локальной разработки и тестов.
type blobStoreInMemory struct {
	mu    sync.RWMutex
	items map[string][]byte
}

// NewBlobStore возвращает пустое in-memory хранилище.
func NewBlobStore() domain.BlobStore {
	return &blobStoreInMemory{items: make(map[string][]byte)}
}

// Load возвращает копию значения или ErrBlobNotFound.
func (s *blobStoreInMemory) Load(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.items[key]
	if !ok {
		return nil, domain.ErrBlobNotFound
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// Save перезаписывает значение по ключу.
func (s *blobStoreInMemory) Save(_ context.Context, key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := make([]byte, len(data))
	copy(stored, data)
	s.items[key] = stored
	return nil
}

var _ domain.BlobStore = (*blobStoreInMemory)(nil)
