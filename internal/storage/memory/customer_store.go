package memory

import (
	"context"
	"sync"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// customerStoreInMemory - in-memory реализация CustomerStore.
type customerStoreInMemory struct {
	mu    sync.RWMutex
	items map[string]domain.Customer
}

// NewCustomerStore возвращает пустое хранилище покупателей.
func NewCustomerStore() domain.CustomerStore {
	return &customerStoreInMemory{items: make(map[string]domain.Customer)}
}

// Get возвращает покупателя или ErrCustomerNotFound.
func (s *customerStoreInMemory) Get(_ context.Context, userID string) (domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	customer, ok := s.items[userID]
	if !ok {
		return domain.Customer{}, domain.ErrCustomerNotFound
	}
	return customer, nil
}

// Save создаёт или перезаписывает запись покупателя.
func (s *customerStoreInMemory) Save(_ context.Context, customer domain.Customer) error {
	if customer.ID == "" {
		return domain.ErrCustomerRequired
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[customer.ID] = customer
	return nil
}

var _ domain.CustomerStore = (*customerStoreInMemory)(nil)
