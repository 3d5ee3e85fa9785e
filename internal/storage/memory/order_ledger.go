package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// orderLedgerInMemory - простая in-memory реализация OrderLedger.
type orderLedgerInMemory struct {
	mu     sync.RWMutex
	items  map[string]domain.Order
	byUser map[string][]string
}

// NewOrderLedger возвращает in-memory журнал заказов для локальной разработки и тестов.
func NewOrderLedger() domain.OrderLedger {
	return &orderLedgerInMemory{
		items:  make(map[string]domain.Order),
		byUser: make(map[string][]string),
	}
}

// WriteOrder сохраняет новый заказ, если ID ещё не занят.
func (r *orderLedgerInMemory) WriteOrder(ctx context.Context, order domain.Order) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if order.ID == "" {
		return domain.ErrOrderIDRequired
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[order.ID]; exists {
		return domain.ErrOrderExists
	}
	// Сохраняем копию, чтобы избежать непредсказуемых мутаций извне.
	order.Lines = domain.CloneLines(order.Lines)
	r.items[order.ID] = order
	r.byUser[order.UserID] = append(r.byUser[order.UserID], order.ID)
	return nil
}

// GetOrders возвращает заказы пользователя, новые первыми.
func (r *orderLedgerInMemory) GetOrders(ctx context.Context, userID string) ([]domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := r.byUser[userID]
	result := make([]domain.Order, 0, len(ids))
	for _, id := range ids {
		order := r.items[id]
		order.Lines = domain.CloneLines(order.Lines)
		result = append(result, order)
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID > result[j].ID
	})
	return result, nil
}

var _ domain.OrderLedger = (*orderLedgerInMemory)(nil)
