package payment

import (
	"context"
	"fmt"
	"sync"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// MockGateway - конфигурируемая заглушка PaymentGateway для тестов и локального запуска.
type MockGateway struct {
	mu sync.Mutex

	CustomerErr error
	IntentErr   error

	CustomerCalls int
	IntentCalls   int
	LastAmount    int64
	LastCurrency  string
	LastKeys      []string
	CustomerKeys  []string
}

// NewMockGateway возвращает mock с успешным сценарием по умолчанию.
func NewMockGateway() *MockGateway {
	return &MockGateway{}
}

// EnsureCustomerID возвращает existing или выдаёт новый идентификатор вида cus_mock_N.
func (m *MockGateway) EnsureCustomerID(ctx context.Context, existing string) (string, error) {
	if existing != "" {
		return existing, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CustomerCalls++
	m.CustomerKeys = append(m.CustomerKeys, IdempotencyKeyFrom(ctx))
	if m.CustomerErr != nil {
		return "", m.CustomerErr
	}
	return fmt.Sprintf("cus_mock_%d", m.CustomerCalls), nil
}

// CreateIntent возвращает заранее настроенный результат и считает вызовы.
func (m *MockGateway) CreateIntent(ctx context.Context, customerID string, amountMinor int64, currency string) (domain.PaymentIntent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.IntentCalls++
	m.LastAmount = amountMinor
	m.LastCurrency = currency
	m.LastKeys = append(m.LastKeys, IdempotencyKeyFrom(ctx))
	if m.IntentErr != nil {
		return domain.PaymentIntent{}, m.IntentErr
	}
	id := fmt.Sprintf("pi_mock_%d", m.IntentCalls)
	return domain.PaymentIntent{
		ID:           id,
		ClientSecret: id + "_secret",
		CustomerID:   customerID,
		AmountMinor:  amountMinor,
		Currency:     currency,
	}, nil
}

// SetIntentErr потокобезопасно задаёт ошибку создания intent.
func (m *MockGateway) SetIntentErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.IntentErr = err
}

// Calls возвращает счётчики вызовов.
func (m *MockGateway) Calls() (customers, intents int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.CustomerCalls, m.IntentCalls
}

var _ domain.PaymentGateway = (*MockGateway)(nil)
