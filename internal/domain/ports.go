package domain

import (
	"context"
	"time"
)

// BlobStore - локальное key-value хранилище, в котором корзина лежит одним сериализованным значением.
type BlobStore interface {
	// Load возвращает значение по ключу или ErrBlobNotFound.
	Load(ctx context.Context, key string) ([]byte, error)
	// Save целиком перезаписывает значение по ключу.
	Save(ctx context.Context, key string, data []byte) error
}

// PaymentGateway описывает взаимодействие с удалённым платёжным процессором.
type PaymentGateway interface {
	// EnsureCustomerID возвращает existing, если он задан, иначе создаёт покупателя у процессора.
	EnsureCustomerID(ctx context.Context, existing string) (string, error)
	// CreateIntent резервирует платёж на amountMinor минимальных единиц валюты.
	CreateIntent(ctx context.Context, customerID string, amountMinor int64, currency string) (PaymentIntent, error)
}

// OrderLedger - журнал оплаченных заказов с разбивкой по пользователям (append-only).
type OrderLedger interface {
	// WriteOrder атомарно создаёт заказ. Возвращает ErrOrderExists, если ID уже занят.
	WriteOrder(ctx context.Context, order Order) error
	// GetOrders возвращает все заказы пользователя; порядок не гарантируется.
	GetOrders(ctx context.Context, userID string) ([]Order, error)
}

// CustomerStore хранит записи покупателей (владелец - внешний провайдер аутентификации).
type CustomerStore interface {
	Get(ctx context.Context, userID string) (Customer, error)
	Save(ctx context.Context, customer Customer) error
}

// Catalog - внешний каталог товаров, доступный ядру только на чтение.
type Catalog interface {
	Get(ctx context.Context, productID string) (Product, error)
	// List возвращает товары категории; пустая категория означает весь каталог.
	List(ctx context.Context, category string) ([]Product, error)
}

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(ctx context.Context, event OutboxMessage) error
}

// OutboxRepository позволяет сохранять события для последующей публикации.
type OutboxRepository interface {
	Enqueue(ctx context.Context, msg OutboxMessage) (OutboxMessage, error)
	// PullPending возвращает до limit pending сообщений в порядке постановки.
	PullPending(ctx context.Context, limit int) ([]OutboxMessage, error)
	Stats(ctx context.Context) (OutboxStats, error)
	MarkSent(ctx context.Context, id string) error
	// MarkFailed переводит сообщение в failed и сохраняет причину.
	MarkFailed(ctx context.Context, id, reason string) error
}

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}
