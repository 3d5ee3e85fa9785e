package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	// AggregateOrder - тип агрегата для событий заказа в outbox.
	AggregateOrder = "order"
	// EventTypeOrderPlaced - оплаченный заказ записан в журнал.
	EventTypeOrderPlaced = "order.placed"
)

// OrderPlacedEvent - полезная нагрузка события order.placed.
type OrderPlacedEvent struct {
	OrderID         string          `json:"order_id"`
	UserID          string          `json:"user_id"`
	Total           decimal.Decimal `json:"total"`
	Currency        string          `json:"currency"`
	AmountMinor     int64           `json:"amount_minor"`
	PaymentIntentID string          `json:"payment_intent_id"`
	LineCount       int             `json:"line_count"`
	PlacedAt        time.Time       `json:"placed_at"`
}

// NewOrderPlacedEvent собирает событие по записанному заказу.
func NewOrderPlacedEvent(order Order) OrderPlacedEvent {
	return OrderPlacedEvent{
		OrderID:         order.ID,
		UserID:          order.UserID,
		Total:           order.Total,
		Currency:        order.Currency,
		AmountMinor:     order.AmountMinor,
		PaymentIntentID: order.PaymentIntentID,
		LineCount:       len(order.Lines),
		PlacedAt:        order.CreatedAt,
	}
}
