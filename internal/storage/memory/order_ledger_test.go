package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
)

func newOrder(id, userID string, createdAt time.Time) domain.Order {
	line := domain.CartLine{
		ID:       "line-1",
		Product:  domain.Product{ID: "p-1", Name: "Mug", Price: decimal.RequireFromString("10.00")},
		Quantity: 2,
	}
	return domain.Order{
		ID:            id,
		UserID:        userID,
		Lines:         []domain.CartLine{line},
		Total:         decimal.RequireFromString("20.00"),
		Currency:      "eur",
		AmountMinor:   2000,
		Status:        domain.OrderStatusPlaced,
		PaymentStatus: domain.PaymentStatusPaid,
		ShippingAddress: domain.ShippingAddress{
			FullName: "Ada Lovelace", Address: "1 Main St", City: "London", PostalCode: "N1",
		},
		CreatedAt: createdAt,
	}
}

func TestOrderLedger_WriteAndGet(t *testing.T) {
	ledger := memory.NewOrderLedger()
	ctx := context.Background()
	now := time.Now().UTC()

	if err := ledger.WriteOrder(ctx, newOrder("order-1", "user-1", now.Add(-time.Hour))); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if err := ledger.WriteOrder(ctx, newOrder("order-2", "user-1", now)); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if err := ledger.WriteOrder(ctx, newOrder("order-3", "user-2", now)); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	orders, err := ledger.GetOrders(ctx, "user-1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if len(orders) != 2 {
		t.Fatalf("expected 2 orders, got %d", len(orders))
	}
	if orders[0].ID != "order-2" {
		t.Fatalf("expected newest order first, got %s", orders[0].ID)
	}
	if !orders[1].Total.Equal(decimal.RequireFromString("20")) {
		t.Fatalf("unexpected total %s", orders[1].Total)
	}
}

func TestOrderLedger_DuplicateID(t *testing.T) {
	ledger := memory.NewOrderLedger()
	ctx := context.Background()
	order := newOrder("order-1", "user-1", time.Now())

	if err := ledger.WriteOrder(ctx, order); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if err := ledger.WriteOrder(ctx, order); !errors.Is(err, domain.ErrOrderExists) {
		t.Fatalf("expected ErrOrderExists, got %v", err)
	}

	orders, _ := ledger.GetOrders(ctx, "user-1")
	if len(orders) != 1 {
		t.Fatalf("duplicate write must not append, got %d orders", len(orders))
	}
}

func TestOrderLedger_UnknownUser(t *testing.T) {
	orders, err := memory.NewOrderLedger().GetOrders(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if len(orders) != 0 {
		t.Fatalf("expected no orders, got %d", len(orders))
	}
}

func TestOrderLedger_StoresCopy(t *testing.T) {
	ledger := memory.NewOrderLedger()
	ctx := context.Background()
	order := newOrder("order-1", "user-1", time.Now())

	if err := ledger.WriteOrder(ctx, order); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	order.Lines[0].Quantity = 99

	orders, _ := ledger.GetOrders(ctx, "user-1")
	if orders[0].Lines[0].Quantity != 2 {
		t.Fatalf("ledger must not share line slice with caller")
	}
}

func TestOrderLedger_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := memory.NewOrderLedger().WriteOrder(ctx, newOrder("order-1", "user-1", time.Now())); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
