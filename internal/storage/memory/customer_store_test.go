package memory_test

import (
	"context"
	"errors"
	"testing"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
)

func TestCustomerStore_SaveGet(t *testing.T) {
	store := memory.NewCustomerStore()
	ctx := context.Background()

	if _, err := store.Get(ctx, "user-1"); !errors.Is(err, domain.ErrCustomerNotFound) {
		t.Fatalf("expected ErrCustomerNotFound, got %v", err)
	}

	customer := domain.Customer{ID: "user-1", Email: "ada@example.com"}
	if err := store.Save(ctx, customer); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	customer.PaymentCustomerID = "cus_1"
	if err := store.Save(ctx, customer); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	got, err := store.Get(ctx, "user-1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got != customer {
		t.Fatalf("expected %+v, got %+v", customer, got)
	}

	if err := store.Save(ctx, domain.Customer{}); !errors.Is(err, domain.ErrCustomerRequired) {
		t.Fatalf("expected ErrCustomerRequired, got %v", err)
	}
}
