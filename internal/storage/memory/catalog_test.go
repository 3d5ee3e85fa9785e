package memory_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
)

func TestCatalog_GetAndList(t *testing.T) {
	now := time.Now().UTC()
	catalog, err := memory.NewCatalog(
		domain.Product{ID: "p-1", Category: "kitchen", Name: "Mug", Price: decimal.RequireFromString("10.00"), CreatedAt: now.Add(-time.Hour)},
		domain.Product{ID: "p-2", Category: "kitchen", Name: "Pan", Price: decimal.RequireFromString("35.50"), CreatedAt: now},
		domain.Product{ID: "p-3", Category: "garden", Name: "Hose", Price: decimal.RequireFromString("12.00"), CreatedAt: now},
	)
	if err != nil {
		t.Fatalf("new catalog failed: %v", err)
	}
	ctx := context.Background()

	product, err := catalog.Get(ctx, "p-2")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if product.Name != "Pan" {
		t.Fatalf("unexpected product %+v", product)
	}
	if _, err := catalog.Get(ctx, "missing"); !errors.Is(err, domain.ErrProductNotFound) {
		t.Fatalf("expected ErrProductNotFound, got %v", err)
	}

	kitchen, _ := catalog.List(ctx, "kitchen")
	if len(kitchen) != 2 || kitchen[0].ID != "p-2" {
		t.Fatalf("expected newest kitchen product first, got %+v", kitchen)
	}
	all, _ := catalog.List(ctx, "")
	if len(all) != 3 {
		t.Fatalf("expected 3 products, got %d", len(all))
	}
}

func TestCatalog_RejectsInvalidProduct(t *testing.T) {
	_, err := memory.NewCatalog(domain.Product{ID: "p-1", Price: decimal.RequireFromString("-1")})
	if !errors.Is(err, domain.ErrPriceNegative) {
		t.Fatalf("expected ErrPriceNegative, got %v", err)
	}
}

func TestLoadCatalogFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.json")
	seed := `[{"id":"p-1","category":"kitchen","name":"Mug","price":"10.00","created_at":"2026-01-01T00:00:00Z"}]`
	if err := os.WriteFile(path, []byte(seed), 0o600); err != nil {
		t.Fatalf("write seed: %v", err)
	}

	catalog, err := memory.LoadCatalogFile(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	product, err := catalog.Get(context.Background(), "p-1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if !product.Price.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("unexpected price %s", product.Price)
	}

	if _, err := memory.LoadCatalogFile(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatal("expected error for missing seed file")
	}
}
