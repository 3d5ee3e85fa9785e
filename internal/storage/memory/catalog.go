package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// Catalog - in-memory каталог товаров, доступный ядру только на чтение.
type Catalog struct {
	mu       sync.RWMutex
	products map[string]domain.Product
}

// NewCatalog создаёт каталог из переданных товаров. Невалидные товары отклоняются.
func NewCatalog(products ...domain.Product) (*Catalog, error) {
	c := &Catalog{products: make(map[string]domain.Product, len(products))}
	for _, p := range products {
		if errs := p.Validate(); len(errs) > 0 {
			return nil, fmt.Errorf("product %q: %w", p.ID, errors.Join(errs...))
		}
		c.products[p.ID] = p
	}
	return c, nil
}

// LoadCatalogFile читает JSON-массив товаров из файла.
func LoadCatalogFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog seed: %w", err)
	}
	var products []domain.Product
	if err := json.Unmarshal(data, &products); err != nil {
		return nil, fmt.Errorf("decode catalog seed: %w", err)
	}
	return NewCatalog(products...)
}

// Get возвращает товар или ErrProductNotFound.
func (c *Catalog) Get(_ context.Context, productID string) (domain.Product, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	p, ok := c.products[productID]
	if !ok {
		return domain.Product{}, domain.ErrProductNotFound
	}
	return p, nil
}

// List возвращает товары категории (весь каталог при пустой категории), новые первыми.
func (c *Catalog) List(_ context.Context, category string) ([]domain.Product, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make([]domain.Product, 0, len(c.products))
	for _, p := range c.products {
		if category != "" && p.Category != category {
			continue
		}
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

var _ domain.Catalog = (*Catalog)(nil)
