package mongo

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// Catalog читает товары из коллекции products.
type Catalog struct {
	collection *mongo.Collection
}

// NewCatalog создаёт каталог поверх коллекции products.
func NewCatalog(store *Store) *Catalog {
	return &Catalog{collection: store.Database().Collection(productsCollection)}
}

// Get возвращает товар по ID или ErrProductNotFound.
func (c *Catalog) Get(ctx context.Context, productID string) (domain.Product, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var doc productDoc
	if err := c.collection.FindOne(ctx, bson.M{"_id": productID}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.Product{}, domain.ErrProductNotFound
		}
		return domain.Product{}, fmt.Errorf("find product: %w", err)
	}
	return doc.toDomain()
}

// List возвращает товары категории, новые первыми. Пустая категория означает весь каталог.
func (c *Catalog) List(ctx context.Context, category string) ([]domain.Product, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	filter := bson.M{}
	if category != "" {
		filter["category"] = category
	}
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: 1}})
	cursor, err := c.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find products: %w", err)
	}

	var docs []productDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode products: %w", err)
	}

	products := make([]domain.Product, 0, len(docs))
	for _, doc := range docs {
		product, err := doc.toDomain()
		if err != nil {
			return nil, err
		}
		products = append(products, product)
	}
	return products, nil
}

// Upsert сохраняет товар. Используется для начального наполнения каталога.
func (c *Catalog) Upsert(ctx context.Context, products ...domain.Product) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	for _, p := range products {
		if errs := p.Validate(); len(errs) > 0 {
			return fmt.Errorf("product %q: %w", p.ID, errors.Join(errs...))
		}
		_, err := c.collection.ReplaceOne(ctx, bson.M{"_id": p.ID}, newProductDoc(p), options.Replace().SetUpsert(true))
		if err != nil {
			return fmt.Errorf("upsert product %s: %w", p.ID, err)
		}
	}
	return nil
}

var _ domain.Catalog = (*Catalog)(nil)
