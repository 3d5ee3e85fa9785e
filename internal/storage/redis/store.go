// Package redis хранит корзины и записи покупателей в Redis.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const customerKeyPrefix = "customer:"

// Open создаёт клиента Redis и проверяет соединение.
func Open(ctx context.Context, addr, password string, db int) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}

// BlobStore - BlobStore поверх строковых ключей Redis.
type BlobStore struct {
	client *goredis.Client
	ttl    time.Duration
}

// NewBlobStore создаёт хранилище. ttl <= 0 означает хранение без срока.
func NewBlobStore(client *goredis.Client, ttl time.Duration) *BlobStore {
	return &BlobStore{client: client, ttl: ttl}
}

// Load возвращает значение по ключу или ErrBlobNotFound.
func (s *BlobStore) Load(ctx context.Context, key string) ([]byte, error) {
	data, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, domain.ErrBlobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}
	return data, nil
}

// Save целиком перезаписывает значение; TTL продлевается при каждой записи.
func (s *BlobStore) Save(ctx context.Context, key string, data []byte) error {
	ttl := s.ttl
	if ttl < 0 {
		ttl = 0
	}
	if err := s.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

// CustomerStore хранит покупателей в хэшах customer:<id>.
type CustomerStore struct {
	client *goredis.Client
}

// NewCustomerStore создаёт хранилище покупателей.
func NewCustomerStore(client *goredis.Client) *CustomerStore {
	return &CustomerStore{client: client}
}

// Get возвращает покупателя или ErrCustomerNotFound.
func (s *CustomerStore) Get(ctx context.Context, userID string) (domain.Customer, error) {
	fields, err := s.client.HGetAll(ctx, customerKey(userID)).Result()
	if err != nil {
		return domain.Customer{}, fmt.Errorf("redis hgetall failed: %w", err)
	}
	if len(fields) == 0 {
		return domain.Customer{}, domain.ErrCustomerNotFound
	}
	return domain.Customer{
		ID:                userID,
		Email:             fields["email"],
		PaymentCustomerID: fields["payment_customer_id"],
	}, nil
}

// Save создаёт или перезаписывает запись покупателя.
func (s *CustomerStore) Save(ctx context.Context, customer domain.Customer) error {
	if customer.ID == "" {
		return domain.ErrCustomerRequired
	}
	err := s.client.HSet(ctx, customerKey(customer.ID),
		"email", customer.Email,
		"payment_customer_id", customer.PaymentCustomerID,
	).Err()
	if err != nil {
		return fmt.Errorf("redis hset failed: %w", err)
	}
	return nil
}

func customerKey(userID string) string {
	return customerKeyPrefix + userID
}

var (
	_ domain.BlobStore     = (*BlobStore)(nil)
	_ domain.CustomerStore = (*CustomerStore)(nil)
)
