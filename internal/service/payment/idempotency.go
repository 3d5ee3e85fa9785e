package payment

import "context"

type idempotencyKeyCtx struct{}

// WithIdempotencyKey кладёт idempotency key вызова процессора в контекст.
func WithIdempotencyKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, idempotencyKeyCtx{}, key)
}

// IdempotencyKeyFrom возвращает ключ из контекста или пустую строку.
func IdempotencyKeyFrom(ctx context.Context) string {
	key, _ := ctx.Value(idempotencyKeyCtx{}).(string)
	return key
}
