package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const integrationDSNEnv = "STOREFRONT_POSTGRES_TEST_DSN"

// openRawStoreForIntegrationTest подключается к базе из STOREFRONT_POSTGRES_TEST_DSN
// и пропускает тест, если переменная не задана или база недоступна.
func openRawStoreForIntegrationTest(t *testing.T) *Store {
	t.Helper()

	dsn := os.Getenv(integrationDSNEnv)
	if dsn == "" {
		t.Skipf("%s is not set", integrationDSNEnv)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	store, err := Open(ctx, dsn, WithMaxConns(4))
	if err != nil {
		t.Skipf("postgres is not reachable: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// openStoreForIntegrationTest возвращает мигрированную базу с пустыми таблицами журнала.
func openStoreForIntegrationTest(t *testing.T) *Store {
	t.Helper()

	store := openRawStoreForIntegrationTest(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	require.NoError(t, store.MigrateUp(ctx, 0))
	_, err := store.DB().ExecContext(ctx, `TRUNCATE TABLE outbox_events, order_lines, orders CASCADE`)
	require.NoError(t, err)
	return store
}
