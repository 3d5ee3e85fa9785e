package checkout

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
	"github.com/vladislavdragonenkov/storefront/internal/service/payment"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
)

func newTestSessions(t *testing.T, blobs domain.BlobStore) *Sessions {
	t.Helper()
	sessions, err := NewSessions(SessionConfig{
		Blobs:     blobs,
		Gateway:   payment.NewMockGateway(),
		Ledger:    memory.NewOrderLedger(),
		Customers: memory.NewCustomerStore(),
		Currency:  "eur",
	}, nil)
	require.NoError(t, err)
	return sessions
}

func TestSessions_OnePerUser(t *testing.T) {
	sessions := newTestSessions(t, memory.NewBlobStore())
	ctx := context.Background()

	first, err := sessions.Get(ctx, "user-1")
	require.NoError(t, err)
	again, err := sessions.Get(ctx, "user-1")
	require.NoError(t, err)
	other, err := sessions.Get(ctx, "user-2")
	require.NoError(t, err)

	assert.Same(t, first, again)
	assert.NotSame(t, first.Cart, other.Cart)
	assert.Equal(t, 2, sessions.Len())

	_, err = sessions.Get(ctx, "")
	require.ErrorIs(t, err, domain.ErrCustomerRequired)
}

func TestSessions_CartSurvivesClose(t *testing.T) {
	blobs := memory.NewBlobStore()
	sessions := newTestSessions(t, blobs)
	ctx := context.Background()

	session, err := sessions.Get(ctx, "user-1")
	require.NoError(t, err)
	_, err = session.Cart.Add(ctx, productP, 2)
	require.NoError(t, err)

	require.NoError(t, sessions.Close("user-1"))
	assert.Zero(t, sessions.Len())

	reopened, err := sessions.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.NotSame(t, session, reopened)
	lines := reopened.Cart.GetAll()
	require.Len(t, lines, 1)
	assert.Equal(t, 2, lines[0].Quantity)
}

func TestSessions_CloseKeepsUnwrittenPaidOrder(t *testing.T) {
	sessions := newTestSessions(t, memory.NewBlobStore())
	ctx := context.Background()

	session, err := sessions.Get(ctx, "user-1")
	require.NoError(t, err)
	session.Checkout.mu.Lock()
	session.Checkout.state = StateOrderWriteFailed
	session.Checkout.mu.Unlock()

	require.ErrorIs(t, sessions.Close("user-1"), domain.ErrFinalizeInFlight)
	assert.Equal(t, 1, sessions.Len())
	require.NoError(t, sessions.Close("missing"))
}

func TestSessions_EvictIdle(t *testing.T) {
	sessions := newTestSessions(t, memory.NewBlobStore())
	ctx := context.Background()

	base := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	now := base
	sessions.now = func() time.Time { return now }

	_, err := sessions.Get(ctx, "idle")
	require.NoError(t, err)
	paid, err := sessions.Get(ctx, "paid")
	require.NoError(t, err)
	paid.Checkout.mu.Lock()
	paid.Checkout.state = StateOrderWriteFailed
	paid.Checkout.mu.Unlock()

	now = base.Add(20 * time.Minute)
	_, err = sessions.Get(ctx, "active")
	require.NoError(t, err)

	evicted := sessions.EvictIdle(base.Add(10 * time.Minute))
	assert.Equal(t, 1, evicted)
	assert.Equal(t, 2, sessions.Len())

	// Обращение продлевает жизнь сессии.
	now = base.Add(40 * time.Minute)
	_, err = sessions.Get(ctx, "active")
	require.NoError(t, err)
	assert.Zero(t, sessions.EvictIdle(base.Add(30*time.Minute)))
}

func TestSessions_EvictIdleKeepsPaidSessions(t *testing.T) {
	for _, state := range []State{StateCompleted, StateOrderPending, StateOrderWriteFailed} {
		t.Run(string(state), func(t *testing.T) {
			sessions := newTestSessions(t, memory.NewBlobStore())
			base := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
			sessions.now = func() time.Time { return base }

			session, err := sessions.Get(context.Background(), "user-1")
			require.NoError(t, err)
			session.Checkout.mu.Lock()
			session.Checkout.state = state
			session.Checkout.mu.Unlock()

			assert.Zero(t, sessions.EvictIdle(base.Add(time.Hour)))
			assert.Equal(t, 1, sessions.Len())
			assert.ErrorIs(t, sessions.Close("user-1"), domain.ErrFinalizeInFlight)
		})
	}
}

func TestReaper_ReapOnceRecordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewCheckoutMetricsWithRegisterer(reg)
	sessions, err := NewSessions(SessionConfig{
		Blobs:     memory.NewBlobStore(),
		Gateway:   payment.NewMockGateway(),
		Ledger:    memory.NewOrderLedger(),
		Customers: memory.NewCustomerStore(),
		Metrics:   m,
		Currency:  "EUR",
	}, nil)
	require.NoError(t, err)

	base := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	now := base
	sessions.now = func() time.Time { return now }
	_, err = sessions.Get(context.Background(), "user-1")
	require.NoError(t, err)

	reaper := NewReaper(sessions, WithIdleTTL(time.Minute), WithReaperMetrics(m))
	now = base.Add(30 * time.Second)
	assert.Zero(t, reaper.ReapOnce())

	now = base.Add(2 * time.Minute)
	assert.Equal(t, 1, reaper.ReapOnce())
	assert.Equal(t, 1.0, gatherValue(t, reg, "storefront_checkout_sessions_evicted_total"))
	assert.Equal(t, 0.0, gatherValue(t, reg, "storefront_checkout_sessions_active"))
}

func TestReaper_RunStopsOnCancel(t *testing.T) {
	sessions := newTestSessions(t, memory.NewBlobStore())
	reaper := NewReaper(sessions, WithReapInterval(5*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		reaper.Run(ctx)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("reaper did not stop after cancel")
	}
}
