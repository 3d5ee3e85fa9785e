package payment

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

type scriptedGateway struct {
	mu       sync.Mutex
	errs     []error
	calls    int
	keys     []string
	customer string
}

func (s *scriptedGateway) next() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if len(s.errs) == 0 {
		return nil
	}
	err := s.errs[0]
	s.errs = s.errs[1:]
	return err
}

func (s *scriptedGateway) EnsureCustomerID(ctx context.Context, existing string) (string, error) {
	if existing != "" {
		return existing, nil
	}
	s.mu.Lock()
	s.keys = append(s.keys, IdempotencyKeyFrom(ctx))
	s.mu.Unlock()
	if err := s.next(); err != nil {
		return "", err
	}
	return s.customer, nil
}

func (s *scriptedGateway) CreateIntent(ctx context.Context, customerID string, amountMinor int64, currency string) (domain.PaymentIntent, error) {
	s.mu.Lock()
	s.keys = append(s.keys, IdempotencyKeyFrom(ctx))
	s.mu.Unlock()
	if err := s.next(); err != nil {
		return domain.PaymentIntent{}, err
	}
	return domain.PaymentIntent{ID: "pi_1", ClientSecret: "pi_1_secret", CustomerID: customerID, AmountMinor: amountMinor, Currency: currency}, nil
}

func fastRetry(attempts int) RetryConfig {
	return RetryConfig{MaxAttempts: attempts, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, BackoffFactor: 2}
}

func testEntry() *log.Entry {
	return log.New().WithField("test", "resilient-gateway")
}

func TestDefaultRetryConfig(t *testing.T) {
	cfg := DefaultRetryConfig()
	if cfg.MaxAttempts != 3 {
		t.Fatalf("unexpected MaxAttempts: %d", cfg.MaxAttempts)
	}
	if cfg.InitialDelay <= 0 || cfg.MaxDelay <= 0 {
		t.Fatalf("delays must be positive: %+v", cfg)
	}
	if cfg.BackoffFactor <= 1 {
		t.Fatalf("backoff factor should be > 1: %f", cfg.BackoffFactor)
	}
}

func TestResilientGateway_RetryThenSuccessReusesIdempotencyKey(t *testing.T) {
	next := &scriptedGateway{errs: []error{errors.New("timeout"), errors.New("reset")}}
	gw := NewResilientGateway(next, fastRetry(3), DefaultBreakerConfig(), testEntry())

	intent, err := gw.CreateIntent(context.Background(), "cus_1", 2000, "eur")
	require.NoError(t, err)
	assert.Equal(t, "pi_1", intent.ID)
	assert.Equal(t, 3, next.calls)

	require.Len(t, next.keys, 3)
	assert.NotEmpty(t, next.keys[0])
	assert.Equal(t, next.keys[0], next.keys[1])
	assert.Equal(t, next.keys[0], next.keys[2])
}

func TestResilientGateway_KeepsCallerIdempotencyKey(t *testing.T) {
	next := &scriptedGateway{}
	gw := NewResilientGateway(next, fastRetry(1), DefaultBreakerConfig(), testEntry())

	_, err := gw.CreateIntent(WithIdempotencyKey(context.Background(), "attempt-7"), "cus_1", 100, "eur")
	require.NoError(t, err)
	assert.Equal(t, []string{"attempt-7"}, next.keys)
}

func TestResilientGateway_ExhaustedRetriesClassifiedAsGatewayError(t *testing.T) {
	next := &scriptedGateway{errs: []error{errors.New("a"), errors.New("b"), errors.New("c")}}
	gw := NewResilientGateway(next, fastRetry(3), DefaultBreakerConfig(), testEntry())

	_, err := gw.CreateIntent(context.Background(), "cus_1", 100, "eur")
	require.Error(t, err)
	assert.True(t, domain.IsGatewayError(err))
	assert.Equal(t, 3, next.calls)
}

func TestResilientGateway_DeclineIsNotRetried(t *testing.T) {
	next := &scriptedGateway{errs: []error{domain.ErrPaymentFailed}}
	gw := NewResilientGateway(next, fastRetry(3), DefaultBreakerConfig(), testEntry())

	_, err := gw.CreateIntent(context.Background(), "cus_1", 100, "eur")
	require.ErrorIs(t, err, domain.ErrPaymentFailed)
	assert.False(t, domain.IsGatewayError(err))
	assert.Equal(t, 1, next.calls)
}

func TestResilientGateway_BreakerOpens(t *testing.T) {
	next := &scriptedGateway{errs: []error{errors.New("down"), errors.New("down"), errors.New("down")}}
	gw := NewResilientGateway(next, fastRetry(1), BreakerConfig{MaxFailures: 2, ResetTimeout: time.Minute}, testEntry())
	ctx := context.Background()
	assert.False(t, gw.BreakerOpen())

	for i := 0; i < 2; i++ {
		_, err := gw.CreateIntent(ctx, "cus_1", 100, "eur")
		require.Error(t, err)
	}

	_, err := gw.CreateIntent(ctx, "cus_1", 100, "eur")
	require.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.True(t, domain.IsGatewayError(err))
	assert.Equal(t, 2, next.calls)
	assert.True(t, gw.BreakerOpen())
}

func TestResilientGateway_EnsureCustomerID(t *testing.T) {
	next := &scriptedGateway{customer: "cus_new", errs: []error{errors.New("flaky")}}
	gw := NewResilientGateway(next, fastRetry(2), DefaultBreakerConfig(), testEntry())
	ctx := context.Background()

	id, err := gw.EnsureCustomerID(ctx, "cus_existing")
	require.NoError(t, err)
	assert.Equal(t, "cus_existing", id)
	assert.Equal(t, 0, next.calls)

	id, err = gw.EnsureCustomerID(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "cus_new", id)
	assert.Equal(t, 2, next.calls)
	require.Len(t, next.keys, 2)
	assert.NotEmpty(t, next.keys[0])
	assert.Equal(t, next.keys[0], next.keys[1])
}

func TestResilientGateway_ContextCanceledDuringBackoff(t *testing.T) {
	next := &scriptedGateway{errs: []error{errors.New("down"), errors.New("down")}}
	cfg := RetryConfig{MaxAttempts: 3, InitialDelay: time.Second, MaxDelay: time.Second, BackoffFactor: 2}
	gw := NewResilientGateway(next, cfg, DefaultBreakerConfig(), testEntry())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := gw.CreateIntent(ctx, "cus_1", 100, "eur")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, domain.IsGatewayError(err))
	assert.Equal(t, 1, next.calls)
}
