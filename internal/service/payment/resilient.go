package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/sony/gobreaker/v2"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// RetryConfig конфигурация для retry логики вызовов шлюза.
type RetryConfig struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// DefaultRetryConfig возвращает конфигурацию по умолчанию.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:   3,
		InitialDelay:  100 * time.Millisecond,
		MaxDelay:      2 * time.Second,
		BackoffFactor: 2.0,
	}
}

// BreakerConfig задаёт параметры circuit breaker.
type BreakerConfig struct {
	// MaxFailures - число подряд идущих ошибок, после которого цепь размыкается.
	MaxFailures uint32
	// ResetTimeout - время в состоянии open до пробного запроса.
	ResetTimeout time.Duration
}

// DefaultBreakerConfig возвращает параметры circuit breaker по умолчанию.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{MaxFailures: 5, ResetTimeout: 30 * time.Second}
}

// ResilientGateway оборачивает PaymentGateway retry логикой и circuit breaker.
type ResilientGateway struct {
	next    domain.PaymentGateway
	config  RetryConfig
	breaker *gobreaker.CircuitBreaker[any]
	logger  *log.Entry
}

// NewResilientGateway создаёт шлюз с retry и circuit breaker.
func NewResilientGateway(next domain.PaymentGateway, retry RetryConfig, breaker BreakerConfig, logger *log.Entry) *ResilientGateway {
	if logger == nil {
		logger = log.New().WithField("component", "payment-gateway")
	}
	if retry.MaxAttempts <= 0 {
		retry.MaxAttempts = 1
	}
	if retry.BackoffFactor < 1 {
		retry.BackoffFactor = 1
	}
	if breaker.MaxFailures == 0 {
		breaker.MaxFailures = DefaultBreakerConfig().MaxFailures
	}

	settings := gobreaker.Settings{
		Name:    "payment-gateway",
		Timeout: breaker.ResetTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breaker.MaxFailures
		},
		// Отказ процессора - бизнес-ответ, а не сбой канала.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, domain.ErrPaymentFailed)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.WithFields(log.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("payment gateway circuit breaker state changed")
		},
	}

	return &ResilientGateway{
		next:    next,
		config:  retry,
		breaker: gobreaker.NewCircuitBreaker[any](settings),
		logger:  logger,
	}
}

// EnsureCustomerID создаёт покупателя у процессора с повторными попытками под одним idempotency key.
func (g *ResilientGateway) EnsureCustomerID(ctx context.Context, existing string) (string, error) {
	if existing != "" {
		return existing, nil
	}
	if IdempotencyKeyFrom(ctx) == "" {
		ctx = WithIdempotencyKey(ctx, uuid.NewString())
	}
	var id string
	err := g.executeWithRetry(ctx, "EnsureCustomerID", func(ctx context.Context) error {
		var err error
		id, err = g.next.EnsureCustomerID(ctx, existing)
		return err
	})
	return id, err
}

// CreateIntent создаёт payment intent. Все попытки одного вызова используют один
// idempotency key, поэтому повтор не может выпустить второй intent.
func (g *ResilientGateway) CreateIntent(ctx context.Context, customerID string, amountMinor int64, currency string) (domain.PaymentIntent, error) {
	if IdempotencyKeyFrom(ctx) == "" {
		ctx = WithIdempotencyKey(ctx, uuid.NewString())
	}
	var intent domain.PaymentIntent
	err := g.executeWithRetry(ctx, "CreateIntent", func(ctx context.Context) error {
		var err error
		intent, err = g.next.CreateIntent(ctx, customerID, amountMinor, currency)
		return err
	})
	return intent, err
}

// BreakerOpen сообщает, разомкнута ли цепь к процессору.
func (g *ResilientGateway) BreakerOpen() bool {
	return g.breaker.State() == gobreaker.StateOpen
}

func (g *ResilientGateway) executeWithRetry(ctx context.Context, operation string, fn func(context.Context) error) error {
	var lastErr error
	delay := g.config.InitialDelay

	for attempt := 1; attempt <= g.config.MaxAttempts; attempt++ {
		_, err := g.breaker.Execute(func() (any, error) {
			return nil, fn(ctx)
		})
		if err == nil {
			if attempt > 1 {
				g.logger.WithFields(log.Fields{
					"operation": operation,
					"attempt":   attempt,
				}).Info("gateway call succeeded after retry")
			}
			return nil
		}

		lastErr = err
		if !shouldRetry(err) {
			return normalizeError(err)
		}

		if attempt < g.config.MaxAttempts {
			g.logger.WithError(err).WithFields(log.Fields{
				"operation": operation,
				"attempt":   attempt,
				"delay":     delay,
			}).Warn("gateway call failed, retrying")

			select {
			case <-ctx.Done():
				return fmt.Errorf("%w: %w", domain.ErrPaymentGateway, ctx.Err())
			case <-time.After(delay):
			}

			// Экспоненциальная задержка с ограничением
			delay = time.Duration(float64(delay) * g.config.BackoffFactor)
			if g.config.MaxDelay > 0 && delay > g.config.MaxDelay {
				delay = g.config.MaxDelay
			}
		}
	}

	g.logger.WithError(lastErr).WithFields(log.Fields{
		"operation":    operation,
		"max_attempts": g.config.MaxAttempts,
	}).Error("gateway call failed after all retry attempts")
	return normalizeError(lastErr)
}

// shouldRetry определяет, стоит ли повторять вызов при данной ошибке.
func shouldRetry(err error) bool {
	// Не повторяем отказ процессора и разомкнутую цепь
	if errors.Is(err, domain.ErrPaymentFailed) ||
		errors.Is(err, gobreaker.ErrOpenState) ||
		errors.Is(err, gobreaker.ErrTooManyRequests) ||
		errors.Is(err, context.Canceled) {
		return false
	}
	return true
}

// normalizeError гарантирует, что сбои канала классифицируются как ErrPaymentGateway.
func normalizeError(err error) error {
	if err == nil || errors.Is(err, domain.ErrPaymentGateway) || errors.Is(err, domain.ErrPaymentFailed) {
		return err
	}
	return fmt.Errorf("%w: %w", domain.ErrPaymentGateway, err)
}

var _ domain.PaymentGateway = (*ResilientGateway)(nil)
