package app

import (
	"context"
	"errors"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/storefront/internal/health"
	"github.com/vladislavdragonenkov/storefront/internal/service/payment"
	"github.com/vladislavdragonenkov/storefront/internal/service/payment/stripe"
)

var errBreakerOpen = errors.New("payment circuit breaker is open")

// buildGateway выбирает платёжный шлюз: процессор при заданном ключе, иначе mock,
// если он явно разрешён. Для процессора дополнительно возвращается degraded-проверка breaker.
func buildGateway(cfg Config, logger *log.Entry) (domain.PaymentGateway, healthcheck.Checker, error) {
	if cfg.StripeAPIKey == "" {
		if !cfg.AllowMockPayments {
			return nil, nil, errors.New("STOREFRONT_STRIPE_API_KEY is not set and STOREFRONT_ALLOW_MOCK_PAYMENTS is false")
		}
		logger.Warn("payment processor key is not set, using mock payment gateway")
		return payment.NewMockGateway(), nil, nil
	}

	client := stripe.New(stripe.Config{
		APIKey:  cfg.StripeAPIKey,
		BaseURL: cfg.StripeBaseURL,
		Timeout: cfg.StripeTimeout,
	}, logger.WithField("component", "stripe-client"))

	retry := payment.DefaultRetryConfig()
	retry.MaxAttempts = cfg.PaymentMaxAttempts
	gateway := payment.NewResilientGateway(client, retry, payment.BreakerConfig{
		MaxFailures:  uint32(cfg.BreakerMaxFailures),
		ResetTimeout: cfg.BreakerResetTimeout,
	}, logger.WithField("component", "payment-gateway"))

	checker := healthcheck.NewDegradableChecker("payment_gateway", func(context.Context) error {
		if gateway.BreakerOpen() {
			return errBreakerOpen
		}
		return nil
	})
	return gateway, checker, nil
}
