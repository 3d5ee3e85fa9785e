// Package stripe реализует PaymentGateway поверх REST API платёжного процессора.
package stripe

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/service/payment"
)

const (
	// DefaultBaseURL - публичный endpoint процессора.
	DefaultBaseURL = "https://api.stripe.com"

	customersPath      = "/v1/customers"
	paymentIntentsPath = "/v1/payment_intents"

	// errorTypeCard - тип ошибки, которым процессор сообщает об отказе по карте.
	errorTypeCard = "card_error"
)

// Config параметры клиента процессора.
type Config struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// Client - тонкий клиент двух операций процессора: создание покупателя и payment intent.
type Client struct {
	http   *resty.Client
	logger *log.Entry
}

type customerResponse struct {
	ID string `json:"id"`
}

type intentResponse struct {
	ID           string `json:"id"`
	ClientSecret string `json:"client_secret"`
	Customer     string `json:"customer"`
	Amount       int64  `json:"amount"`
	Currency     string `json:"currency"`
}

type apiError struct {
	Error struct {
		Type        string `json:"type"`
		Code        string `json:"code"`
		DeclineCode string `json:"decline_code"`
		Message     string `json:"message"`
	} `json:"error"`
}

// New создаёт клиента процессора.
func New(cfg Config, logger *log.Entry) *Client {
	if logger == nil {
		logger = log.New().WithField("component", "stripe-client")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	httpClient := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetAuthToken(cfg.APIKey).
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "application/json")

	return &Client{http: httpClient, logger: logger}
}

// EnsureCustomerID возвращает existing или создаёт покупателя у процессора.
func (c *Client) EnsureCustomerID(ctx context.Context, existing string) (string, error) {
	if existing != "" {
		return existing, nil
	}

	var out customerResponse
	resp, err := c.request(ctx).
		SetResult(&out).
		SetError(&apiError{}).
		Post(customersPath)
	if err := classify("create customer", resp, err); err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", fmt.Errorf("%w: create customer: empty id in response", domain.ErrPaymentGateway)
	}

	c.logger.WithField("customer_id", out.ID).Info("payment customer created")
	return out.ID, nil
}

// CreateIntent создаёт payment intent на amountMinor минимальных единиц валюты.
func (c *Client) CreateIntent(ctx context.Context, customerID string, amountMinor int64, currency string) (domain.PaymentIntent, error) {
	if amountMinor <= 0 {
		return domain.PaymentIntent{}, domain.ErrCartEmpty
	}
	currency, err := domain.NormalizeCurrency(currency)
	if err != nil {
		return domain.PaymentIntent{}, err
	}

	var out intentResponse
	resp, err := c.request(ctx).
		SetFormData(map[string]string{
			"customer": customerID,
			"amount":   strconv.FormatInt(amountMinor, 10),
			"currency": currency,
		}).
		SetResult(&out).
		SetError(&apiError{}).
		Post(paymentIntentsPath)
	if err := classify("create payment intent", resp, err); err != nil {
		return domain.PaymentIntent{}, err
	}
	if out.ClientSecret == "" {
		return domain.PaymentIntent{}, fmt.Errorf("%w: create payment intent: empty client secret", domain.ErrPaymentGateway)
	}

	c.logger.WithFields(log.Fields{
		"intent_id":    out.ID,
		"customer_id":  customerID,
		"amount_minor": amountMinor,
		"currency":     currency,
	}).Info("payment intent created")

	return domain.PaymentIntent{
		ID:           out.ID,
		ClientSecret: out.ClientSecret,
		CustomerID:   customerID,
		AmountMinor:  amountMinor,
		Currency:     currency,
	}, nil
}

func (c *Client) request(ctx context.Context) *resty.Request {
	req := c.http.R().SetContext(ctx)
	if key := payment.IdempotencyKeyFrom(ctx); key != "" {
		req.SetHeader("Idempotency-Key", key)
	}
	return req
}

// classify переводит ответ процессора в доменные ошибки:
// отказ по карте - ErrPaymentFailed, всё остальное - ErrPaymentGateway.
func classify(op string, resp *resty.Response, err error) error {
	if err != nil {
		return fmt.Errorf("%w: %s: %w", domain.ErrPaymentGateway, op, err)
	}
	if !resp.IsError() {
		return nil
	}

	message := http.StatusText(resp.StatusCode())
	errType := ""
	if apiErr, ok := resp.Error().(*apiError); ok && apiErr != nil {
		if apiErr.Error.Message != "" {
			message = apiErr.Error.Message
		}
		errType = apiErr.Error.Type
	}

	if errType == errorTypeCard || resp.StatusCode() == http.StatusPaymentRequired {
		return fmt.Errorf("%w: %s", domain.ErrPaymentFailed, message)
	}
	return fmt.Errorf("%w: %s: status %d: %s", domain.ErrPaymentGateway, op, resp.StatusCode(), message)
}

var _ domain.PaymentGateway = (*Client)(nil)
