package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/suite"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/service/checkout"
	"github.com/vladislavdragonenkov/storefront/internal/service/httpapi"
	"github.com/vladislavdragonenkov/storefront/internal/service/outbox"
	"github.com/vladislavdragonenkov/storefront/internal/service/payment"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.OutboxMessage
}

func (p *recordingPublisher) Publish(_ context.Context, event domain.OutboxMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) published() []domain.OutboxMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.OutboxMessage(nil), p.events...)
}

// CheckoutLifecycleTestSuite проверяет полный путь покупателя через HTTP API
// поверх Redis-корзин, журнала заказов и outbox.
type CheckoutLifecycleTestSuite struct {
	suite.Suite

	redis     *miniredis.Miniredis
	deps      *runtimeDependencies
	gateway   *payment.MockGateway
	publisher *recordingPublisher
	worker    *outbox.Worker
	server    *httptest.Server
}

func (s *CheckoutLifecycleTestSuite) SetupTest() {
	baseLogger := log.New()
	baseLogger.SetLevel(log.WarnLevel)
	logger := baseLogger.WithField("component", "lifecycle-test")

	s.redis = miniredis.RunT(s.T())
	cfg := DefaultConfig()
	cfg.RedisAddr = s.redis.Addr()

	deps, err := initRuntimeDependencies(context.Background(), cfg, logger)
	s.Require().NoError(err)
	catalog, err := memory.NewCatalog(
		domain.Product{ID: "sku-1", Category: "coffee", Name: "Beans", Price: decimal.RequireFromString("12.50")},
		domain.Product{ID: "sku-2", Category: "tea", Name: "Sencha", Price: decimal.RequireFromString("4.99")},
	)
	s.Require().NoError(err)
	deps.catalog = catalog
	s.deps = deps

	s.gateway = payment.NewMockGateway()
	s.publisher = &recordingPublisher{}
	s.worker = outbox.NewWorker(deps.outboxRepo, s.publisher, outbox.WithLogger(logger))
	s.server = httptest.NewServer(s.newRouter(logger))
}

func (s *CheckoutLifecycleTestSuite) TearDownTest() {
	s.server.Close()
	s.Require().NoError(s.deps.closeFn())
}

// newRouter собирает API над общими хранилищами; новый вызов имитирует рестарт процесса.
func (s *CheckoutLifecycleTestSuite) newRouter(logger *log.Entry) http.Handler {
	sessions, err := checkout.NewSessions(checkout.SessionConfig{
		Blobs:     s.deps.blobs,
		Gateway:   s.gateway,
		Ledger:    s.deps.ledger,
		Customers: s.deps.customers,
		Outbox:    s.deps.outboxRepo,
		Currency:  "usd",
	}, logger)
	s.Require().NoError(err)

	router, err := httpapi.NewRouter(httpapi.Config{
		Sessions:  sessions,
		Catalog:   s.deps.catalog,
		Ledger:    s.deps.ledger,
		Customers: s.deps.customers,
		Logger:    logger,
	})
	s.Require().NoError(err)
	return router
}

func (s *CheckoutLifecycleTestSuite) call(method, path, userID string, body, out any) int {
	var payload bytes.Buffer
	if body != nil {
		s.Require().NoError(json.NewEncoder(&payload).Encode(body))
	}
	req, err := http.NewRequest(method, s.server.URL+path, &payload)
	s.Require().NoError(err)
	req.Header.Set(httpapi.UserIDHeader, userID)

	resp, err := http.DefaultClient.Do(req)
	s.Require().NoError(err)
	defer resp.Body.Close()
	if out != nil && resp.StatusCode < http.StatusBadRequest {
		s.Require().NoError(json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

var lifecycleAddress = httpapi.PrepareRequestDTO{
	FullName:   "Ann Example",
	Address:    "1 Main St",
	City:       "Springfield",
	PostalCode: "12345",
}

func (s *CheckoutLifecycleTestSuite) TestCompleteCheckoutPublishesOrderPlaced() {
	s.Equal(http.StatusCreated, s.call(http.MethodPost, "/v1/cart/items", "user-1",
		httpapi.AddItemRequestDTO{ProductID: "sku-1", Quantity: 2}, nil))
	s.Equal(http.StatusCreated, s.call(http.MethodPost, "/v1/cart/items", "user-1",
		httpapi.AddItemRequestDTO{ProductID: "sku-2", Quantity: 1}, nil))

	var status httpapi.CheckoutStatusDTO
	s.Require().Equal(http.StatusOK, s.call(http.MethodPost, "/v1/checkout/prepare", "user-1", lifecycleAddress, &status))
	s.Require().NotNil(status.Payment)
	s.Equal(int64(2999), status.Payment.AmountMinor)
	s.Equal("usd", status.Payment.Currency)

	var sheet checkout.PaymentContext
	s.Require().Equal(http.StatusOK, s.call(http.MethodPost, "/v1/checkout/payment-sheet", "user-1", nil, &sheet))
	s.Require().Equal(http.StatusOK, s.call(http.MethodPost, "/v1/checkout/payment-result", "user-1",
		httpapi.PaymentResultRequestDTO{Outcome: domain.PaymentOutcomeCompleted, IntentID: sheet.IntentID}, &status))
	s.Equal(checkout.StateOrderWritten, status.State)

	var orders []httpapi.OrderDTO
	s.Require().Equal(http.StatusOK, s.call(http.MethodGet, "/v1/orders", "user-1", nil, &orders))
	s.Require().Len(orders, 1)
	s.True(orders[0].Total.Equal(decimal.RequireFromString("29.99")))

	var cart httpapi.CartDTO
	s.Require().Equal(http.StatusOK, s.call(http.MethodGet, "/v1/cart", "user-1", nil, &cart))
	s.Empty(cart.Lines)

	s.worker.ProcessOnce(context.Background())
	events := s.publisher.published()
	s.Require().Len(events, 1)
	s.Equal(domain.EventTypeOrderPlaced, events[0].EventType)
	s.Equal(orders[0].ID, events[0].AggregateID)

	var payload domain.OrderPlacedEvent
	s.Require().NoError(json.Unmarshal(events[0].Payload, &payload))
	s.Equal(sheet.IntentID, payload.PaymentIntentID)
	s.Equal(2, payload.LineCount)
}

func (s *CheckoutLifecycleTestSuite) TestCartSurvivesRestart() {
	s.Equal(http.StatusCreated, s.call(http.MethodPost, "/v1/cart/items", "user-2",
		httpapi.AddItemRequestDTO{ProductID: "sku-2", Quantity: 3}, nil))
	s.True(s.redis.Exists("cart:user-2"))

	s.server.Close()
	s.server = httptest.NewServer(s.newRouter(log.WithField("component", "restarted")))

	var cart httpapi.CartDTO
	s.Require().Equal(http.StatusOK, s.call(http.MethodGet, "/v1/cart", "user-2", nil, &cart))
	s.Require().Len(cart.Lines, 1)
	s.Equal(3, cart.Lines[0].Quantity)
	s.True(cart.Total.Equal(decimal.RequireFromString("14.97")))
}

func (s *CheckoutLifecycleTestSuite) TestCustomerIDReusedAcrossAttempts() {
	s.call(http.MethodPost, "/v1/cart/items", "user-3", httpapi.AddItemRequestDTO{ProductID: "sku-1", Quantity: 1}, nil)
	s.Require().Equal(http.StatusOK, s.call(http.MethodPost, "/v1/checkout/prepare", "user-3", lifecycleAddress, nil))

	var sheet checkout.PaymentContext
	s.Require().Equal(http.StatusOK, s.call(http.MethodPost, "/v1/checkout/payment-sheet", "user-3", nil, &sheet))
	var status httpapi.CheckoutStatusDTO
	s.Require().Equal(http.StatusOK, s.call(http.MethodPost, "/v1/checkout/payment-result", "user-3",
		httpapi.PaymentResultRequestDTO{Outcome: domain.PaymentOutcomeCanceled, IntentID: sheet.IntentID}, &status))
	s.Require().NotNil(status.Payment)
	s.Equal(sheet.CustomerID, status.Payment.CustomerID)

	customers, intents := s.gateway.Calls()
	s.Equal(1, customers)
	s.Equal(2, intents)

	stored, err := s.deps.customers.Get(context.Background(), "user-3")
	s.Require().NoError(err)
	s.Equal(sheet.CustomerID, stored.PaymentCustomerID)
}

func (s *CheckoutLifecycleTestSuite) TestConcurrentPrepareNewestWins() {
	s.call(http.MethodPost, "/v1/cart/items", "user-4", httpapi.AddItemRequestDTO{ProductID: "sku-1", Quantity: 1}, nil)

	var wg sync.WaitGroup
	codes := make(chan int, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			codes <- s.call(http.MethodPost, "/v1/checkout/prepare", "user-4", lifecycleAddress, nil)
		}()
	}
	wg.Wait()
	close(codes)
	for code := range codes {
		s.Contains([]int{http.StatusOK, http.StatusConflict}, code)
	}

	var status httpapi.CheckoutStatusDTO
	s.Require().Equal(http.StatusOK, s.call(http.MethodGet, "/v1/checkout", "user-4", nil, &status))
	s.True(status.Ready)
	s.Require().NotNil(status.Payment)
	s.Equal(status.Version, status.Payment.Version)
}

func TestCheckoutLifecycleSuite(t *testing.T) {
	suite.Run(t, new(CheckoutLifecycleTestSuite))
}

