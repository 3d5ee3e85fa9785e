package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/service/checkout"
	"github.com/vladislavdragonenkov/storefront/internal/service/payment"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
)

// flakyLedger отклоняет первые failures записей.
type flakyLedger struct {
	domain.OrderLedger

	mu       sync.Mutex
	failures int
}

func (l *flakyLedger) WriteOrder(ctx context.Context, order domain.Order) error {
	l.mu.Lock()
	if l.failures > 0 {
		l.failures--
		l.mu.Unlock()
		return errors.New("ledger unavailable")
	}
	l.mu.Unlock()
	return l.OrderLedger.WriteOrder(ctx, order)
}

type testAPI struct {
	handler   http.Handler
	gateway   *payment.MockGateway
	ledger    *flakyLedger
	customers domain.CustomerStore
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()

	catalog, err := memory.NewCatalog(
		domain.Product{
			ID:        "sku-1",
			Category:  "coffee",
			Name:      "Espresso beans",
			Price:     decimal.RequireFromString("12.50"),
			CreatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		},
		domain.Product{
			ID:        "sku-2",
			Category:  "tea",
			Name:      "Green tea",
			Price:     decimal.RequireFromString("4.25"),
			CreatedAt: time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC),
		},
	)
	require.NoError(t, err)

	gateway := payment.NewMockGateway()
	ledger := &flakyLedger{OrderLedger: memory.NewOrderLedger()}
	customers := memory.NewCustomerStore()

	sessions, err := checkout.NewSessions(checkout.SessionConfig{
		Blobs:     memory.NewBlobStore(),
		Gateway:   gateway,
		Ledger:    ledger,
		Customers: customers,
		Currency:  "EUR",
	}, nil)
	require.NoError(t, err)

	handler, err := NewRouter(Config{
		Sessions:  sessions,
		Catalog:   catalog,
		Ledger:    ledger,
		Customers: customers,
	})
	require.NoError(t, err)

	return &testAPI{handler: handler, gateway: gateway, ledger: ledger, customers: customers}
}

func (a *testAPI) do(t *testing.T, method, path, userID string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var payload bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&payload).Encode(body))
	}
	req := httptest.NewRequest(method, path, &payload)
	if userID != "" {
		req.Header.Set(UserIDHeader, userID)
	}
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	return out
}

var testAddress = PrepareRequestDTO{
	Email:      "ann@example.com",
	FullName:   "Ann Example",
	Address:    "1 Main St",
	City:       "Springfield",
	PostalCode: "12345",
}

func TestNewRouter_RequiresDependencies(t *testing.T) {
	_, err := NewRouter(Config{})
	require.Error(t, err)
}

func TestProducts(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodGet, "/v1/products?category=tea", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	products := decode[[]domain.Product](t, rec)
	require.Len(t, products, 1)
	assert.Equal(t, "sku-2", products[0].ID)

	rec = api.do(t, http.MethodGet, "/v1/products/sku-1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	product := decode[domain.Product](t, rec)
	assert.True(t, product.Price.Equal(decimal.RequireFromString("12.5")))

	rec = api.do(t, http.MethodGet, "/v1/products/missing", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "product_not_found", decode[ErrorResponse](t, rec).Code)
}

func TestCart_RequiresUser(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodGet, "/v1/cart", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "unauthorized", decode[ErrorResponse](t, rec).Code)
}

func TestCart_AddUpdateRemove(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodPost, "/v1/cart/items", "user-1", AddItemRequestDTO{ProductID: "sku-1", Quantity: 2})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = api.do(t, http.MethodPost, "/v1/cart/items", "user-1", AddItemRequestDTO{ProductID: "sku-1", Quantity: 1})
	require.Equal(t, http.StatusOK, rec.Code)
	cart := decode[CartDTO](t, rec)
	require.Len(t, cart.Lines, 1)
	assert.Equal(t, 3, cart.Lines[0].Quantity)
	assert.True(t, cart.Total.Equal(decimal.RequireFromString("37.50")))

	rec = api.do(t, http.MethodPatch, "/v1/cart/items/sku-1", "user-1", UpdateQuantityRequestDTO{Quantity: 0})
	require.Equal(t, http.StatusOK, rec.Code)
	cart = decode[CartDTO](t, rec)
	assert.Equal(t, 1, cart.Lines[0].Quantity)

	rec = api.do(t, http.MethodPost, "/v1/cart/items", "user-1", AddItemRequestDTO{ProductID: "sku-2", Quantity: 0})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(t, http.MethodPost, "/v1/cart/items", "user-1", AddItemRequestDTO{ProductID: "nope", Quantity: 1})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = api.do(t, http.MethodDelete, "/v1/cart/items/sku-1", "user-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[CartDTO](t, rec).Lines)

	// Корзины пользователей независимы.
	api.do(t, http.MethodPost, "/v1/cart/items", "user-1", AddItemRequestDTO{ProductID: "sku-2", Quantity: 1})
	rec = api.do(t, http.MethodGet, "/v1/cart", "user-2", nil)
	assert.Empty(t, decode[CartDTO](t, rec).Lines)

	rec = api.do(t, http.MethodDelete, "/v1/cart", "user-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[CartDTO](t, rec).Lines)
}

func TestCheckout_FullFlow(t *testing.T) {
	api := newTestAPI(t)

	api.do(t, http.MethodPost, "/v1/cart/items", "user-1", AddItemRequestDTO{ProductID: "sku-1", Quantity: 2})

	rec := api.do(t, http.MethodPost, "/v1/checkout/prepare", "user-1", testAddress)
	require.Equal(t, http.StatusOK, rec.Code)
	status := decode[CheckoutStatusDTO](t, rec)
	assert.Equal(t, checkout.StateIntentReady, status.State)
	assert.True(t, status.Ready)
	require.NotNil(t, status.Payment)
	assert.Equal(t, int64(2500), status.Payment.AmountMinor)

	customer, err := api.customers.Get(context.Background(), "user-1")
	require.NoError(t, err)
	assert.NotEmpty(t, customer.PaymentCustomerID)
	assert.Equal(t, "ann@example.com", customer.Email)

	rec = api.do(t, http.MethodPost, "/v1/checkout/payment-sheet", "user-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	sheet := decode[checkout.PaymentContext](t, rec)
	assert.Equal(t, status.Payment.IntentID, sheet.IntentID)

	rec = api.do(t, http.MethodPost, "/v1/checkout/payment-result", "user-1", PaymentResultRequestDTO{
		Outcome:  domain.PaymentOutcomeCompleted,
		IntentID: sheet.IntentID,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	status = decode[CheckoutStatusDTO](t, rec)
	assert.Equal(t, checkout.StateOrderWritten, status.State)
	require.NotNil(t, status.LastOrder)

	rec = api.do(t, http.MethodGet, "/v1/orders", "user-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	orders := decode[[]OrderDTO](t, rec)
	require.Len(t, orders, 1)
	assert.Equal(t, status.LastOrder.ID, orders[0].ID)
	assert.Equal(t, sheet.IntentID, orders[0].PaymentIntentID)
	assert.Equal(t, domain.PaymentStatusPaid, orders[0].PaymentStatus)

	rec = api.do(t, http.MethodGet, "/v1/cart", "user-1", nil)
	assert.Empty(t, decode[CartDTO](t, rec).Lines)
}

func TestCheckout_PrepareErrors(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodPost, "/v1/checkout/prepare", "user-1", testAddress)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "cart_empty", decode[ErrorResponse](t, rec).Code)

	api.do(t, http.MethodPost, "/v1/cart/items", "user-1", AddItemRequestDTO{ProductID: "sku-1", Quantity: 1})

	rec = api.do(t, http.MethodPost, "/v1/checkout/prepare", "user-1", PrepareRequestDTO{FullName: "Ann"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_address", decode[ErrorResponse](t, rec).Code)

	api.gateway.SetIntentErr(domain.ErrPaymentGateway)
	rec = api.do(t, http.MethodPost, "/v1/checkout/prepare", "user-1", testAddress)
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	rec = api.do(t, http.MethodGet, "/v1/checkout", "user-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	status := decode[CheckoutStatusDTO](t, rec)
	assert.False(t, status.Ready)
	assert.NotEmpty(t, status.LastPrepareError)
}

func TestCheckout_StaleAndIllegal(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodPost, "/v1/checkout/payment-sheet", "user-1", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "illegal_transition", decode[ErrorResponse](t, rec).Code)

	api.do(t, http.MethodPost, "/v1/cart/items", "user-1", AddItemRequestDTO{ProductID: "sku-1", Quantity: 1})
	api.do(t, http.MethodPost, "/v1/checkout/prepare", "user-1", testAddress)
	api.do(t, http.MethodPost, "/v1/checkout/payment-sheet", "user-1", nil)

	rec = api.do(t, http.MethodPost, "/v1/checkout/payment-result", "user-1", PaymentResultRequestDTO{
		Outcome:  domain.PaymentOutcomeCompleted,
		IntentID: "pi_someone_else",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "stale_intent", decode[ErrorResponse](t, rec).Code)

	rec = api.do(t, http.MethodPost, "/v1/checkout/payment-result", "user-1", PaymentResultRequestDTO{Outcome: "maybe"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCheckout_DeclineRearms(t *testing.T) {
	api := newTestAPI(t)

	api.do(t, http.MethodPost, "/v1/cart/items", "user-1", AddItemRequestDTO{ProductID: "sku-2", Quantity: 1})
	api.do(t, http.MethodPost, "/v1/checkout/prepare", "user-1", testAddress)
	sheet := decode[checkout.PaymentContext](t, api.do(t, http.MethodPost, "/v1/checkout/payment-sheet", "user-1", nil))

	rec := api.do(t, http.MethodPost, "/v1/checkout/payment-result", "user-1", PaymentResultRequestDTO{
		Outcome:  domain.PaymentOutcomeFailed,
		IntentID: sheet.IntentID,
		Error:    "card declined",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	status := decode[CheckoutStatusDTO](t, rec)
	assert.Equal(t, checkout.StateIntentReady, status.State)
	assert.Contains(t, status.LastPaymentError, "card declined")
	require.NotNil(t, status.Payment)
	assert.NotEqual(t, sheet.IntentID, status.Payment.IntentID)
}

func TestCheckout_RetryFinalize(t *testing.T) {
	api := newTestAPI(t)
	api.ledger.failures = 1

	api.do(t, http.MethodPost, "/v1/cart/items", "user-1", AddItemRequestDTO{ProductID: "sku-1", Quantity: 1})
	api.do(t, http.MethodPost, "/v1/checkout/prepare", "user-1", testAddress)
	sheet := decode[checkout.PaymentContext](t, api.do(t, http.MethodPost, "/v1/checkout/payment-sheet", "user-1", nil))

	rec := api.do(t, http.MethodPost, "/v1/checkout/payment-result", "user-1", PaymentResultRequestDTO{
		Outcome:  domain.PaymentOutcomeCompleted,
		IntentID: sheet.IntentID,
	})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "order_write_failed", decode[ErrorResponse](t, rec).Code)

	rec = api.do(t, http.MethodGet, "/v1/cart", "user-1", nil)
	assert.Len(t, decode[CartDTO](t, rec).Lines, 1)

	rec = api.do(t, http.MethodPost, "/v1/checkout/retry-finalize", "user-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, checkout.StateOrderWritten, decode[CheckoutStatusDTO](t, rec).State)

	rec = api.do(t, http.MethodGet, "/v1/orders", "user-1", nil)
	assert.Len(t, decode[[]OrderDTO](t, rec), 1)
}

func TestListOrders_NewestFirst(t *testing.T) {
	api := newTestAPI(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	for i, id := range []string{"order-old", "order-new", "order-mid"} {
		offsets := []time.Duration{0, 2 * time.Hour, time.Hour}
		require.NoError(t, api.ledger.WriteOrder(ctx, domain.Order{
			ID:     id,
			UserID: "user-1",
			Lines: []domain.CartLine{{
				ID:       "line-1",
				Product:  domain.Product{ID: "sku-1", Price: decimal.NewFromInt(1)},
				Quantity: 1,
			}},
			Total:         decimal.NewFromInt(1),
			Currency:      "EUR",
			AmountMinor:   100,
			Status:        domain.OrderStatusPlaced,
			PaymentStatus: domain.PaymentStatusPaid,
			ShippingAddress: domain.ShippingAddress{
				FullName: "Ann", Address: "1 Main St", City: "Springfield", PostalCode: "1",
			},
			CreatedAt: base.Add(offsets[i]),
		}))
	}

	rec := api.do(t, http.MethodGet, "/v1/orders", "user-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	orders := decode[[]OrderDTO](t, rec)
	require.Len(t, orders, 3)
	assert.Equal(t, []string{"order-new", "order-mid", "order-old"}, []string{orders[0].ID, orders[1].ID, orders[2].ID})

	rec = api.do(t, http.MethodGet, "/v1/orders", "user-2", nil)
	assert.Empty(t, decode[[]OrderDTO](t, rec))
}

func TestClassify(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{domain.ErrCustomerRequired, http.StatusUnauthorized},
		{domain.ErrQuantityInvalid, http.StatusBadRequest},
		{domain.ErrProductNotFound, http.StatusNotFound},
		{domain.ErrFinalizeInFlight, http.StatusConflict},
		{domain.ErrPaymentFailed, http.StatusPaymentRequired},
		{domain.ErrPaymentGateway, http.StatusBadGateway},
		{domain.ErrOrderWriteFailed, http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		status, _ := classify(tc.err)
		assert.Equal(t, tc.status, status, tc.err.Error())
	}
}
