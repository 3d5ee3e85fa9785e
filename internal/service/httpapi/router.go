// Package httpapi - HTTP-поверхность сервиса: каталог, корзина, оформление и заказы.
package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/service/checkout"
)

const defaultRequestTimeout = 15 * time.Second

// Config - зависимости HTTP API.
type Config struct {
	Sessions  *checkout.Sessions
	Catalog   domain.Catalog
	Ledger    domain.OrderLedger
	Customers domain.CustomerStore
	Logger    *log.Entry
	// RequestTimeout ограничивает обработку одного запроса.
	RequestTimeout time.Duration
}

// Handler обслуживает HTTP API поверх реестра сессий.
type Handler struct {
	sessions  *checkout.Sessions
	catalog   domain.Catalog
	ledger    domain.OrderLedger
	customers domain.CustomerStore
	logger    *log.Entry
}

// NewRouter собирает chi-роутер со всеми маршрутами API.
func NewRouter(cfg Config) (http.Handler, error) {
	if cfg.Sessions == nil {
		return nil, errors.New("httpapi: sessions registry is required")
	}
	if cfg.Catalog == nil {
		return nil, errors.New("httpapi: catalog is required")
	}
	if cfg.Ledger == nil {
		return nil, errors.New("httpapi: order ledger is required")
	}
	if cfg.Customers == nil {
		return nil, errors.New("httpapi: customer store is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New().WithField("component", "http-api")
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	h := &Handler{
		sessions:  cfg.Sessions,
		catalog:   cfg.Catalog,
		ledger:    cfg.Ledger,
		customers: cfg.Customers,
		logger:    logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(timeout))

	r.Route("/v1", func(r chi.Router) {
		r.Get("/products", h.ListProducts)
		r.Get("/products/{productID}", h.GetProduct)

		r.Group(func(r chi.Router) {
			r.Use(requireUser)

			r.Route("/cart", func(r chi.Router) {
				r.Get("/", h.GetCart)
				r.Delete("/", h.ClearCart)
				r.Post("/items", h.AddItem)
				r.Patch("/items/{productID}", h.UpdateQuantity)
				r.Delete("/items/{productID}", h.RemoveItem)
			})

			r.Route("/checkout", func(r chi.Router) {
				r.Get("/", h.CheckoutStatus)
				r.Post("/prepare", h.Prepare)
				r.Post("/payment-sheet", h.PresentPaymentSheet)
				r.Post("/payment-result", h.PaymentResult)
				r.Post("/retry-finalize", h.RetryFinalize)
			})

			r.Get("/orders", h.ListOrders)
		})
	})

	return r, nil
}
