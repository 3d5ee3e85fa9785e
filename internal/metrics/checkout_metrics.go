package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CheckoutMetrics содержит метрики конвейера оформления заказа.
type CheckoutMetrics struct {
	// Payment intent
	intentsCreated prometheus.Counter
	intentsFailed  prometheus.Counter
	staleIntents   prometheus.Counter

	// Итоги платёжного UI по outcome
	paymentOutcomes *prometheus.CounterVec

	// Запись заказа
	ordersWritten      prometheus.Counter
	orderWriteFailures prometheus.Counter
	finalizeDuration   prometheus.Histogram

	cartPersistFailures prometheus.Counter
	outboxEvents        prometheus.Counter

	// Gauge для активных сессий оформления
	activeSessions  prometheus.Gauge
	sessionsEvicted prometheus.Counter
}

// NewCheckoutMetrics создаёт метрики в регистре по умолчанию.
func NewCheckoutMetrics() *CheckoutMetrics {
	return NewCheckoutMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewCheckoutMetricsWithRegisterer создаёт метрики в переданном регистре.
func NewCheckoutMetricsWithRegisterer(registerer prometheus.Registerer) *CheckoutMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &CheckoutMetrics{
		intentsCreated: registerCounter(registerer, prometheus.CounterOpts{
			Name: "storefront_payment_intents_created_total",
			Help: "Total number of payment intents created",
		}),
		intentsFailed: registerCounter(registerer, prometheus.CounterOpts{
			Name: "storefront_payment_intents_failed_total",
			Help: "Total number of failed payment intent preparations",
		}),
		staleIntents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "storefront_payment_intents_stale_total",
			Help: "Total number of intents dropped because a newer prepare superseded them",
		}),
		paymentOutcomes: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_payment_outcomes_total",
			Help: "Payment UI results by outcome",
		}, []string{"outcome"}),
		ordersWritten: registerCounter(registerer, prometheus.CounterOpts{
			Name: "storefront_orders_written_total",
			Help: "Total number of paid orders written to the ledger",
		}),
		orderWriteFailures: registerCounter(registerer, prometheus.CounterOpts{
			Name: "storefront_order_write_failures_total",
			Help: "Total number of order writes that failed after captured payment",
		}),
		finalizeDuration: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "storefront_finalize_duration_seconds",
			Help:    "Duration of order finalization in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}),
		cartPersistFailures: registerCounter(registerer, prometheus.CounterOpts{
			Name: "storefront_cart_persist_failures_total",
			Help: "Total number of cart blob writes that failed",
		}),
		outboxEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "storefront_outbox_events_total",
			Help: "Total number of order events enqueued to the outbox",
		}),
		activeSessions: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "storefront_checkout_sessions_active",
			Help: "Number of checkout sessions held in memory",
		}),
		sessionsEvicted: registerCounter(registerer, prometheus.CounterOpts{
			Name: "storefront_checkout_sessions_evicted_total",
			Help: "Total number of idle checkout sessions evicted",
		}),
	}
}

func registerCounter(registerer prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	collector := prometheus.NewCounter(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Counter)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter %q: %v", opts.Name, err))
	}
	return collector
}

func registerCounterVec(registerer prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	collector := prometheus.NewCounterVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.CounterVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter vec %q: %v", opts.Name, err))
	}
	return collector
}

func registerGauge(registerer prometheus.Registerer, opts prometheus.GaugeOpts) prometheus.Gauge {
	collector := prometheus.NewGauge(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Gauge)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register gauge %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogram(registerer prometheus.Registerer, opts prometheus.HistogramOpts) prometheus.Histogram {
	collector := prometheus.NewHistogram(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Histogram)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram %q: %v", opts.Name, err))
	}
	return collector
}

// RecordIntentCreated увеличивает счётчик созданных intent.
func (m *CheckoutMetrics) RecordIntentCreated() {
	m.intentsCreated.Inc()
}

// RecordIntentFailed увеличивает счётчик неудачных подготовок.
func (m *CheckoutMetrics) RecordIntentFailed() {
	m.intentsFailed.Inc()
}

// RecordStaleIntent увеличивает счётчик отброшенных устаревших intent.
func (m *CheckoutMetrics) RecordStaleIntent() {
	m.staleIntents.Inc()
}

// RecordPaymentOutcome учитывает результат платёжного UI.
func (m *CheckoutMetrics) RecordPaymentOutcome(outcome string) {
	m.paymentOutcomes.WithLabelValues(outcome).Inc()
}

// RecordOrderWritten увеличивает счётчик записанных заказов.
func (m *CheckoutMetrics) RecordOrderWritten() {
	m.ordersWritten.Inc()
}

// RecordOrderWriteFailure увеличивает счётчик сбоев записи оплаченных заказов.
func (m *CheckoutMetrics) RecordOrderWriteFailure() {
	m.orderWriteFailures.Inc()
}

// RecordFinalizeDuration записывает время финализации.
func (m *CheckoutMetrics) RecordFinalizeDuration(duration time.Duration) {
	m.finalizeDuration.Observe(duration.Seconds())
}

// RecordCartPersistFailure увеличивает счётчик сбоев сохранения корзины.
func (m *CheckoutMetrics) RecordCartPersistFailure() {
	m.cartPersistFailures.Inc()
}

// RecordOutboxEvent увеличивает счётчик событий outbox.
func (m *CheckoutMetrics) RecordOutboxEvent() {
	m.outboxEvents.Inc()
}

// RecordSessionOpened увеличивает количество активных сессий.
func (m *CheckoutMetrics) RecordSessionOpened() {
	m.activeSessions.Inc()
}

// RecordSessionClosed уменьшает количество активных сессий.
func (m *CheckoutMetrics) RecordSessionClosed() {
	m.activeSessions.Dec()
}

// RecordSessionsEvicted учитывает вытесненные по простою сессии.
func (m *CheckoutMetrics) RecordSessionsEvicted(n int) {
	m.sessionsEvicted.Add(float64(n))
}
