// Package checkout реализует конечный автомат оформления заказа:
// корзина → payment intent → платёжный UI → запись заказа → очистка корзины.
package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
	"github.com/vladislavdragonenkov/storefront/internal/service/payment"
)

// Cart - то, что оркестратору нужно от Cart Store.
type Cart interface {
	GetAll() []domain.CartLine
	Total() decimal.Decimal
	RemovePaid(ctx context.Context, paid []domain.CartLine)
}

// Dependencies - коллабораторы оркестратора. Outbox и Metrics опциональны.
type Dependencies struct {
	Cart      Cart
	Gateway   domain.PaymentGateway
	Ledger    domain.OrderLedger
	Customers domain.CustomerStore
	Outbox    domain.OutboxRepository
	Metrics   *metrics.CheckoutMetrics
	Logger    *log.Entry
}

// Settings - параметры сессии оформления.
type Settings struct {
	// SessionID входит в idempotency key каждого вызова CreateIntent.
	SessionID string
	Currency  string
	Sheet     domain.PaymentSheetConfig
}

// PaymentContext - готовый к показу контекст платёжного UI.
type PaymentContext struct {
	IntentID     string                    `json:"intent_id"`
	ClientSecret string                    `json:"client_secret"`
	CustomerID   string                    `json:"customer_id"`
	AmountMinor  int64                     `json:"amount_minor"`
	Currency     string                    `json:"currency"`
	Sheet        domain.PaymentSheetConfig `json:"sheet"`
	Version      uint64                    `json:"version"`
}

// Status - снимок состояния оформления для отображения.
type Status struct {
	State            State
	Version          uint64
	Ready            bool
	Payment          *PaymentContext
	LastPrepareError error
	LastPaymentError error
	LastOrderError   error
	PendingOrder     *domain.Order
	LastOrder        *domain.Order
}

// Option настраивает Orchestrator.
type Option func(*Orchestrator)

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = now
	}
}

// WithOrderIDGenerator подменяет генератор идентификаторов заказа.
func WithOrderIDGenerator(gen func() string) Option {
	return func(o *Orchestrator) {
		o.newOrderID = gen
	}
}

// prepared - данные, зафиксированные при успешном вызове Prepare.
type prepared struct {
	customer domain.Customer
	address  domain.ShippingAddress
	lines    []domain.CartLine
	total    decimal.Decimal
	amount   int64
}

// Orchestrator - конечный автомат одной сессии оформления.
// Удалённые вызовы выполняются без удержания мьютекса; результаты устаревших
// вызовов Prepare отбрасываются по номеру версии.
type Orchestrator struct {
	cart      Cart
	gateway   domain.PaymentGateway
	ledger    domain.OrderLedger
	customers domain.CustomerStore
	outbox    domain.OutboxRepository
	metrics   *metrics.CheckoutMetrics
	logger    *log.Entry

	sessionID  string
	currency   string
	sheet      domain.PaymentSheetConfig
	now        func() time.Time
	newOrderID func() string

	mu       sync.Mutex
	state    State
	version  uint64
	intent   *domain.PaymentIntent
	prepared *prepared

	pendingOrder *domain.Order
	lastOrder    *domain.Order

	lastPrepareErr error
	lastPaymentErr error
	lastOrderErr   error
}

// NewOrchestrator создаёт оркестратор в состоянии Idle.
func NewOrchestrator(deps Dependencies, settings Settings, opts ...Option) (*Orchestrator, error) {
	if deps.Cart == nil || deps.Gateway == nil || deps.Ledger == nil || deps.Customers == nil {
		return nil, errors.New("checkout: cart, gateway, ledger and customers are required")
	}
	currency, err := domain.NormalizeCurrency(settings.Currency)
	if err != nil {
		return nil, fmt.Errorf("checkout: %w", err)
	}
	logger := deps.Logger
	if logger == nil {
		logger = log.New().WithField("component", "checkout")
	}
	if settings.SessionID == "" {
		settings.SessionID = uuid.NewString()
	}

	o := &Orchestrator{
		cart:       deps.Cart,
		gateway:    deps.Gateway,
		ledger:     deps.Ledger,
		customers:  deps.Customers,
		outbox:     deps.Outbox,
		metrics:    deps.Metrics,
		logger:     logger.WithField("session_id", settings.SessionID),
		sessionID:  settings.SessionID,
		currency:   currency,
		sheet:      settings.Sheet,
		now:        func() time.Time { return time.Now().UTC() },
		newOrderID: uuid.NewString,
		state:      StateIdle,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Prepare создаёт payment intent на текущий итог корзины.
// Требует аутентифицированного покупателя, полный адрес доставки и ненулевой итог.
// При ошибке шлюза остаётся в IntentPending без готового контекста; вызов можно повторить.
// Выпущенный процессором идентификатор покупателя записывается в customer.
func (o *Orchestrator) Prepare(ctx context.Context, customer *domain.Customer, address domain.ShippingAddress) (PaymentContext, error) {
	return o.prepare(ctx, customer, address, true)
}

func (o *Orchestrator) prepare(ctx context.Context, customer *domain.Customer, address domain.ShippingAddress, resetPaymentErr bool) (PaymentContext, error) {
	if customer == nil || customer.ID == "" {
		return PaymentContext{}, domain.ErrCustomerRequired
	}
	if !address.Complete() {
		return PaymentContext{}, domain.ErrShippingAddressIncomplete
	}

	o.mu.Lock()
	if !o.state.CanTransitionTo(StateIntentPending) {
		state := o.state
		o.mu.Unlock()
		return PaymentContext{}, fmt.Errorf("%w: prepare in state %s", domain.ErrIllegalTransition, state)
	}
	lines := o.cart.GetAll()
	total := domain.CartTotal(lines)
	if !total.IsPositive() {
		o.mu.Unlock()
		return PaymentContext{}, domain.ErrCartEmpty
	}
	amount, err := domain.ToMinorUnits(total, o.currency)
	if err != nil {
		o.mu.Unlock()
		return PaymentContext{}, err
	}

	o.version++
	version := o.version
	o.state = StateIntentPending
	o.intent = nil
	o.prepared = nil
	o.lastPrepareErr = nil
	if resetPaymentErr {
		o.lastPaymentErr = nil
	}
	snapshot := &prepared{
		customer: *customer,
		address:  address,
		lines:    lines,
		total:    total,
		amount:   amount,
	}
	o.mu.Unlock()

	logger := o.logger.WithFields(log.Fields{
		"user_id": customer.ID,
		"version": version,
	})

	intent, err := o.createIntent(ctx, customer, amount, version)

	o.mu.Lock()
	defer o.mu.Unlock()

	if version != o.version {
		if o.metrics != nil {
			o.metrics.RecordStaleIntent()
		}
		logger.WithField("latest_version", o.version).Warn("dropping result of superseded prepare")
		return PaymentContext{}, domain.ErrStaleIntent
	}

	if err != nil {
		o.lastPrepareErr = err
		if o.metrics != nil {
			o.metrics.RecordIntentFailed()
		}
		logger.WithError(err).Warn("payment intent preparation failed")
		return PaymentContext{}, err
	}

	snapshot.customer.PaymentCustomerID = intent.CustomerID
	o.intent = &intent
	o.prepared = snapshot
	o.state = StateIntentReady
	if o.metrics != nil {
		o.metrics.RecordIntentCreated()
	}
	logger.WithFields(log.Fields{
		"intent_id":    intent.ID,
		"amount_minor": amount,
		"currency":     o.currency,
	}).Info("payment intent ready")

	return o.paymentContextLocked(), nil
}

// createIntent выполняет удалённые вызовы Prepare: выпуск покупателя (с сохранением
// нового идентификатора) и создание intent. Мьютекс не удерживается.
func (o *Orchestrator) createIntent(ctx context.Context, customer *domain.Customer, amount int64, version uint64) (domain.PaymentIntent, error) {
	// Ключ привязан к пользователю: повтор после потерянного ответа или несохранённого
	// идентификатора возвращает того же покупателя процессора.
	customerCtx := payment.WithIdempotencyKey(ctx, "customer-"+customer.ID)
	customerID, err := o.gateway.EnsureCustomerID(customerCtx, customer.PaymentCustomerID)
	if err != nil {
		return domain.PaymentIntent{}, err
	}
	if customerID != customer.PaymentCustomerID {
		updated := *customer
		updated.PaymentCustomerID = customerID
		if err := o.customers.Save(ctx, updated); err != nil {
			return domain.PaymentIntent{}, fmt.Errorf("persist payment customer id: %w", err)
		}
		customer.PaymentCustomerID = customerID
	}

	key := fmt.Sprintf("%s-v%d", o.sessionID, version)
	intent, err := o.gateway.CreateIntent(payment.WithIdempotencyKey(ctx, key), customerID, amount, o.currency)
	if err != nil {
		return domain.PaymentIntent{}, err
	}
	if intent.CustomerID == "" {
		intent.CustomerID = customerID
	}
	return intent, nil
}

// PresentPaymentSheet передаёт готовый контекст платёжному UI (IntentReady → AwaitingPaymentUI).
func (o *Orchestrator) PresentPaymentSheet() (PaymentContext, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state != StateIntentReady || o.intent == nil {
		return PaymentContext{}, fmt.Errorf("%w: present payment sheet in state %s", domain.ErrIllegalTransition, o.state)
	}
	o.state = StateAwaitingPaymentUI
	o.logger.WithField("intent_id", o.intent.ID).Debug("payment sheet presented")
	return o.paymentContextLocked(), nil
}

// OnPaymentResult - единственная точка входа для результата платёжного UI.
// Completed запускает финализацию; Failed и Canceled отбрасывают intent и
// автоматически готовят новый.
func (o *Orchestrator) OnPaymentResult(ctx context.Context, result domain.PaymentResult) error {
	if !result.Outcome.Valid() {
		return fmt.Errorf("%w: unknown payment outcome %q", domain.ErrIllegalTransition, result.Outcome)
	}

	o.mu.Lock()
	if o.state != StateAwaitingPaymentUI || o.intent == nil {
		state := o.state
		o.mu.Unlock()
		return fmt.Errorf("%w: payment result in state %s", domain.ErrIllegalTransition, state)
	}
	if result.IntentID != "" && result.IntentID != o.intent.ID {
		current := o.intent.ID
		o.mu.Unlock()
		o.logger.WithFields(log.Fields{
			"intent_id":         result.IntentID,
			"current_intent_id": current,
		}).Warn("payment result for stale intent ignored")
		return domain.ErrStaleIntent
	}
	if o.metrics != nil {
		o.metrics.RecordPaymentOutcome(string(result.Outcome))
	}

	logger := o.logger.WithFields(log.Fields{
		"intent_id": o.intent.ID,
		"outcome":   result.Outcome,
	})

	switch result.Outcome {
	case domain.PaymentOutcomeCompleted:
		o.state = StateCompleted
		o.mu.Unlock()
		logger.Info("payment completed")
		return o.finalize(ctx, false)

	case domain.PaymentOutcomeFailed:
		paymentErr := result.Err
		if paymentErr == nil {
			paymentErr = domain.ErrPaymentFailed
		} else if !errors.Is(paymentErr, domain.ErrPaymentFailed) {
			paymentErr = fmt.Errorf("%w: %w", domain.ErrPaymentFailed, paymentErr)
		}
		o.state = StateFailed
		o.lastPaymentErr = paymentErr
		customer, address := o.rearmLocked()
		o.mu.Unlock()
		logger.WithError(paymentErr).Warn("payment failed, preparing a fresh intent")
		return o.rearm(ctx, customer, address)

	default:
		o.state = StateCanceled
		customer, address := o.rearmLocked()
		o.mu.Unlock()
		logger.Info("payment canceled, preparing a fresh intent")
		return o.rearm(ctx, customer, address)
	}
}

// rearmLocked отбрасывает использованный intent и возвращает данные для нового Prepare.
func (o *Orchestrator) rearmLocked() (domain.Customer, domain.ShippingAddress) {
	p := o.prepared
	o.intent = nil
	o.prepared = nil
	return p.customer, p.address
}

func (o *Orchestrator) rearm(ctx context.Context, customer domain.Customer, address domain.ShippingAddress) error {
	_, err := o.prepare(ctx, &customer, address, false)
	if errors.Is(err, domain.ErrStaleIntent) {
		return nil
	}
	return err
}

// RetryFinalize повторяет запись сохранённого снимка заказа после сбоя.
// Идентификатор заказа не меняется и служит ключом идемпотентности записи.
func (o *Orchestrator) RetryFinalize(ctx context.Context) error {
	o.mu.Lock()
	state := o.state
	o.mu.Unlock()

	switch state {
	case StateOrderPending:
		return domain.ErrFinalizeInFlight
	case StateOrderWriteFailed:
		return o.finalize(ctx, true)
	default:
		return fmt.Errorf("%w: retry finalize in state %s", domain.ErrIllegalTransition, state)
	}
}

// finalize записывает заказ. Достижим только из Completed (или из OrderWriteFailed при повторе).
func (o *Orchestrator) finalize(ctx context.Context, retry bool) error {
	o.mu.Lock()
	switch {
	case o.state == StateOrderPending:
		o.mu.Unlock()
		return domain.ErrFinalizeInFlight
	case o.state == StateCompleted:
	case retry && o.state == StateOrderWriteFailed:
	default:
		state := o.state
		o.mu.Unlock()
		return fmt.Errorf("%w: finalize in state %s", domain.ErrIllegalTransition, state)
	}

	if o.pendingOrder == nil {
		order, err := o.buildOrderLocked()
		if err != nil {
			o.state = StateOrderWriteFailed
			o.lastOrderErr = err
			o.mu.Unlock()
			o.logger.WithError(err).Error("cannot build order snapshot after captured payment")
			return fmt.Errorf("%w: %w", domain.ErrOrderWriteFailed, err)
		}
		o.pendingOrder = &order
	}
	order := *o.pendingOrder
	order.Lines = domain.CloneLines(order.Lines)
	o.state = StateOrderPending
	o.mu.Unlock()

	logger := o.logger.WithFields(log.Fields{
		"order_id": order.ID,
		"user_id":  order.UserID,
		"retry":    retry,
	})

	start := time.Now()
	err := o.ledger.WriteOrder(ctx, order)
	if err != nil && retry && errors.Is(err, domain.ErrOrderExists) {
		logger.Info("order already present in ledger, treating retry as written")
		err = nil
	}
	if o.metrics != nil {
		o.metrics.RecordFinalizeDuration(time.Since(start))
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if err != nil {
		o.state = StateOrderWriteFailed
		o.lastOrderErr = err
		if o.metrics != nil {
			o.metrics.RecordOrderWriteFailure()
		}
		logger.WithError(err).Error("order write failed after captured payment, cart retained for retry")
		return fmt.Errorf("%w: %w", domain.ErrOrderWriteFailed, err)
	}

	o.cart.RemovePaid(ctx, order.Lines)
	o.state = StateOrderWritten
	o.lastOrder = &order
	o.pendingOrder = nil
	o.intent = nil
	o.prepared = nil
	o.lastOrderErr = nil
	if o.metrics != nil {
		o.metrics.RecordOrderWritten()
	}
	logger.WithField("total", order.Total.String()).Info("order written")

	o.enqueueOrderPlaced(ctx, order)
	return nil
}

// buildOrderLocked строит снимок заказа из текущей корзины. Если итог корзины
// разошёлся с оплаченной суммой, используется снимок строк на момент Prepare.
func (o *Orchestrator) buildOrderLocked() (domain.Order, error) {
	p := o.prepared
	if p == nil || o.intent == nil {
		return domain.Order{}, fmt.Errorf("%w: no prepared payment", domain.ErrIllegalTransition)
	}
	if p.customer.ID == "" {
		return domain.Order{}, domain.ErrCustomerRequired
	}

	lines := o.cart.GetAll()
	total := domain.CartTotal(lines)
	amount, err := domain.ToMinorUnits(total, o.currency)
	if err != nil || amount != o.intent.AmountMinor {
		o.logger.WithFields(log.Fields{
			"intent_id":     o.intent.ID,
			"charged_minor": o.intent.AmountMinor,
			"cart_minor":    amount,
		}).Warn("cart changed after payment was prepared, using prepared snapshot")
		lines = domain.CloneLines(p.lines)
		total = p.total
	}
	if !total.IsPositive() {
		return domain.Order{}, domain.ErrCartEmpty
	}

	order := domain.Order{
		ID:              o.newOrderID(),
		UserID:          p.customer.ID,
		Lines:           lines,
		Total:           total,
		Currency:        o.currency,
		AmountMinor:     o.intent.AmountMinor,
		Status:          domain.OrderStatusPlaced,
		PaymentStatus:   domain.PaymentStatusPaid,
		PaymentIntentID: o.intent.ID,
		ShippingAddress: p.address,
		CreatedAt:       o.now(),
	}
	if errs := order.ValidateInvariants(); len(errs) > 0 {
		return domain.Order{}, errors.Join(errs...)
	}
	return order, nil
}

// enqueueOrderPlaced кладёт событие в outbox. Ошибка не влияет на оформление.
func (o *Orchestrator) enqueueOrderPlaced(ctx context.Context, order domain.Order) {
	if o.outbox == nil {
		return
	}
	logger := o.logger.WithField("order_id", order.ID)

	payload, err := json.Marshal(domain.NewOrderPlacedEvent(order))
	if err != nil {
		logger.WithError(err).Error("marshal order placed event failed")
		return
	}
	msg := domain.OutboxMessage{
		AggregateType: domain.AggregateOrder,
		AggregateID:   order.ID,
		EventType:     domain.EventTypeOrderPlaced,
		Payload:       payload,
	}
	if _, err := o.outbox.Enqueue(ctx, msg); err != nil {
		logger.WithError(err).Error("enqueue order placed event failed")
		return
	}
	if o.metrics != nil {
		o.metrics.RecordOutboxEvent()
	}
}

// Status возвращает снимок текущего состояния.
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()

	status := Status{
		State:            o.state,
		Version:          o.version,
		Ready:            o.state.Ready(),
		LastPrepareError: o.lastPrepareErr,
		LastPaymentError: o.lastPaymentErr,
		LastOrderError:   o.lastOrderErr,
	}
	if o.intent != nil && o.state.Ready() {
		pc := o.paymentContextLocked()
		status.Payment = &pc
	}
	if o.pendingOrder != nil {
		order := *o.pendingOrder
		order.Lines = domain.CloneLines(order.Lines)
		status.PendingOrder = &order
	}
	if o.lastOrder != nil {
		order := *o.lastOrder
		order.Lines = domain.CloneLines(order.Lines)
		status.LastOrder = &order
	}
	return status
}

// State возвращает текущее состояние.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

func (o *Orchestrator) paymentContextLocked() PaymentContext {
	return PaymentContext{
		IntentID:     o.intent.ID,
		ClientSecret: o.intent.ClientSecret,
		CustomerID:   o.intent.CustomerID,
		AmountMinor:  o.intent.AmountMinor,
		Currency:     o.currency,
		Sheet:        o.sheet,
		Version:      o.version,
	}
}
