package checkout

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
	"github.com/vladislavdragonenkov/storefront/internal/service/cart"
)

// Session - корзина и оркестратор оформления одного пользователя.
type Session struct {
	UserID   string
	Cart     *cart.Store
	Checkout *Orchestrator

	lastSeen time.Time
}

// SessionConfig - общие зависимости всех сессий.
type SessionConfig struct {
	Blobs     domain.BlobStore
	Gateway   domain.PaymentGateway
	Ledger    domain.OrderLedger
	Customers domain.CustomerStore
	Outbox    domain.OutboxRepository
	Metrics   *metrics.CheckoutMetrics
	Currency  string
	Sheet     domain.PaymentSheetConfig
}

// Sessions - реестр сессий: одна корзина и один оркестратор на пользователя.
type Sessions struct {
	cfg    SessionConfig
	logger *log.Entry

	mu       sync.Mutex
	sessions map[string]*Session
	now      func() time.Time
}

// NewSessions создаёт реестр сессий.
func NewSessions(cfg SessionConfig, logger *log.Entry) (*Sessions, error) {
	if cfg.Blobs == nil {
		return nil, errors.New("checkout: blob store is required")
	}
	if _, err := domain.NormalizeCurrency(cfg.Currency); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.New().WithField("component", "checkout-sessions")
	}
	return &Sessions{
		cfg:      cfg,
		logger:   logger,
		sessions: make(map[string]*Session),
		now:      time.Now,
	}, nil
}

// Get возвращает сессию пользователя, открывая её при первом обращении.
// Корзина загружается из BlobStore под ключом cart:<userID>.
func (s *Sessions) Get(ctx context.Context, userID string) (*Session, error) {
	if userID == "" {
		return nil, domain.ErrCustomerRequired
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if session, ok := s.sessions[userID]; ok {
		session.lastSeen = s.now()
		return session, nil
	}

	logger := s.logger.WithField("user_id", userID)
	var cartOpts []cart.Option
	if s.cfg.Metrics != nil {
		cartOpts = append(cartOpts, cart.WithPersistObserver(s.cfg.Metrics))
	}
	store := cart.Open(ctx, s.cfg.Blobs, cart.Key(userID), logger, cartOpts...)

	orch, err := NewOrchestrator(Dependencies{
		Cart:      store,
		Gateway:   s.cfg.Gateway,
		Ledger:    s.cfg.Ledger,
		Customers: s.cfg.Customers,
		Outbox:    s.cfg.Outbox,
		Metrics:   s.cfg.Metrics,
		Logger:    logger,
	}, Settings{
		SessionID: uuid.NewString(),
		Currency:  s.cfg.Currency,
		Sheet:     s.cfg.Sheet,
	})
	if err != nil {
		return nil, err
	}

	session := &Session{UserID: userID, Cart: store, Checkout: orch, lastSeen: s.now()}
	s.sessions[userID] = session
	if s.cfg.Metrics != nil {
		s.cfg.Metrics.RecordSessionOpened()
	}
	logger.Debug("checkout session opened")
	return session, nil
}

// Close забывает сессию пользователя. Корзина остаётся в BlobStore.
// Сессию с незаписанным оплаченным заказом закрыть нельзя.
func (s *Sessions) Close(userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[userID]
	if !ok {
		return nil
	}
	if holdsPaidOrder(session) {
		return domain.ErrFinalizeInFlight
	}
	s.dropLocked(userID)
	return nil
}

// EvictIdle закрывает сессии, к которым не обращались с момента before.
// Сессии с оплаченным, но не записанным заказом остаются в памяти.
func (s *Sessions) EvictIdle(before time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	evicted := 0
	for userID, session := range s.sessions {
		if !session.lastSeen.Before(before) || holdsPaidOrder(session) {
			continue
		}
		s.dropLocked(userID)
		evicted++
	}
	return evicted
}

// holdsPaidOrder сообщает, что платёж подтверждён, а заказ ещё не записан.
// Completed входит сюда: между OnPaymentResult и захватом мьютекса в finalize
// сессия уже оплачена.
func holdsPaidOrder(session *Session) bool {
	switch session.Checkout.State() {
	case StateOrderPending, StateOrderWriteFailed, StateCompleted:
		return true
	}
	return false
}

func (s *Sessions) dropLocked(userID string) {
	delete(s.sessions, userID)
	if s.cfg.Metrics != nil {
		s.cfg.Metrics.RecordSessionClosed()
	}
}

// Len возвращает число открытых сессий.
func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
