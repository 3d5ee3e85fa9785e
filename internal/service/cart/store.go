package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// KeyPrefix - префикс ключа, под которым корзина сессии лежит в BlobStore.
const KeyPrefix = "cart:"

// Key возвращает фиксированный ключ корзины для сессии пользователя.
func Key(userID string) string {
	return KeyPrefix + userID
}

// PersistObserver получает уведомление о каждой неудачной записи корзины.
type PersistObserver interface {
	RecordCartPersistFailure()
}

// Store - локально сохраняемое состояние корзины и единственный источник правды о её содержимом.
// Состояние в памяти авторитетно в течение сессии: ошибка записи не откатывает мутацию.
type Store struct {
	mu       sync.Mutex
	blobs    domain.BlobStore
	key      string
	lines    []domain.CartLine
	newID    func() string
	logger   *log.Entry
	observer PersistObserver

	lastPersistErr error
}

// Option настраивает Store.
type Option func(*Store)

// WithIDGenerator подменяет генератор идентификаторов строк.
func WithIDGenerator(gen func() string) Option {
	return func(s *Store) {
		s.newID = gen
	}
}

// WithPersistObserver подключает наблюдателя за ошибками записи (метрики).
func WithPersistObserver(observer PersistObserver) Option {
	return func(s *Store) {
		s.observer = observer
	}
}

// Open загружает корзину из BlobStore. Ошибки чтения и десериализации не фатальны:
// сессия начинается с пустой корзины.
func Open(ctx context.Context, blobs domain.BlobStore, key string, logger *log.Entry, opts ...Option) *Store {
	if logger == nil {
		logger = log.New().WithField("component", "cart-store")
	}
	s := &Store{
		blobs:  blobs,
		key:    key,
		newID:  uuid.NewString,
		logger: logger.WithField("cart_key", key),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.lines = s.load(ctx)
	return s
}

func (s *Store) load(ctx context.Context) []domain.CartLine {
	data, err := s.blobs.Load(ctx, s.key)
	if err != nil {
		if !errors.Is(err, domain.ErrBlobNotFound) {
			s.logger.WithError(err).Warn("cart load failed, starting with empty cart")
		}
		return []domain.CartLine{}
	}

	var lines []domain.CartLine
	if err := json.Unmarshal(data, &lines); err != nil {
		s.logger.WithError(err).Warn("cart blob is corrupted, starting with empty cart")
		return []domain.CartLine{}
	}

	// Склеиваем дубликаты и чиним количество, если blob записан старой версией.
	normalized := make([]domain.CartLine, 0, len(lines))
	index := make(map[string]int, len(lines))
	for _, line := range lines {
		if line.Product.ID == "" {
			continue
		}
		if line.Quantity < 1 {
			line.Quantity = 1
		}
		if i, ok := index[line.Product.ID]; ok {
			normalized[i].Quantity += line.Quantity
			continue
		}
		if line.ID == "" {
			line.ID = s.newID()
		}
		index[line.Product.ID] = len(normalized)
		normalized = append(normalized, line)
	}
	return normalized
}

// GetAll возвращает копию текущих строк; пустой список, если корзина пуста.
func (s *Store) GetAll() []domain.CartLine {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.CloneLines(s.lines)
}

// Add кладёт товар в корзину. Если строка для product.ID уже есть, увеличивает её
// количество и возвращает false; иначе добавляет новую строку и возвращает true.
func (s *Store) Add(ctx context.Context, product domain.Product, quantity int) (bool, error) {
	if quantity < 1 {
		return false, domain.ErrQuantityInvalid
	}
	if errs := product.Validate(); len(errs) > 0 {
		return false, errors.Join(errs...)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	isNewLine := true
	for i := range s.lines {
		if s.lines[i].Product.ID == product.ID {
			s.lines[i].Quantity += quantity
			isNewLine = false
			break
		}
	}
	if isNewLine {
		s.lines = append(s.lines, domain.CartLine{
			ID:       s.newID(),
			Product:  product,
			Quantity: quantity,
		})
	}

	s.persistLocked(ctx)
	return isNewLine, nil
}

// Remove удаляет строку товара; отсутствие строки не является ошибкой.
func (s *Store) Remove(ctx context.Context, productID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.lines {
		if s.lines[i].Product.ID == productID {
			s.lines = append(s.lines[:i], s.lines[i+1:]...)
			s.persistLocked(ctx)
			return
		}
	}
}

// UpdateQuantity задаёт количество max(1, quantity). Строка при этом никогда не удаляется.
func (s *Store) UpdateQuantity(ctx context.Context, productID string, quantity int) {
	if quantity < 1 {
		quantity = 1
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.lines {
		if s.lines[i].Product.ID == productID {
			s.lines[i].Quantity = quantity
			s.persistLocked(ctx)
			return
		}
	}
}

// Clear сохраняет пустой набор строк.
func (s *Store) Clear(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lines = []domain.CartLine{}
	s.persistLocked(ctx)
}

// RemovePaid вычитает из корзины оплаченные строки заказа. Товары, добавленные
// после подготовки оплаты, и излишек количества остаются в корзине.
func (s *Store) RemovePaid(ctx context.Context, paid []domain.CartLine) {
	s.mu.Lock()
	defer s.mu.Unlock()

	paidQty := make(map[string]int, len(paid))
	for _, line := range paid {
		paidQty[line.Product.ID] += line.Quantity
	}
	kept := make([]domain.CartLine, 0, len(s.lines))
	for _, line := range s.lines {
		line.Quantity -= paidQty[line.Product.ID]
		if line.Quantity > 0 {
			kept = append(kept, line)
		}
	}
	s.lines = kept
	s.persistLocked(ctx)
}

// Total пересчитывает итог по текущим строкам при каждом вызове.
func (s *Store) Total() decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.CartTotal(s.lines)
}

// LastPersistError возвращает ошибку последней записи или nil, если она прошла успешно.
func (s *Store) LastPersistError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastPersistErr
}

// persistLocked целиком перезаписывает blob. Вызывается под s.mu.
func (s *Store) persistLocked(ctx context.Context) {
	data, err := json.Marshal(s.lines)
	if err == nil {
		err = s.blobs.Save(ctx, s.key, data)
	}
	if err != nil {
		s.lastPersistErr = fmt.Errorf("%w: %w", domain.ErrCartPersist, err)
		s.logger.WithError(err).Warn("cart persist failed, keeping in-memory state")
		if s.observer != nil {
			s.observer.RecordCartPersistFailure()
		}
		return
	}
	s.lastPersistErr = nil
}
