package memory

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const (
	defaultPullLimit  = 100
	defaultClaimLease = 30 * time.Second
)

type outboxState uint8

const (
	outboxPending outboxState = iota
	outboxSent
	outboxFailed
)

type outboxEntry struct {
	msg     domain.OutboxMessage
	seq     uint64
	state   outboxState
	reason  string
	queued  time.Time
	claimed time.Time // до этого момента сообщение выдано воркеру
}

// OutboxRepository - outbox для режима без SQL-хранилища. Повторяет семантику
// postgres-реализации: PullPending арендует сообщения, пока воркер их не подтвердит.
type OutboxRepository struct {
	mu      sync.Mutex
	entries map[string]*outboxEntry
	seq     uint64
	lease   time.Duration
	now     func() time.Time
}

// NewOutboxRepository создаёт пустой outbox.
func NewOutboxRepository() *OutboxRepository {
	return &OutboxRepository{
		entries: make(map[string]*outboxEntry),
		lease:   defaultClaimLease,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Enqueue ставит сообщение в очередь; пустой ID генерируется.
func (r *OutboxRepository) Enqueue(ctx context.Context, msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	if err := ctx.Err(); err != nil {
		return domain.OutboxMessage{}, err
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	r.entries[msg.ID] = &outboxEntry{msg: msg, seq: r.seq, queued: r.now()}
	return msg, nil
}

// PullPending арендует до limit свободных сообщений в порядке постановки.
func (r *OutboxRepository) PullPending(ctx context.Context, limit int) ([]domain.OutboxMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultPullLimit
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	var claimable []*outboxEntry
	for _, e := range r.pendingLocked() {
		if e.claimed.After(now) {
			continue
		}
		claimable = append(claimable, e)
		if len(claimable) == limit {
			break
		}
	}

	out := make([]domain.OutboxMessage, 0, len(claimable))
	for _, e := range claimable {
		e.claimed = now.Add(r.lease)
		out = append(out, e.msg)
	}
	return out, nil
}

// Stats считает арендованные сообщения частью backlog: они ещё не доставлены.
func (r *OutboxRepository) Stats(ctx context.Context) (domain.OutboxStats, error) {
	if err := ctx.Err(); err != nil {
		return domain.OutboxStats{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	pending := r.pendingLocked()
	stats := domain.OutboxStats{PendingCount: len(pending)}
	if len(pending) > 0 {
		stats.OldestPendingAt = pending[0].queued
	}
	return stats, nil
}

// MarkSent подтверждает доставку.
func (r *OutboxRepository) MarkSent(_ context.Context, id string) error {
	return r.settle(id, outboxSent, "")
}

// MarkFailed закрывает сообщение с причиной ошибки.
func (r *OutboxRepository) MarkFailed(_ context.Context, id, reason string) error {
	return r.settle(id, outboxFailed, reason)
}

// Pending возвращает недоставленные сообщения, включая арендованные.
func (r *OutboxRepository) Pending() []domain.OutboxMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	pending := r.pendingLocked()
	out := make([]domain.OutboxMessage, len(pending))
	for i, e := range pending {
		out[i] = e.msg
	}
	return out
}

// FailureReason возвращает причину, сохранённую MarkFailed.
func (r *OutboxRepository) FailureReason(id string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[id]; ok {
		return e.reason
	}
	return ""
}

func (r *OutboxRepository) settle(id string, state outboxState, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok || e.state != outboxPending {
		return domain.ErrOutboxPublish
	}
	e.state = state
	e.reason = reason
	e.claimed = time.Time{}
	return nil
}

func (r *OutboxRepository) pendingLocked() []*outboxEntry {
	var out []*outboxEntry
	for _, e := range r.entries {
		if e.state == outboxPending {
			out = append(out, e)
		}
	}
	slices.SortFunc(out, func(a, b *outboxEntry) int { return cmp.Compare(a.seq, b.seq) })
	return out
}

var _ domain.OutboxRepository = (*OutboxRepository)(nil)
