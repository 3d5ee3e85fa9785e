package checkout

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/metrics"
)

const (
	defaultReapInterval = time.Minute
	defaultIdleTTL      = 30 * time.Minute
)

// ReaperOptions задаёт параметры воркера вытеснения простаивающих сессий.
type ReaperOptions struct {
	Logger   *log.Entry
	Metrics  *metrics.CheckoutMetrics
	Interval time.Duration
	IdleTTL  time.Duration
}

// ReaperOption настраивает Reaper.
type ReaperOption func(*ReaperOptions)

// WithReaperLogger задаёт logger для воркера.
func WithReaperLogger(logger *log.Entry) ReaperOption {
	return func(opts *ReaperOptions) {
		opts.Logger = logger
	}
}

// WithReaperMetrics задаёт метрики вытеснения.
func WithReaperMetrics(m *metrics.CheckoutMetrics) ReaperOption {
	return func(opts *ReaperOptions) {
		opts.Metrics = m
	}
}

// WithReapInterval задаёт интервал между циклами.
func WithReapInterval(interval time.Duration) ReaperOption {
	return func(opts *ReaperOptions) {
		opts.Interval = interval
	}
}

// WithIdleTTL задаёт время простоя, после которого сессия вытесняется.
func WithIdleTTL(ttl time.Duration) ReaperOption {
	return func(opts *ReaperOptions) {
		opts.IdleTTL = ttl
	}
}

// Reaper периодически вытесняет простаивающие сессии из реестра.
type Reaper struct {
	sessions *Sessions
	logger   *log.Entry
	metrics  *metrics.CheckoutMetrics
	interval time.Duration
	idleTTL  time.Duration
}

// NewReaper создаёт воркер вытеснения сессий.
func NewReaper(sessions *Sessions, options ...ReaperOption) *Reaper {
	opts := ReaperOptions{
		Interval: defaultReapInterval,
		IdleTTL:  defaultIdleTTL,
	}
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.New().WithField("component", "checkout-session-reaper")
	}
	if opts.Interval <= 0 {
		opts.Interval = defaultReapInterval
	}
	if opts.IdleTTL <= 0 {
		opts.IdleTTL = defaultIdleTTL
	}

	return &Reaper{
		sessions: sessions,
		logger:   logger,
		metrics:  opts.Metrics,
		interval: opts.Interval,
		idleTTL:  opts.IdleTTL,
	}
}

// Run запускает периодическое вытеснение до отмены ctx.
func (r *Reaper) Run(ctx context.Context) {
	if r.sessions == nil {
		r.logger.Warn("session reaper is disabled: sessions registry is nil")
		return
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.ReapOnce()
		}
	}
}

// ReapOnce выполняет один цикл и возвращает число вытесненных сессий.
func (r *Reaper) ReapOnce() int {
	evicted := r.sessions.EvictIdle(r.sessions.now().Add(-r.idleTTL))
	if evicted > 0 {
		if r.metrics != nil {
			r.metrics.RecordSessionsEvicted(evicted)
		}
		r.logger.WithField("evicted", evicted).Info("idle checkout sessions evicted")
	}
	return evicted
}
