// Package health - HTTP-пробы сервиса: /healthz с отчётом по зависимостям, /livez и /readyz.
package health

import (
	"cmp"
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

const defaultCheckTimeout = 2 * time.Second

// Status - состояние компонента или сервиса целиком.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// severity упорядочивает статусы: сводный статус равен худшему из проверок.
func (s Status) severity() int {
	switch s {
	case StatusHealthy:
		return 0
	case StatusDegraded:
		return 1
	default:
		return 2
	}
}

// Check - результат проверки одной зависимости.
type Check struct {
	Name       string `json:"name"`
	Status     Status `json:"status"`
	Message    string `json:"message,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

// Report - тело ответа /healthz.
type Report struct {
	Status        Status    `json:"status"`
	Timestamp     time.Time `json:"timestamp"`
	Version       string    `json:"version,omitempty"`
	UptimeSeconds int64     `json:"uptime_seconds"`
	Checks        []Check   `json:"checks,omitempty"`
}

// Checker проверяет одну зависимость.
type Checker interface {
	Check(ctx context.Context) Check
}

// Handler хранит зарегистрированные проверки и обслуживает пробы.
type Handler struct {
	version string
	timeout time.Duration
	started time.Time
	now     func() time.Time

	mu       sync.RWMutex
	checkers map[string]Checker
}

// NewHandler создаёт обработчик проб для сборки version.
func NewHandler(version string) *Handler {
	return &Handler{
		version:  version,
		timeout:  defaultCheckTimeout,
		started:  time.Now(),
		now:      time.Now,
		checkers: make(map[string]Checker),
	}
}

// RegisterChecker добавляет или заменяет проверку с именем name.
func (h *Handler) RegisterChecker(name string, checker Checker) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checkers[name] = checker
}

// Evaluate параллельно выполняет проверки с общим таймаутом и собирает отчёт.
// Проверки в отчёте отсортированы по имени.
func (h *Handler) Evaluate(ctx context.Context) Report {
	h.mu.RLock()
	names := make([]string, 0, len(h.checkers))
	checkers := make([]Checker, 0, len(h.checkers))
	for name, checker := range h.checkers {
		names = append(names, name)
		checkers = append(checkers, checker)
	}
	h.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	checks := make([]Check, len(checkers))
	var g errgroup.Group
	for i, checker := range checkers {
		g.Go(func() error {
			check := checker.Check(ctx)
			check.Name = names[i]
			checks[i] = check
			return nil
		})
	}
	_ = g.Wait()

	slices.SortFunc(checks, func(a, b Check) int { return cmp.Compare(a.Name, b.Name) })

	overall := StatusHealthy
	for _, check := range checks {
		if check.Status.severity() > overall.severity() {
			overall = check.Status
		}
	}
	return Report{
		Status:        overall,
		Timestamp:     h.now().UTC(),
		Version:       h.version,
		UptimeSeconds: int64(h.now().Sub(h.started).Seconds()),
		Checks:        checks,
	}
}

// ServeHTTP отдаёт отчёт; 503 только при unhealthy, degraded остаётся в трафике.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	report := h.Evaluate(r.Context())

	code := http.StatusOK
	if report.Status == StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(report)
}

// ReadinessHandler снимает инстанс с трафика, пока критичная зависимость недоступна.
func (h *Handler) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	if h.Evaluate(r.Context()).Status == StatusUnhealthy {
		writeText(w, http.StatusServiceUnavailable, "not ready")
		return
	}
	writeText(w, http.StatusOK, "ready")
}

// LivenessHandler отвечает 200, пока процесс обслуживает HTTP.
func LivenessHandler(w http.ResponseWriter, _ *http.Request) {
	writeText(w, http.StatusOK, "ok")
}

func writeText(w http.ResponseWriter, code int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(code)
	_, _ = w.Write([]byte(body))
}

// FuncChecker превращает функцию в проверку. Ошибка даёт статус onError.
type FuncChecker struct {
	name    string
	fn      func(ctx context.Context) error
	onError Status
}

// NewSimpleChecker создаёт проверку критичной зависимости: ошибка даёт unhealthy.
func NewSimpleChecker(name string, fn func(ctx context.Context) error) *FuncChecker {
	return &FuncChecker{name: name, fn: fn, onError: StatusUnhealthy}
}

// NewDegradableChecker создаёт проверку некритичной зависимости: ошибка даёт degraded.
func NewDegradableChecker(name string, fn func(ctx context.Context) error) *FuncChecker {
	return &FuncChecker{name: name, fn: fn, onError: StatusDegraded}
}

// Pinger - хранилище с проверкой соединения (Redis, PostgreSQL, MongoDB).
type Pinger interface {
	Ping(ctx context.Context) error
}

// NewPingChecker создаёт критичную проверку хранилища.
func NewPingChecker(name string, pinger Pinger) *FuncChecker {
	return NewSimpleChecker(name, pinger.Ping)
}

// Check выполняет проверку и измеряет её длительность.
func (c *FuncChecker) Check(ctx context.Context) Check {
	start := time.Now()
	err := c.fn(ctx)
	check := Check{
		Name:       c.name,
		Status:     StatusHealthy,
		DurationMs: time.Since(start).Milliseconds(),
	}
	if err != nil {
		check.Status = c.onError
		check.Message = err.Error()
	}
	return check
}
