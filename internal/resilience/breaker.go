// Package resilience wraps dispatcher handler invocation in per-action
// circuit breakers, adapted from the teacher's circuit breaker middleware
// (internal/adapter/http/fiber/middleware/circuit_breaker.go) onto
// sony/gobreaker directly rather than the hand-rolled breaker kept
// alongside it in the teacher codebase.
package resilience

import (
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// Settings configures every breaker a Manager creates. The zero value is not
// DefaultSettings(): its zero fields are passed to gobreaker unchanged.
type Settings struct {
	MaxRequests uint32
	Interval    time.Duration
	Timeout     time.Duration
}

// DefaultSettings mirrors circuitbreaker.DefaultSettings() from the teacher
// codebase.
func DefaultSettings() Settings {
	return Settings{
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
	}
}

// Manager lazily creates and caches one gobreaker.CircuitBreaker per name
// (one per OCPP action in this runtime).
type Manager struct {
	settings Settings
	log      *zap.Logger

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

// NewManager builds a Manager. log may be nil, in which case state changes
// are not logged.
func NewManager(settings Settings, log *zap.Logger) *Manager {
	return &Manager{settings: settings, log: log, breakers: make(map[string]*gobreaker.CircuitBreaker)}
}

func (m *Manager) get(name string) *gobreaker.CircuitBreaker {
	m.mu.Lock()
	defer m.mu.Unlock()

	if cb, ok := m.breakers[name]; ok {
		return cb
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: m.settings.MaxRequests,
		Interval:    m.settings.Interval,
		Timeout:     m.settings.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			if m.log != nil {
				m.log.Warn("circuit breaker state changed",
					zap.String("action", name),
					zap.String("from", from.String()),
					zap.String("to", to.String()),
				)
			}
		},
	})
	m.breakers[name] = cb
	return cb
}

// Execute runs fn behind the named breaker. A panic inside fn is recovered,
// counted as a failure, and re-surfaced to the caller as an error rather
// than propagated, so a misbehaving handler cannot take down the
// dispatcher's single sequential loop.
func (m *Manager) Execute(name string, fn func() (any, error)) (any, error) {
	cb := m.get(name)
	return cb.Execute(func() (result any, err error) {
		defer func() {
			if r := recover(); r != nil {
				result, err = nil, &PanicError{Recovered: r}
			}
		}()
		return fn()
	})
}

// PanicError wraps a recovered handler panic as an error.
type PanicError struct {
	Recovered any
}

func (e *PanicError) Error() string {
	return "handler panicked"
}

// IsOpen reports whether err is one of gobreaker's rejection sentinels: the
// open-circuit error or the half-open too-many-requests error.
func IsOpen(err error) bool {
	return err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests
}
