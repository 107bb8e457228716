// Package resilience provides the fault-tolerance primitives used around the
// run log, snapshot store, Redis cache and Kafka consumers: a circuit
// breaker, backoff retry and a context timeout wrapper.
package resilience

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

var ErrCircuitOpen = errors.New("circuit breaker is open")

type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

type CircuitBreakerConfig struct {
	FailureThreshold    int
	ResetTimeout        time.Duration
	HalfOpenMaxRequests int
	// OnStateChange is called with the breaker's name after every
	// transition, outside the breaker's lock.
	OnStateChange StateHook
}

type StateHook func(name string, from, to State)

// CircuitBreaker trips open after FailureThreshold consecutive failures.
// Once ResetTimeout has passed it lets HalfOpenMaxRequests probes through;
// a successful probe closes it again.
type CircuitBreaker struct {
	name   string
	cfg    CircuitBreakerConfig
	now    func() time.Time
	logger *slog.Logger

	mu               sync.Mutex
	hook             StateHook
	state            State
	failures         int
	openedAt         time.Time
	halfOpenRequests int
}

func NewCircuitBreaker(name string, cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	if cfg.HalfOpenMaxRequests <= 0 {
		cfg.HalfOpenMaxRequests = 1
	}
	return &CircuitBreaker{
		name:   name,
		cfg:    cfg,
		hook:   cfg.OnStateChange,
		now:    time.Now,
		logger: slog.Default().With("component", "circuit-breaker", "name", name),
	}
}

// Execute runs fn when the circuit allows it. A rejected call returns an
// error wrapping ErrCircuitOpen without running fn.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if err := cb.admit(); err != nil {
		return err
	}
	err := fn()
	cb.record(err)
	return err
}

func (cb *CircuitBreaker) GetState() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (cb *CircuitBreaker) Name() string { return cb.name }

func (cb *CircuitBreaker) admit() error {
	cb.mu.Lock()
	from := cb.state
	var err error
	switch cb.state {
	case StateOpen:
		if wait := cb.cfg.ResetTimeout - cb.now().Sub(cb.openedAt); wait > 0 {
			err = fmt.Errorf("%w: %s (retry after %v)", ErrCircuitOpen, cb.name, wait.Round(time.Millisecond))
			break
		}
		cb.state = StateHalfOpen
		cb.halfOpenRequests = 1
	case StateHalfOpen:
		if cb.halfOpenRequests >= cb.cfg.HalfOpenMaxRequests {
			err = fmt.Errorf("%w: %s (half-open probe in flight)", ErrCircuitOpen, cb.name)
			break
		}
		cb.halfOpenRequests++
	}
	to := cb.state
	cb.mu.Unlock()

	cb.transitioned(from, to)
	return err
}

func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	from := cb.state
	if err == nil {
		cb.failures = 0
		cb.halfOpenRequests = 0
		cb.state = StateClosed
	} else {
		cb.failures++
		if cb.state == StateHalfOpen || cb.failures >= cb.cfg.FailureThreshold {
			cb.state = StateOpen
			cb.openedAt = cb.now()
		}
	}
	to := cb.state
	failures := cb.failures
	cb.mu.Unlock()

	if from != to && to == StateOpen {
		cb.logger.Warn("circuit opened", "consecutive_failures", failures, "threshold", cb.cfg.FailureThreshold, "error", err)
	}
	cb.transitioned(from, to)
}

func (cb *CircuitBreaker) transitioned(from, to State) {
	if from == to {
		return
	}
	if to != StateOpen {
		cb.logger.Info("circuit state changed", "from", from.String(), "to", to.String())
	}
	cb.mu.Lock()
	hook := cb.hook
	cb.mu.Unlock()
	if hook != nil {
		hook(cb.name, from, to)
	}
}

// Notify replaces the state change hook.
func (cb *CircuitBreaker) Notify(hook StateHook) {
	cb.mu.Lock()
	cb.hook = hook
	cb.mu.Unlock()
}

// Reset forces the breaker closed.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	from := cb.state
	cb.state = StateClosed
	cb.failures = 0
	cb.halfOpenRequests = 0
	cb.mu.Unlock()
	cb.transitioned(from, StateClosed)
}
