package services

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrCircuitOpen is returned when the breaker rejects a call
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreakerState represents the current state of the circuit breaker
type CircuitBreakerState int

const (
	Closed CircuitBreakerState = iota
	Open
	HalfOpen
)

func (s CircuitBreakerState) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig tunes a breaker; zero fields take defaults
type CircuitBreakerConfig struct {
	// failures that open a closed breaker
	FailureThreshold int
	// successes that close a half-open breaker
	SuccessThreshold int
	// time spent open before probing again
	Timeout time.Duration
	// calls let through while half-open
	MaxRequests int
	// quiet period after which closed failures are forgotten
	ResetTimeout time.Duration
}

// CircuitBreaker guards an upstream refresh. The lock is never held while the
// guarded function runs.
type CircuitBreaker struct {
	name   string
	config CircuitBreakerConfig
	logger *logrus.Logger
	now    func() time.Time

	mu              sync.Mutex
	state           CircuitBreakerState
	failures        int
	successes       int
	halfOpenCalls   int
	lastFailure     time.Time
	lastStateChange time.Time
}

// NewCircuitBreaker creates a closed breaker
func NewCircuitBreaker(name string, config CircuitBreakerConfig, logger *logrus.Logger) *CircuitBreaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 5
	}
	if config.SuccessThreshold <= 0 {
		config.SuccessThreshold = 3
	}
	if config.Timeout <= 0 {
		config.Timeout = 60 * time.Second
	}
	if config.MaxRequests <= 0 {
		config.MaxRequests = 10
	}
	if config.ResetTimeout <= 0 {
		config.ResetTimeout = 300 * time.Second
	}

	return &CircuitBreaker{
		name:            name,
		config:          config,
		logger:          logger,
		now:             time.Now,
		state:           Closed,
		lastStateChange: time.Now(),
	}
}

// Execute runs fn unless the breaker is open, and records its outcome
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if !cb.allow() {
		return ErrCircuitOpen
	}

	err := fn(ctx)

	cb.mu.Lock()
	defer cb.mu.Unlock()
	if err != nil {
		cb.recordFailure(err)
	} else {
		cb.recordSuccess()
	}
	return err
}

func (cb *CircuitBreaker) allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := cb.now()
	switch cb.state {
	case Closed:
		if now.Sub(cb.lastFailure) > cb.config.ResetTimeout {
			cb.failures = 0
		}
		return true
	case Open:
		if now.Sub(cb.lastStateChange) <= cb.config.Timeout {
			cb.logger.WithFields(logrus.Fields{
				"circuit_breaker": cb.name,
				"failure_count":   cb.failures,
			}).Warn("Circuit breaker is open, rejecting request")
			return false
		}
		cb.setState(HalfOpen)
		cb.successes = 0
		cb.halfOpenCalls = 1
		return true
	case HalfOpen:
		if cb.halfOpenCalls >= cb.config.MaxRequests {
			return false
		}
		cb.halfOpenCalls++
		return true
	default:
		return false
	}
}

// recordSuccess must hold mu
func (cb *CircuitBreaker) recordSuccess() {
	switch cb.state {
	case Closed:
		cb.failures = 0
	case HalfOpen:
		cb.successes++
		if cb.successes >= cb.config.SuccessThreshold {
			cb.setState(Closed)
			cb.failures = 0
		}
	}
}

// recordFailure must hold mu
func (cb *CircuitBreaker) recordFailure(err error) {
	cb.lastFailure = cb.now()
	cb.failures++

	// any half-open failure reopens
	if cb.state == HalfOpen || cb.failures >= cb.config.FailureThreshold {
		cb.setState(Open)
	}

	cb.logger.WithFields(logrus.Fields{
		"circuit_breaker": cb.name,
		"state":           cb.state.String(),
		"failure_count":   cb.failures,
	}).WithError(err).Warn("Circuit breaker: failed execution")
}

func (cb *CircuitBreaker) setState(newState CircuitBreakerState) {
	if cb.state == newState {
		return
	}
	oldState := cb.state
	cb.state = newState
	cb.lastStateChange = cb.now()

	cb.logger.WithFields(logrus.Fields{
		"circuit_breaker": cb.name,
		"old_state":       oldState.String(),
		"new_state":       newState.String(),
	}).Info("Circuit breaker state changed")
}

// GetState returns the current state of the circuit breaker
func (cb *CircuitBreaker) GetState() CircuitBreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// CircuitBreakerManager hands out one breaker per upstream name
type CircuitBreakerManager struct {
	breakers map[string]*CircuitBreaker
	logger   *logrus.Logger
	mu       sync.RWMutex
}

// NewCircuitBreakerManager creates a new circuit breaker manager
func NewCircuitBreakerManager(logger *logrus.Logger) *CircuitBreakerManager {
	return &CircuitBreakerManager{
		breakers: make(map[string]*CircuitBreaker),
		logger:   logger,
	}
}

// GetOrCreate gets an existing circuit breaker or creates a new one
func (cbm *CircuitBreakerManager) GetOrCreate(name string, config CircuitBreakerConfig) *CircuitBreaker {
	cbm.mu.Lock()
	defer cbm.mu.Unlock()

	if breaker, exists := cbm.breakers[name]; exists {
		return breaker
	}

	breaker := NewCircuitBreaker(name, config, cbm.logger)
	cbm.breakers[name] = breaker
	return breaker
}

// OpenBreakers returns the sorted names of breakers that are not closed
func (cbm *CircuitBreakerManager) OpenBreakers() []string {
	cbm.mu.RLock()
	defer cbm.mu.RUnlock()

	var names []string
	for name, breaker := range cbm.breakers {
		if breaker.GetState() != Closed {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}
