package circuitbreaker

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

var ErrCircuitOpen = errors.New("circuit breaker is open")

type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

type Config struct {
	// FailureThreshold consecutive failures open the circuit.
	FailureThreshold uint32
	// OpenTimeout is how long the circuit stays open before a trial call.
	OpenTimeout time.Duration
	// IsFailure classifies errors. Nil counts every error as a failure.
	IsFailure     func(error) bool
	OnStateChange func(name string, from, to State)
	Logger        *zap.Logger
	now           func() time.Time
}

// CircuitBreaker short-circuits calls to a failing dependency. While half-open
// exactly one trial call is let through.
type CircuitBreaker struct {
	name string
	cfg  Config

	mu          sync.Mutex
	state       State
	failures    uint32
	openedAt    time.Time
	trialActive bool
}

func New(name string, cfg Config) *CircuitBreaker {
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.now == nil {
		cfg.now = time.Now
	}
	return &CircuitBreaker{name: name, cfg: cfg}
}

func (cb *CircuitBreaker) Name() string { return cb.name }

// Execute runs fn unless the circuit is open.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	trial, err := cb.acquire()
	if err != nil {
		return err
	}

	err = fn()
	cb.release(trial, err)
	return err
}

func (cb *CircuitBreaker) acquire() (bool, error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.currentState() {
	case StateOpen:
		return false, ErrCircuitOpen
	case StateHalfOpen:
		if cb.trialActive {
			return false, ErrCircuitOpen
		}
		cb.trialActive = true
		return true, nil
	default:
		return false, nil
	}
}

func (cb *CircuitBreaker) release(trial bool, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if trial {
		cb.trialActive = false
	}

	failed := err != nil && (cb.cfg.IsFailure == nil || cb.cfg.IsFailure(err))
	if !failed {
		cb.failures = 0
		if cb.state != StateClosed {
			cb.transition(StateClosed)
		}
		return
	}

	cb.failures++
	if cb.state == StateHalfOpen || cb.failures >= cb.cfg.FailureThreshold {
		cb.openedAt = cb.cfg.now()
		cb.transition(StateOpen)
	}
}

// currentState moves an expired open circuit to half-open. Callers hold mu.
func (cb *CircuitBreaker) currentState() State {
	if cb.state == StateOpen && cb.cfg.now().Sub(cb.openedAt) >= cb.cfg.OpenTimeout {
		cb.transition(StateHalfOpen)
	}
	return cb.state
}

func (cb *CircuitBreaker) transition(to State) {
	from := cb.state
	if from == to {
		return
	}
	cb.state = to
	if to == StateClosed {
		cb.failures = 0
	}

	cb.cfg.Logger.Info("Circuit breaker state changed",
		zap.String("name", cb.name),
		zap.String("from", from.String()),
		zap.String("to", to.String()),
	)
	if cb.cfg.OnStateChange != nil {
		cb.cfg.OnStateChange(cb.name, from, to)
	}
}

func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.currentState()
}
