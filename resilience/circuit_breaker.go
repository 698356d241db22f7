package resilience

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/itsneelabh/querysynth/core"
)

// CircuitState represents the state of the circuit breaker
type CircuitState int

const (
	// StateClosed allows all requests through
	StateClosed CircuitState = iota
	// StateOpen blocks all requests
	StateOpen
	// StateHalfOpen allows a single probe request
	StateHalfOpen
)

// String returns the string representation of the state
func (s CircuitState) String() string {
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

// ErrorClassifier determines which errors should count toward circuit breaker thresholds
type ErrorClassifier func(error) bool

// DefaultErrorClassifier only counts infrastructure errors, not caller errors
func DefaultErrorClassifier(err error) bool {
	if err == nil {
		return false
	}

	// Configuration errors - DON'T count (caller error)
	if core.IsConfigurationError(err) {
		return false
	}

	// Context cancellation - DON'T count (client gave up)
	if errors.Is(err, context.Canceled) || errors.Is(err, core.ErrContextCanceled) {
		return false
	}

	return true
}

// CircuitBreakerConfig holds configuration for the circuit breaker
type CircuitBreakerConfig struct {
	// Name identifies the circuit breaker in logs and errors
	Name string

	// FailureThreshold is the number of consecutive counted failures before opening
	FailureThreshold int

	// SleepWindow is how long to stay open before allowing a half-open probe
	SleepWindow time.Duration

	// ErrorClassifier decides which errors count as failures
	ErrorClassifier ErrorClassifier

	Logger core.Logger
}

// DefaultCircuitBreakerConfig returns production defaults
func DefaultCircuitBreakerConfig(name string) *CircuitBreakerConfig {
	return &CircuitBreakerConfig{
		Name:             name,
		FailureThreshold: 5,
		SleepWindow:      30 * time.Second,
		ErrorClassifier:  DefaultErrorClassifier,
		Logger:           &core.NoOpLogger{},
	}
}

// CircuitBreaker stops calling a collaborator that keeps failing, so that
// concurrent tasks fail fast instead of each waiting out a timeout.
type CircuitBreaker struct {
	config *CircuitBreakerConfig

	mu               sync.Mutex
	state            CircuitState
	consecutiveFails int
	openedAt         time.Duration
	probeInFlight    bool
	rejected         int64

	// now returns monotonic elapsed time; replaced in tests
	now func() time.Duration
}

// NewCircuitBreaker creates a circuit breaker. Zero config fields take defaults.
func NewCircuitBreaker(config *CircuitBreakerConfig) (*CircuitBreaker, error) {
	if config == nil {
		config = DefaultCircuitBreakerConfig("default")
	}
	if config.FailureThreshold < 0 || config.SleepWindow < 0 {
		return nil, fmt.Errorf("circuit breaker %q: thresholds must not be negative: %w", config.Name, core.ErrInvalidConfiguration)
	}
	if config.FailureThreshold == 0 {
		config.FailureThreshold = 5
	}
	if config.SleepWindow == 0 {
		config.SleepWindow = 30 * time.Second
	}
	if config.ErrorClassifier == nil {
		config.ErrorClassifier = DefaultErrorClassifier
	}
	if config.Logger == nil {
		config.Logger = &core.NoOpLogger{}
	}

	start := time.Now()
	return &CircuitBreaker{
		config: config,
		state:  StateClosed,
		now:    func() time.Duration { return time.Since(start) },
	}, nil
}

// SetLogger sets the logger for state transitions
func (cb *CircuitBreaker) SetLogger(logger core.Logger) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if logger == nil {
		cb.config.Logger = &core.NoOpLogger{}
		return
	}
	cb.config.Logger = core.ComponentLogger(logger, "resilience/circuit_breaker")
}

// Execute runs fn if the circuit allows it and records the outcome.
// A rejected call returns core.ErrCircuitBreakerOpen without invoking fn.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	probe, allowed := cb.allow()
	if !allowed {
		return fmt.Errorf("circuit breaker '%s' is open: %w", cb.config.Name, core.ErrCircuitBreakerOpen)
	}

	err := fn()
	cb.record(probe, err)
	return err
}

func (cb *CircuitBreaker) allow() (probe bool, allowed bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return false, true
	case StateOpen:
		if cb.now()-cb.openedAt < cb.config.SleepWindow {
			cb.rejected++
			return false, false
		}
		cb.transitionLocked(StateHalfOpen)
		fallthrough
	case StateHalfOpen:
		if cb.probeInFlight {
			cb.rejected++
			return false, false
		}
		cb.probeInFlight = true
		return true, true
	}
	return false, false
}

func (cb *CircuitBreaker) record(probe bool, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if probe {
		cb.probeInFlight = false
	}

	if !cb.config.ErrorClassifier(err) {
		if probe || cb.state == StateClosed {
			cb.consecutiveFails = 0
			if cb.state != StateClosed {
				cb.transitionLocked(StateClosed)
			}
		}
		return
	}

	cb.consecutiveFails++
	if probe || cb.consecutiveFails >= cb.config.FailureThreshold {
		cb.openedAt = cb.now()
		if cb.state != StateOpen {
			cb.transitionLocked(StateOpen)
		}
	}
}

func (cb *CircuitBreaker) transitionLocked(to CircuitState) {
	from := cb.state
	cb.state = to
	cb.config.Logger.Info("Circuit breaker state changed", map[string]interface{}{
		"operation":         "circuit_breaker_transition",
		"name":              cb.config.Name,
		"from":              from.String(),
		"to":                to.String(),
		"consecutive_fails": cb.consecutiveFails,
	})
}

// GetState returns the current state name
func (cb *CircuitBreaker) GetState() string {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state.String()
}

// GetMetrics returns breaker counters for monitoring
func (cb *CircuitBreaker) GetMetrics() map[string]interface{} {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return map[string]interface{}{
		"name":              cb.config.Name,
		"state":             cb.state.String(),
		"consecutive_fails": cb.consecutiveFails,
		"rejected":          cb.rejected,
	}
}

// Reset closes the circuit and clears counters
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.consecutiveFails = 0
	cb.probeInFlight = false
	if cb.state != StateClosed {
		cb.transitionLocked(StateClosed)
	}
}
