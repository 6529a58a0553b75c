package routing

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/agentlane/relay/provider"
)

// CircuitState represents circuit breaker state.
type CircuitState string

const (
	CircuitClosed   CircuitState = "closed"
	CircuitOpen     CircuitState = "open"
	CircuitHalfOpen CircuitState = "half_open"
)

// CircuitBreaker is a per-provider state machine preventing repeated calls to
// a failing backend. It starts CLOSED and cycles indefinitely:
//
//	CLOSED -> OPEN       after failureThreshold consecutive failures
//	OPEN -> HALF_OPEN    on the next access attempt once the timeout elapsed
//	HALF_OPEN -> CLOSED  the single trial call succeeds
//	HALF_OPEN -> OPEN    the trial call fails; the timeout restarts
type CircuitBreaker struct {
	mutex               sync.Mutex
	provider            provider.Provider
	state               CircuitState
	failureThreshold    int
	timeout             time.Duration
	consecutiveFailures int
	openedAt            time.Time
	probeInFlight       bool
	clock               clock.Clock
	logger              *zap.SugaredLogger
}

func newCircuitBreaker(p provider.Provider, failureThreshold int, timeout time.Duration, clk clock.Clock, logger *zap.SugaredLogger) (*CircuitBreaker, error) {
	if failureThreshold <= 0 {
		return nil, &ConfigurationError{Reason: "failure threshold must be positive"}
	}
	if timeout <= 0 {
		return nil, &ConfigurationError{Reason: "breaker timeout must be positive"}
	}
	return &CircuitBreaker{
		provider:         p,
		state:            CircuitClosed,
		failureThreshold: failureThreshold,
		timeout:          timeout,
		clock:            clk,
		logger:           logger,
	}, nil
}

// Allow reports whether an attempt against the provider may proceed. While
// OPEN and before the timeout elapses, attempts are rejected without
// contacting the provider. The first access after the timeout transitions the
// breaker to HALF_OPEN and admits exactly one trial call; further attempts
// are rejected until that trial resolves.
func (b *CircuitBreaker) Allow() bool {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	switch b.state {
	case CircuitClosed:
		return true
	case CircuitOpen:
		if b.clock.Now().Sub(b.openedAt) < b.timeout {
			return false
		}
		b.state = CircuitHalfOpen
		b.openedAt = time.Time{}
		b.probeInFlight = true
		b.logger.Infow("Circuit breaker half-open", "provider", b.provider.String())
		return true
	case CircuitHalfOpen:
		if b.probeInFlight {
			return false
		}
		b.probeInFlight = true
		return true
	}
	return false
}

// RecordSuccess registers a successful call. A success while HALF_OPEN closes
// the breaker; the consecutive failure streak resets in every state.
func (b *CircuitBreaker) RecordSuccess() {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	b.consecutiveFailures = 0
	b.probeInFlight = false
	if b.state != CircuitClosed {
		b.state = CircuitClosed
		b.openedAt = time.Time{}
		b.logger.Infow("Circuit breaker closed", "provider", b.provider.String())
	}
}

// RecordFailure registers a failed call. While CLOSED, reaching the failure
// threshold opens the breaker; while HALF_OPEN, the failed trial reopens it
// and restarts the timeout.
func (b *CircuitBreaker) RecordFailure() {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	b.consecutiveFailures++
	b.probeInFlight = false

	switch b.state {
	case CircuitClosed:
		if b.consecutiveFailures >= b.failureThreshold {
			b.state = CircuitOpen
			b.openedAt = b.clock.Now()
			b.logger.Warnw("Circuit breaker opened",
				"provider", b.provider.String(),
				"consecutive_failures", b.consecutiveFailures)
		}
	case CircuitHalfOpen:
		b.state = CircuitOpen
		b.openedAt = b.clock.Now()
		b.logger.Warnw("Circuit breaker reopened after failed trial",
			"provider", b.provider.String())
	}
}

// releaseProbe abandons an admitted trial slot without recording an outcome.
// Used when a call is cancelled by the caller rather than failed by the
// provider.
func (b *CircuitBreaker) releaseProbe() {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	b.probeInFlight = false
}

// ForceClose transitions the breaker to CLOSED regardless of timers.
// Administrative/test path.
func (b *CircuitBreaker) ForceClose() {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	b.state = CircuitClosed
	b.consecutiveFailures = 0
	b.openedAt = time.Time{}
	b.probeInFlight = false
	b.logger.Infow("Circuit breaker force-closed", "provider", b.provider.String())
}

// State returns the breaker's current state without triggering transitions.
func (b *CircuitBreaker) State() CircuitState {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return b.state
}

// OpenedAt returns when the breaker last transitioned to OPEN. The zero time
// means the breaker is not OPEN.
func (b *CircuitBreaker) OpenedAt() time.Time {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return b.openedAt
}
