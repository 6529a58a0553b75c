package routing

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/agentlane/relay/provider"
)

// ProviderHealth is an immutable snapshot of the rolling statistics tracked
// for a single provider.
type ProviderHealth struct {
	TotalRequests       int64      `json:"total_requests"`
	SuccessfulRequests  int64      `json:"successful_requests"`
	FailedRequests      int64      `json:"failed_requests"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	AverageLatencyMs    float64    `json:"average_latency_ms"`
	IsAvailable         bool       `json:"is_available"`
	LastFailureAt       *time.Time `json:"last_failure_at,omitempty"`
}

// providerHealth holds the mutable counters for one provider. Each provider
// carries its own mutex so that updates for distinct providers never block
// each other.
type providerHealth struct {
	mutex               sync.Mutex
	totalRequests       int64
	successfulRequests  int64
	failedRequests      int64
	consecutiveFailures int
	latencySumMs        float64
	available           bool
	lastFailureAt       time.Time
}

// HealthTracker keeps per-provider rolling statistics. One entry per
// enumerated provider is created at construction and lives for the process
// lifetime; entries are only ever reset, never deleted.
type HealthTracker struct {
	providers        map[provider.Provider]*providerHealth
	failureThreshold int
	clock            clock.Clock
	logger           *zap.SugaredLogger
}

// NewHealthTracker creates a tracker with an entry for every enumerated
// provider, all initially available.
func NewHealthTracker(failureThreshold int, logger *zap.SugaredLogger) (*HealthTracker, error) {
	return newHealthTrackerWithClock(failureThreshold, clock.New(), logger)
}

func newHealthTrackerWithClock(failureThreshold int, clk clock.Clock, logger *zap.SugaredLogger) (*HealthTracker, error) {
	if failureThreshold <= 0 {
		return nil, &ConfigurationError{Reason: "failure threshold must be positive"}
	}

	providers := make(map[provider.Provider]*providerHealth, len(provider.All()))
	for _, p := range provider.All() {
		providers[p] = &providerHealth{available: true}
	}

	return &HealthTracker{
		providers:        providers,
		failureThreshold: failureThreshold,
		clock:            clk,
		logger:           logger,
	}, nil
}

// RecordSuccess registers a successful call and its latency. Any success
// clears the consecutive failure streak and restores availability.
func (t *HealthTracker) RecordSuccess(p provider.Provider, latency time.Duration) {
	health := t.providers[p]
	health.mutex.Lock()
	defer health.mutex.Unlock()

	health.totalRequests++
	health.successfulRequests++
	health.latencySumMs += float64(latency.Milliseconds())
	health.consecutiveFailures = 0
	health.available = true
}

// RecordFailure registers a failed call. Once the consecutive failure streak
// reaches the failure threshold, the provider is marked unavailable.
func (t *HealthTracker) RecordFailure(p provider.Provider, err error) {
	health := t.providers[p]
	health.mutex.Lock()
	defer health.mutex.Unlock()

	health.totalRequests++
	health.failedRequests++
	health.consecutiveFailures++
	health.lastFailureAt = t.clock.Now()

	if health.consecutiveFailures >= t.failureThreshold && health.available {
		health.available = false
		t.logger.Warnw("Provider marked unavailable",
			"provider", p.String(),
			"consecutive_failures", health.consecutiveFailures,
			"error", err)
	}
}

// ForceRecovery unconditionally restores a provider to the available state.
// Administrative override, also used by the breaker's half-open probe path.
func (t *HealthTracker) ForceRecovery(p provider.Provider) {
	health := t.providers[p]
	health.mutex.Lock()
	defer health.mutex.Unlock()

	health.consecutiveFailures = 0
	health.available = true
}

// ResetStats zeroes every counter for exactly the given provider. Other
// providers are untouched.
func (t *HealthTracker) ResetStats(p provider.Provider) {
	health := t.providers[p]
	health.mutex.Lock()
	defer health.mutex.Unlock()

	health.totalRequests = 0
	health.successfulRequests = 0
	health.failedRequests = 0
	health.consecutiveFailures = 0
	health.latencySumMs = 0
	health.available = true
	health.lastFailureAt = time.Time{}
}

// Health returns an immutable snapshot of a provider's statistics.
func (t *HealthTracker) Health(p provider.Provider) ProviderHealth {
	health := t.providers[p]
	health.mutex.Lock()
	defer health.mutex.Unlock()
	return health.snapshotLocked()
}

func (h *providerHealth) snapshotLocked() ProviderHealth {
	snapshot := ProviderHealth{
		TotalRequests:       h.totalRequests,
		SuccessfulRequests:  h.successfulRequests,
		FailedRequests:      h.failedRequests,
		ConsecutiveFailures: h.consecutiveFailures,
		IsAvailable:         h.available,
	}
	if h.successfulRequests > 0 {
		snapshot.AverageLatencyMs = h.latencySumMs / float64(h.successfulRequests)
	}
	if !h.lastFailureAt.IsZero() {
		lastFailure := h.lastFailureAt
		snapshot.LastFailureAt = &lastFailure
	}
	return snapshot
}

// AvailableProviders lists providers currently marked available, in static
// preference order.
func (t *HealthTracker) AvailableProviders() []provider.Provider {
	available := make([]provider.Provider, 0, len(t.providers))
	for _, p := range provider.All() {
		health := t.providers[p]
		health.mutex.Lock()
		if health.available {
			available = append(available, p)
		}
		health.mutex.Unlock()
	}
	return available
}

// TotalRequests returns the request count summed across all providers.
func (t *HealthTracker) TotalRequests() int64 {
	var total int64
	for _, p := range provider.All() {
		health := t.providers[p]
		health.mutex.Lock()
		total += health.totalRequests
		health.mutex.Unlock()
	}
	return total
}
