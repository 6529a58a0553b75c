package routing

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/agentlane/relay"
	"github.com/agentlane/relay/monitoring"
	"github.com/agentlane/relay/provider"
)

// Config configures the router and its components.
type Config struct {
	// Name reported in health summaries. E.g., "relay"
	ServiceName string `yaml:"service_name"`

	// Consecutive failures before a provider trips its breaker.
	FailureThreshold int `yaml:"failure_threshold"`

	// How long an OPEN breaker rejects attempts before admitting a trial.
	BreakerTimeout time.Duration `yaml:"breaker_timeout"`

	// Deadline applied to each outbound provider call. Zero disables it.
	CallTimeout time.Duration `yaml:"call_timeout"`

	// Minimum blended score for target selection. Zero uses the default.
	MinTargetScore float64 `yaml:"min_target_score"`

	// History capacity bound and post-trim retention. Zero uses defaults.
	HistoryMaxEntries    int `yaml:"history_max_entries"`
	HistoryRetainEntries int `yaml:"history_retain_entries"`
}

// DefaultConfig returns the default router configuration.
func DefaultConfig() *Config {
	return &Config{
		ServiceName:          "relay",
		FailureThreshold:     5,
		BreakerTimeout:       30 * time.Second,
		CallTimeout:          60 * time.Second,
		MinTargetScore:       defaultMinBlendedScore,
		HistoryMaxEntries:    defaultHistoryMaxEntries,
		HistoryRetainEntries: defaultHistoryRetainEntries,
	}
}

// HealthSummary aggregates provider health, circuit state and request totals
// for observability endpoints.
type HealthSummary struct {
	ServiceName        string                    `json:"service_name"`
	AvailableProviders []string                  `json:"available_providers"`
	ProviderHealth     map[string]ProviderHealth `json:"provider_health"`
	ProviderStates     map[string]CircuitState   `json:"provider_states"`
	TotalRequests      int64                     `json:"total_requests"`
}

// Router composes the failover orchestrator (provider path) and the target
// selector (generic backend path) behind one public API. Construct it once at
// the composition root and inject it; it holds no global state.
type Router struct {
	config       *Config
	tracker      *HealthTracker
	breakers     map[provider.Provider]*CircuitBreaker
	orchestrator *FailoverOrchestrator
	history      *RoutingHistory
	selector     *TargetSelector
	monitor      *monitoring.Monitor
	logger       *zap.SugaredLogger
}

// NewRouter creates a router over the given provider endpoints. Endpoints may
// cover a subset of the enumerated providers; uncovered providers are skipped
// during failover. A nil config uses defaults. Invalid thresholds or timeouts
// return a ConfigurationError.
func NewRouter(config *Config, endpoints map[provider.Provider]provider.Endpoint, monitor *monitoring.Monitor, logger *zap.SugaredLogger) (*Router, error) {
	return newRouterWithClock(config, endpoints, monitor, clock.New(), logger)
}

func newRouterWithClock(config *Config, endpoints map[provider.Provider]provider.Endpoint, monitor *monitoring.Monitor, clk clock.Clock, logger *zap.SugaredLogger) (*Router, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if config.FailureThreshold <= 0 {
		return nil, &ConfigurationError{Reason: "failure threshold must be positive"}
	}
	if config.BreakerTimeout <= 0 {
		return nil, &ConfigurationError{Reason: "breaker timeout must be positive"}
	}
	for p := range endpoints {
		if !p.Valid() {
			return nil, &ConfigurationError{Reason: "endpoint registered for unknown provider"}
		}
	}

	tracker, err := newHealthTrackerWithClock(config.FailureThreshold, clk, logger)
	if err != nil {
		return nil, err
	}

	breakers := make(map[provider.Provider]*CircuitBreaker, len(provider.All()))
	for _, p := range provider.All() {
		breaker, err := newCircuitBreaker(p, config.FailureThreshold, config.BreakerTimeout, clk, logger)
		if err != nil {
			return nil, err
		}
		breakers[p] = breaker
	}

	history := newRoutingHistoryWithClock(config.HistoryMaxEntries, config.HistoryRetainEntries, clk)

	router := &Router{
		config:   config,
		tracker:  tracker,
		breakers: breakers,
		history:  history,
		selector: NewTargetSelector(history, config.MinTargetScore, logger),
		monitor:  monitor,
		logger:   logger,
	}
	router.orchestrator = newFailoverOrchestrator(
		endpoints, tracker, breakers, config.CallTimeout, clk, monitor, logger)
	return router, nil
}

// CallWithFailover routes a request through the provider failover path.
func (r *Router) CallWithFailover(ctx context.Context, primary provider.Provider, request *provider.Request) (*Result, error) {
	result, err := r.orchestrator.CallWithFailover(ctx, primary, request)
	r.syncBreakerMetrics()
	if err != nil {
		return nil, err
	}
	if r.monitor != nil {
		r.monitor.RecordDecision(result.ServedBy.String(), true, result.ExecutionTime.Seconds())
	}
	return result, nil
}

// SelectTarget routes through the generic backend path: it scores the
// candidate snapshot and returns the best backend for the service.
func (r *Router) SelectTarget(ctx context.Context, service string, payload map[string]any, candidates []*relay.BackendDescriptor) (*Selection, error) {
	return r.selector.SelectTarget(ctx, service, payload, candidates)
}

// RecordTargetOutcome feeds a completed generic routing attempt back into the
// history and metrics.
func (r *Router) RecordTargetOutcome(targetID string, success bool, executionTime time.Duration, requestSize int) {
	r.selector.RecordOutcome(targetID, success, executionTime, requestSize)
	if r.monitor != nil {
		r.monitor.RecordDecision(targetID, success, executionTime.Seconds())
	}
}

// ProviderState returns the current circuit state for a provider.
func (r *Router) ProviderState(p provider.Provider) CircuitState {
	return r.breakers[p].State()
}

// ProviderHealth returns a health snapshot for a provider.
func (r *Router) ProviderHealth(p provider.Provider) ProviderHealth {
	return r.tracker.Health(p)
}

// ForceProviderRecovery force-closes a provider's breaker and restores its
// availability, bypassing the breaker timeout. Administrative path.
func (r *Router) ForceProviderRecovery(p provider.Provider) {
	r.breakers[p].ForceClose()
	r.tracker.ForceRecovery(p)
	r.syncBreakerMetrics()
}

// ResetProviderStats zeroes the health counters for exactly one provider.
func (r *Router) ResetProviderStats(p provider.Provider) {
	r.tracker.ResetStats(p)
}

// HealthSummary aggregates tracker and breaker state across all providers.
func (r *Router) HealthSummary() *HealthSummary {
	summary := &HealthSummary{
		ServiceName:    r.config.ServiceName,
		ProviderHealth: make(map[string]ProviderHealth),
		ProviderStates: make(map[string]CircuitState),
	}
	for _, p := range r.tracker.AvailableProviders() {
		summary.AvailableProviders = append(summary.AvailableProviders, p.String())
	}
	for _, p := range provider.All() {
		summary.ProviderHealth[p.String()] = r.tracker.Health(p)
		summary.ProviderStates[p.String()] = r.breakers[p].State()
	}
	summary.TotalRequests = r.tracker.TotalRequests()
	return summary
}

// HistoryStats aggregates the routing decision history for dashboards.
func (r *Router) HistoryStats() HistoryStats {
	return r.history.Stats()
}

func (r *Router) syncBreakerMetrics() {
	if r.monitor == nil {
		return
	}
	for _, p := range provider.All() {
		r.monitor.SetBreakerState(p.String(), string(r.breakers[p].State()))
	}
}
