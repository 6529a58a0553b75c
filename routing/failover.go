package routing

import (
	"context"
	"errors"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/agentlane/relay/monitoring"
	"github.com/agentlane/relay/provider"
)

// Result is the outcome of a successful failover call, tagged with the
// provider that ultimately served it.
type Result struct {
	Response      *provider.Response `json:"response"`
	ServedBy      provider.Provider  `json:"served_by"`
	ExecutionTime time.Duration      `json:"execution_time"`
}

// FailoverOrchestrator wraps a call to a primary provider with a
// deterministic fallback sequence over the remaining providers, consulting
// the health tracker and per-provider circuit breakers.
type FailoverOrchestrator struct {
	endpoints   map[provider.Provider]provider.Endpoint
	tracker     *HealthTracker
	breakers    map[provider.Provider]*CircuitBreaker
	callTimeout time.Duration
	clock       clock.Clock
	monitor     *monitoring.Monitor
	logger      *zap.SugaredLogger
}

func newFailoverOrchestrator(
	endpoints map[provider.Provider]provider.Endpoint,
	tracker *HealthTracker,
	breakers map[provider.Provider]*CircuitBreaker,
	callTimeout time.Duration,
	clk clock.Clock,
	monitor *monitoring.Monitor,
	logger *zap.SugaredLogger,
) *FailoverOrchestrator {
	return &FailoverOrchestrator{
		endpoints:   endpoints,
		tracker:     tracker,
		breakers:    breakers,
		callTimeout: callTimeout,
		clock:       clk,
		monitor:     monitor,
		logger:      logger,
	}
}

// providerOrder builds the failover order: the primary first, then the
// remaining enumerated providers in static preference order, each at most
// once.
func providerOrder(primary provider.Provider) []provider.Provider {
	order := make([]provider.Provider, 0, len(provider.All()))
	order = append(order, primary)
	for _, p := range provider.All() {
		if p != primary {
			order = append(order, p)
		}
	}
	return order
}

// CallWithFailover invokes the primary provider and falls back through the
// remaining providers in order. Candidates whose breaker is OPEN and still
// within its timeout are skipped without invocation. The first success
// short-circuits the sequence. Every error from an invocation counts as a
// provider failure; there is no transient-vs-permanent classification.
// Cancellation of the caller's context is propagated without recording a
// failure against the provider.
func (o *FailoverOrchestrator) CallWithFailover(ctx context.Context, primary provider.Provider, request *provider.Request) (*Result, error) {
	if !primary.Valid() {
		return nil, &ConfigurationError{Reason: "unknown primary provider"}
	}

	attempts := make([]Attempt, 0, len(o.breakers))

	for _, candidate := range providerOrder(primary) {
		breaker := o.breakers[candidate]
		if !breaker.Allow() {
			o.logger.Debugw("Skipping provider with open circuit", "provider", candidate.String())
			attempts = append(attempts, Attempt{Provider: candidate, Err: errors.New("circuit open")})
			o.recordAttempt(candidate, "skipped")
			continue
		}

		endpoint, ok := o.endpoints[candidate]
		if !ok {
			breaker.releaseProbe()
			attempts = append(attempts, Attempt{Provider: candidate, Err: ErrNoEndpoint})
			o.recordAttempt(candidate, "unregistered")
			continue
		}

		start := o.clock.Now()
		response, err := o.invoke(ctx, endpoint, request)
		elapsed := o.clock.Now().Sub(start)

		if err == nil {
			o.tracker.RecordSuccess(candidate, elapsed)
			breaker.RecordSuccess()
			o.recordAttempt(candidate, "success")
			o.observeLatency(candidate, elapsed)
			if candidate != primary {
				o.logger.Infow("Request served by fallback provider",
					"primary", primary.String(),
					"served_by", candidate.String())
			}
			return &Result{
				Response:      response,
				ServedBy:      candidate,
				ExecutionTime: elapsed,
			}, nil
		}

		// The caller went away; this says nothing about provider health.
		if ctx.Err() != nil {
			breaker.releaseProbe()
			return nil, ctx.Err()
		}

		o.tracker.RecordFailure(candidate, err)
		breaker.RecordFailure()
		o.recordAttempt(candidate, "failure")
		o.logger.Warnw("Provider call failed, trying next candidate",
			"provider", candidate.String(),
			"error", err)
		attempts = append(attempts, Attempt{Provider: candidate, Err: err})
	}

	return nil, &AllProvidersExhaustedError{Attempts: attempts}
}

// invoke runs a single endpoint call under the per-call deadline. A timeout
// surfaces as an error and is treated like any other failure.
func (o *FailoverOrchestrator) invoke(ctx context.Context, endpoint provider.Endpoint, request *provider.Request) (*provider.Response, error) {
	if o.callTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.callTimeout)
		defer cancel()
	}
	return endpoint.Invoke(ctx, request)
}

func (o *FailoverOrchestrator) recordAttempt(p provider.Provider, outcome string) {
	if o.monitor != nil {
		o.monitor.RecordFailoverAttempt(p.String(), outcome)
	}
}

func (o *FailoverOrchestrator) observeLatency(p provider.Provider, latency time.Duration) {
	if o.monitor != nil {
		o.monitor.ObserveProviderLatency(p.String(), latency.Seconds())
	}
}
