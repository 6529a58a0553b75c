package routing

import (
	"errors"
	"fmt"
	"strings"

	"github.com/agentlane/relay/provider"
)

// ErrNoSuitableTarget is returned when no candidate backend scores above the
// selector's minimum blended score.
var ErrNoSuitableTarget = errors.New("no suitable target for service")

// ErrNoEndpoint marks a failover candidate that has no registered endpoint.
// Such candidates are skipped without touching health or breaker state.
var ErrNoEndpoint = errors.New("no endpoint registered for provider")

// ConfigurationError reports an invalid construction parameter. It is raised
// at startup and never recovered.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid router configuration: %s", e.Reason)
}

// Attempt records one candidate tried during a failover sequence and the
// error it produced.
type Attempt struct {
	Provider provider.Provider `json:"provider"`
	Err      error             `json:"-"`
}

// AllProvidersExhaustedError is returned when every candidate in the failover
// order was unavailable or failed. It carries the full attempt list.
type AllProvidersExhaustedError struct {
	Attempts []Attempt
}

func (e *AllProvidersExhaustedError) Error() string {
	parts := make([]string, 0, len(e.Attempts))
	for _, attempt := range e.Attempts {
		parts = append(parts, fmt.Sprintf("%s: %v", attempt.Provider, attempt.Err))
	}
	return fmt.Sprintf("all providers failed: %s", strings.Join(parts, "; "))
}

// AttemptedProviders lists the providers tried, in attempt order.
func (e *AllProvidersExhaustedError) AttemptedProviders() []provider.Provider {
	attempted := make([]provider.Provider, 0, len(e.Attempts))
	for _, attempt := range e.Attempts {
		attempted = append(attempted, attempt.Provider)
	}
	return attempted
}
