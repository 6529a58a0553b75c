package routing

import (
	"strings"

	"github.com/agentlane/relay"
)

// capabilityRule is one entry of the capability scoring table: a named
// predicate and the weight it contributes when it matches. Rules are
// evaluated in order and their weights summed, capped at 1.0.
type capabilityRule struct {
	name    string
	weight  float64
	matches func(service string, payload map[string]any, backend *relay.BackendDescriptor) bool
}

// capabilityRules is the ordered scoring table for matching a requested
// service against a candidate backend.
var capabilityRules = []capabilityRule{
	{
		name:   "exact_capability",
		weight: 0.5,
		matches: func(service string, _ map[string]any, backend *relay.BackendDescriptor) bool {
			return backend.HasCapability(service)
		},
	},
	{
		name:   "broader_capability",
		weight: 0.3,
		matches: func(service string, _ map[string]any, backend *relay.BackendDescriptor) bool {
			for _, capability := range backend.Capabilities {
				if capability != service && strings.Contains(capability, service) {
					return true
				}
			}
			return false
		},
	},
	{
		name:   "domain_hint",
		weight: 0.2,
		matches: func(service string, payload map[string]any, backend *relay.BackendDescriptor) bool {
			if backend.Type == "" {
				return false
			}
			if relatedTerms(backend.Type, service) {
				return true
			}
			for key := range payload {
				if relatedTerms(backend.Type, key) {
					return true
				}
			}
			return false
		},
	},
}

// relatedTerms reports whether either term textually contains the other.
func relatedTerms(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	a = strings.ToLower(a)
	b = strings.ToLower(b)
	return strings.Contains(a, b) || strings.Contains(b, a)
}

// capabilityScore sums the weights of every matching rule, capped at 1.0.
func capabilityScore(service string, payload map[string]any, backend *relay.BackendDescriptor) float64 {
	var score float64
	for _, rule := range capabilityRules {
		if rule.matches(service, payload, backend) {
			score += rule.weight
		}
	}
	if score > 1.0 {
		return 1.0
	}
	return score
}
