package routing

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/agentlane/relay"
)

const (
	// Blended score weights.
	capabilityScoreWeight = 0.7
	historicalScoreWeight = 0.3

	// Historical score weights.
	successRateWeight  = 0.8
	latencyScoreWeight = 0.2

	// latencyFloorSecs is the mean execution time at which the latency score
	// bottoms out at zero.
	latencyFloorSecs = 5.0

	// neutralHistoricalScore is assigned to candidates with no history.
	neutralHistoricalScore = 0.5

	// defaultMinBlendedScore rejects weak matches: a best candidate scoring
	// below this yields no selection at all.
	defaultMinBlendedScore = 0.3
)

// Selection is the outcome of scoring a candidate set.
type Selection struct {
	Target       *relay.BackendDescriptor `json:"target"`
	BlendedScore float64                  `json:"blended_score"`
}

// TargetSelector scores and chooses among candidate backends, blending
// capability matching with historical performance from the routing history.
type TargetSelector struct {
	history  *RoutingHistory
	minScore float64
	logger   *zap.SugaredLogger
}

// NewTargetSelector creates a selector over the given history.
func NewTargetSelector(history *RoutingHistory, minScore float64, logger *zap.SugaredLogger) *TargetSelector {
	if minScore <= 0 {
		minScore = defaultMinBlendedScore
	}
	return &TargetSelector{
		history:  history,
		minScore: minScore,
		logger:   logger,
	}
}

// SelectTarget scores each candidate and returns the best one. Candidates are
// a point-in-time snapshot from the backend registry. If the best blended
// score falls below the minimum, ErrNoSuitableTarget is returned instead of a
// weak match.
func (s *TargetSelector) SelectTarget(ctx context.Context, service string, payload map[string]any, candidates []*relay.BackendDescriptor) (*Selection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var best *Selection
	for _, candidate := range candidates {
		if candidate == nil || candidate.Validate() != nil {
			continue
		}

		capability := capabilityScore(service, payload, candidate)
		historical := s.historicalScore(candidate.Name)
		blended := capability*capabilityScoreWeight + historical*historicalScoreWeight
		if blended > 1.0 {
			blended = 1.0
		}

		s.logger.Debugw("Scored candidate backend",
			"service", service,
			"backend", candidate.Name,
			"capability_score", capability,
			"historical_score", historical,
			"blended_score", blended)

		if best == nil || blended > best.BlendedScore {
			best = &Selection{Target: candidate, BlendedScore: blended}
		}
	}

	if best == nil || best.BlendedScore < s.minScore {
		s.logger.Warnw("No suitable target for service",
			"service", service,
			"candidates", len(candidates))
		return nil, ErrNoSuitableTarget
	}
	return best, nil
}

// historicalScore blends a target's success rate with a latency score
// derived from its mean execution time. Targets with no history score
// neutral.
func (s *TargetSelector) historicalScore(targetID string) float64 {
	successRate, avgExecutionSecs, ok := s.history.targetStats(targetID)
	if !ok {
		return neutralHistoricalScore
	}

	latencyScore := 1.0 - avgExecutionSecs/latencyFloorSecs
	if latencyScore < 0 {
		latencyScore = 0
	}
	return successRate*successRateWeight + latencyScore*latencyScoreWeight
}

// RecordOutcome appends a completed routing attempt to the history so future
// selections see it.
func (s *TargetSelector) RecordOutcome(targetID string, success bool, executionTime time.Duration, requestSize int) {
	s.history.Record(targetID, success, executionTime, requestSize)
}
