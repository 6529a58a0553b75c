package routing

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
)

const (
	// defaultHistoryMaxEntries is the size at which the history is trimmed.
	defaultHistoryMaxEntries = 1000

	// defaultHistoryRetainEntries is how many of the newest entries survive
	// a trim. Batched eviction, not a strict ring buffer, so inserts stay
	// cheap.
	defaultHistoryRetainEntries = 500
)

// RoutingDecision is an immutable record of one completed routing attempt.
type RoutingDecision struct {
	ID            string        `json:"id"`
	Timestamp     time.Time     `json:"timestamp"`
	TargetID      string        `json:"target_id"`
	Success       bool          `json:"success"`
	ExecutionTime time.Duration `json:"execution_time"`
	RequestSize   int           `json:"request_size"`
}

// TargetStats aggregates history for one target.
type TargetStats struct {
	Decisions            int     `json:"decisions"`
	SuccessRate          float64 `json:"success_rate"`
	AvgExecutionTimeSecs float64 `json:"avg_execution_time_secs"`
}

// HistoryStats aggregates the full routing history.
type HistoryStats struct {
	TotalDecisions int                    `json:"total_decisions"`
	SuccessRate    float64                `json:"success_rate"`
	Targets        map[string]TargetStats `json:"targets"`
}

// RoutingHistory is a bounded, append-only log of routing decisions. Appends
// are safe under concurrent writers; trimming happens lazily on insert.
type RoutingHistory struct {
	mutex         sync.Mutex
	decisions     []RoutingDecision
	maxEntries    int
	retainEntries int
	clock         clock.Clock
}

// NewRoutingHistory creates a history with the default capacity bound.
func NewRoutingHistory() *RoutingHistory {
	return newRoutingHistoryWithClock(defaultHistoryMaxEntries, defaultHistoryRetainEntries, clock.New())
}

func newRoutingHistoryWithClock(maxEntries, retainEntries int, clk clock.Clock) *RoutingHistory {
	if maxEntries <= 0 {
		maxEntries = defaultHistoryMaxEntries
	}
	if retainEntries <= 0 || retainEntries > maxEntries {
		retainEntries = maxEntries / 2
	}
	return &RoutingHistory{
		decisions:     make([]RoutingDecision, 0, maxEntries),
		maxEntries:    maxEntries,
		retainEntries: retainEntries,
		clock:         clk,
	}
}

// Record appends a decision. Once the log exceeds maxEntries it is trimmed to
// the newest retainEntries.
func (h *RoutingHistory) Record(targetID string, success bool, executionTime time.Duration, requestSize int) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	h.decisions = append(h.decisions, RoutingDecision{
		ID:            uuid.NewString(),
		Timestamp:     h.clock.Now(),
		TargetID:      targetID,
		Success:       success,
		ExecutionTime: executionTime,
		RequestSize:   requestSize,
	})

	if len(h.decisions) > h.maxEntries {
		retained := make([]RoutingDecision, h.retainEntries)
		copy(retained, h.decisions[len(h.decisions)-h.retainEntries:])
		h.decisions = retained
	}
}

// Len returns the current number of retained decisions.
func (h *RoutingHistory) Len() int {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return len(h.decisions)
}

// Snapshot returns a copy of the retained decisions, oldest first.
func (h *RoutingHistory) Snapshot() []RoutingDecision {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	snapshot := make([]RoutingDecision, len(h.decisions))
	copy(snapshot, h.decisions)
	return snapshot
}

// Stats aggregates the retained history.
func (h *RoutingHistory) Stats() HistoryStats {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	stats := HistoryStats{Targets: make(map[string]TargetStats)}
	stats.TotalDecisions = len(h.decisions)
	if stats.TotalDecisions == 0 {
		return stats
	}

	type accumulator struct {
		total     int
		successes int
		execSum   float64
	}
	perTarget := make(map[string]*accumulator)

	var overallSuccesses int
	for _, decision := range h.decisions {
		acc, ok := perTarget[decision.TargetID]
		if !ok {
			acc = &accumulator{}
			perTarget[decision.TargetID] = acc
		}
		acc.total++
		acc.execSum += decision.ExecutionTime.Seconds()
		if decision.Success {
			acc.successes++
			overallSuccesses++
		}
	}

	stats.SuccessRate = float64(overallSuccesses) / float64(stats.TotalDecisions)
	for targetID, acc := range perTarget {
		stats.Targets[targetID] = TargetStats{
			Decisions:            acc.total,
			SuccessRate:          float64(acc.successes) / float64(acc.total),
			AvgExecutionTimeSecs: acc.execSum / float64(acc.total),
		}
	}
	return stats
}

// targetStats returns the success rate and mean execution time for one
// target, and whether any history exists for it.
func (h *RoutingHistory) targetStats(targetID string) (successRate, avgExecutionSecs float64, ok bool) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	var total, successes int
	var execSum float64
	for _, decision := range h.decisions {
		if decision.TargetID != targetID {
			continue
		}
		total++
		execSum += decision.ExecutionTime.Seconds()
		if decision.Success {
			successes++
		}
	}
	if total == 0 {
		return 0, 0, false
	}
	return float64(successes) / float64(total), execSum / float64(total), true
}
