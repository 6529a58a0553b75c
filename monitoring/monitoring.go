// Package monitoring exposes Prometheus metrics for the routing subsystem.
package monitoring

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Config represents monitoring configuration.
type Config struct {
	// Enable metrics collection.
	Enabled bool `yaml:"enabled"`

	// Metric namespace. E.g., "relay"
	Namespace string `yaml:"namespace"`

	// Metric subsystem. E.g., "routing"
	Subsystem string `yaml:"subsystem"`
}

// DefaultConfig returns the default monitoring configuration.
func DefaultConfig() *Config {
	return &Config{
		Enabled:   true,
		Namespace: "relay",
		Subsystem: "routing",
	}
}

// Monitor records routing metrics into a dedicated Prometheus registry.
type Monitor struct {
	config   *Config
	registry *prometheus.Registry
	logger   *zap.SugaredLogger

	decisionsTotal        *prometheus.CounterVec
	failoverAttemptsTotal *prometheus.CounterVec
	breakerState          *prometheus.GaugeVec
	providerLatency       *prometheus.HistogramVec
	executionTime         *prometheus.HistogramVec
}

// breakerStateValues maps circuit states to gauge values.
var breakerStateValues = map[string]float64{
	"closed":    0,
	"open":      1,
	"half_open": 2,
}

// NewMonitor creates a monitor with its own registry.
func NewMonitor(config *Config, logger *zap.SugaredLogger) (*Monitor, error) {
	if config == nil {
		config = DefaultConfig()
	}

	m := &Monitor{
		config:   config,
		registry: prometheus.NewRegistry(),
		logger:   logger,
	}
	if err := m.initializeMetrics(); err != nil {
		return nil, fmt.Errorf("failed to initialize metrics: %v", err)
	}
	return m, nil
}

func (m *Monitor) initializeMetrics() error {
	namespace := m.config.Namespace
	subsystem := m.config.Subsystem

	m.decisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "decisions_total",
			Help:      "Total number of completed routing decisions",
		},
		[]string{"target", "success"},
	)

	m.failoverAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "failover_attempts_total",
			Help:      "Failover candidate attempts by outcome",
		},
		[]string{"provider", "outcome"}, // outcome: success, failure, skipped, unregistered
	)

	m.breakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "breaker_state",
			Help:      "Circuit breaker state per provider (0=closed, 1=open, 2=half_open)",
		},
		[]string{"provider"},
	)

	m.providerLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "provider_latency_seconds",
			Help:      "Latency of successful provider calls in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"provider"},
	)

	m.executionTime = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "execution_time_seconds",
			Help:      "Execution time of completed routing decisions in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"target"},
	)

	collectors := []prometheus.Collector{
		m.decisionsTotal,
		m.failoverAttemptsTotal,
		m.breakerState,
		m.providerLatency,
		m.executionTime,
	}
	for _, collector := range collectors {
		if err := m.registry.Register(collector); err != nil {
			return err
		}
	}
	return nil
}

// RecordDecision records a completed routing decision for a target.
func (m *Monitor) RecordDecision(target string, success bool, executionSecs float64) {
	m.decisionsTotal.WithLabelValues(target, fmt.Sprintf("%t", success)).Inc()
	m.executionTime.WithLabelValues(target).Observe(executionSecs)
}

// RecordFailoverAttempt records one candidate attempt during failover.
func (m *Monitor) RecordFailoverAttempt(provider, outcome string) {
	m.failoverAttemptsTotal.WithLabelValues(provider, outcome).Inc()
}

// SetBreakerState publishes a provider's current circuit state.
func (m *Monitor) SetBreakerState(provider, state string) {
	value, ok := breakerStateValues[state]
	if !ok {
		m.logger.Warnw("Unknown breaker state", "provider", provider, "state", state)
		return
	}
	m.breakerState.WithLabelValues(provider).Set(value)
}

// ObserveProviderLatency records the latency of a successful provider call.
func (m *Monitor) ObserveProviderLatency(provider string, seconds float64) {
	m.providerLatency.WithLabelValues(provider).Observe(seconds)
}

// Handler serves the monitor's registry over HTTP.
func (m *Monitor) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Monitor) Registry() *prometheus.Registry {
	return m.registry
}
