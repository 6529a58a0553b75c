package routing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/agentlane/relay"
	"github.com/agentlane/relay/monitoring"
	"github.com/agentlane/relay/provider"
)

func TestNewRouter(t *testing.T) {
	logger := zaptest.NewLogger(t).Sugar()

	t.Run("nil config uses defaults", func(t *testing.T) {
		router, err := NewRouter(nil, nil, nil, logger)
		require.NoError(t, err)
		assert.Equal(t, "relay", router.config.ServiceName)
		for _, p := range provider.All() {
			assert.Equal(t, CircuitClosed, router.ProviderState(p))
		}
	})

	t.Run("rejects invalid failure threshold", func(t *testing.T) {
		config := DefaultConfig()
		config.FailureThreshold = 0

		_, err := NewRouter(config, nil, nil, logger)
		var configErr *ConfigurationError
		assert.ErrorAs(t, err, &configErr)
	})

	t.Run("rejects invalid breaker timeout", func(t *testing.T) {
		config := DefaultConfig()
		config.BreakerTimeout = -time.Second

		_, err := NewRouter(config, nil, nil, logger)
		var configErr *ConfigurationError
		assert.ErrorAs(t, err, &configErr)
	})

	t.Run("rejects endpoints for unknown providers", func(t *testing.T) {
		endpoints := map[provider.Provider]provider.Endpoint{
			provider.Provider(42): succeedingEndpoint(provider.Provider(42), nil),
		}
		_, err := NewRouter(nil, endpoints, nil, logger)
		var configErr *ConfigurationError
		assert.ErrorAs(t, err, &configErr)
	})

	t.Run("isolated instances share no state", func(t *testing.T) {
		first, err := NewRouter(nil, nil, nil, logger)
		require.NoError(t, err)
		second, err := NewRouter(nil, nil, nil, logger)
		require.NoError(t, err)

		first.tracker.RecordFailure(provider.OpenAI, errors.New("boom"))
		assert.Zero(t, second.ProviderHealth(provider.OpenAI).FailedRequests)
	})
}

func TestHealthSummary(t *testing.T) {
	config := DefaultConfig()
	config.ServiceName = "relay-test"
	config.FailureThreshold = 2
	router, _ := newTestRouter(t, config, map[provider.Provider]provider.Endpoint{
		provider.OpenAI:  failingEndpoint(provider.OpenAI, errors.New("down")),
		provider.Bedrock: succeedingEndpoint(provider.Bedrock, nil),
	})

	for i := 0; i < 2; i++ {
		_, err := router.CallWithFailover(context.Background(), provider.OpenAI, &provider.Request{})
		require.NoError(t, err)
	}

	summary := router.HealthSummary()
	assert.Equal(t, "relay-test", summary.ServiceName)
	assert.Equal(t, []string{"aws_bedrock", "local"}, summary.AvailableProviders)
	assert.Equal(t, CircuitOpen, summary.ProviderStates["openai"])
	assert.Equal(t, CircuitClosed, summary.ProviderStates["aws_bedrock"])
	assert.Equal(t, int64(2), summary.ProviderHealth["openai"].FailedRequests)
	assert.Equal(t, int64(2), summary.ProviderHealth["aws_bedrock"].SuccessfulRequests)
	assert.Equal(t, int64(4), summary.TotalRequests)
}

func TestForceProviderRecovery(t *testing.T) {
	config := DefaultConfig()
	config.FailureThreshold = 1
	router, _ := newTestRouter(t, config, map[provider.Provider]provider.Endpoint{
		provider.OpenAI:  failingEndpoint(provider.OpenAI, errors.New("down")),
		provider.Bedrock: succeedingEndpoint(provider.Bedrock, nil),
	})

	_, err := router.CallWithFailover(context.Background(), provider.OpenAI, &provider.Request{})
	require.NoError(t, err)
	require.Equal(t, CircuitOpen, router.ProviderState(provider.OpenAI))
	require.False(t, router.ProviderHealth(provider.OpenAI).IsAvailable)

	// Recovery bypasses the breaker timeout entirely.
	router.ForceProviderRecovery(provider.OpenAI)

	assert.Equal(t, CircuitClosed, router.ProviderState(provider.OpenAI))
	health := router.ProviderHealth(provider.OpenAI)
	assert.True(t, health.IsAvailable)
	assert.Zero(t, health.ConsecutiveFailures)
}

func TestResetProviderStats(t *testing.T) {
	router, _ := newTestRouter(t, nil, map[provider.Provider]provider.Endpoint{
		provider.OpenAI:  succeedingEndpoint(provider.OpenAI, nil),
		provider.Bedrock: succeedingEndpoint(provider.Bedrock, nil),
	})

	_, err := router.CallWithFailover(context.Background(), provider.OpenAI, &provider.Request{})
	require.NoError(t, err)
	_, err = router.CallWithFailover(context.Background(), provider.Bedrock, &provider.Request{})
	require.NoError(t, err)

	router.ResetProviderStats(provider.OpenAI)

	assert.Zero(t, router.ProviderHealth(provider.OpenAI).TotalRequests)
	assert.Equal(t, int64(1), router.ProviderHealth(provider.Bedrock).TotalRequests)
}

func TestRouterGenericPath(t *testing.T) {
	router, _ := newTestRouter(t, nil, nil)
	candidates := []*relay.BackendDescriptor{
		{Name: "search-tools", Type: "search", Capabilities: []string{"web_search"}},
	}

	selection, err := router.SelectTarget(context.Background(), "web_search", nil, candidates)
	require.NoError(t, err)
	assert.Equal(t, "search-tools", selection.Target.Name)

	router.RecordTargetOutcome("search-tools", true, 300*time.Millisecond, 256)
	router.RecordTargetOutcome("search-tools", false, 900*time.Millisecond, 256)

	stats := router.HistoryStats()
	assert.Equal(t, 2, stats.TotalDecisions)
	assert.InDelta(t, 0.5, stats.SuccessRate, 1e-9)
	assert.InDelta(t, 0.5, stats.Targets["search-tools"].SuccessRate, 1e-9)
	assert.InDelta(t, 0.6, stats.Targets["search-tools"].AvgExecutionTimeSecs, 1e-9)
}

func TestRouterWithMonitor(t *testing.T) {
	logger := zaptest.NewLogger(t).Sugar()
	monitor, err := monitoring.NewMonitor(monitoring.DefaultConfig(), logger)
	require.NoError(t, err)

	router, err := NewRouter(nil, map[provider.Provider]provider.Endpoint{
		provider.OpenAI: succeedingEndpoint(provider.OpenAI, nil),
	}, monitor, logger)
	require.NoError(t, err)

	_, err = router.CallWithFailover(context.Background(), provider.OpenAI, &provider.Request{})
	require.NoError(t, err)
	router.RecordTargetOutcome("search-tools", true, 100*time.Millisecond, 16)
}
