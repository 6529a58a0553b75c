package routing

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/agentlane/relay/provider"
)

func newTestTracker(t *testing.T, threshold int) (*HealthTracker, *clock.Mock) {
	mockClock := clock.NewMock()
	tracker, err := newHealthTrackerWithClock(threshold, mockClock, zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)
	return tracker, mockClock
}

func TestNewHealthTracker(t *testing.T) {
	t.Run("rejects non-positive threshold", func(t *testing.T) {
		_, err := NewHealthTracker(0, zaptest.NewLogger(t).Sugar())
		var configErr *ConfigurationError
		assert.ErrorAs(t, err, &configErr)

		_, err = NewHealthTracker(-3, zaptest.NewLogger(t).Sugar())
		assert.ErrorAs(t, err, &configErr)
	})

	t.Run("starts every provider available", func(t *testing.T) {
		tracker, _ := newTestTracker(t, 3)
		assert.Equal(t, provider.All(), tracker.AvailableProviders())
		for _, p := range provider.All() {
			health := tracker.Health(p)
			assert.True(t, health.IsAvailable)
			assert.Zero(t, health.TotalRequests)
			assert.Nil(t, health.LastFailureAt)
		}
	})
}

func TestRecordSuccess(t *testing.T) {
	t.Run("averages latency arithmetically", func(t *testing.T) {
		tracker, _ := newTestTracker(t, 3)

		tracker.RecordSuccess(provider.OpenAI, 100*time.Millisecond)
		tracker.RecordSuccess(provider.OpenAI, 200*time.Millisecond)

		health := tracker.Health(provider.OpenAI)
		assert.Equal(t, int64(2), health.TotalRequests)
		assert.Equal(t, int64(2), health.SuccessfulRequests)
		assert.Equal(t, float64(150), health.AverageLatencyMs)
	})

	t.Run("clears the failure streak", func(t *testing.T) {
		tracker, _ := newTestTracker(t, 3)

		tracker.RecordFailure(provider.OpenAI, errors.New("boom"))
		tracker.RecordFailure(provider.OpenAI, errors.New("boom"))
		tracker.RecordSuccess(provider.OpenAI, 50*time.Millisecond)

		health := tracker.Health(provider.OpenAI)
		assert.Zero(t, health.ConsecutiveFailures)
		assert.True(t, health.IsAvailable)
	})
}

func TestRecordFailure(t *testing.T) {
	t.Run("marks unavailable at the threshold", func(t *testing.T) {
		tracker, mockClock := newTestTracker(t, 2)
		mockClock.Add(time.Hour)

		tracker.RecordFailure(provider.Bedrock, errors.New("throttled"))
		health := tracker.Health(provider.Bedrock)
		assert.True(t, health.IsAvailable)
		assert.Equal(t, 1, health.ConsecutiveFailures)
		require.NotNil(t, health.LastFailureAt)
		assert.Equal(t, mockClock.Now(), *health.LastFailureAt)

		tracker.RecordFailure(provider.Bedrock, errors.New("throttled"))
		health = tracker.Health(provider.Bedrock)
		assert.False(t, health.IsAvailable)
		assert.Equal(t, 2, health.ConsecutiveFailures)
		assert.NotContains(t, tracker.AvailableProviders(), provider.Bedrock)
	})

	t.Run("keeps the totals invariant", func(t *testing.T) {
		tracker, _ := newTestTracker(t, 5)

		tracker.RecordSuccess(provider.Local, 10*time.Millisecond)
		tracker.RecordFailure(provider.Local, errors.New("boom"))
		tracker.RecordSuccess(provider.Local, 30*time.Millisecond)

		health := tracker.Health(provider.Local)
		assert.Equal(t, health.TotalRequests, health.SuccessfulRequests+health.FailedRequests)
	})
}

func TestForceRecovery(t *testing.T) {
	tracker, _ := newTestTracker(t, 2)

	tracker.RecordFailure(provider.OpenAI, errors.New("boom"))
	tracker.RecordFailure(provider.OpenAI, errors.New("boom"))
	require.False(t, tracker.Health(provider.OpenAI).IsAvailable)

	tracker.ForceRecovery(provider.OpenAI)

	health := tracker.Health(provider.OpenAI)
	assert.True(t, health.IsAvailable)
	assert.Zero(t, health.ConsecutiveFailures)
	// Counters other than the streak survive a forced recovery.
	assert.Equal(t, int64(2), health.FailedRequests)
}

func TestResetStats(t *testing.T) {
	tracker, _ := newTestTracker(t, 2)

	tracker.RecordSuccess(provider.OpenAI, 100*time.Millisecond)
	tracker.RecordFailure(provider.OpenAI, errors.New("boom"))
	tracker.RecordSuccess(provider.Bedrock, 80*time.Millisecond)

	tracker.ResetStats(provider.OpenAI)

	openai := tracker.Health(provider.OpenAI)
	assert.Zero(t, openai.TotalRequests)
	assert.Zero(t, openai.SuccessfulRequests)
	assert.Zero(t, openai.FailedRequests)
	assert.Zero(t, openai.ConsecutiveFailures)
	assert.Zero(t, openai.AverageLatencyMs)
	assert.Nil(t, openai.LastFailureAt)
	assert.True(t, openai.IsAvailable)

	// The second provider is untouched.
	bedrock := tracker.Health(provider.Bedrock)
	assert.Equal(t, int64(1), bedrock.TotalRequests)
	assert.Equal(t, float64(80), bedrock.AverageLatencyMs)
}

func TestTotalRequests(t *testing.T) {
	tracker, _ := newTestTracker(t, 5)

	tracker.RecordSuccess(provider.OpenAI, time.Millisecond)
	tracker.RecordSuccess(provider.OpenAI, time.Millisecond)
	tracker.RecordSuccess(provider.OpenAI, time.Millisecond)
	tracker.RecordFailure(provider.Bedrock, errors.New("boom"))

	assert.Equal(t, int64(4), tracker.TotalRequests())
}

func TestHealthTrackerConcurrency(t *testing.T) {
	tracker, _ := newTestTracker(t, 1000)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			tracker.RecordSuccess(provider.OpenAI, 10*time.Millisecond)
		}()
		go func(i int) {
			defer wg.Done()
			tracker.RecordFailure(provider.Bedrock, fmt.Errorf("failure %d", i))
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int64(50), tracker.Health(provider.OpenAI).SuccessfulRequests)
	assert.Equal(t, int64(50), tracker.Health(provider.Bedrock).FailedRequests)
	assert.Equal(t, int64(100), tracker.TotalRequests())
}
