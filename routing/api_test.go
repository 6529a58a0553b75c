package routing

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/agentlane/relay/provider"
)

func newTestAPI(t *testing.T) (*APIHandler, *Router) {
	config := DefaultConfig()
	config.FailureThreshold = 1
	router, _ := newTestRouter(t, config, map[provider.Provider]provider.Endpoint{
		provider.OpenAI:  failingEndpoint(provider.OpenAI, errors.New("down")),
		provider.Bedrock: succeedingEndpoint(provider.Bedrock, nil),
	})
	return NewAPIHandler(router, zaptest.NewLogger(t).Sugar()), router
}

func serveAPI(handler *APIHandler, method, path string) *httptest.ResponseRecorder {
	r := mux.NewRouter()
	handler.Register(r)
	recorder := httptest.NewRecorder()
	r.ServeHTTP(recorder, httptest.NewRequest(method, path, nil))
	return recorder
}

func TestHandleHealthSummary(t *testing.T) {
	handler, router := newTestAPI(t)
	_, err := router.CallWithFailover(context.Background(), provider.OpenAI, &provider.Request{})
	require.NoError(t, err)

	recorder := serveAPI(handler, http.MethodGet, "/v1/routing/health")

	require.Equal(t, http.StatusOK, recorder.Code)
	var summary HealthSummary
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &summary))
	assert.Equal(t, "relay", summary.ServiceName)
	assert.Equal(t, CircuitOpen, summary.ProviderStates["openai"])
	assert.NotContains(t, summary.AvailableProviders, "openai")
}

func TestHandleHistoryStats(t *testing.T) {
	handler, router := newTestAPI(t)
	router.RecordTargetOutcome("search-tools", true, 100*time.Millisecond, 32)

	recorder := serveAPI(handler, http.MethodGet, "/v1/routing/stats")

	require.Equal(t, http.StatusOK, recorder.Code)
	var stats HistoryStats
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &stats))
	assert.Equal(t, 1, stats.TotalDecisions)
}

func TestHandleProviderStates(t *testing.T) {
	handler, _ := newTestAPI(t)

	recorder := serveAPI(handler, http.MethodGet, "/v1/routing/providers")

	require.Equal(t, http.StatusOK, recorder.Code)
	var states map[string]struct {
		State  CircuitState   `json:"state"`
		Health ProviderHealth `json:"health"`
	}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &states))
	assert.Len(t, states, len(provider.All()))
	assert.Equal(t, CircuitClosed, states["local"].State)
}

func TestHandleForceRecovery(t *testing.T) {
	handler, router := newTestAPI(t)
	_, err := router.CallWithFailover(context.Background(), provider.OpenAI, &provider.Request{})
	require.NoError(t, err)
	require.Equal(t, CircuitOpen, router.ProviderState(provider.OpenAI))

	recorder := serveAPI(handler, http.MethodPost, "/v1/routing/providers/openai/recover")

	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, CircuitClosed, router.ProviderState(provider.OpenAI))

	t.Run("unknown provider", func(t *testing.T) {
		recorder := serveAPI(handler, http.MethodPost, "/v1/routing/providers/cohere/recover")
		assert.Equal(t, http.StatusNotFound, recorder.Code)
	})
}

func TestHandleResetStats(t *testing.T) {
	handler, router := newTestAPI(t)
	_, err := router.CallWithFailover(context.Background(), provider.OpenAI, &provider.Request{})
	require.NoError(t, err)
	require.NotZero(t, router.ProviderHealth(provider.OpenAI).TotalRequests)

	recorder := serveAPI(handler, http.MethodPost, "/v1/routing/providers/openai/reset")

	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Zero(t, router.ProviderHealth(provider.OpenAI).TotalRequests)
}

func TestAPIMethodNotAllowed(t *testing.T) {
	handler, _ := newTestAPI(t)

	recorder := serveAPI(handler, http.MethodPost, "/v1/routing/health")
	assert.Equal(t, http.StatusMethodNotAllowed, recorder.Code)
}
