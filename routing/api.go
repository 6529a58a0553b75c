package routing

import (
	"net/http"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/agentlane/relay/provider"
)

// APIHandler provides HTTP handlers for routing observability and
// administrative operations. It exposes subsystem state only; it does not
// serve routed requests.
type APIHandler struct {
	router *Router
	logger *zap.SugaredLogger
}

// NewAPIHandler creates a new routing API handler.
func NewAPIHandler(router *Router, logger *zap.SugaredLogger) *APIHandler {
	return &APIHandler{
		router: router,
		logger: logger,
	}
}

// Register attaches the routing endpoints to a mux router.
func (h *APIHandler) Register(r *mux.Router) {
	r.HandleFunc("/v1/routing/health", h.HandleHealthSummary).Methods(http.MethodGet)
	r.HandleFunc("/v1/routing/stats", h.HandleHistoryStats).Methods(http.MethodGet)
	r.HandleFunc("/v1/routing/providers", h.HandleProviderStates).Methods(http.MethodGet)
	r.HandleFunc("/v1/routing/providers/{provider}/recover", h.HandleForceRecovery).Methods(http.MethodPost)
	r.HandleFunc("/v1/routing/providers/{provider}/reset", h.HandleResetStats).Methods(http.MethodPost)
}

// HandleHealthSummary returns the aggregate health summary.
func (h *APIHandler) HandleHealthSummary(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, h.router.HealthSummary())
}

// HandleHistoryStats returns aggregate routing history statistics.
func (h *APIHandler) HandleHistoryStats(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, h.router.HistoryStats())
}

// HandleProviderStates returns the circuit state and health per provider.
func (h *APIHandler) HandleProviderStates(w http.ResponseWriter, r *http.Request) {
	type providerState struct {
		State  CircuitState   `json:"state"`
		Health ProviderHealth `json:"health"`
	}
	states := make(map[string]providerState)
	for _, p := range provider.All() {
		states[p.String()] = providerState{
			State:  h.router.ProviderState(p),
			Health: h.router.ProviderHealth(p),
		}
	}
	h.writeJSON(w, states)
}

// HandleForceRecovery force-closes a provider's breaker and restores its
// availability.
func (h *APIHandler) HandleForceRecovery(w http.ResponseWriter, r *http.Request) {
	p, ok := h.providerFromRequest(w, r)
	if !ok {
		return
	}
	h.router.ForceProviderRecovery(p)
	h.logger.Infow("Forced provider recovery via API", "provider", p.String())
	h.writeJSON(w, map[string]string{"provider": p.String(), "status": "recovered"})
}

// HandleResetStats zeroes the health counters for one provider.
func (h *APIHandler) HandleResetStats(w http.ResponseWriter, r *http.Request) {
	p, ok := h.providerFromRequest(w, r)
	if !ok {
		return
	}
	h.router.ResetProviderStats(p)
	h.logger.Infow("Reset provider stats via API", "provider", p.String())
	h.writeJSON(w, map[string]string{"provider": p.String(), "status": "reset"})
}

func (h *APIHandler) providerFromRequest(w http.ResponseWriter, r *http.Request) (provider.Provider, bool) {
	name := mux.Vars(r)["provider"]
	p, err := provider.Parse(name)
	if err != nil {
		h.logger.Warnw("Unknown provider in API request", "provider", name)
		http.Error(w, "Unknown provider", http.StatusNotFound)
		return 0, false
	}
	return p, true
}

func (h *APIHandler) writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Errorw("Failed to encode response", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}
