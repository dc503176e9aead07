package api

import (
	"context"
	"net/http"

	"github.com/isabella-tue/retrofit/internal/log"
	"github.com/isabella-tue/retrofit/internal/retrofit"
)

// Pinger is the subset of pgxpool.Pool the health handler depends on.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler handles health and model availability endpoints.
type HealthHandler struct {
	db        Pinger
	predictor *retrofit.Predictor
	opts      Options
	logger    log.Logger
}

// NewHealthHandler creates a new health handler.
// db is the database connection pool used for dependency checks; nil
// reports the database as unconfigured rather than failing.
func NewHealthHandler(db Pinger, predictor *retrofit.Predictor, opts Options, logger log.Logger) *HealthHandler {
	return &HealthHandler{db: db, predictor: predictor, opts: opts, logger: logger}
}

// RegisterRoutes registers health routes on the given mux.
func (h *HealthHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.liveness)
	mux.HandleFunc("GET /api/health", h.health)
	mux.HandleFunc("GET /api/models", h.models)
}

// liveness is a liveness probe endpoint.
// Returns 200 OK if the process is alive.
func (h *HealthHandler) liveness(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// health reports overall service status including database reachability
// and prediction model availability. Always returns 200 with per-dependency
// detail; a down database degrades building queries but not inference.
func (h *HealthHandler) health(w http.ResponseWriter, r *http.Request) {
	dbStatus := "unconfigured"
	if h.db != nil {
		if err := h.db.Ping(r.Context()); err != nil {
			h.logger.Warn("database health check failed", "error", err)
			dbStatus = "unreachable"
		} else {
			dbStatus = "ok"
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":           "ok",
		"database":         dbStatus,
		"models_available": true, // analytic fallback is always present
		"surrogate_loaded": h.predictor.SurrogateLoaded(),
	})
}

// models reports which prediction models and chat models are in use.
func (h *HealthHandler) models(w http.ResponseWriter, _ *http.Request) {
	predictionModel := "analytic"
	if h.predictor.SurrogateLoaded() {
		predictionModel = "surrogate"
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"prediction": map[string]any{
			"active":           predictionModel,
			"surrogate_loaded": h.predictor.SurrogateLoaded(),
			"analytic_fallback": true,
		},
		"chat": map[string]any{
			"primary_model":   h.opts.PrimaryModel,
			"cheap_model":     h.opts.CheapModel,
			"fallback_models": h.opts.FallbackModels,
		},
	})
}
