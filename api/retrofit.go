package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/isabella-tue/retrofit/internal/log"
	"github.com/isabella-tue/retrofit/internal/optimize"
	"github.com/isabella-tue/retrofit/internal/retrofit"
)

// maxInferenceBatch caps the design variable sets evaluated per request.
const maxInferenceBatch = 1000

// RetrofitHandler handles inference, optimization, and MCDM endpoints.
type RetrofitHandler struct {
	predictor *retrofit.Predictor
	optimizer *optimize.Runner
	logger    log.Logger

	// jobCtx bounds background optimization jobs so shutdown cancels
	// them; request contexts end too early for async runs.
	jobCtx context.Context
}

// NewRetrofitHandler creates a new retrofit handler.
func NewRetrofitHandler(predictor *retrofit.Predictor, optimizer *optimize.Runner, logger log.Logger) *RetrofitHandler {
	return &RetrofitHandler{
		predictor: predictor,
		optimizer: optimizer,
		logger:    logger,
		jobCtx:    context.Background(),
	}
}

// SetJobContext bounds the lifetime of background optimization jobs.
func (h *RetrofitHandler) SetJobContext(ctx context.Context) {
	h.jobCtx = ctx
}

// RegisterRoutes registers retrofit routes on the given mux.
func (h *RetrofitHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/inference", h.inference)
	mux.HandleFunc("POST /api/optimize", h.optimize)
	mux.HandleFunc("GET /api/optimize/{id}", h.jobStatus)
	mux.HandleFunc("POST /api/mcdm", h.mcdm)
}

// InferenceRequest evaluates a batch of retrofit scenarios.
type InferenceRequest struct {
	DesignVariables []retrofit.DesignVariables `json:"design_variables"`
}

// InferenceResponse carries one prediction per requested scenario.
type InferenceResponse struct {
	Predictions     []retrofit.Outputs `json:"predictions"`
	ModelUsed       string             `json:"model_used"`
	ExecutionTimeMs float64            `json:"execution_time_ms"`
}

// inference evaluates design variables with the surrogate model, falling
// back to the analytic model when no weights are loaded.
func (h *RetrofitHandler) inference(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req InferenceRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}
	if len(req.DesignVariables) == 0 {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "design_variables cannot be empty")
		return
	}
	if len(req.DesignVariables) > maxInferenceBatch {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "too many design variable sets")
		return
	}
	for _, dv := range req.DesignVariables {
		if err := dv.Validate(); err != nil {
			writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
			return
		}
	}

	predictions, err := h.predictor.PredictBatch(req.DesignVariables)
	if err != nil {
		h.logger.Error("inference failed", "error", err)
		writeError(w, http.StatusInternalServerError, "INFERENCE_FAILED", err.Error())
		return
	}

	modelUsed := "analytic"
	if h.predictor.SurrogateLoaded() {
		modelUsed = "surrogate"
	}

	writeJSON(w, http.StatusOK, InferenceResponse{
		Predictions:     predictions,
		ModelUsed:       modelUsed,
		ExecutionTimeMs: float64(time.Since(start).Microseconds()) / 1000,
	})
}

// OptimizeRequest starts an NSGA-II run.
type OptimizeRequest struct {
	optimize.Params
	Async bool `json:"async"`
}

// optimize runs an optimization. Synchronous requests block until the
// Pareto front is ready; async requests return a job ID immediately.
func (h *RetrofitHandler) optimize(w http.ResponseWriter, r *http.Request) {
	var req OptimizeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	if req.Async {
		id := h.optimizer.StartJob(h.jobCtx, req.Params)
		writeJSON(w, http.StatusAccepted, map[string]any{
			"job_id": id,
			"status": optimize.StatusPending,
		})
		return
	}

	result, err := h.optimizer.Run(r.Context(), req.Params)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return // client went away
		}
		h.logger.Error("optimization failed", "error", err)
		writeError(w, http.StatusInternalServerError, "OPTIMIZATION_FAILED", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// jobStatus reports the state of a background optimization job.
func (h *RetrofitHandler) jobStatus(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JOB_ID", "job id must be a UUID")
		return
	}
	job, ok := h.optimizer.Job(id)
	if !ok {
		writeError(w, http.StatusNotFound, "JOB_NOT_FOUND", "unknown or expired job")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// MCDMRequest ranks candidate solutions by objective preferences.
type MCDMRequest struct {
	Solutions []optimize.Candidate `json:"solutions"`
	Weights   optimize.Weights     `json:"weights"`
}

// mcdm scores and orders the submitted solutions.
func (h *RetrofitHandler) mcdm(w http.ResponseWriter, r *http.Request) {
	var req MCDMRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	rankings, err := optimize.Rank(req.Solutions, req.Weights)
	if err != nil {
		if errors.Is(err, optimize.ErrNoSolutions) {
			writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
			return
		}
		h.logger.Error("mcdm ranking failed", "error", err)
		writeError(w, http.StatusInternalServerError, "MCDM_FAILED", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"rankings": rankings,
		"method":   "weighted_scores",
	})
}
