package api

import (
	"errors"
	"net/http"

	"github.com/isabella-tue/retrofit/internal/buildings"
	"github.com/isabella-tue/retrofit/internal/log"
)

// Distinct value query limits. The store clamps to the same bounds.
const (
	defaultDistinctLimit = 100
	maxDistinctLimit     = 500
)

// BuildingsHandler handles building database endpoints.
type BuildingsHandler struct {
	store  *buildings.Store
	logger log.Logger
}

// NewBuildingsHandler creates a new buildings handler.
// A nil store leaves the building endpoints unregistered, so the rest of
// the API works without a database.
func NewBuildingsHandler(store *buildings.Store, logger log.Logger) *BuildingsHandler {
	return &BuildingsHandler{store: store, logger: logger}
}

// RegisterRoutes registers building routes on the given mux.
func (h *BuildingsHandler) RegisterRoutes(mux *http.ServeMux) {
	if h.store == nil {
		h.logger.Warn("buildings store not configured, building endpoints disabled")
		return
	}
	mux.HandleFunc("GET /api/buildings/health", h.health)
	mux.HandleFunc("POST /api/buildings/query", h.query)
	mux.HandleFunc("GET /api/buildings/stats", h.stats)
	mux.HandleFunc("POST /api/buildings/stats", h.stats)
	mux.HandleFunc("GET /api/buildings/distinct", h.distinct)
	mux.HandleFunc("GET /api/buildings/filter-options", h.filterOptions)
	mux.HandleFunc("GET /api/buildings/schema", h.schema)
	mux.HandleFunc("GET /api/buildings/{pand_id}", h.get)
	mux.HandleFunc("GET /api/buildings/{pand_id}/coordinates", h.coordinates)
}

// health checks that the buildings table is queryable.
func (h *BuildingsHandler) health(w http.ResponseWriter, r *http.Request) {
	if _, err := h.store.Distinct(r.Context(), "woningtype", 1); err != nil {
		h.logger.Warn("buildings health check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "unavailable",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

// query runs a filtered, sorted, paginated building query.
func (h *BuildingsHandler) query(w http.ResponseWriter, r *http.Request) {
	var req buildings.QueryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	result, err := h.store.Query(r.Context(), req)
	if err != nil {
		h.writeStoreError(w, err, "query failed")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// statsRequest optionally narrows statistics to a filtered subset.
type statsRequest struct {
	Filters []buildings.Filter `json:"filters"`
}

// stats returns aggregate statistics. GET covers the whole table; POST
// accepts a filter list to scope the aggregation.
func (h *BuildingsHandler) stats(w http.ResponseWriter, r *http.Request) {
	var req statsRequest
	if r.Method == http.MethodPost {
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
			return
		}
	}

	stats, err := h.store.Stats(r.Context(), req.Filters)
	if err != nil {
		h.writeStoreError(w, err, "stats failed")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// distinct returns the distinct values of an allow-listed column.
func (h *BuildingsHandler) distinct(w http.ResponseWriter, r *http.Request) {
	column := r.URL.Query().Get("column")
	if column == "" {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "column parameter is required")
		return
	}
	limit := parseIntParam(r, "limit", defaultDistinctLimit, 1, maxDistinctLimit)

	values, err := h.store.Distinct(r.Context(), column, limit)
	if err != nil {
		h.writeStoreError(w, err, "distinct query failed")
		return
	}
	writeJSON(w, http.StatusOK, values)
}

// filterOptions returns the value ranges and categories the UI can
// build filter controls from.
func (h *BuildingsHandler) filterOptions(w http.ResponseWriter, r *http.Request) {
	opts, err := h.store.FilterOptions(r.Context())
	if err != nil {
		h.writeStoreError(w, err, "filter options failed")
		return
	}
	writeJSON(w, http.StatusOK, opts)
}

// schema reports the table's column names and types.
func (h *BuildingsHandler) schema(w http.ResponseWriter, r *http.Request) {
	schema, err := h.store.Schema(r.Context())
	if err != nil {
		h.writeStoreError(w, err, "schema query failed")
		return
	}
	writeJSON(w, http.StatusOK, schema)
}

// get returns a single building by pand_id.
func (h *BuildingsHandler) get(w http.ResponseWriter, r *http.Request) {
	building, err := h.store.Get(r.Context(), r.PathValue("pand_id"))
	if err != nil {
		h.writeStoreError(w, err, "building lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, building)
}

// coordinates returns a building's centroid for camera navigation.
func (h *BuildingsHandler) coordinates(w http.ResponseWriter, r *http.Request) {
	coords, err := h.store.Coordinates(r.Context(), r.PathValue("pand_id"))
	if err != nil {
		h.writeStoreError(w, err, "coordinate lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, coords)
}

// writeStoreError maps store errors onto HTTP status codes.
func (h *BuildingsHandler) writeStoreError(w http.ResponseWriter, err error, logMsg string) {
	switch {
	case errors.Is(err, buildings.ErrNotFound):
		writeError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
	case errors.Is(err, buildings.ErrColumnNotAllowed),
		errors.Is(err, buildings.ErrBadOperator),
		errors.Is(err, buildings.ErrBadFilterValue):
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
	default:
		h.logger.Error(logMsg, "error", err)
		writeError(w, http.StatusInternalServerError, "DATABASE_ERROR", "building query failed")
	}
}
