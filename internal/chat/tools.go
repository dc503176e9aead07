package chat

import (
	"context"
	"fmt"
	"sort"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/google/uuid"

	"github.com/isabella-tue/retrofit/internal/log"
	"github.com/isabella-tue/retrofit/internal/optimize"
	"github.com/isabella-tue/retrofit/internal/retrofit"
)

// sessionCtxKey carries the request's session context into tool handlers.
type sessionCtxKey struct{}

// WithSessionContext attaches the session context so tools can read the
// Pareto front and preferences of the conversation that invoked them.
func WithSessionContext(ctx context.Context, sc *SessionContext) context.Context {
	return context.WithValue(ctx, sessionCtxKey{}, sc)
}

func sessionContextFrom(ctx context.Context) *SessionContext {
	sc, _ := ctx.Value(sessionCtxKey{}).(*SessionContext)
	return sc
}

// Fallback design variables when the model omits a field. Mid-range
// values within the search bounds.
const (
	defaultToolWindowU = 1.6
	defaultToolFloorR  = 2.5
	defaultToolWallR   = 3.0
	defaultToolRoofR   = 4.0
)

// defaultSimilarResults bounds the similar-building search.
const defaultSimilarResults = 5

// allowedParetoFilters are the only filters the model may apply to the
// session's Pareto solutions. Everything else is silently ignored, so the
// model cannot probe for internal field names.
var allowedParetoFilters = map[string]func(s optimize.ParetoSolution, v float64) bool{
	"energy_min":  func(s optimize.ParetoSolution, v float64) bool { return s.AnnualEnergyGJ >= v },
	"energy_max":  func(s optimize.ParetoSolution, v float64) bool { return s.AnnualEnergyGJ <= v },
	"cost_min":    func(s optimize.ParetoSolution, v float64) bool { return s.TotalCostEUR >= v },
	"cost_max":    func(s optimize.ParetoSolution, v float64) bool { return s.TotalCostEUR <= v },
	"co2_min":     func(s optimize.ParetoSolution, v float64) bool { return s.TotalCO2Kg >= v },
	"co2_max":     func(s optimize.ParetoSolution, v float64) bool { return s.TotalCO2Kg <= v },
	"comfort_min": func(s optimize.ParetoSolution, v float64) bool { return s.ComfortDays >= v },
	"comfort_max": func(s optimize.ParetoSolution, v float64) bool { return s.ComfortDays <= v },
}

var allowedSortFields = map[string]func(s optimize.ParetoSolution) float64{
	"energy":  func(s optimize.ParetoSolution) float64 { return s.AnnualEnergyGJ },
	"cost":    func(s optimize.ParetoSolution) float64 { return s.TotalCostEUR },
	"co2":     func(s optimize.ParetoSolution) float64 { return s.TotalCO2Kg },
	"comfort": func(s optimize.ParetoSolution) float64 { return s.ComfortDays },
}

// ToolDeps are the services the chat tools operate on.
type ToolDeps struct {
	Predictor *retrofit.Predictor
	Optimizer *optimize.Runner
	Retriever Retriever
	Logger    log.Logger

	// BackgroundCtx bounds optimization jobs started from chat; pass the
	// application context so shutdown cancels them.
	BackgroundCtx context.Context
}

// RegisterTools defines the retrofit tool set on the Genkit registry and
// returns the tools for ai.WithTools.
func RegisterTools(g *genkit.Genkit, deps ToolDeps) []ai.Tool {
	bgCtx := deps.BackgroundCtx
	if bgCtx == nil {
		bgCtx = context.Background()
	}

	runInference := genkit.DefineTool(
		g, "run_inference",
		"Predict building performance (annual energy, total cost, CO2, comfort days) for a set of retrofit design variables.",
		func(ctx *ai.ToolContext, input struct {
			WindowU     float64 `json:"windows_U_Factor,omitempty" jsonschema_description:"Window U-factor in W/m2K, range 0.5-3.0"`
			FloorR      float64 `json:"groundfloor_thermal_resistance,omitempty" jsonschema_description:"Ground floor R-value in m2K/W, range 0.3-6.0"`
			WallR       float64 `json:"ext_walls_thermal_resistance,omitempty" jsonschema_description:"External wall R-value in m2K/W, range 0.3-7.0"`
			RoofR       float64 `json:"roof_thermal_resistance,omitempty" jsonschema_description:"Roof R-value in m2K/W, range 0.3-9.0"`
			TimeHorizon int     `json:"time_horizon,omitempty" jsonschema_description:"Climate scenario year: 2020, 2050 or 2100"`
		}) (map[string]any, error) {
			dv := retrofit.DesignVariables{
				TimeHorizon: input.TimeHorizon,
				WindowU:     input.WindowU,
				FloorR:      input.FloorR,
				WallR:       input.WallR,
				RoofR:       input.RoofR,
			}
			fillDefaults(&dv)
			if err := dv.Validate(); err != nil {
				return map[string]any{"error": err.Error()}, nil
			}
			out, err := deps.Predictor.Predict(dv)
			if err != nil {
				return map[string]any{"error": err.Error()}, nil
			}
			return map[string]any{
				"status":           "success",
				"design_variables": dv,
				"predictions":      out,
				"message":          "Inference completed. These are predicted performance metrics for the specified design variables.",
			}, nil
		},
	)

	startOptimization := genkit.DefineTool(
		g, "start_optimization",
		"Start NSGA-II multi-objective optimization to find Pareto-optimal retrofit solutions. Returns a job_id for tracking (the run takes 30-60 seconds).",
		func(ctx *ai.ToolContext, input struct {
			PopSize     int               `json:"pop_size,omitempty" jsonschema_description:"Population size, 10-200"`
			Generations int               `json:"n_generations,omitempty" jsonschema_description:"Number of generations, 5-100"`
			TimeHorizon int               `json:"time_horizon,omitempty" jsonschema_description:"Climate scenario year: 2020, 2050 or 2100"`
			Weights     *optimize.Weights `json:"weights,omitempty" jsonschema_description:"MCDM preference weights for energy, cost, co2, comfort"`
		}) (map[string]any, error) {
			p := optimize.Params{
				PopSize:     input.PopSize,
				Generations: input.Generations,
				TimeHorizon: input.TimeHorizon,
			}
			if input.Weights != nil {
				p.Weights = *input.Weights
			}
			jobID := deps.Optimizer.StartJob(bgCtx, p)
			return map[string]any{
				"status": "started",
				"job_id": jobID.String(),
				"message": fmt.Sprintf(
					"Optimization started. Use check_optimization_status with job_id '%s' to monitor progress. Expected completion: 30-60 seconds.",
					jobID),
			}, nil
		},
	)

	checkStatus := genkit.DefineTool(
		g, "check_optimization_status",
		"Check the status of a running optimization job.",
		func(ctx *ai.ToolContext, input struct {
			JobID string `json:"job_id" jsonschema_description:"Job ID returned from start_optimization"`
		}) (map[string]any, error) {
			id, err := uuid.Parse(input.JobID)
			if err != nil {
				return map[string]any{"error": fmt.Sprintf("invalid job_id: %s", input.JobID)}, nil
			}
			job, ok := deps.Optimizer.Job(id)
			if !ok {
				return map[string]any{"error": fmt.Sprintf("job not found: %s", input.JobID)}, nil
			}
			out := map[string]any{
				"job_id":   job.ID.String(),
				"status":   job.Status,
				"progress": job.Progress,
			}
			if job.Error != "" {
				out["error"] = job.Error
			}
			if job.Result != nil {
				out["pareto_solutions"] = len(job.Result.Solutions)
				out["run_time_seconds"] = job.Result.RunTimeSeconds
			}
			return out, nil
		},
	)

	queryPareto := genkit.DefineTool(
		g, "query_pareto_solutions",
		"Query and filter the Pareto-optimal solutions in the current session. Uses safe, predefined filters: energy_min/max, cost_min/max, co2_min/max, comfort_min/max.",
		func(ctx *ai.ToolContext, input struct {
			Filters   map[string]float64 `json:"filters,omitempty" jsonschema_description:"Predefined filters, e.g. {\"cost_max\": 40000, \"comfort_min\": 100}"`
			SortBy    string             `json:"sort_by,omitempty" jsonschema_description:"Sort field: energy, cost, co2 or comfort"`
			Ascending bool               `json:"ascending,omitempty" jsonschema_description:"Sort ascending (default false)"`
			Limit     int                `json:"limit,omitempty" jsonschema_description:"Maximum number of solutions to return (default 10)"`
		}) (map[string]any, error) {
			sc := sessionContextFrom(ctx)
			if sc == nil || len(sc.ParetoSolutions) == 0 {
				return map[string]any{
					"message":   "No Pareto solutions in current session. Run optimization first.",
					"solutions": []optimize.ParetoSolution{},
					"total":     0,
				}, nil
			}

			sols, applied := filterSolutions(sc.ParetoSolutions, input.Filters)
			sols = sortSolutions(sols, input.SortBy, input.Ascending)

			limit := input.Limit
			if limit <= 0 {
				limit = 10
			}
			if len(sols) > limit {
				sols = sols[:limit]
			}

			return map[string]any{
				"solutions":       sols,
				"total":           len(sols),
				"filters_applied": applied,
				"sorted_by":       input.SortBy,
			}, nil
		},
	)

	findSimilar := genkit.DefineTool(
		g, "find_similar_buildings",
		"Find similar building retrofit case studies from the knowledge base based on a natural language description.",
		func(ctx *ai.ToolContext, input struct {
			Description string `json:"description" jsonschema_description:"Natural language description of the building or scenario"`
			TimeHorizon int    `json:"time_horizon,omitempty" jsonschema_description:"Climate scenario year: 2020, 2050 or 2100"`
			NResults    int    `json:"n_results,omitempty" jsonschema_description:"Number of similar buildings to return (default 5)"`
		}) (map[string]any, error) {
			n := input.NResults
			if n <= 0 {
				n = defaultSimilarResults
			}
			results, err := deps.Retriever.SimilarBuildings(ctx, input.Description, input.TimeHorizon, n)
			if err != nil {
				return map[string]any{"error": err.Error()}, nil
			}
			buildings := make([]map[string]any, len(results))
			for i, r := range results {
				buildings[i] = map[string]any{
					"content":    r.Document.Content,
					"metadata":   r.Document.Metadata,
					"similarity": r.Similarity,
				}
			}
			return map[string]any{
				"similar_buildings": buildings,
				"count":             len(buildings),
			}, nil
		},
	)

	explainMCDM := genkit.DefineTool(
		g, "explain_mcdm_ranking",
		"Explain the MCDM (multi-criteria decision making) ranking method and, when the session has Pareto solutions, rerank them with the given weights.",
		func(ctx *ai.ToolContext, input struct {
			Method  string            `json:"method,omitempty" jsonschema_description:"MCDM method: asf, pseudo_weights or weighted_scores"`
			Weights *optimize.Weights `json:"weights,omitempty" jsonschema_description:"Preference weights for energy, cost, co2, comfort"`
			TopN    int               `json:"top_n,omitempty" jsonschema_description:"Include the top N ranked solutions (default 3)"`
		}) (map[string]any, error) {
			method := input.Method
			if _, ok := mcdmExplanations[method]; !ok {
				method = "weighted_scores"
			}
			out := map[string]any{
				"method":      method,
				"explanation": mcdmExplanations[method],
			}

			sc := sessionContextFrom(ctx)
			if sc != nil && len(sc.ParetoSolutions) > 0 {
				weights := optimize.Weights{}
				if input.Weights != nil {
					weights = *input.Weights
				} else if sc.MCDMWeights != nil {
					weights = *sc.MCDMWeights
				}
				rankings, err := optimize.RankSolutions(sc.ParetoSolutions, weights)
				if err != nil {
					return map[string]any{"error": err.Error()}, nil
				}
				topN := input.TopN
				if topN <= 0 {
					topN = 3
				}
				if len(rankings) > topN {
					rankings = rankings[:topN]
				}
				out["top_ranked"] = rankings
			}
			return out, nil
		},
	)

	stageInfo := genkit.DefineTool(
		g, "get_stage_info",
		"Get information about a specific stage of the 9-stage retrofit pipeline.",
		func(ctx *ai.ToolContext, input struct {
			Stage string `json:"stage" jsonschema_description:"Pipeline stage: data_loading, data_processing, model_training, model_evaluation, inference, optimization, mcdm, post_processing or visualization"`
		}) (map[string]any, error) {
			info, ok := pipelineStages[input.Stage]
			if !ok {
				return map[string]any{
					"error":            fmt.Sprintf("unknown stage: %s", input.Stage),
					"available_stages": stageNames(),
				}, nil
			}
			return map[string]any{
				"stage":       input.Stage,
				"name":        info.Name,
				"description": info.Description,
				"inputs":      info.Inputs,
				"outputs":     info.Outputs,
				"next_stage":  info.NextStage,
			}, nil
		},
	)

	return []ai.Tool{
		runInference,
		startOptimization,
		checkStatus,
		queryPareto,
		findSimilar,
		explainMCDM,
		stageInfo,
	}
}

// fillDefaults replaces omitted design variables with mid-range values.
func fillDefaults(dv *retrofit.DesignVariables) {
	if dv.TimeHorizon == 0 {
		dv.TimeHorizon = 2020
	}
	if dv.WindowU == 0 {
		dv.WindowU = defaultToolWindowU
	}
	if dv.FloorR == 0 {
		dv.FloorR = defaultToolFloorR
	}
	if dv.WallR == 0 {
		dv.WallR = defaultToolWallR
	}
	if dv.RoofR == 0 {
		dv.RoofR = defaultToolRoofR
	}
}

// filterSolutions applies the allow-listed filters and returns the
// surviving solutions plus the names of the filters actually applied.
func filterSolutions(sols []optimize.ParetoSolution, filters map[string]float64) ([]optimize.ParetoSolution, []string) {
	out := make([]optimize.ParetoSolution, len(sols))
	copy(out, sols)

	applied := make([]string, 0, len(filters))
	for _, name := range sortedFilterNames(filters) {
		pred, ok := allowedParetoFilters[name]
		if !ok {
			continue
		}
		applied = append(applied, name)
		val := filters[name]
		kept := out[:0]
		for _, s := range out {
			if pred(s, val) {
				kept = append(kept, s)
			}
		}
		out = kept
	}
	return out, applied
}

func sortedFilterNames(filters map[string]float64) []string {
	names := make([]string, 0, len(filters))
	for name := range filters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// sortSolutions orders by an allow-listed field; unknown fields leave the
// order unchanged. Default is descending (best-first for comfort).
func sortSolutions(sols []optimize.ParetoSolution, sortBy string, ascending bool) []optimize.ParetoSolution {
	key, ok := allowedSortFields[sortBy]
	if !ok {
		return sols
	}
	sort.SliceStable(sols, func(i, j int) bool {
		if ascending {
			return key(sols[i]) < key(sols[j])
		}
		return key(sols[i]) > key(sols[j])
	})
	return sols
}
