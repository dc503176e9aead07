package chat

import (
	"maps"
	"slices"
)

// StageInfo describes one stage of the retrofit pipeline for the
// get_stage_info tool.
type StageInfo struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Inputs      []string `json:"inputs"`
	Outputs     []string `json:"outputs"`
	NextStage   string   `json:"next_stage,omitempty"`
}

var pipelineStages = map[string]StageInfo{
	"data_loading": {
		Name:        "Data Loading",
		Description: "Load building data from CSV files and databases",
		Inputs:      []string{"Building geometry", "Material properties", "Climate data"},
		Outputs:     []string{"Structured building dataset"},
		NextStage:   "data_processing",
	},
	"data_processing": {
		Name:        "Data Processing",
		Description: "Clean, normalize, and prepare data for training",
		Inputs:      []string{"Raw building data"},
		Outputs:     []string{"Processed features", "Train/test splits"},
		NextStage:   "model_training",
	},
	"model_training": {
		Name:        "Model Training",
		Description: "Train the multi-task surrogate network on building data",
		Inputs:      []string{"Processed features", "Target objectives"},
		Outputs:     []string{"Trained surrogate model"},
		NextStage:   "model_evaluation",
	},
	"model_evaluation": {
		Name:        "Model Evaluation",
		Description: "Evaluate model accuracy with RMSE, MAE, R² metrics",
		Inputs:      []string{"Trained model", "Test data"},
		Outputs:     []string{"Performance metrics", "Validation plots"},
		NextStage:   "inference",
	},
	"inference": {
		Name:        "Inference",
		Description: "Predict building performance for new design variables",
		Inputs:      []string{"Design variables", "Trained model"},
		Outputs:     []string{"Predicted: energy, cost, CO2, comfort"},
		NextStage:   "optimization",
	},
	"optimization": {
		Name:        "NSGA-II Optimization",
		Description: "Multi-objective optimization to find Pareto-optimal solutions",
		Inputs:      []string{"Objective functions", "Constraints", "Variable bounds"},
		Outputs:     []string{"Pareto front", "Non-dominated solutions"},
		NextStage:   "mcdm",
	},
	"mcdm": {
		Name:        "Multi-Criteria Decision Making",
		Description: "Rank and select from Pareto solutions using preference methods",
		Inputs:      []string{"Pareto solutions", "User preferences"},
		Outputs:     []string{"Ranked solutions", "Best compromise"},
		NextStage:   "post_processing",
	},
	"post_processing": {
		Name:        "Post-Processing",
		Description: "Calculate derived metrics and prepare final results",
		Inputs:      []string{"Selected solutions"},
		Outputs:     []string{"Payback analysis", "Sensitivity analysis"},
		NextStage:   "visualization",
	},
	"visualization": {
		Name:        "Visualization",
		Description: "Generate plots and reports for decision support",
		Inputs:      []string{"All results"},
		Outputs:     []string{"Pareto plots", "Trade-off analysis", "Reports"},
	},
}

func stageNames() []string {
	return slices.Sorted(maps.Keys(pipelineStages))
}

// mcdmExplanations are canned method descriptions for the
// explain_mcdm_ranking tool.
var mcdmExplanations = map[string]map[string]string{
	"asf": {
		"name":        "Achievement Scalarizing Function (ASF)",
		"description": "ASF minimizes the maximum weighted deviation from an ideal point. It finds solutions closest to the 'utopia' where all objectives are optimal.",
		"formula":     "max_i(w_i * |f_i - z_i*|)",
		"best_for":    "Finding balanced compromises that don't sacrifice any objective too much",
	},
	"pseudo_weights": {
		"name":           "Pseudo-Weights",
		"description":    "Calculates implicit weights based on how much each objective was traded off. Shows the 'price' paid for improvements in each objective.",
		"interpretation": "Higher pseudo-weight = more emphasis placed on that objective in this solution",
		"best_for":       "Understanding trade-off patterns across the Pareto front",
	},
	"weighted_scores": {
		"name":        "Weighted Scoring",
		"description": "Simple weighted sum of normalized objectives. Each solution gets a single score based on user-defined importance weights.",
		"formula":     "Σ(w_i * normalized_objective_i)",
		"best_for":    "Quick ranking when user knows their priorities",
	},
}
