package chat

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/isabella-tue/retrofit/internal/knowledge"
	"github.com/isabella-tue/retrofit/internal/optimize"
)

// ragSnippetLimit truncates retrieved documents before prompt injection.
const ragSnippetLimit = 500

const systemPromptBase = `You are Isabella, an AI assistant for building retrofit optimization.
You help users navigate a 9-stage pipeline for multi-objective building performance optimization:

1. **Data Loading**: Import building geometry, materials, and climate data
2. **Data Processing**: Clean and prepare features for modeling
3. **Model Training**: Train Multi-Task Learning (MTL) neural networks
4. **Model Evaluation**: Validate model accuracy (RMSE, MAE, R²)
5. **Inference**: Predict energy, cost, CO2, and comfort for design variables
6. **Optimization**: Run NSGA-II to find Pareto-optimal retrofit solutions
7. **MCDM**: Rank solutions using multi-criteria decision making
8. **Post-Processing**: Calculate payback, sensitivity analysis
9. **Visualization**: Generate plots and reports

You can:
- Guide users through each pipeline stage
- Explain optimization results and Pareto trade-offs
- Compare retrofit solutions across 4 objectives
- Find similar building case studies
- Run inference and optimization via function calls

Always be concise and actionable. Use bullet points for comparisons.
When discussing trade-offs, quantify differences (e.g., "15% more energy savings for €5,000 extra").`

const navigationPrompt = `Current focus: NAVIGATION MODE

Help users understand where they are in the pipeline and what to do next.
- Explain what each stage does and why it matters
- Guide users to the appropriate tools/endpoints
- Suggest next steps based on their progress`

const interpretationPrompt = `Current focus: INTERPRETATION MODE

Help users understand optimization results and make decisions.
- Explain Pareto fronts: "these are all non-dominated solutions, meaning none is strictly better than another"
- Clarify trade-offs between objectives: energy vs cost vs CO2 vs comfort
- Recommend solutions based on user priorities
- Use MCDM methods (ASF, pseudo-weights, weighted scores) to justify rankings`

const technicalPrompt = `Current focus: TECHNICAL MODE

Answer methodology questions with appropriate depth.
- Explain the surrogate model architecture and why it works for building prediction
- Describe NSGA-II algorithm and constraint handling
- Discuss climate scenarios (2020, 2050, 2100) and their implications
- Reference relevant documentation when available`

var modePrompts = map[string]string{
	ModeNavigation:     navigationPrompt,
	ModeInterpretation: interpretationPrompt,
	ModeTechnical:      technicalPrompt,
}

// buildSystemPrompt assembles the persona, the mode focus, the session
// state, and the retrieved documents into one system prompt.
func buildSystemPrompt(ctx *SessionContext, ragDocs []knowledge.Result, mode string) string {
	parts := []string{systemPromptBase}

	if p, ok := modePrompts[mode]; ok {
		parts = append(parts, p)
	}
	if ctx != nil {
		if s := formatSessionContext(*ctx); s != "" {
			parts = append(parts, s)
		}
	}
	if len(ragDocs) > 0 {
		parts = append(parts, formatRAGContext(ragDocs))
	}

	return strings.Join(parts, "\n\n")
}

// formatSessionContext renders the session state block of the prompt.
func formatSessionContext(c SessionContext) string {
	lines := []string{"## Current Session State"}

	if c.CurrentStage != "" {
		lines = append(lines, fmt.Sprintf("- Current pipeline stage: %s", c.CurrentStage))
	}
	if c.BuildingID != "" {
		lines = append(lines, fmt.Sprintf("- Building ID: %s", c.BuildingID))
	}
	if c.TimeHorizon != 0 {
		lines = append(lines, fmt.Sprintf("- Climate scenario: %d", c.TimeHorizon))
	}
	if c.DesignVariables != nil {
		dv := c.DesignVariables
		lines = append(lines, "- Design variables:",
			fmt.Sprintf("  - windows U-factor: %.2f W/m²K", dv.WindowU),
			fmt.Sprintf("  - ground floor R: %.2f m²K/W", dv.FloorR),
			fmt.Sprintf("  - external walls R: %.2f m²K/W", dv.WallR),
			fmt.Sprintf("  - roof R: %.2f m²K/W", dv.RoofR))
	}
	if c.InferenceResults != nil {
		out := c.InferenceResults
		lines = append(lines, "- Latest prediction:",
			fmt.Sprintf("  - annual energy: %.1f GJ", out.AnnualEnergyGJ),
			fmt.Sprintf("  - total cost: %.0f EUR", out.TotalCostEUR),
			fmt.Sprintf("  - total CO2: %.0f kg", out.TotalCO2Kg),
			fmt.Sprintf("  - comfort: %.1f days", out.ComfortDays))
	}
	if n := len(c.ParetoSolutions); n > 0 {
		lines = append(lines, fmt.Sprintf("- Pareto solutions available: %d", n))
		lines = append(lines, "- Solution ranges:")
		lines = append(lines, solutionRanges(c.ParetoSolutions)...)
	}
	if c.SelectedSolution != "" {
		lines = append(lines, fmt.Sprintf("- Currently selected solution: ID %s", c.SelectedSolution))
	}
	if len(c.Constraints) > 0 {
		lines = append(lines, "- Active constraints:")
		for _, key := range slices.Sorted(maps.Keys(c.Constraints)) {
			lines = append(lines, fmt.Sprintf("  - %s: %g", key, c.Constraints[key]))
		}
	}

	if len(lines) == 1 {
		return ""
	}
	return strings.Join(lines, "\n")
}

// solutionRanges summarizes min..max per objective over the Pareto front.
func solutionRanges(sols []optimize.ParetoSolution) []string {
	type metric struct {
		name string
		get  func(s optimize.ParetoSolution) float64
	}
	metrics := []metric{
		{"annual_energy_GJ", func(s optimize.ParetoSolution) float64 { return s.AnnualEnergyGJ }},
		{"total_cost_EUR", func(s optimize.ParetoSolution) float64 { return s.TotalCostEUR }},
		{"total_co2_kg", func(s optimize.ParetoSolution) float64 { return s.TotalCO2Kg }},
		{"comfort_days", func(s optimize.ParetoSolution) float64 { return s.ComfortDays }},
	}

	lines := make([]string, 0, len(metrics))
	for _, m := range metrics {
		lo, hi := m.get(sols[0]), m.get(sols[0])
		for _, s := range sols[1:] {
			v := m.get(s)
			if v < lo {
				lo = v
			}
			if v > hi {
				hi = v
			}
		}
		lines = append(lines, fmt.Sprintf("  - %s: %.1f to %.1f", m.name, lo, hi))
	}
	return lines
}

// formatRAGContext renders retrieved documents, truncated per document so
// a handful of verbose chunks cannot crowd out the conversation.
func formatRAGContext(docs []knowledge.Result) string {
	lines := []string{"## Relevant Documentation"}

	for i, doc := range docs {
		source := doc.Document.Metadata["source"]
		if source == "" {
			source = doc.Document.Collection
		}
		section := doc.Document.Metadata["h3"]
		if section == "" {
			section = doc.Document.Metadata["h2"]
		}

		text := doc.Document.Content
		if runes := []rune(text); len(runes) > ragSnippetLimit {
			text = string(runes[:ragSnippetLimit]) + "..."
		}

		lines = append(lines, fmt.Sprintf("\n### Source %d: %s", i+1, source))
		if section != "" {
			lines = append(lines, fmt.Sprintf("Section: %s", section))
		}
		lines = append(lines, text)
	}

	return strings.Join(lines, "\n")
}

// interpretationGuidance returns tailored guidance for a results question.
// Unknown types get the Pareto overview.
func interpretationGuidance(solutionType string) string {
	prompts := map[string]string{
		"pareto_overview": `Explain this Pareto front to the user:
- How many solutions are on the front
- The range of each objective
- Key trade-off patterns (e.g., "high energy savings solutions cost 2-3x more")
- Suggest which solutions to explore based on common priorities`,
		"solution_comparison": `Compare these specific solutions:
- Quantify differences in each objective
- Highlight the key trade-off (what you gain vs. what you give up)
- Make a recommendation based on typical priorities
- Mention payback period if cost data is available`,
		"mcdm_ranking": `Explain the MCDM ranking:
- Which method was used (ASF, pseudo-weights, or weighted scores)
- Why the top solution ranks highest
- How sensitive the ranking is to weight changes
- Alternative solutions that might be preferred with different priorities`,
		"climate_comparison": `Compare results across climate scenarios:
- How objectives change from 2020 to 2050 to 2100
- Which retrofit measures become more/less valuable
- Climate adaptation recommendations`,
	}
	if p, ok := prompts[solutionType]; ok {
		return p
	}
	return prompts["pareto_overview"]
}

// errorRecoveryGuidance tells the model how to respond after a known
// failure mode instead of surfacing a raw error.
func errorRecoveryGuidance(errorType string) string {
	prompts := map[string]string{
		"no_pareto_solutions": `The user is asking about Pareto solutions, but none are available yet.
Explain that they need to:
1. First run inference to predict building performance
2. Then run NSGA-II optimization to generate the Pareto front
Offer to help them start the optimization process.`,
		"optimization_timeout": `The optimization is taking longer than expected.
Explain that:
1. NSGA-II optimization typically takes 30-60 seconds
2. They can check the job status using the job_id
3. Complex problems with many constraints may take longer
Offer to check the current job status.`,
		"invalid_design_variables": `The user specified invalid design variables.
Clarify the valid ranges:
- Windows U-factor: 0.5-3.0 W/m²K
- Ground floor R-value: 0.3-6.0 m²K/W
- Wall insulation R-value: 0.3-7.0 m²K/W
- Roof insulation R-value: 0.3-9.0 m²K/W
Ask them to provide corrected values.`,
		"no_similar_buildings": `No similar buildings were found in the case study database.
Explain that:
1. The knowledge base contains pre-computed scenarios
2. Their specific building characteristics may not have direct matches
3. Offer to run fresh inference/optimization for their building`,
	}
	if p, ok := prompts[errorType]; ok {
		return p
	}
	return "An unexpected error occurred. Please try again or rephrase your request."
}

// conversationStarters cycle as the default greeting suggestions.
var conversationStarters = []string{
	"What would you like to optimize for your building?",
	"I can help you find the best retrofit solution. What are your priorities - energy savings, cost, or comfort?",
	"Would you like to see similar buildings and their retrofit results?",
	"I can explain the trade-offs between different solutions. Which aspect interests you most?",
}

var stageStarters = map[string]string{
	"data_loading": "I see you're at the data loading stage. Need help importing your building data?",
	"inference":    "Ready to predict building performance? I can run inference with your design variables.",
	"optimization": "Time to find optimal solutions! What constraints should I apply to the optimization?",
	"mcdm":         "Let's rank your Pareto solutions. What matters most - energy savings, cost, CO2, or comfort?",
}

// ConversationStarter picks an opening message for the session's state.
func ConversationStarter(ctx *SessionContext) string {
	if ctx == nil {
		return "Hello! I'm Isabella, your building retrofit optimization assistant. How can I help you today?"
	}
	if n := len(ctx.ParetoSolutions); n > 0 {
		return fmt.Sprintf("Welcome back! You have %d Pareto-optimal solutions from your last optimization. Would you like me to help you compare them or find the best fit for your priorities?", n)
	}
	if ctx.CurrentStage != "" {
		if s, ok := stageStarters[ctx.CurrentStage]; ok {
			return s
		}
	}
	return conversationStarters[0]
}
