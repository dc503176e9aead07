package chat

import (
	"strings"
	"testing"

	"github.com/isabella-tue/retrofit/internal/knowledge"
	"github.com/isabella-tue/retrofit/internal/optimize"
)

func TestBuildSystemPrompt_Base(t *testing.T) {
	t.Parallel()

	got := buildSystemPrompt(nil, nil, ModeGeneral)
	if !strings.Contains(got, "You are Isabella") {
		t.Error("missing persona")
	}
	if !strings.Contains(got, "NSGA-II") {
		t.Error("missing pipeline overview")
	}
	if strings.Contains(got, "Current focus") {
		t.Error("general mode should not add a focus section")
	}
}

func TestBuildSystemPrompt_Modes(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		ModeNavigation:     "NAVIGATION MODE",
		ModeInterpretation: "INTERPRETATION MODE",
		ModeTechnical:      "TECHNICAL MODE",
	}
	for mode, marker := range cases {
		if got := buildSystemPrompt(nil, nil, mode); !strings.Contains(got, marker) {
			t.Errorf("mode %q: missing %q", mode, marker)
		}
	}
}

func TestBuildSystemPrompt_SessionContext(t *testing.T) {
	t.Parallel()

	ctx := &SessionContext{
		CurrentStage: "optimization",
		BuildingID:   "0772100000000001",
		ParetoSolutions: []optimize.ParetoSolution{
			{ID: "opt_0", AnnualEnergyGJ: 40, TotalCostEUR: 20000, TotalCO2Kg: 900, ComfortDays: 120},
			{ID: "opt_1", AnnualEnergyGJ: 60, TotalCostEUR: 8000, TotalCO2Kg: 1400, ComfortDays: 90},
		},
		SelectedSolution: "opt_0",
		Constraints:      map[string]float64{"max_investment": 30000},
	}

	got := buildSystemPrompt(ctx, nil, ModeGeneral)
	for _, want := range []string{
		"## Current Session State",
		"Current pipeline stage: optimization",
		"Building ID: 0772100000000001",
		"Pareto solutions available: 2",
		"total_cost_EUR: 8000.0 to 20000.0",
		"Currently selected solution: ID opt_0",
		"max_investment: 30000",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestFormatSessionContext_EmptyOmitted(t *testing.T) {
	t.Parallel()

	if got := formatSessionContext(SessionContext{}); got != "" {
		t.Errorf("empty context rendered %q", got)
	}
}

func TestFormatRAGContext(t *testing.T) {
	t.Parallel()

	docs := []knowledge.Result{
		{
			Document: knowledge.Document{
				ID:         "doc_0",
				Collection: knowledge.CollectionDocumentation,
				Content:    strings.Repeat("x", 600),
				Metadata:   map[string]string{"source": "guide.md", "h2": "Windows"},
			},
			Similarity: 0.9,
		},
		{
			Document: knowledge.Document{
				ID:         "case_2050_0",
				Collection: "case_studies_2050",
				Content:    "Building retrofit scenario sim_001",
			},
			Similarity: 0.8,
		},
	}

	got := formatRAGContext(docs)
	if !strings.Contains(got, "## Relevant Documentation") {
		t.Error("missing header")
	}
	if !strings.Contains(got, "### Source 1: guide.md") {
		t.Error("missing first source line")
	}
	if !strings.Contains(got, "Section: Windows") {
		t.Error("missing section line")
	}
	// 600-char chunk is truncated to the snippet limit.
	if !strings.Contains(got, strings.Repeat("x", ragSnippetLimit)+"...") {
		t.Error("long chunk not truncated")
	}
	if strings.Contains(got, strings.Repeat("x", ragSnippetLimit+1)) {
		t.Error("chunk exceeded the snippet limit")
	}
	// Sourceless documents fall back to the collection name.
	if !strings.Contains(got, "### Source 2: case_studies_2050") {
		t.Error("missing collection fallback")
	}
}

func TestInterpretationGuidance(t *testing.T) {
	t.Parallel()

	if got := interpretationGuidance("mcdm_ranking"); !strings.Contains(got, "MCDM ranking") {
		t.Errorf("mcdm_ranking guidance = %q", got)
	}
	// Unknown types fall back to the Pareto overview.
	if got := interpretationGuidance("nonsense"); !strings.Contains(got, "Pareto front") {
		t.Errorf("fallback guidance = %q", got)
	}
}

func TestErrorRecoveryGuidance(t *testing.T) {
	t.Parallel()

	got := errorRecoveryGuidance("invalid_design_variables")
	if !strings.Contains(got, "0.5-3.0") {
		t.Error("guidance should state the window U-factor range")
	}
	if got := errorRecoveryGuidance("unknown"); !strings.Contains(got, "try again") {
		t.Errorf("fallback = %q", got)
	}
}

func TestConversationStarter(t *testing.T) {
	t.Parallel()

	if got := ConversationStarter(nil); !strings.Contains(got, "I'm Isabella") {
		t.Errorf("nil context starter = %q", got)
	}

	ctx := &SessionContext{ParetoSolutions: make([]optimize.ParetoSolution, 7)}
	if got := ConversationStarter(ctx); !strings.Contains(got, "7 Pareto-optimal solutions") {
		t.Errorf("pareto starter = %q", got)
	}

	ctx = &SessionContext{CurrentStage: "mcdm"}
	if got := ConversationStarter(ctx); !strings.Contains(got, "rank your Pareto solutions") {
		t.Errorf("stage starter = %q", got)
	}

	// Unknown stage falls back to the generic opener.
	ctx = &SessionContext{CurrentStage: "visualization"}
	if got := ConversationStarter(ctx); got != conversationStarters[0] {
		t.Errorf("fallback starter = %q", got)
	}
}
