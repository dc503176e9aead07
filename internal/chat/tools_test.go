package chat

import (
	"slices"
	"testing"

	"github.com/isabella-tue/retrofit/internal/optimize"
	"github.com/isabella-tue/retrofit/internal/retrofit"
)

var testFront = []optimize.ParetoSolution{
	{ID: "opt_0", AnnualEnergyGJ: 40, TotalCostEUR: 25000, TotalCO2Kg: 800, ComfortDays: 130},
	{ID: "opt_1", AnnualEnergyGJ: 55, TotalCostEUR: 12000, TotalCO2Kg: 1100, ComfortDays: 110},
	{ID: "opt_2", AnnualEnergyGJ: 70, TotalCostEUR: 6000, TotalCO2Kg: 1500, ComfortDays: 85},
}

func TestFilterSolutions(t *testing.T) {
	t.Parallel()

	got, applied := filterSolutions(testFront, map[string]float64{
		"cost_max":    20000,
		"comfort_min": 100,
	})
	if len(got) != 1 || got[0].ID != "opt_1" {
		t.Fatalf("got %+v, want only opt_1", got)
	}
	if len(applied) != 2 {
		t.Errorf("applied = %v", applied)
	}

	// Unknown filters are silently ignored, not errors.
	got, applied = filterSolutions(testFront, map[string]float64{
		"secret_column": 1,
		"energy_max":    60,
	})
	if len(got) != 2 {
		t.Errorf("got %d solutions, want 2", len(got))
	}
	if !slices.Equal(applied, []string{"energy_max"}) {
		t.Errorf("applied = %v, want [energy_max]", applied)
	}

	// The input slice is never mutated.
	if testFront[0].ID != "opt_0" || len(testFront) != 3 {
		t.Error("filterSolutions mutated its input")
	}
}

func TestSortSolutions(t *testing.T) {
	t.Parallel()

	sols := make([]optimize.ParetoSolution, len(testFront))
	copy(sols, testFront)

	got := sortSolutions(sols, "cost", true)
	if got[0].ID != "opt_2" || got[2].ID != "opt_0" {
		t.Errorf("ascending cost order: %s, %s, %s", got[0].ID, got[1].ID, got[2].ID)
	}

	got = sortSolutions(sols, "comfort", false)
	if got[0].ID != "opt_0" {
		t.Errorf("descending comfort should lead with opt_0, got %s", got[0].ID)
	}

	// Unknown sort field leaves the order alone.
	copy(sols, testFront)
	got = sortSolutions(sols, "profit", false)
	if got[0].ID != "opt_0" {
		t.Errorf("unknown field reordered: %s", got[0].ID)
	}
}

func TestFillDefaults(t *testing.T) {
	t.Parallel()

	dv := retrofit.DesignVariables{}
	fillDefaults(&dv)
	if dv.TimeHorizon != 2020 {
		t.Errorf("TimeHorizon = %d", dv.TimeHorizon)
	}
	if err := dv.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}

	// Provided values are left alone.
	dv = retrofit.DesignVariables{TimeHorizon: 2050, WindowU: 1.0}
	fillDefaults(&dv)
	if dv.TimeHorizon != 2050 || dv.WindowU != 1.0 {
		t.Error("fillDefaults overwrote provided values")
	}
}

func TestPipelineStages(t *testing.T) {
	t.Parallel()

	if len(pipelineStages) != 9 {
		t.Fatalf("got %d stages, want 9", len(pipelineStages))
	}

	// Every next_stage points at a real stage, and the chain from
	// data_loading visits all nine.
	seen := map[string]bool{}
	stage := "data_loading"
	for stage != "" {
		if seen[stage] {
			t.Fatalf("stage cycle at %q", stage)
		}
		seen[stage] = true
		info, ok := pipelineStages[stage]
		if !ok {
			t.Fatalf("unknown stage %q in chain", stage)
		}
		stage = info.NextStage
	}
	if len(seen) != 9 {
		t.Errorf("chain visited %d stages, want 9", len(seen))
	}

	names := stageNames()
	if len(names) != 9 || !slices.IsSorted(names) {
		t.Errorf("stageNames() = %v", names)
	}
}

func TestMCDMExplanations(t *testing.T) {
	t.Parallel()

	for _, method := range []string{"asf", "pseudo_weights", "weighted_scores"} {
		e, ok := mcdmExplanations[method]
		if !ok {
			t.Errorf("missing explanation for %q", method)
			continue
		}
		if e["name"] == "" || e["description"] == "" {
			t.Errorf("%q explanation incomplete: %v", method, e)
		}
	}
}
