package optimize

import (
	"fmt"

	"github.com/isabella-tue/retrofit/internal/retrofit"
)

// Search bounds for the four envelope variables: window U-factor, ground
// floor R, external wall R, roof R. Narrower than the validation ranges;
// values outside these bounds are buildable but never cost-effective.
var (
	LowerBounds = []float64{0.8, 0.41, 0.45, 0.48}
	UpperBounds = []float64{2.9, 5.6, 6.7, 8.7}
)

// ParetoSolution is one non-dominated retrofit design with its predicted
// outcomes, in the shape the API and the chat tools serve.
type ParetoSolution struct {
	ID          string  `json:"id"`
	TimeHorizon int     `json:"time_horizon"`
	WindowU     float64 `json:"windows_U_Factor"`
	FloorR      float64 `json:"groundfloor_thermal_resistance"`
	WallR       float64 `json:"ext_walls_thermal_resistance"`
	RoofR       float64 `json:"roof_thermal_resistance"`

	AnnualEnergyGJ float64 `json:"annual_energy_GJ"`
	TotalCostEUR   float64 `json:"total_cost_EUR"`
	TotalCO2Kg     float64 `json:"total_co2_kg"`
	ComfortDays    float64 `json:"comfort_days"`
}

// RetrofitObjectives builds the evaluator for the retrofit problem.
// Objectives are [energy, cost, CO2, -comfort]; comfort is negated so all
// four are minimized, and negated back when the front is extracted.
func RetrofitObjectives(p *retrofit.Predictor, timeHorizon int) Evaluator {
	return func(vars []float64) []float64 {
		out := p.Evaluate(retrofit.DesignVariables{
			TimeHorizon: timeHorizon,
			WindowU:     vars[0],
			FloorR:      vars[1],
			WallR:       vars[2],
			RoofR:       vars[3],
		})
		return []float64{out.AnnualEnergyGJ, out.TotalCostEUR, out.TotalCO2Kg, -out.ComfortDays}
	}
}

// Front converts a non-dominated population into Pareto solutions.
func Front(front []Individual, timeHorizon int) []ParetoSolution {
	solutions := make([]ParetoSolution, len(front))
	for i, ind := range front {
		solutions[i] = ParetoSolution{
			ID:             fmt.Sprintf("opt_%d", i),
			TimeHorizon:    timeHorizon,
			WindowU:        ind.Variables[0],
			FloorR:         ind.Variables[1],
			WallR:          ind.Variables[2],
			RoofR:          ind.Variables[3],
			AnnualEnergyGJ: ind.Objectives[0],
			TotalCostEUR:   ind.Objectives[1],
			TotalCO2Kg:     ind.Objectives[2],
			ComfortDays:    -ind.Objectives[3],
		}
	}
	return solutions
}
