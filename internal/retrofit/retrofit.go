// Package retrofit models building-retrofit scenarios: design variables,
// predicted outcomes, and the component cost/CO2 functions.
//
// Predictions come from a multi-task surrogate network when exported weights
// are available, with a calibrated analytic model as fallback.
package retrofit

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidVariables indicates a design variable is out of its physical range.
var ErrInvalidVariables = errors.New("invalid design variables")

// Validation ranges for design variables.
const (
	MinTimeHorizon = 2020
	MaxTimeHorizon = 2100

	MinWindowU = 0.5
	MaxWindowU = 3.0

	MinFloorR = 0.3
	MaxFloorR = 6.0

	MinWallR = 0.3
	MaxWallR = 7.0

	MinRoofR = 0.3
	MaxRoofR = 9.0
)

// DesignVariables describes one retrofit scenario.
// Thermal resistances are R-values in m2K/W; the window U-factor is in W/m2K.
type DesignVariables struct {
	TimeHorizon int     `json:"time_horizon"`
	WindowU     float64 `json:"windows_U_Factor"`
	FloorR      float64 `json:"groundfloor_thermal_resistance"`
	WallR       float64 `json:"ext_walls_thermal_resistance"`
	RoofR       float64 `json:"roof_thermal_resistance"`
}

// Outputs holds the four predicted targets for a retrofit scenario.
type Outputs struct {
	AnnualEnergyGJ float64 `json:"annual_energy_GJ"`
	TotalCostEUR   float64 `json:"total_cost_EUR"`
	TotalCO2Kg     float64 `json:"total_co2_kg"`
	ComfortDays    float64 `json:"comfort_days"`
}

// Validate checks all design variables against their allowed ranges.
// Returns ErrInvalidVariables wrapped with the offending field.
func (dv DesignVariables) Validate() error {
	if dv.TimeHorizon < MinTimeHorizon || dv.TimeHorizon > MaxTimeHorizon {
		return fmt.Errorf("%w: time_horizon %d (expected %d..%d)",
			ErrInvalidVariables, dv.TimeHorizon, MinTimeHorizon, MaxTimeHorizon)
	}
	for _, f := range []struct {
		name     string
		val      float64
		min, max float64
	}{
		{"windows_U_Factor", dv.WindowU, MinWindowU, MaxWindowU},
		{"groundfloor_thermal_resistance", dv.FloorR, MinFloorR, MaxFloorR},
		{"ext_walls_thermal_resistance", dv.WallR, MinWallR, MaxWallR},
		{"roof_thermal_resistance", dv.RoofR, MinRoofR, MaxRoofR},
	} {
		if math.IsNaN(f.val) || math.IsInf(f.val, 0) {
			return fmt.Errorf("%w: %s is not finite", ErrInvalidVariables, f.name)
		}
		if f.val < f.min || f.val > f.max {
			return fmt.Errorf("%w: %s %.3f (expected %.2f..%.2f)",
				ErrInvalidVariables, f.name, f.val, f.min, f.max)
		}
	}
	return nil
}

// Features returns the 5-feature input vector for the surrogate model,
// in the order the network was trained on.
func (dv DesignVariables) Features() []float64 {
	return []float64{
		float64(dv.TimeHorizon),
		dv.WindowU,
		dv.FloorR,
		dv.WallR,
		dv.RoofR,
	}
}
