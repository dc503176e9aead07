package retrofit

import "math"

// Analytic fallback model. Calibrated against the simulated training set:
// a pre-war Dutch row house consumes roughly 50 GJ/year unretrofitted, and
// full envelope insulation recovers about 30 GJ of that.
const (
	baseEnergyGJ = 50.0
	minEnergyGJ  = 10.0

	baseComfortDays = 200.0
)

// energyReduction estimates the annual energy saving in GJ for the given
// envelope upgrade. Each component contributes proportionally to how far its
// insulation value sits inside the retrofit range, weighted by its share of
// envelope losses (windows 10, walls 8, roof 7, floor 5).
func energyReduction(dv DesignVariables) float64 {
	return (2.9-dv.WindowU)/2.1*10 +
		(dv.FloorR-0.41)/5.19*5 +
		(dv.WallR-0.45)/6.25*8 +
		(dv.RoofR-0.48)/8.22*7
}

// PredictAnalytic estimates retrofit outcomes without the surrogate network.
func PredictAnalytic(dv DesignVariables) Outputs {
	reduction := energyReduction(dv)
	return Outputs{
		AnnualEnergyGJ: math.Max(minEnergyGJ, baseEnergyGJ-reduction),
		TotalCostEUR:   Cost(dv),
		TotalCO2Kg:     CO2(dv),
		ComfortDays:    baseComfortDays + reduction*2,
	}
}

// Cost computes the retrofit investment in EUR per m2 of floor area.
// Windows are priced per glazing class; insulation components scale
// linearly with achieved R-value, capped at the full-retrofit price.
func Cost(dv DesignVariables) float64 {
	var cost float64

	switch {
	case dv.WindowU <= 0.85: // triple glazing
		cost += 622
	case dv.WindowU <= 1.25: // HR++ double glazing
		cost += 350
	}

	if dv.FloorR > 0.5 {
		cost += math.Min(108, (dv.FloorR-0.41)/(5.6-0.41)*108)
	}
	if dv.WallR > 0.5 {
		cost += math.Min(222, (dv.WallR-0.45)/(6.7-0.45)*222)
	}
	if dv.RoofR > 0.5 {
		cost += math.Min(139, (dv.RoofR-0.48)/(8.7-0.48)*139)
	}

	return cost
}

// CO2 computes the embodied emissions of the retrofit in kg per m2,
// mirroring the cost structure.
func CO2(dv DesignVariables) float64 {
	var co2 float64

	switch {
	case dv.WindowU <= 0.85:
		co2 += 150
	case dv.WindowU <= 1.25:
		co2 += 75
	}

	if dv.FloorR > 0.5 {
		co2 += math.Min(11, (dv.FloorR-0.41)/(5.6-0.41)*11)
	}
	if dv.WallR > 0.5 {
		co2 += math.Min(17, (dv.WallR-0.45)/(6.7-0.45)*17)
	}
	if dv.RoofR > 0.5 {
		co2 += math.Min(23, (dv.RoofR-0.48)/(8.7-0.48)*23)
	}

	return co2
}
