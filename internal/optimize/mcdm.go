package optimize

import (
	"errors"
	"math"
	"sort"
)

// ErrNoSolutions indicates an MCDM request with an empty candidate set.
var ErrNoSolutions = errors.New("no solutions to rank")

// highTradeoffThreshold marks solutions whose weighted score exceeds it as
// strong all-round performers worth highlighting in the UI.
const highTradeoffThreshold = 0.7

// Weights are the decision maker's objective preferences.
// Zero-value weights fall back to equal preference (0.25 each); otherwise
// they are normalized to sum to one.
type Weights struct {
	Energy  float64 `json:"energy"`
	Cost    float64 `json:"cost"`
	CO2     float64 `json:"co2"`
	Comfort float64 `json:"comfort"`
}

// Candidate is one solution submitted for ranking.
type Candidate struct {
	ID      string  `json:"id"`
	Energy  float64 `json:"energy"`
	Cost    float64 `json:"cost"`
	CO2     float64 `json:"co2"`
	Comfort float64 `json:"comfort"`
}

// Ranking is the scored, ordered result for one candidate.
type Ranking struct {
	ID            string  `json:"id"`
	WeightedScore float64 `json:"weighted_score"`
	ASFScore      float64 `json:"asf_score"`
	HighTradeoff  bool    `json:"is_high_tradeoff"`
	Rank          int     `json:"rank"`
}

// normalize returns weights scaled to sum to one, defaulting to equal
// preference when all weights are zero or negative.
func (w Weights) normalize() Weights {
	sum := w.Energy + w.Cost + w.CO2 + w.Comfort
	if sum <= 0 {
		return Weights{Energy: 0.25, Cost: 0.25, CO2: 0.25, Comfort: 0.25}
	}
	return Weights{
		Energy:  w.Energy / sum,
		Cost:    w.Cost / sum,
		CO2:     w.CO2 / sum,
		Comfort: w.Comfort / sum,
	}
}

// Rank scores candidates by weighted min-max normalized objectives and
// orders them best first.
//
// Energy, cost, and CO2 are minimized, so their normalized values are
// inverted; comfort is maximized and used directly. Ranges are clamped to a
// minimum of one unit so degenerate candidate sets don't divide by zero.
func Rank(cands []Candidate, w Weights) ([]Ranking, error) {
	if len(cands) == 0 {
		return nil, ErrNoSolutions
	}
	w = w.normalize()

	lo := Candidate{
		Energy:  math.Inf(1),
		Cost:    math.Inf(1),
		CO2:     math.Inf(1),
		Comfort: math.Inf(1),
	}
	hi := Candidate{
		Energy:  math.Inf(-1),
		Cost:    math.Inf(-1),
		CO2:     math.Inf(-1),
		Comfort: math.Inf(-1),
	}
	for _, c := range cands {
		lo.Energy = math.Min(lo.Energy, c.Energy)
		lo.Cost = math.Min(lo.Cost, c.Cost)
		lo.CO2 = math.Min(lo.CO2, c.CO2)
		lo.Comfort = math.Min(lo.Comfort, c.Comfort)
		hi.Energy = math.Max(hi.Energy, c.Energy)
		hi.Cost = math.Max(hi.Cost, c.Cost)
		hi.CO2 = math.Max(hi.CO2, c.CO2)
		hi.Comfort = math.Max(hi.Comfort, c.Comfort)
	}

	span := func(min, max float64) float64 {
		return math.Max(1, max-min)
	}

	rankings := make([]Ranking, len(cands))
	for i, c := range cands {
		energyNorm := 1 - (c.Energy-lo.Energy)/span(lo.Energy, hi.Energy)
		costNorm := 1 - (c.Cost-lo.Cost)/span(lo.Cost, hi.Cost)
		co2Norm := 1 - (c.CO2-lo.CO2)/span(lo.CO2, hi.CO2)
		comfortNorm := (c.Comfort - lo.Comfort) / span(lo.Comfort, hi.Comfort)

		score := w.Energy*energyNorm + w.Cost*costNorm + w.CO2*co2Norm + w.Comfort*comfortNorm

		rankings[i] = Ranking{
			ID:            c.ID,
			WeightedScore: score,
			ASFScore:      score,
			HighTradeoff:  score > highTradeoffThreshold,
		}
	}

	sort.SliceStable(rankings, func(i, j int) bool {
		return rankings[i].WeightedScore > rankings[j].WeightedScore
	})
	for i := range rankings {
		rankings[i].Rank = i + 1
	}
	return rankings, nil
}

// RankSolutions is a convenience wrapper that ranks Pareto solutions
// directly, mapping their predicted outputs onto MCDM candidates.
func RankSolutions(solutions []ParetoSolution, w Weights) ([]Ranking, error) {
	cands := make([]Candidate, len(solutions))
	for i, s := range solutions {
		cands[i] = Candidate{
			ID:      s.ID,
			Energy:  s.AnnualEnergyGJ,
			Cost:    s.TotalCostEUR,
			CO2:     s.TotalCO2Kg,
			Comfort: s.ComfortDays,
		}
	}
	return Rank(cands, w)
}
