// Package optimize implements the NSGA-II multi-objective optimizer used to
// search the retrofit design space, MCDM ranking of the resulting Pareto
// front, and background job tracking for long runs.
package optimize

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sort"
)

// Evaluator computes all objective values for one candidate.
// All objectives are minimized; callers negate maximized quantities.
type Evaluator func(vars []float64) []float64

// Individual is one candidate solution in the population.
type Individual struct {
	Variables  []float64
	Objectives []float64

	rank     int
	distance float64
}

// Default genetic operator rates (SBX crossover, polynomial mutation).
const (
	defaultCrossoverRate = 0.9
	sbxEta               = 3.0
)

// NSGAII runs Non-dominated Sorting Genetic Algorithm II over a real-valued
// search space. Runs are deterministic for a fixed Seed.
type NSGAII struct {
	PopSize     int
	Generations int

	LowerBounds []float64
	UpperBounds []float64

	Evaluate Evaluator

	// CrossoverRate defaults to 0.9; MutationRate defaults to 1/len(bounds).
	CrossoverRate float64
	MutationRate  float64

	Seed uint64

	// OnGeneration, when set, is called after each completed generation.
	OnGeneration func(gen, total int)
}

func (n *NSGAII) validate() error {
	if n.PopSize < 4 {
		return fmt.Errorf("population size %d too small", n.PopSize)
	}
	if n.Generations < 1 {
		return fmt.Errorf("generation count %d too small", n.Generations)
	}
	if len(n.LowerBounds) == 0 || len(n.LowerBounds) != len(n.UpperBounds) {
		return errors.New("bounds are empty or mismatched")
	}
	for i := range n.LowerBounds {
		if n.LowerBounds[i] >= n.UpperBounds[i] {
			return fmt.Errorf("bounds inverted at variable %d", i)
		}
	}
	if n.Evaluate == nil {
		return errors.New("evaluator is nil")
	}
	return nil
}

// Run executes the algorithm and returns the first non-dominated front of
// the final population. Cancellation is checked once per generation.
func (n *NSGAII) Run(ctx context.Context) ([]Individual, error) {
	if err := n.validate(); err != nil {
		return nil, fmt.Errorf("nsga2: %w", err)
	}

	crossoverRate := n.CrossoverRate
	if crossoverRate == 0 {
		crossoverRate = defaultCrossoverRate
	}
	mutationRate := n.MutationRate
	if mutationRate == 0 {
		mutationRate = 1.0 / float64(len(n.LowerBounds))
	}

	rng := rand.New(rand.NewPCG(n.Seed, n.Seed))

	pop := n.initialize(rng)
	for i := range pop {
		pop[i].Objectives = n.Evaluate(pop[i].Variables)
	}

	for gen := 0; gen < n.Generations; gen++ {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("nsga2: %w", ctx.Err())
		default:
		}

		offspring := n.makeOffspring(rng, pop, crossoverRate, mutationRate)
		for i := range offspring {
			offspring[i].Objectives = n.Evaluate(offspring[i].Variables)
		}

		// Environmental selection over parents + offspring
		combined := append(pop, offspring...)
		fronts := nonDominatedSort(combined)

		next := make([]Individual, 0, n.PopSize)
		for _, front := range fronts {
			crowdingDistance(front)
			if len(next)+len(front) <= n.PopSize {
				next = append(next, front...)
				continue
			}
			// Partial front: keep the most spread-out individuals
			sort.Slice(front, func(i, j int) bool {
				return front[i].distance > front[j].distance
			})
			next = append(next, front[:n.PopSize-len(next)]...)
			break
		}
		pop = next

		if n.OnGeneration != nil {
			n.OnGeneration(gen+1, n.Generations)
		}
	}

	return nonDominatedSort(pop)[0], nil
}

// initialize samples the starting population uniformly inside the bounds.
func (n *NSGAII) initialize(rng *rand.Rand) []Individual {
	nvars := len(n.LowerBounds)
	pop := make([]Individual, n.PopSize)
	for i := range pop {
		vars := make([]float64, nvars)
		for j := range vars {
			vars[j] = n.LowerBounds[j] + rng.Float64()*(n.UpperBounds[j]-n.LowerBounds[j])
		}
		pop[i] = Individual{Variables: vars}
	}
	return pop
}

// makeOffspring produces PopSize children via binary tournament selection,
// SBX crossover, and polynomial mutation.
func (n *NSGAII) makeOffspring(rng *rand.Rand, pop []Individual, crossoverRate, mutationRate float64) []Individual {
	offspring := make([]Individual, 0, n.PopSize)
	for len(offspring) < n.PopSize {
		p1 := tournamentSelect(rng, pop)
		p2 := tournamentSelect(rng, pop)

		c1, c2 := n.crossover(rng, p1, p2, crossoverRate)
		n.mutate(rng, &c1, mutationRate)
		n.mutate(rng, &c2, mutationRate)

		offspring = append(offspring, c1)
		if len(offspring) < n.PopSize {
			offspring = append(offspring, c2)
		}
	}
	return offspring
}

// tournamentSelect picks the better of two random individuals.
// Lower rank wins; ties break on crowding distance.
func tournamentSelect(rng *rand.Rand, pop []Individual) Individual {
	a := pop[rng.IntN(len(pop))]
	b := pop[rng.IntN(len(pop))]
	if a.rank < b.rank || (a.rank == b.rank && a.distance > b.distance) {
		return a
	}
	return b
}

// crossover performs simulated binary crossover (SBX) on a parent pair.
func (n *NSGAII) crossover(rng *rand.Rand, p1, p2 Individual, rate float64) (Individual, Individual) {
	nvars := len(p1.Variables)
	c1 := Individual{Variables: make([]float64, nvars)}
	c2 := Individual{Variables: make([]float64, nvars)}

	if rng.Float64() >= rate {
		copy(c1.Variables, p1.Variables)
		copy(c2.Variables, p2.Variables)
		return c1, c2
	}

	for i := 0; i < nvars; i++ {
		var beta float64
		if u := rng.Float64(); u <= 0.5 {
			beta = math.Pow(2*u, 1.0/sbxEta)
		} else {
			beta = math.Pow(1.0/(2*(1.0-u)), 1.0/sbxEta)
		}

		c1.Variables[i] = 0.5 * ((1+beta)*p1.Variables[i] + (1-beta)*p2.Variables[i])
		c2.Variables[i] = 0.5 * ((1-beta)*p1.Variables[i] + (1+beta)*p2.Variables[i])

		c1.Variables[i] = n.clamp(i, c1.Variables[i])
		c2.Variables[i] = n.clamp(i, c2.Variables[i])
	}
	return c1, c2
}

// mutate applies polynomial mutation to each variable with probability rate.
func (n *NSGAII) mutate(rng *rand.Rand, ind *Individual, rate float64) {
	for i := range ind.Variables {
		if rng.Float64() >= rate {
			continue
		}
		var delta float64
		if u := rng.Float64(); u <= 0.5 {
			delta = math.Pow(2*u, 1.0/sbxEta) - 1
		} else {
			delta = 1 - math.Pow(2*(1-u), 1.0/sbxEta)
		}
		ind.Variables[i] += delta * (n.UpperBounds[i] - n.LowerBounds[i])
		ind.Variables[i] = n.clamp(i, ind.Variables[i])
	}
}

func (n *NSGAII) clamp(i int, v float64) float64 {
	return math.Max(n.LowerBounds[i], math.Min(n.UpperBounds[i], v))
}

// dominates reports whether a Pareto-dominates b (all objectives minimized).
func dominates(a, b Individual) bool {
	better := false
	for i := range a.Objectives {
		if a.Objectives[i] > b.Objectives[i] {
			return false
		}
		if a.Objectives[i] < b.Objectives[i] {
			better = true
		}
	}
	return better
}

// nonDominatedSort partitions the population into Pareto fronts.
// Front 0 is the non-dominated set; each later front is dominated only by
// earlier ones. Ranks are written back into the individuals.
func nonDominatedSort(pop []Individual) [][]Individual {
	dominated := make([][]int, len(pop))
	domCount := make([]int, len(pop))

	for i := range pop {
		for j := range pop {
			if i == j {
				continue
			}
			if dominates(pop[i], pop[j]) {
				dominated[i] = append(dominated[i], j)
			} else if dominates(pop[j], pop[i]) {
				domCount[i]++
			}
		}
	}

	var fronts [][]Individual
	var currentIdx []int
	for i := range pop {
		if domCount[i] == 0 {
			pop[i].rank = 0
			currentIdx = append(currentIdx, i)
		}
	}

	for frontIdx := 0; len(currentIdx) > 0; frontIdx++ {
		front := make([]Individual, 0, len(currentIdx))
		var nextIdx []int
		for _, idx := range currentIdx {
			front = append(front, pop[idx])
			for _, d := range dominated[idx] {
				domCount[d]--
				if domCount[d] == 0 {
					pop[d].rank = frontIdx + 1
					nextIdx = append(nextIdx, d)
				}
			}
		}
		fronts = append(fronts, front)
		currentIdx = nextIdx
	}

	return fronts
}

// crowdingDistance assigns the NSGA-II crowding measure within one front.
// Boundary individuals get +Inf so they always survive truncation.
func crowdingDistance(front []Individual) {
	n := len(front)
	if n == 0 {
		return
	}
	for i := range front {
		front[i].distance = 0
	}
	if n <= 2 {
		for i := range front {
			front[i].distance = math.Inf(1)
		}
		return
	}

	nobjs := len(front[0].Objectives)
	idx := make([]int, n)

	for m := 0; m < nobjs; m++ {
		for i := range idx {
			idx[i] = i
		}
		sort.Slice(idx, func(a, b int) bool {
			return front[idx[a]].Objectives[m] < front[idx[b]].Objectives[m]
		})

		front[idx[0]].distance = math.Inf(1)
		front[idx[n-1]].distance = math.Inf(1)

		span := front[idx[n-1]].Objectives[m] - front[idx[0]].Objectives[m]
		if span == 0 {
			continue
		}
		for i := 1; i < n-1; i++ {
			front[idx[i]].distance += (front[idx[i+1]].Objectives[m] - front[idx[i-1]].Objectives[m]) / span
		}
	}
}
