package optimize

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDominates(t *testing.T) {
	a := Individual{Objectives: []float64{1, 1}}
	b := Individual{Objectives: []float64{2, 2}}
	c := Individual{Objectives: []float64{0.5, 3}}

	assert.True(t, dominates(a, b))
	assert.False(t, dominates(b, a))
	// Trade-off: neither dominates
	assert.False(t, dominates(a, c))
	assert.False(t, dominates(c, a))
	// Equal objectives never dominate
	assert.False(t, dominates(a, Individual{Objectives: []float64{1, 1}}))
}

func TestNonDominatedSort(t *testing.T) {
	pop := []Individual{
		{Objectives: []float64{1, 5}}, // front 0
		{Objectives: []float64{5, 1}}, // front 0
		{Objectives: []float64{3, 3}}, // front 0
		{Objectives: []float64{4, 4}}, // dominated by {3,3}
		{Objectives: []float64{6, 6}}, // dominated by {4,4} too
	}

	fronts := nonDominatedSort(pop)
	require.Len(t, fronts, 3)
	assert.Len(t, fronts[0], 3)
	assert.Len(t, fronts[1], 1)
	assert.Len(t, fronts[2], 1)
	assert.Equal(t, []float64{4, 4}, fronts[1][0].Objectives)
}

func TestCrowdingDistanceBoundaries(t *testing.T) {
	front := []Individual{
		{Objectives: []float64{1, 4}},
		{Objectives: []float64{2, 3}},
		{Objectives: []float64{3, 2}},
		{Objectives: []float64{4, 1}},
	}
	crowdingDistance(front)

	// Extremes are always preserved
	assert.True(t, math.IsInf(front[0].distance, 1))
	assert.True(t, math.IsInf(front[3].distance, 1))
	// Interior points get finite spread measures
	assert.False(t, math.IsInf(front[1].distance, 1))
	assert.Greater(t, front[1].distance, 0.0)
}

// schaffer builds the classic two-objective Schaffer N.1 problem,
// whose true Pareto set is x in [0, 2].
func schaffer() *NSGAII {
	return &NSGAII{
		PopSize:     40,
		Generations: 50,
		LowerBounds: []float64{-5},
		UpperBounds: []float64{5},
		Evaluate: func(vars []float64) []float64 {
			x := vars[0]
			return []float64{x * x, (x - 2) * (x - 2)}
		},
		Seed: 42,
	}
}

func TestNSGAIIConvergesOnSchaffer(t *testing.T) {
	front, err := schaffer().Run(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, front)

	for _, ind := range front {
		assert.InDelta(t, 1.0, ind.Variables[0], 1.2,
			"front member x=%v outside the Pareto set", ind.Variables[0])
	}

	// The front itself must be mutually non-dominated.
	for i := range front {
		for j := range front {
			if i != j {
				assert.False(t, dominates(front[i], front[j]))
			}
		}
	}
}

func TestNSGAIIDeterministic(t *testing.T) {
	front1, err := schaffer().Run(context.Background())
	require.NoError(t, err)
	front2, err := schaffer().Run(context.Background())
	require.NoError(t, err)

	require.Equal(t, len(front1), len(front2))
	for i := range front1 {
		assert.Equal(t, front1[i].Variables, front2[i].Variables)
	}
}

func TestNSGAIIRespectsBounds(t *testing.T) {
	front, err := schaffer().Run(context.Background())
	require.NoError(t, err)
	for _, ind := range front {
		assert.GreaterOrEqual(t, ind.Variables[0], -5.0)
		assert.LessOrEqual(t, ind.Variables[0], 5.0)
	}
}

func TestNSGAIICancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := schaffer().Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestNSGAIIProgressCallback(t *testing.T) {
	n := schaffer()
	n.Generations = 7

	var calls int
	n.OnGeneration = func(gen, total int) {
		calls++
		assert.Equal(t, 7, total)
		assert.Equal(t, calls, gen)
	}

	_, err := n.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, calls)
}

func TestNSGAIIValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*NSGAII)
	}{
		{"tiny population", func(n *NSGAII) { n.PopSize = 2 }},
		{"zero generations", func(n *NSGAII) { n.Generations = 0 }},
		{"mismatched bounds", func(n *NSGAII) { n.UpperBounds = []float64{1, 2} }},
		{"inverted bounds", func(n *NSGAII) { n.LowerBounds = []float64{9} }},
		{"nil evaluator", func(n *NSGAII) { n.Evaluate = nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := schaffer()
			tt.mutate(n)
			_, err := n.Run(context.Background())
			assert.Error(t, err)
		})
	}
}
