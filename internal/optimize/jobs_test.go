package optimize

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/isabella-tue/retrofit/internal/log"
	"github.com/isabella-tue/retrofit/internal/retrofit"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestRunner() *Runner {
	predictor := retrofit.NewPredictor("", log.NewNop())
	defaults := Params{PopSize: 20, Generations: 5, TimeHorizon: 2020}
	return NewRunner(predictor, defaults, 42, log.NewNop())
}

func TestRunSync(t *testing.T) {
	r := newTestRunner()

	result, err := r.Run(context.Background(), Params{})
	require.NoError(t, err)
	require.NotEmpty(t, result.Solutions)

	assert.Equal(t, 20*5, result.TotalEvaluated)
	assert.Len(t, result.Rankings, len(result.Solutions))

	for _, s := range result.Solutions {
		assert.GreaterOrEqual(t, s.WindowU, LowerBounds[0])
		assert.LessOrEqual(t, s.WindowU, UpperBounds[0])
		assert.GreaterOrEqual(t, s.RoofR, LowerBounds[3])
		assert.LessOrEqual(t, s.RoofR, UpperBounds[3])
		assert.Equal(t, 2020, s.TimeHorizon)
		// Comfort was negated for minimization and must come back positive.
		assert.Greater(t, s.ComfortDays, 0.0)
	}
}

func TestRunAppliesDefaultsAndClamps(t *testing.T) {
	r := newTestRunner()

	result, err := r.Run(context.Background(), Params{PopSize: 1, Generations: 1000, TimeHorizon: 2050})
	require.NoError(t, err)

	// PopSize clamped up to 10, generations down to 100.
	assert.Equal(t, MinPopSize*MaxGenerations, result.TotalEvaluated)
	assert.Equal(t, 2050, result.Solutions[0].TimeHorizon)
}

func TestStartJobCompletes(t *testing.T) {
	r := newTestRunner()

	id := r.StartJob(context.Background(), Params{PopSize: 10, Generations: 5})

	require.Eventually(t, func() bool {
		job, ok := r.Job(id)
		return ok && job.Status == StatusCompleted
	}, 10*time.Second, 10*time.Millisecond)

	job, ok := r.Job(id)
	require.True(t, ok)
	assert.Equal(t, 1.0, job.Progress)
	require.NotNil(t, job.Result)
	assert.NotEmpty(t, job.Result.Solutions)
	require.NotNil(t, job.CompletedAt)
}

func TestStartJobCanceled(t *testing.T) {
	r := newTestRunner()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	id := r.StartJob(ctx, Params{PopSize: 10, Generations: 100})

	require.Eventually(t, func() bool {
		job, ok := r.Job(id)
		return ok && job.Status == StatusFailed
	}, 10*time.Second, 10*time.Millisecond)

	job, _ := r.Job(id)
	assert.Contains(t, job.Error, "context canceled")
}

func TestJobNotFound(t *testing.T) {
	r := newTestRunner()
	_, ok := r.Job(uuid.New())
	assert.False(t, ok)
}

func TestRetrofitObjectivesNegatesComfort(t *testing.T) {
	predictor := retrofit.NewPredictor("", log.NewNop())
	eval := RetrofitObjectives(predictor, 2020)

	// Baseline scenario: 50 GJ, zero cost, comfort 200.
	objs := eval([]float64{2.9, 0.41, 0.45, 0.48})
	require.Len(t, objs, 4)
	assert.InDelta(t, 50, objs[0], 1e-9)
	assert.InDelta(t, 0, objs[1], 1e-9)
	assert.InDelta(t, 0, objs[2], 1e-9)
	assert.InDelta(t, -200, objs[3], 1e-9)
}
