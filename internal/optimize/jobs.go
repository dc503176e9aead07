package optimize

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"

	"github.com/isabella-tue/retrofit/internal/log"
	"github.com/isabella-tue/retrofit/internal/retrofit"
)

// Job lifecycle states.
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Job records retention. Finished jobs stay queryable for a day.
const (
	jobTTL             = 24 * time.Hour
	jobCleanupInterval = 1 * time.Hour
)

// Request parameter limits.
const (
	MinPopSize     = 10
	MaxPopSize     = 200
	MinGenerations = 5
	MaxGenerations = 100
)

// Params configures one optimization run. Zero fields take the runner's
// configured defaults; out-of-range values are clamped.
type Params struct {
	PopSize     int     `json:"pop_size"`
	Generations int     `json:"n_generations"`
	TimeHorizon int     `json:"time_horizon"`
	Weights     Weights `json:"weights"`
}

// Result is the outcome of a completed optimization run.
type Result struct {
	Solutions      []ParetoSolution `json:"pareto_solutions"`
	Rankings       []Ranking        `json:"rankings"`
	TotalEvaluated int              `json:"total_evaluated"`
	RunTimeSeconds float64          `json:"run_time_seconds"`
}

// Job is the tracked state of a background optimization run.
type Job struct {
	ID          uuid.UUID  `json:"id"`
	Status      string     `json:"status"`
	Progress    float64    `json:"progress"` // 0..1, advances per generation
	Result      *Result    `json:"result,omitempty"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Runner executes optimization runs against the shared predictor and tracks
// background jobs in a TTL cache.
type Runner struct {
	predictor *retrofit.Predictor
	defaults  Params
	seed      uint64
	logger    log.Logger

	mu   sync.Mutex
	jobs *gocache.Cache
}

// NewRunner creates an optimization runner.
// defaults supplies the population size, generation count, and time horizon
// used when a request leaves them unset.
func NewRunner(predictor *retrofit.Predictor, defaults Params, seed uint64, logger log.Logger) *Runner {
	return &Runner{
		predictor: predictor,
		defaults:  defaults,
		seed:      seed,
		logger:    logger,
		jobs:      gocache.New(jobTTL, jobCleanupInterval),
	}
}

// applyDefaults fills unset parameters and clamps the rest into range.
func (r *Runner) applyDefaults(p Params) Params {
	if p.PopSize == 0 {
		p.PopSize = r.defaults.PopSize
	}
	if p.Generations == 0 {
		p.Generations = r.defaults.Generations
	}
	if p.TimeHorizon == 0 {
		p.TimeHorizon = 2020
	}
	p.PopSize = clampInt(p.PopSize, MinPopSize, MaxPopSize)
	p.Generations = clampInt(p.Generations, MinGenerations, MaxGenerations)
	return p
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Run executes an optimization synchronously.
func (r *Runner) Run(ctx context.Context, p Params) (*Result, error) {
	return r.run(ctx, r.applyDefaults(p), nil)
}

// StartJob launches an optimization in the background and returns its job ID
// immediately. The run is detached from the request context; runCtx bounds
// its lifetime (pass the application context so shutdown cancels it).
func (r *Runner) StartJob(runCtx context.Context, p Params) uuid.UUID {
	p = r.applyDefaults(p)

	job := &Job{
		ID:        uuid.New(),
		Status:    StatusPending,
		CreatedAt: time.Now(),
	}
	r.mu.Lock()
	r.jobs.SetDefault(job.ID.String(), job)
	r.mu.Unlock()

	go func() {
		r.setStatus(job.ID, func(j *Job) { j.Status = StatusRunning })

		result, err := r.run(runCtx, p, func(gen, total int) {
			r.setStatus(job.ID, func(j *Job) { j.Progress = float64(gen) / float64(total) })
		})

		now := time.Now()
		r.setStatus(job.ID, func(j *Job) {
			j.CompletedAt = &now
			if err != nil {
				j.Status = StatusFailed
				j.Error = err.Error()
				return
			}
			j.Status = StatusCompleted
			j.Progress = 1
			j.Result = result
		})

		if err != nil {
			r.logger.Warn("optimization job failed", "job_id", job.ID, "error", err)
		} else {
			r.logger.Info("optimization job completed",
				"job_id", job.ID, "solutions", len(result.Solutions))
		}
	}()

	return job.ID
}

// Job returns a snapshot of a tracked job.
func (r *Runner) Job(id uuid.UUID) (Job, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.jobs.Get(id.String())
	if !ok {
		return Job{}, false
	}
	return *v.(*Job), true
}

func (r *Runner) setStatus(id uuid.UUID, update func(*Job)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if v, ok := r.jobs.Get(id.String()); ok {
		update(v.(*Job))
	}
}

func (r *Runner) run(ctx context.Context, p Params, onGeneration func(gen, total int)) (*Result, error) {
	start := time.Now()

	nsga := &NSGAII{
		PopSize:      p.PopSize,
		Generations:  p.Generations,
		LowerBounds:  LowerBounds,
		UpperBounds:  UpperBounds,
		Evaluate:     RetrofitObjectives(r.predictor, p.TimeHorizon),
		Seed:         r.seed,
		OnGeneration: onGeneration,
	}

	front, err := nsga.Run(ctx)
	if err != nil {
		return nil, err
	}

	solutions := Front(front, p.TimeHorizon)
	rankings, err := RankSolutions(solutions, p.Weights)
	if err != nil {
		return nil, err
	}

	return &Result{
		Solutions:      solutions,
		Rankings:       rankings,
		TotalEvaluated: p.PopSize * p.Generations,
		RunTimeSeconds: time.Since(start).Seconds(),
	}, nil
}
