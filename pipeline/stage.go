// Package pipeline implements the Training Pipeline (spec C10): a small
// sequential orchestration — Config, DataLoad, Training, Evaluation,
// ResultsUpload — run as named Stage values over a shared RunContext.
// Unlike the teacher's concurrent worker Pipeline (packages/engine/
// pipeline), these stages are orchestration-level commands, not per-item
// workers: the concurrency the teacher gets from fan-out/fan-in worker
// goroutines lives one level down here, inside the Training stage's call
// into coordinator.Coordinator.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"retrograde/config"
	"retrograde/coordinator"
	"retrograde/datastore"
	"retrograde/planner"
	"retrograde/trust"
)

// RunContext carries everything a stage needs and everything a later
// stage might need from an earlier one — directly analogous to the
// teacher's Pipeline struct fields, just threaded explicitly through
// Execute instead of held as shared mutable state on a worker pool.
type RunContext struct {
	Config   config.Config
	Store    *datastore.Store
	Tracker  *trust.Tracker
	Executor coordinator.BatchExecutor

	PlanConfig planner.Config
	Batches    []planner.TrainingBatch
	Summary    *coordinator.RunSummary

	StartedAt  time.Time
	StageTimes map[string]time.Duration

	EvaluationErr error // recorded, never fatal to ResultsUpload
	ResultsURI    string
}

// Stage is one named step of the pipeline.
type Stage interface {
	Name() string
	Execute(ctx context.Context, rc *RunContext) (*RunContext, error)
	// Optional stages never abort the run on error; their failure is
	// recorded on RunContext and the next stage still runs.
	Optional() bool
}

// Runner executes a fixed sequence of stages over one RunContext,
// short-circuiting on the first non-optional stage's error, except that
// ResultsUpload always runs if Training succeeded, per spec §4.10 — a
// run with no persisted results because evaluation happened to fail
// would silently discard real training work.
type Runner struct {
	stages []Stage
}

func NewRunner(stages ...Stage) *Runner {
	return &Runner{stages: stages}
}

// Run executes every configured stage in order against rc, returning the
// final RunContext and the first fatal error encountered (if any).
func (r *Runner) Run(ctx context.Context, rc *RunContext) (*RunContext, error) {
	rc.StartedAt = timeNow()
	if rc.StageTimes == nil {
		rc.StageTimes = make(map[string]time.Duration)
	}

	var trainingFailed bool
	for _, stage := range r.stages {
		if trainingFailed && stage.Name() != stageResultsUpload {
			continue
		}

		stageStart := timeNow()
		next, err := stage.Execute(ctx, rc)
		rc.StageTimes[stage.Name()] = timeNow().Sub(stageStart)
		if next != nil {
			rc = next
		}

		if err != nil {
			if stage.Optional() {
				rc.EvaluationErr = err
				continue
			}
			if stage.Name() == stageTraining {
				trainingFailed = true
				continue
			}
			return rc, fmt.Errorf("pipeline: stage %s: %w", stage.Name(), err)
		}
	}
	if trainingFailed {
		return rc, fmt.Errorf("pipeline: stage %s failed", stageTraining)
	}
	return rc, nil
}

const (
	stageConfig        = "config"
	stageDataLoad      = "data_load"
	stageTraining      = "training"
	stageEvaluation    = "evaluation"
	stageResultsUpload = "results_upload"
)

// timeNow is the single indirection point for wall-clock reads so stage
// timing stays easy to stub in tests without faking a clock interface
// throughout the package.
var timeNow = time.Now
