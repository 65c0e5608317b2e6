package pipeline

import (
	"context"
	"fmt"

	"retrograde/curriculum"
	"retrograde/planner"
	"retrograde/rules"
)

// ConfigStage validates the resolved configuration before anything else
// runs, so a malformed run fails before a single dataset is touched.
type ConfigStage struct{}

func (ConfigStage) Name() string     { return stageConfig }
func (ConfigStage) Optional() bool   { return false }
func (ConfigStage) Execute(_ context.Context, rc *RunContext) (*RunContext, error) {
	if err := rc.Config.Validate(); err != nil {
		return rc, fmt.Errorf("invalid config: %w", err)
	}
	return rc, nil
}

// DataLoadStage plans the batch list for the configured variable/time
// range and, when curriculum is enabled, reweighs it by trust
// uncertainty and under-sampling before training sees it.
type DataLoadStage struct {
	Registry *rules.Registry
}

func (DataLoadStage) Name() string   { return stageDataLoad }
func (DataLoadStage) Optional() bool { return false }

func (s DataLoadStage) Execute(_ context.Context, rc *RunContext) (*RunContext, error) {
	batches, err := planner.Plan(rc.PlanConfig)
	if err != nil {
		return rc, fmt.Errorf("planning batches: %w", err)
	}

	if rc.Config.Curriculum.Enabled && s.Registry != nil {
		batches = curriculum.Weigh(batches, curriculum.Weigher{
			ReadSets: s.Registry.ReadSets(),
			Tracker:  rc.Tracker,
		})
	}

	rc.Batches = batches
	return rc, nil
}

// TrainingStage hands the planned batches to the coordinator and blocks
// until the run finishes, is cancelled, or aborts on the success-ratio
// floor. A non-ErrRunAborted error here is treated as a hard pipeline
// failure; an abort still leaves rc.Summary populated, so downstream
// stages can still persist partial results.
type TrainingStage struct{}

func (TrainingStage) Name() string   { return stageTraining }
func (TrainingStage) Optional() bool { return false }

func (TrainingStage) Execute(ctx context.Context, rc *RunContext) (*RunContext, error) {
	co := newCoordinator(rc.Config)
	summary, err := co.Run(ctx, rc.Batches, rc.Executor)
	rc.Summary = summary
	EnrichSummary(summary, rc.Config, rc.Tracker)
	if err != nil && summary == nil {
		return rc, fmt.Errorf("running batches: %w", err)
	}
	return rc, nil
}

// EvaluationStage computes post-run diagnostics over rc.Summary. It is
// Optional: a failure here (e.g. a diagnostic that needs a dataset the
// store no longer has) never blocks ResultsUpload, per spec §4.10.
type EvaluationStage struct {
	Evaluate func(*RunContext) error
}

func (EvaluationStage) Name() string { return stageEvaluation }
func (EvaluationStage) Optional() bool { return true }

func (s EvaluationStage) Execute(_ context.Context, rc *RunContext) (*RunContext, error) {
	if s.Evaluate == nil {
		return rc, nil
	}
	if err := s.Evaluate(rc); err != nil {
		return rc, fmt.Errorf("evaluation: %w", err)
	}
	return rc, nil
}

// ResultsUploadStage persists rc.Summary via an injected Persister.
// Upload is never skipped just because evaluation failed — only a
// failed Training stage (rc.Summary == nil) skips it.
type ResultsUploadStage struct {
	Persist func(*RunContext) (string, error)
}

func (ResultsUploadStage) Name() string   { return stageResultsUpload }
func (ResultsUploadStage) Optional() bool { return false }

func (s ResultsUploadStage) Execute(_ context.Context, rc *RunContext) (*RunContext, error) {
	if rc.Summary == nil {
		return rc, nil
	}
	if s.Persist == nil {
		return rc, nil
	}
	uri, err := s.Persist(rc)
	if err != nil {
		return rc, fmt.Errorf("persisting results: %w", err)
	}
	rc.ResultsURI = uri
	return rc, nil
}
