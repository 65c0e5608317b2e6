package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"retrograde/config"
	"retrograde/coordinator"
	"retrograde/datastore"
	"retrograde/planner"
	"retrograde/rules"
	"retrograde/trust"
	"retrograde/worldstate"
)

func newTestStore(t *testing.T) *datastore.Store {
	t.Helper()
	mmap := datastore.NewMMapBackend(t.TempDir())
	store, err := datastore.Open(context.Background(), datastore.Config{Backends: []datastore.Backend{mmap}})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func priceUpRule() *rules.Rule {
	return &rules.Rule{
		ID:      "price-momentum",
		Trigger: func(w *worldstate.WorldState) bool { return w.GetVariable("price", 0) > 0 },
		Effects: []rules.Effect{{Target: rules.TargetVariable, Name: "price", Delta: 1}},
		Reads:   []string{"price"},
		Writes:  []string{"price"},
	}
}

func newTestRegistry(t *testing.T) *rules.Registry {
	t.Helper()
	reg := rules.NewRegistry()
	require.NoError(t, reg.Register(priceUpRule()))
	require.NoError(t, reg.Freeze([]string{"price"}))
	return reg
}

func TestConfigStageRejectsInvalidConfig(t *testing.T) {
	rc := &RunContext{Config: config.Config{}}
	rc.Config.Coordinator.MinSuccessRatio = 2 // invalid
	_, err := ConfigStage{}.Execute(context.Background(), rc)
	assert.Error(t, err)
}

func TestConfigStageAcceptsDefaults(t *testing.T) {
	rc := &RunContext{Config: config.Default()}
	_, err := ConfigStage{}.Execute(context.Background(), rc)
	assert.NoError(t, err)
}

func TestDataLoadStagePlansBatches(t *testing.T) {
	reg := newTestRegistry(t)
	rc := &RunContext{
		Config:     config.Default(),
		Tracker:    trust.NewTracker(0),
		PlanConfig: planner.Config{Variables: []string{"price"}, Start: 0, End: 10, Window: 5},
	}
	stage := DataLoadStage{Registry: reg}
	out, err := stage.Execute(context.Background(), rc)
	require.NoError(t, err)
	assert.Len(t, out.Batches, 2)
}

func TestTrainingStageRunsAllBatches(t *testing.T) {
	rc := &RunContext{
		Config: config.Default(),
		Batches: []planner.TrainingBatch{
			{ID: "b0", Variables: []string{"price"}, WindowStart: 0, WindowEnd: 1},
		},
		Executor: coordinator.BatchExecutor(stubExecutor{}),
	}
	out, err := TrainingStage{}.Execute(context.Background(), rc)
	require.NoError(t, err)
	require.NotNil(t, out.Summary)
	assert.Equal(t, 1, out.Summary.Succeeded)
}

type stubExecutor struct{}

func (stubExecutor) Execute(context.Context, planner.TrainingBatch) (coordinator.TrainingResult, error) {
	return coordinator.TrainingResult{}, nil
}

func TestEvaluationStageFailureDoesNotBlockResultsUpload(t *testing.T) {
	rc := &RunContext{
		Summary: &coordinator.RunSummary{Total: 1, Succeeded: 1},
	}
	runner := NewRunner(
		EvaluationStage{Evaluate: func(*RunContext) error { return assert.AnError }},
		ResultsUploadStage{Persist: func(*RunContext) (string, error) { return "file:///results.json", nil }},
	)
	out, err := runner.Run(context.Background(), rc)
	require.NoError(t, err)
	assert.Error(t, out.EvaluationErr)
	assert.Equal(t, "file:///results.json", out.ResultsURI)
}

func TestResultsUploadSkippedWhenTrainingNeverProducedSummary(t *testing.T) {
	var called bool
	runner := NewRunner(ResultsUploadStage{Persist: func(*RunContext) (string, error) {
		called = true
		return "", nil
	}})
	rc := &RunContext{}
	_, err := runner.Run(context.Background(), rc)
	require.NoError(t, err)
	assert.False(t, called)
}

func TestRunnerFullSequenceEndToEnd(t *testing.T) {
	reg := newTestRegistry(t)
	store := newTestStore(t)
	tracker := trust.NewTracker(0)

	ctx := context.Background()
	require.NoError(t, store.Store(ctx, "b0", &datastore.Block{
		DatasetID: "b0",
		Rows: []datastore.Row{
			{"price": 10},
			{"price": 11},
			{"price": 12},
		},
	}))

	rc := &RunContext{
		Config:     config.Default(),
		Store:      store,
		Tracker:    tracker,
		PlanConfig: planner.Config{Variables: []string{"price"}, Start: 0, End: 1, Window: 1},
	}
	trainer := &BatchTrainer{Store: store, Registry: reg, Tracker: tracker}
	rc.Executor = trainer

	runner := NewRunner(
		ConfigStage{},
		DataLoadStage{Registry: reg},
		overrideBatchIDStage{id: "b0"},
		TrainingStage{},
		ResultsUploadStage{Persist: func(rc *RunContext) (string, error) { return "file:///ok", nil }},
	)
	out, err := runner.Run(ctx, rc)
	require.NoError(t, err)
	require.NotNil(t, out.Summary)
	assert.Equal(t, 1, out.Summary.Succeeded)
	assert.Equal(t, "file:///ok", out.ResultsURI)
}

// overrideBatchIDStage rewrites the planned batch's id to match a
// dataset already staged in the store, since DataLoadStage plans ids
// from the (variables, window) content hash rather than a caller-chosen
// dataset key.
type overrideBatchIDStage struct{ id string }

func (overrideBatchIDStage) Name() string   { return "test_override" }
func (overrideBatchIDStage) Optional() bool { return false }
func (s overrideBatchIDStage) Execute(_ context.Context, rc *RunContext) (*RunContext, error) {
	for i := range rc.Batches {
		rc.Batches[i].ID = s.id
	}
	return rc, nil
}
