package engine

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
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	reg := rules.NewRegistry()
	require.NoError(t, reg.Freeze(nil))

	mmap := datastore.NewMMapBackend(t.TempDir())
	store, err := datastore.Open(context.Background(), datastore.Config{Backends: []datastore.Backend{mmap}})
	require.NoError(t, err)

	cfg := config.Default()
	cfg.Audit.Dir = ""
	e, err := New(cfg, reg, store, nil, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Stop() })
	return e
}

func TestNewRejectsUnfrozenRegistry(t *testing.T) {
	reg := rules.NewRegistry()
	_, err := New(config.Default(), reg, nil, nil, nil)
	assert.Error(t, err)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	reg := rules.NewRegistry()
	require.NoError(t, reg.Freeze(nil))
	bad := config.Default()
	bad.Coordinator.MinSuccessRatio = 5
	_, err := New(bad, reg, nil, nil, nil)
	assert.Error(t, err)
}

func TestStartStopIsIdempotent(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.Start(context.Background()))
	require.NoError(t, e.Start(context.Background()))
	require.NoError(t, e.Stop())
	require.NoError(t, e.Stop())
}

func TestSubmitRunAndGetResults(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.Start(context.Background()))

	planCfg := planner.Config{Variables: []string{"price"}, Start: 0, End: 2, Window: 1}
	exec := stubExecutor{}
	runID, err := e.SubmitRun(context.Background(), planCfg, exec)
	require.NoError(t, err)
	assert.NotEmpty(t, runID)

	summary, err := e.GetResults(context.Background(), runID)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Total)
	assert.Equal(t, 2, summary.Succeeded)
	assert.Equal(t, e.cfg, summary.Config)
	assert.Equal(t, 1, summary.Variables.Total) // one variable: "price"
	assert.GreaterOrEqual(t, summary.Performance.WallSeconds, 0.0)

	snap := e.Snapshot()
	assert.Equal(t, 1, snap.RunCount)
}

type stubExecutor struct{}

func (stubExecutor) Execute(context.Context, planner.TrainingBatch) (coordinator.TrainingResult, error) {
	return coordinator.TrainingResult{}, nil
}
