package pipeline

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"retrograde/audit"
	"retrograde/datastore"
	"retrograde/planner"
	"retrograde/trust"
	"retrograde/turn"
)

func stageRows(t *testing.T, store *datastore.Store, batchID string, rows ...datastore.Row) {
	t.Helper()
	require.NoError(t, store.Store(context.Background(), batchID, &datastore.Block{
		DatasetID: batchID,
		Rows:      rows,
	}))
}

func TestBatchTrainerChecksContextBeforeEveryTurn(t *testing.T) {
	store := newTestStore(t)
	reg := newTestRegistry(t)
	stageRows(t, store, "b0",
		datastore.Row{"price": 10},
		datastore.Row{"price": 11},
		datastore.Row{"price": 12},
	)

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // cancelled before the first turn ever runs

	trainer := &BatchTrainer{Store: store, Registry: reg, Tracker: trust.NewTracker(0)}
	_, err := trainer.Execute(ctx, planner.TrainingBatch{ID: "b0", Variables: []string{"price"}, WindowStart: 0, WindowEnd: 1})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBatchTrainerAppendsOneAuditEntryPerTurn(t *testing.T) {
	store := newTestStore(t)
	reg := newTestRegistry(t)
	stageRows(t, store, "b0",
		datastore.Row{"price": 10},
		datastore.Row{"price": 11},
		datastore.Row{"price": 12},
	)

	path := filepath.Join(t.TempDir(), "trail.jsonl")
	w, err := audit.Open(path)
	require.NoError(t, err)

	trainer := &BatchTrainer{Store: store, Registry: reg, Tracker: trust.NewTracker(0), Audit: w, TurnConfig: turn.Config{}}
	batch := planner.TrainingBatch{ID: "b0", Variables: []string{"price"}, WindowStart: 0, WindowEnd: 1}
	result, err := trainer.Execute(context.Background(), batch)
	require.NoError(t, err)
	assert.Equal(t, "b0", result.TraceRef)
	require.NoError(t, w.Close())

	entries, err := audit.Replay(path)
	require.NoError(t, err)
	require.Len(t, entries, 2) // one entry per row-to-row turn
	for _, e := range entries {
		assert.Equal(t, "b0", e.BatchID)
	}
}

func TestBatchTrainerLeavesTraceRefEmptyWithoutAudit(t *testing.T) {
	store := newTestStore(t)
	reg := newTestRegistry(t)
	stageRows(t, store, "b0",
		datastore.Row{"price": 10},
		datastore.Row{"price": 11},
	)

	trainer := &BatchTrainer{Store: store, Registry: reg, Tracker: trust.NewTracker(0)}
	result, err := trainer.Execute(context.Background(), planner.TrainingBatch{ID: "b0", Variables: []string{"price"}, WindowStart: 0, WindowEnd: 1})
	require.NoError(t, err)
	assert.Empty(t, result.TraceRef)
}
