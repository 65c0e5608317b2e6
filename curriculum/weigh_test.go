package curriculum

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"retrograde/planner"
	"retrograde/trust"
)

func mustPlan(t *testing.T, vars []string, start, end, window float64) []planner.TrainingBatch {
	t.Helper()
	batches, err := planner.Plan(planner.Config{Variables: vars, Start: start, End: end, Window: window})
	require.NoError(t, err)
	return batches
}

func TestWeighPreservesBatchCount(t *testing.T) {
	batches := mustPlan(t, []string{"x"}, 0, 20, 5)
	out := Weigh(batches, Weigher{})
	assert.Len(t, out, len(batches))
}

func TestWeighNeverReordersAcrossTimeSteps(t *testing.T) {
	batches := mustPlan(t, []string{"x"}, 0, 20, 5)
	out := Weigh(batches, Weigher{})
	for i := range out {
		assert.Equal(t, batches[i].WindowStart, out[i].WindowStart)
	}
}

func TestWeighIsDeterministic(t *testing.T) {
	batches := mustPlan(t, []string{"x"}, 0, 20, 5)
	tracker := trust.NewTracker(0)
	tracker.Update("r1", true)
	w := Weigher{Tracker: tracker, ReadSets: map[string][]string{"r1": {"x"}}}

	first := Weigh(batches, w)
	second := Weigh(batches, w)
	for i := range first {
		assert.Equal(t, first[i].Priority, second[i].Priority)
	}
}

func TestWeighUnseenVariablesGetMaximalUncertainty(t *testing.T) {
	batches := mustPlan(t, []string{"untracked"}, 0, 5, 5)
	tracker := trust.NewTracker(0)
	tracker.Update("r1", true)
	w := Weigher{Tracker: tracker, ReadSets: map[string][]string{"r1": {"other"}}}

	out := Weigh(batches, w)
	// CI width 1.0 (no rule reads "untracked") plus an under-sample bonus
	// of 1/1 for the only batch in its window.
	assert.Equal(t, 2.0, out[0].Priority)
}

func TestWeighHigherCIWidthGetsHigherPriorityWithinGroup(t *testing.T) {
	// two batches covering the same window but different variable sets
	uncertain := planner.TrainingBatch{ID: "u", Variables: []string{"noisy"}, WindowStart: 0, WindowEnd: 5}
	confident := planner.TrainingBatch{ID: "c", Variables: []string{"steady"}, WindowStart: 0, WindowEnd: 5}

	tracker := trust.NewTracker(0)
	for i := 0; i < 100; i++ {
		tracker.Update("steady-rule", true) // narrow CI: lots of consistent evidence
	}
	tracker.Update("noisy-rule", true) // wide CI: barely any evidence

	w := Weigher{
		Tracker: tracker,
		ReadSets: map[string][]string{
			"steady-rule": {"steady"},
			"noisy-rule":  {"noisy"},
		},
	}

	out := Weigh([]planner.TrainingBatch{confident, uncertain}, w)
	// both share WindowStart=0, so only priority decides order within the group
	require.Len(t, out, 2)
	assert.Equal(t, "u", out[0].ID)
	assert.Equal(t, "c", out[1].ID)
}

func TestWeighEmptyBatchesReturnsNil(t *testing.T) {
	assert.Nil(t, Weigh(nil, Weigher{}))
}

func TestWeighNeverDropsBatches(t *testing.T) {
	batches := mustPlan(t, []string{"x", "y"}, 0, 50, 5)
	out := Weigh(batches, Weigher{})
	assert.Equal(t, len(batches), len(out))
}
