package trust

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUnseenRuleReturnsUninformativePrior(t *testing.T) {
	tr := NewTracker(0)
	assert.Equal(t, 0.5, tr.GetTrust("never-seen"))
	lo, hi := tr.GetCI("never-seen", 0.95)
	assert.Equal(t, 0.0, lo)
	assert.Equal(t, 1.0, hi)
}

func TestUpdateIncrementsPosterior(t *testing.T) {
	tr := NewTracker(0)
	for i := 0; i < 9; i++ {
		tr.Update("R1", true)
	}
	tr.Update("R1", false)
	assert.InDelta(t, 10.0/11.0, tr.GetTrust("R1"), 1e-9)
}

func TestBatchUpdateAssociativeCommutative(t *testing.T) {
	tr1 := NewTracker(0)
	tr1.BatchUpdate([]Delta{{RuleID: "R1", Successes: 5, Failures: 2}})
	tr1.BatchUpdate([]Delta{{RuleID: "R1", Successes: 3, Failures: 1}})

	tr2 := NewTracker(0)
	tr2.BatchUpdate([]Delta{{RuleID: "R1", Successes: 8, Failures: 3}})

	assert.InDelta(t, tr2.GetTrust("R1"), tr1.GetTrust("R1"), 1e-9)
}

func TestBatchUpdateConcurrentShards(t *testing.T) {
	tr := NewTracker(0)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tr.BatchUpdate([]Delta{
				{RuleID: "A", Successes: 1},
				{RuleID: "B", Failures: 1},
				{RuleID: "C", Successes: 1, Failures: 1},
			})
		}(i)
	}
	wg.Wait()
	assert.Greater(t, tr.GetTrust("A"), 0.9)
	assert.Less(t, tr.GetTrust("B"), 0.1)
	assert.InDelta(t, 0.5, tr.GetTrust("C"), 0.05)
}

func TestDecayShrinksTowardPrior(t *testing.T) {
	tr := NewTracker(10)
	tr.AdvanceTurn(0)
	for i := 0; i < 20; i++ {
		tr.Update("R1", true)
	}
	before := tr.GetTrust("R1")

	tr.AdvanceTurn(10) // exactly one half-life
	after := tr.GetTrust("R1")

	assert.Greater(t, before, after)
	assert.Greater(t, after, 0.5)
}

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	tr := NewTracker(0)
	tr.Update("R1", true)
	tr.Update("R2", false)

	snap := tr.Snapshot()
	require := assert.New(t)
	require.Len(snap.Rules, 2)

	tr2 := NewTracker(0)
	tr2.Restore(snap)
	require.Equal(tr.GetTrust("R1"), tr2.GetTrust("R1"))
	require.Equal(tr.GetTrust("R2"), tr2.GetTrust("R2"))
}

func TestCIUsesNormalApproxAboveThreshold(t *testing.T) {
	tr := NewTracker(0)
	deltas := []Delta{{RuleID: "R1", Successes: 20, Failures: 15}}
	tr.BatchUpdate(deltas)
	lo, hi := tr.GetCI("R1", 0.95)
	assert.True(t, lo < tr.GetTrust("R1"))
	assert.True(t, hi > tr.GetTrust("R1"))
	assert.True(t, lo >= 0 && hi <= 1)
}
