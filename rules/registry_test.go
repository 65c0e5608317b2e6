package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"retrograde/worldstate"
)

func ruleXGtTen() *Rule {
	return &Rule{
		ID:       "R1",
		Priority: 0,
		Trigger:  func(w *worldstate.WorldState) bool { return w.GetVariable("x", 0) > 10 },
		Effects:  []Effect{{Target: TargetVariable, Name: "y", Delta: 1}},
		Writes:   []string{"y"},
		Reads:    []string{"x"},
	}
}

func TestRegisterDuplicateID(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(ruleXGtTen()))
	require.ErrorIs(t, reg.Register(ruleXGtTen()), ErrDuplicateID)
}

func TestFreezeDetectsConflict(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(&Rule{ID: "A", Priority: 1, Writes: []string{"y"}}))
	require.NoError(t, reg.Register(&Rule{ID: "B", Priority: 1, Writes: []string{"y"}}))
	err := reg.Freeze([]string{"y"})
	assert.ErrorIs(t, err, ErrConflictingEffects)
}

func TestFreezeAllowsDifferentTiers(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(&Rule{ID: "A", Priority: 1, Writes: []string{"y"}}))
	require.NoError(t, reg.Register(&Rule{ID: "B", Priority: 2, Writes: []string{"y"}}))
	require.NoError(t, reg.Freeze([]string{"y"}))
	sorted := reg.Sorted()
	require.Len(t, sorted, 2)
	assert.Equal(t, "B", sorted[0].ID) // higher priority first
}

func TestRegisterAfterFreeze(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Freeze(nil))
	require.ErrorIs(t, reg.Register(ruleXGtTen()), ErrRegistryFrozen)
}

func TestApplyAllDeterministicOrder(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(&Rule{ID: "zeta", Priority: 0, Trigger: func(*worldstate.WorldState) bool { return true }, Effects: []Effect{{Target: TargetVariable, Name: "count", Delta: 1}}}))
	require.NoError(t, reg.Register(&Rule{ID: "alpha", Priority: 0, Trigger: func(*worldstate.WorldState) bool { return true }, Effects: []Effect{{Target: TargetVariable, Name: "count", Delta: 1}}}))
	require.NoError(t, reg.Freeze(nil))

	sorted := reg.Sorted()
	require.Len(t, sorted, 2)
	assert.Equal(t, "alpha", sorted[0].ID)
	assert.Equal(t, "zeta", sorted[1].ID)
}

func TestApplyAllTriggersAndEffects(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(ruleXGtTen()))
	require.NoError(t, reg.Freeze([]string{"x", "y"}))

	w, err := worldstate.New("sim", map[string]float64{"x": 15}, nil)
	require.NoError(t, err)

	applied := reg.ApplyAll(w)
	require.Len(t, applied, 1)
	assert.True(t, applied[0].Triggered)
	assert.True(t, applied[0].Applied)
	assert.Equal(t, 1.0, w.GetVariable("y", 0))
}

func TestReverseApplyFindsCandidate(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(ruleXGtTen()))
	require.NoError(t, reg.Freeze([]string{"x", "y"}))

	before, err := worldstate.New("sim", map[string]float64{"x": 15, "y": 0}, nil)
	require.NoError(t, err)
	after := before.Clone()
	require.NoError(t, after.SetVariable("y", 1))

	candidates := reg.ReverseApply(before, after)
	assert.Contains(t, candidates, "R1")
}

func TestFingerprintStable(t *testing.T) {
	r := ruleXGtTen()
	fp1 := r.Fingerprint()
	fp2 := r.Fingerprint()
	assert.Equal(t, fp1, fp2)
}
