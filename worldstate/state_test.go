package worldstate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewValidatesCapital(t *testing.T) {
	_, err := New("sim-1", nil, map[string]float64{"bonds": -1})
	require.ErrorIs(t, err, ErrOutOfRange)
}

func TestOverlayClamp(t *testing.T) {
	w, err := New("sim-1", nil, nil)
	require.NoError(t, err)
	w.AdjustOverlay("momentum", 10)
	assert.Equal(t, 1.0, w.Overlay("momentum"))
	w.AdjustOverlay("momentum", -10)
	assert.Equal(t, 0.0, w.Overlay("momentum"))
	w.AdjustOverlay("new_overlay", 0.3)
	assert.Equal(t, 0.3, w.Overlay("new_overlay"))
}

func TestCapitalNonNegative(t *testing.T) {
	w, err := New("sim-1", nil, map[string]float64{"bonds": 5})
	require.NoError(t, err)
	require.ErrorIs(t, w.AdjustCapital("bonds", -10, false), ErrOutOfRange)
	assert.Equal(t, 5.0, w.Capital("bonds"))
}

func TestAdjustCapitalUnknownAsset(t *testing.T) {
	w, err := New("sim-1", nil, nil)
	require.NoError(t, err)
	require.ErrorIs(t, w.AdjustCapital("gold", 1, false), ErrUnknownAsset)
	require.NoError(t, w.AdjustCapital("gold", 1, true))
	assert.Equal(t, 1.0, w.Capital("gold"))
}

func TestSnapshotRoundTrip(t *testing.T) {
	w, err := New("sim-1", map[string]float64{"x": 1.5}, map[string]float64{"bonds": 10})
	require.NoError(t, err)
	w.AdjustOverlay("sentiment", 0.2)
	w.LogEvent("seed", "initial state", nil)
	w.AdvanceTurn()

	snap := w.Snapshot()
	restored := FromSnapshot(snap)

	assert.Equal(t, w.SimID, restored.SimID)
	assert.Equal(t, w.Turn, restored.Turn)
	assert.InDelta(t, w.Timestamp, restored.Timestamp, 1e-9)
	assert.Equal(t, w.GetVariable("x", 0), restored.GetVariable("x", 0))
	assert.Equal(t, w.Capital("bonds"), restored.Capital("bonds"))
	assert.InDelta(t, w.Overlay("sentiment"), restored.Overlay("sentiment"), 1e-9)
	assert.Equal(t, restored.Snapshot(), restored.Snapshot()) // deterministic

	assert.Equal(t, snap, restored.Snapshot())
}

func TestCloneIndependence(t *testing.T) {
	w, err := New("sim-1", map[string]float64{"x": 1}, map[string]float64{"bonds": 10})
	require.NoError(t, err)

	clone := w.Clone()
	require.NoError(t, clone.SetVariable("x", 99))
	require.NoError(t, clone.AdjustCapital("bonds", -5, false))
	clone.AdjustOverlay("risk", 0.9)

	assert.Equal(t, 1.0, w.GetVariable("x", 0))
	assert.Equal(t, 10.0, w.Capital("bonds"))
	assert.NotEqual(t, w.Overlay("risk"), clone.Overlay("risk"))
}

func TestAdvanceTurnMonotonic(t *testing.T) {
	w, err := New("sim-1", nil, nil)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		prev := w.Turn
		w.AdvanceTurn()
		assert.Greater(t, w.Turn, prev)
	}
}

func TestSetVariableRejectsNonFinite(t *testing.T) {
	w, err := New("sim-1", nil, nil)
	require.NoError(t, err)
	require.ErrorIs(t, w.SetVariable("bad", nanValue()), ErrInvalidValue)
}

func nanValue() float64 {
	var z float64
	return z / z
}
