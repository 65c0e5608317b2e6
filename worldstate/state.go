// Package worldstate implements the typed simulation container (spec C1):
// variables, capital exposures, overlays, an event log, and the metadata
// a single retrodiction turn mutates. It has exactly one owner at a time
// (a single worker, inside a single turn) — see Turn Runner (package
// turn) for the only code allowed to call AdvanceTurn.
package worldstate

import (
	"math"
	"sort"
	"time"
)

// Event is a structured record appended by LogEvent. Kind is a short
// machine-readable tag ("rule_applied", "decay", ...); Description is
// human-readable; Data carries arbitrary structured fields.
type Event struct {
	Turn        uint64                 `json:"turn"`
	Kind        string                 `json:"kind"`
	Description string                 `json:"description"`
	Data        map[string]any         `json:"data,omitempty"`
	At          time.Time              `json:"at"`
}

// WorldState is the full typed snapshot of a retrodiction simulation at a
// turn: variables, capital, overlays, and the event log accumulated so
// far. Invariants (spec §3): turn is monotonically non-decreasing;
// overlay values are always in [0,1]; capital values are always >= 0.
type WorldState struct {
	SimID     string
	Turn      uint64
	Timestamp float64

	variables map[string]float64
	capital   map[string]float64
	overlays  *OverlayContainer
	events    []Event
	metadata  map[string]any
}

// New constructs a WorldState with turn=0 and timestamp=now(), validating
// that every supplied capital value is non-negative.
func New(simID string, initialVariables map[string]float64, initialCapital map[string]float64) (*WorldState, error) {
	w := &WorldState{
		SimID:     simID,
		Turn:      0,
		Timestamp: float64(time.Now().UnixNano()) / 1e9,
		variables: make(map[string]float64, len(initialVariables)),
		capital:   make(map[string]float64, len(initialCapital)+1),
		overlays:  newOverlayContainer(),
		metadata:  make(map[string]any),
	}
	for k, v := range initialVariables {
		if err := w.SetVariable(k, v); err != nil {
			return nil, err
		}
	}
	for k, v := range initialCapital {
		if v < 0 {
			return nil, ErrOutOfRange
		}
		w.capital[k] = v
	}
	if _, ok := w.capital["cash"]; !ok {
		w.capital["cash"] = 0
	}
	return w, nil
}

// SetVariable assigns a numeric value, rejecting NaN/Inf.
func (w *WorldState) SetVariable(name string, value float64) error {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return ErrInvalidValue
	}
	w.variables[name] = value
	return nil
}

// GetVariable returns the named variable, or def if unset.
func (w *WorldState) GetVariable(name string, def float64) float64 {
	if v, ok := w.variables[name]; ok {
		return v
	}
	return def
}

// VariableNames returns every known variable name, sorted.
func (w *WorldState) VariableNames() []string {
	out := make([]string, 0, len(w.variables))
	for k := range w.variables {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// AdjustCapital applies a delta to a capital bucket (creating it if
// createIfMissing is set), rejecting the operation if it would drive the
// bucket negative. The WorldState is left unmodified on error.
func (w *WorldState) AdjustCapital(asset string, delta float64, createIfMissing bool) error {
	cur, ok := w.capital[asset]
	if !ok {
		if !createIfMissing {
			return ErrUnknownAsset
		}
		cur = 0
	}
	next := cur + delta
	if next < 0 {
		return ErrOutOfRange
	}
	w.capital[asset] = next
	return nil
}

// Capital returns the current value of a capital bucket (0 if unknown).
func (w *WorldState) Capital(asset string) float64 { return w.capital[asset] }

// CapitalAssets returns all known capital bucket names, sorted, "cash" first.
func (w *WorldState) CapitalAssets() []string {
	out := make([]string, 0, len(w.capital))
	for k := range w.capital {
		if k != "cash" {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return append([]string{"cash"}, out...)
}

// AdjustOverlay applies a saturating delta to a named overlay, clamped to
// [0,1]; unknown names become dynamic overlays.
func (w *WorldState) AdjustOverlay(name string, delta float64) { w.overlays.Adjust(name, delta) }

// Overlay returns a named overlay's current value.
func (w *WorldState) Overlay(name string) float64 { return w.overlays.Get(name) }

// Overlays exposes the overlay container directly for read-heavy callers
// (e.g. the rule engine evaluating triggers).
func (w *WorldState) Overlays() *OverlayContainer { return w.overlays }

// AdvanceTurn increments Turn. It does not touch Timestamp; callers that
// want wall-clock time to move must set it explicitly. Only the Turn
// Runner (package turn) should ever call this.
func (w *WorldState) AdvanceTurn() { w.Turn++ }

// SetTimestamp overrides the wall-clock timestamp field.
func (w *WorldState) SetTimestamp(ts float64) { w.Timestamp = ts }

// LogEvent appends a structured event stamped with the current turn.
func (w *WorldState) LogEvent(kind, description string, data map[string]any) {
	w.events = append(w.events, Event{Turn: w.Turn, Kind: kind, Description: description, Data: data, At: time.Now()})
}

// Events returns the accumulated event log (not a copy — callers must not
// mutate it).
func (w *WorldState) Events() []Event { return w.events }

// Metadata returns the free-form metadata map.
func (w *WorldState) Metadata() map[string]any { return w.metadata }

// SetMetadata sets a single metadata key.
func (w *WorldState) SetMetadata(key string, value any) { w.metadata[key] = value }

// Clone returns a deep, alias-independent copy. Equivalent to
// FromSnapshot(Snapshot()) but avoids the serialization round-trip.
func (w *WorldState) Clone() *WorldState {
	cp := &WorldState{
		SimID:     w.SimID,
		Turn:      w.Turn,
		Timestamp: w.Timestamp,
		variables: make(map[string]float64, len(w.variables)),
		capital:   make(map[string]float64, len(w.capital)),
		overlays:  w.overlays.clone(),
		metadata:  make(map[string]any, len(w.metadata)),
	}
	for k, v := range w.variables {
		cp.variables[k] = v
	}
	for k, v := range w.capital {
		cp.capital[k] = v
	}
	for k, v := range w.metadata {
		cp.metadata[k] = v
	}
	cp.events = append([]Event(nil), w.events...)
	return cp
}
