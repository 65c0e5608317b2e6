package worldstate

import "sort"

// Snapshot is the canonical, key-ordered, float-stable serialization of a
// WorldState (spec §4.1: "produces a canonical key-ordered, float-stable
// dictionary; symmetric with from_snapshot"). Field order in the struct
// and the sorted slices inside it make two snapshots of equal states
// byte-for-byte identical once marshalled, which the Audit Trail (C13)
// relies on for its content hash.
type Snapshot struct {
	SimID     string             `json:"sim_id"`
	Turn      uint64             `json:"turn"`
	Timestamp float64            `json:"timestamp"`
	Variables []KV               `json:"variables"`
	Capital   []KV               `json:"capital"`
	Overlays  []OverlaySnapshot  `json:"overlays"`
	Events    []Event            `json:"events"`
	Metadata  map[string]any     `json:"metadata,omitempty"`
}

// KV is a sorted key/value pair used for variables and capital so that
// JSON marshalling doesn't depend on Go's (randomized) map iteration.
type KV struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

// OverlaySnapshot is one overlay entry in canonical form.
type OverlaySnapshot struct {
	Name  string      `json:"name"`
	Value float64     `json:"value"`
	Meta  OverlayMeta `json:"meta"`
	Core  bool        `json:"core"`
}

func sortedKV(m map[string]float64) []KV {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)
	out := make([]KV, len(names))
	for i, n := range names {
		out[i] = KV{Name: n, Value: m[n]}
	}
	return out
}

// Snapshot produces the canonical, serializable view of this state.
func (w *WorldState) Snapshot() Snapshot {
	names := w.overlays.Names()
	overlays := make([]OverlaySnapshot, len(names))
	for i, n := range names {
		o := w.overlays.entries[n]
		overlays[i] = OverlaySnapshot{Name: n, Value: o.Value, Meta: o.Meta, Core: o.Core}
	}
	meta := make(map[string]any, len(w.metadata))
	for k, v := range w.metadata {
		meta[k] = v
	}
	return Snapshot{
		SimID:     w.SimID,
		Turn:      w.Turn,
		Timestamp: w.Timestamp,
		Variables: sortedKV(w.variables),
		Capital:   sortedKV(w.capital),
		Overlays:  overlays,
		Events:    append([]Event(nil), w.events...),
		Metadata:  meta,
	}
}

// FromSnapshot reconstructs a WorldState from a Snapshot. It is the
// identity of Snapshot modulo float tolerance: FromSnapshot(s.Snapshot())
// reproduces s.
func FromSnapshot(s Snapshot) *WorldState {
	w := &WorldState{
		SimID:     s.SimID,
		Turn:      s.Turn,
		Timestamp: s.Timestamp,
		variables: make(map[string]float64, len(s.Variables)),
		capital:   make(map[string]float64, len(s.Capital)),
		overlays:  &OverlayContainer{entries: make(map[string]*Overlay, len(s.Overlays))},
		metadata:  make(map[string]any, len(s.Metadata)),
	}
	for _, kv := range s.Variables {
		w.variables[kv.Name] = kv.Value
	}
	for _, kv := range s.Capital {
		w.capital[kv.Name] = kv.Value
	}
	for _, o := range s.Overlays {
		w.overlays.entries[o.Name] = &Overlay{Value: clamp01(o.Value), Meta: o.Meta, Core: o.Core}
	}
	w.events = append([]Event(nil), s.Events...)
	for k, v := range s.Metadata {
		w.metadata[k] = v
	}
	return w
}
