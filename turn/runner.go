// Package turn implements the Turn Runner (spec C3): advancing a
// worldstate.WorldState by exactly one step under the deterministic rule
// engine, with all-or-nothing rollback on rule failure.
package turn

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/cespare/xxhash/v2"

	"retrograde/rules"
	"retrograde/worldstate"
)

// ErrAborted is wrapped into the returned error when a rule raises and
// the turn is rolled back to its pre-turn snapshot.
var ErrAborted = errors.New("turn: aborted and rolled back")

// Config controls per-turn behavior that spec §9's Open Question left
// configurable: whether overlay decay runs before or after rule effects.
// Default (DecayBeforeEffects=false) matches the spec's stated default.
type Config struct {
	DecayRate          float64
	DecayBeforeEffects bool
}

// Delta captures the pre→post change of one named quantity.
type Delta struct {
	Name   string
	Before float64
	After  float64
}

// AuditRecord is the per-turn trace returned by RunTurn: the rule
// application trace, the pre/post deltas, and a content hash of the
// pre/post snapshots for tamper-evident audit replay (spec §4.3).
type AuditRecord struct {
	Turn        uint64
	RuleTrace   []rules.AppliedRule
	Deltas      []Delta
	PreHash     uint64
	PostHash    uint64
	Aborted     bool
	AbortReason string
}

// RunTurn advances state by one turn: snapshot pre, apply all triggered
// rules, apply overlay decay, advance the turn counter, and compute
// deltas. If any rule's effects error out, the entire turn is rolled
// back to pre and AuditRecord.Aborted is set — the caller (coordinator)
// decides whether the abort rate for a batch crosses the configured
// failure threshold (spec §4.3's "coordinator marks the batch failed
// only if abort rate exceeds configured threshold per batch").
func RunTurn(state *worldstate.WorldState, engine *rules.Registry, cfg Config) (AuditRecord, error) {
	pre := state.Clone()
	preSnap := pre.Snapshot()
	preHash := hashSnapshot(preSnap)

	rec := AuditRecord{Turn: state.Turn, PreHash: preHash}

	if cfg.DecayBeforeEffects {
		applyDecay(state, cfg.DecayRate)
	}

	var trace []rules.AppliedRule
	aborted := false
	var abortReason string

	func() {
		defer func() {
			if r := recover(); r != nil {
				aborted = true
				abortReason = fmt.Sprintf("rule panic: %v", r)
			}
		}()
		trace = engine.ApplyAll(state)
	}()

	if !aborted {
		for _, ar := range trace {
			if ar.Error != nil {
				aborted = true
				abortReason = fmt.Sprintf("rule %s: %v", ar.RuleID, ar.Error)
				break
			}
		}
	}

	if aborted {
		restoreInPlace(state, preSnap)
		rec.RuleTrace = trace
		rec.Aborted = true
		rec.AbortReason = abortReason
		rec.PostHash = preHash
		return rec, fmt.Errorf("%w: %s", ErrAborted, abortReason)
	}

	if !cfg.DecayBeforeEffects {
		applyDecay(state, cfg.DecayRate)
	}

	state.AdvanceTurn()

	post := state.Snapshot()
	rec.RuleTrace = trace
	rec.Deltas = computeDeltas(preSnap, post)
	rec.PostHash = hashSnapshot(post)
	return rec, nil
}

// applyDecay pulls every overlay toward its 0.5 neutral point by rate,
// once per turn. rate<=0 disables decay entirely.
func applyDecay(state *worldstate.WorldState, rate float64) {
	if rate <= 0 {
		return
	}
	for _, name := range state.Overlays().Names() {
		cur := state.Overlay(name)
		target := cur + (0.5-cur)*rate
		state.AdjustOverlay(name, target-cur)
	}
}

func restoreInPlace(state *worldstate.WorldState, pre worldstate.Snapshot) {
	restored := worldstate.FromSnapshot(pre)
	*state = *restored
}

func hashSnapshot(s worldstate.Snapshot) uint64 {
	h := xxhash.New()
	for _, kv := range s.Variables {
		_, _ = h.WriteString(kv.Name)
		writeFloat(h, kv.Value)
	}
	for _, kv := range s.Capital {
		_, _ = h.WriteString(kv.Name)
		writeFloat(h, kv.Value)
	}
	for _, o := range s.Overlays {
		_, _ = h.WriteString(o.Name)
		writeFloat(h, o.Value)
	}
	_, _ = h.WriteString(s.SimID)
	return h.Sum64()
}

func writeFloat(h *xxhash.Digest, f float64) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], math.Float64bits(f))
	_, _ = h.Write(buf[:])
}

func computeDeltas(pre, post worldstate.Snapshot) []Delta {
	preVals := make(map[string]float64, len(pre.Variables)+len(pre.Capital)+len(pre.Overlays))
	for _, kv := range pre.Variables {
		preVals[kv.Name] = kv.Value
	}
	for _, kv := range pre.Capital {
		preVals["capital."+kv.Name] = kv.Value
	}
	for _, o := range pre.Overlays {
		preVals["overlay."+o.Name] = o.Value
	}

	var out []Delta
	for _, kv := range post.Variables {
		before := preVals[kv.Name]
		if before != kv.Value {
			out = append(out, Delta{Name: kv.Name, Before: before, After: kv.Value})
		}
	}
	for _, kv := range post.Capital {
		key := "capital." + kv.Name
		before := preVals[key]
		if before != kv.Value {
			out = append(out, Delta{Name: key, Before: before, After: kv.Value})
		}
	}
	for _, o := range post.Overlays {
		key := "overlay." + o.Name
		before := preVals[key]
		if before != o.Value {
			out = append(out, Delta{Name: key, Before: before, After: o.Value})
		}
	}
	return out
}
