// Package rules implements the deterministic causal rule engine (spec
// C2): a process-wide registry with a two-phase lifecycle (mutable at
// startup, frozen before a run), and pure application of triggered rules
// against a worldstate.WorldState.
package rules

import (
	"strconv"

	"github.com/cespare/xxhash/v2"

	"retrograde/worldstate"
)

// Source distinguishes hand-authored rules from ones produced by an
// offline generator; the engine treats both identically.
type Source string

const (
	SourceStatic    Source = "static"
	SourceGenerated Source = "generated"
)

// TargetKind selects which part of the WorldState an Effect mutates.
type TargetKind int

const (
	TargetVariable TargetKind = iota
	TargetOverlay
	TargetCapital
)

// Effect is one additive mutation a Rule applies when triggered. Capital
// effects may create a new asset bucket; overlay effects saturate at
// [0,1]; variable effects are always accepted (subject to the NaN/Inf
// guard in worldstate.SetVariable).
type Effect struct {
	Target TargetKind
	Name   string
	Delta  float64
}

func (e Effect) apply(w *worldstate.WorldState) error {
	switch e.Target {
	case TargetVariable:
		return w.SetVariable(e.Name, w.GetVariable(e.Name, 0)+e.Delta)
	case TargetOverlay:
		w.AdjustOverlay(e.Name, e.Delta)
		return nil
	case TargetCapital:
		return w.AdjustCapital(e.Name, e.Delta, true)
	default:
		return nil
	}
}

// Trigger is a pure predicate over a WorldState; it must not mutate the
// state or perform I/O (spec §4.2: "applying a rule is pure given
// (state, rule) — no external I/O").
type Trigger func(*worldstate.WorldState) bool

// Rule is one entry in the causal rule registry.
type Rule struct {
	ID           string
	Priority     int
	Trigger      Trigger
	Effects      []Effect
	Reads        []string // glob patterns over variable/overlay/capital names this rule reads
	Writes       []string // glob patterns over names this rule writes
	SymbolicTags []string
	Source       Source

	fingerprint uint64
}

// Fingerprint is a content hash of the rule's declarative shape (id,
// priority, reads, writes, tags, source) — not of the Go closures, which
// cannot be hashed meaningfully. Two rules with identical declarative
// shape but different trigger/effect closures are, by construction,
// indistinguishable to the registry's conflict and audit machinery; that
// is intentional, since the spec only requires fingerprints to support
// deduplication and audit trail replay identification, not byte-level
// behavioral equality.
func (r *Rule) Fingerprint() uint64 {
	if r.fingerprint != 0 {
		return r.fingerprint
	}
	h := xxhash.New()
	_, _ = h.WriteString(r.ID)
	_, _ = h.WriteString(string(r.Source))
	_, _ = h.WriteString("p:" + strconv.Itoa(r.Priority))
	for _, s := range r.Reads {
		_, _ = h.WriteString("r:" + s)
	}
	for _, s := range r.Writes {
		_, _ = h.WriteString("w:" + s)
	}
	for _, s := range r.SymbolicTags {
		_, _ = h.WriteString("t:" + s)
	}
	r.fingerprint = h.Sum64()
	return r.fingerprint
}
