// Package curriculum implements the Retrodiction Curriculum (spec
// C11): a pure function that reweights planner.TrainingBatch priorities
// from trust-tracker uncertainty and time-axis sampling density,
// without reordering batches across time steps and without ever
// dropping one.
package curriculum

import (
	"sort"

	"retrograde/planner"
	"retrograde/trust"
)

// Weigher reads rule-variable associations and reports trust CI width
// per rule; trust.Tracker satisfies the trust half directly via
// GetCI, and rules.Registry.ReadSets satisfies the variable half.
type Weigher struct {
	// ReadSets maps ruleID -> variable/overlay/capital names it reads,
	// as produced by rules.Registry.ReadSets() after Freeze.
	ReadSets map[string][]string
	Tracker  *trust.Tracker

	// CIWeight and UnderSampleWeight trade off the two priority
	// components; both default to 1 when zero.
	CIWeight          float64
	UnderSampleWeight float64

	ciLevel float64
}

func (w Weigher) withDefaults() Weigher {
	if w.CIWeight == 0 {
		w.CIWeight = 1
	}
	if w.UnderSampleWeight == 0 {
		w.UnderSampleWeight = 1
	}
	if w.ciLevel == 0 {
		w.ciLevel = 0.95
	}
	return w
}

// Weigh returns a copy of batches with Priority recomputed and ordering
// adjusted only within groups sharing the same WindowStart — never
// across groups — preserving the planner's time-order guarantee. Given
// identical inputs, output is bit-identical (no randomness, no clock
// reads, no mutation of the tracker).
func Weigh(batches []planner.TrainingBatch, w Weigher) []planner.TrainingBatch {
	w = w.withDefaults()
	if len(batches) == 0 {
		return nil
	}

	sampleCounts := sampleCountsByWindow(batches)

	out := make([]planner.TrainingBatch, len(batches))
	copy(out, batches)
	for i := range out {
		ciWidth := w.meanCIWidth(out[i].Variables)
		underSample := 1.0 / float64(sampleCounts[out[i].WindowStart])
		out[i].Priority = w.CIWeight*ciWidth + w.UnderSampleWeight*underSample
	}

	regroupStableByWindow(out)
	return out
}

func sampleCountsByWindow(batches []planner.TrainingBatch) map[float64]int {
	counts := make(map[float64]int, len(batches))
	for _, b := range batches {
		counts[b.WindowStart]++
	}
	return counts
}

// meanCIWidth averages the trust CI width (hi-lo) across every rule
// whose resolved read-set intersects variables. A variable set touched
// by no known rule falls back to the maximal-uncertainty width of 1.0,
// so unobserved regions are never under-prioritized by omission.
func (w Weigher) meanCIWidth(variables []string) float64 {
	if w.Tracker == nil || len(w.ReadSets) == 0 {
		return 1.0
	}
	want := make(map[string]bool, len(variables))
	for _, v := range variables {
		want[v] = true
	}

	var total float64
	var matched int
	for ruleID, reads := range w.ReadSets {
		if !intersects(reads, want) {
			continue
		}
		lo, hi := w.Tracker.GetCI(ruleID, w.ciLevel)
		total += hi - lo
		matched++
	}
	if matched == 0 {
		return 1.0
	}
	return total / float64(matched)
}

func intersects(names []string, want map[string]bool) bool {
	for _, n := range names {
		if want[n] {
			return true
		}
	}
	return false
}

// regroupStableByWindow stable-sorts by descending priority within each
// contiguous run of equal WindowStart, leaving the run boundaries (and
// therefore the relative order of distinct time steps) untouched.
func regroupStableByWindow(batches []planner.TrainingBatch) {
	start := 0
	for start < len(batches) {
		end := start + 1
		for end < len(batches) && batches[end].WindowStart == batches[start].WindowStart {
			end++
		}
		group := batches[start:end]
		sort.SliceStable(group, func(i, j int) bool {
			return group[i].Priority > group[j].Priority
		})
		start = end
	}
}
