package rules

import "retrograde/worldstate"

// AppliedRule is the per-rule audit record produced by ApplyAll.
type AppliedRule struct {
	RuleID    string
	Triggered bool
	Applied   bool
	Error     error
}

// ApplyAll evaluates every registered rule's trigger against state, in
// the deterministic order fixed by Freeze, applying effects for each
// triggered rule. A rule whose effect application returns an error stops
// further effects of that rule from applying but does not prevent later
// rules from being evaluated — the Turn Runner (package turn) is
// responsible for treating any non-nil AppliedRule.Error as turn-level
// failure per spec §4.3's rollback policy.
func (r *Registry) ApplyAll(state *worldstate.WorldState) []AppliedRule {
	order := r.Sorted()
	out := make([]AppliedRule, 0, len(order))
	for _, rule := range order {
		rec := AppliedRule{RuleID: rule.ID}
		if rule.Trigger != nil && !rule.Trigger(state) {
			out = append(out, rec)
			continue
		}
		rec.Triggered = true
		for _, eff := range rule.Effects {
			if err := eff.apply(state); err != nil {
				rec.Error = err
				break
			}
		}
		rec.Applied = rec.Error == nil
		out = append(out, rec)
	}
	return out
}

// ReverseApply infers which registered rules could plausibly have
// produced the observed variable/overlay/capital delta between before
// and after, by checking whether any of a rule's effects targets a name
// that actually changed with a delta of the same sign as the observed
// change. Used by pipeline.BatchTrainer to attribute residuals to
// candidate rules without re-running the simulation.
func (r *Registry) ReverseApply(before, after *worldstate.WorldState) []string {
	changed := changedNames(before, after)
	if len(changed) == 0 {
		return nil
	}
	var candidates []string
	for _, rule := range r.Sorted() {
		if ruleExplainsDelta(rule, changed) {
			candidates = append(candidates, rule.ID)
		}
	}
	return candidates
}

// delta is signed: positive means the value increased from before to after.
func changedNames(before, after *worldstate.WorldState) map[string]float64 {
	changed := make(map[string]float64)
	for _, name := range after.VariableNames() {
		d := after.GetVariable(name, 0) - before.GetVariable(name, 0)
		if d != 0 {
			changed[name] = d
		}
	}
	for _, name := range after.CapitalAssets() {
		d := after.Capital(name) - before.Capital(name)
		if d != 0 {
			changed[name] = d
		}
	}
	for _, name := range after.Overlays().Names() {
		d := after.Overlay(name) - before.Overlay(name)
		if d != 0 {
			changed[name] = d
		}
	}
	return changed
}

func ruleExplainsDelta(rule *Rule, changed map[string]float64) bool {
	for _, eff := range rule.Effects {
		observed, ok := changed[eff.Name]
		if !ok {
			continue
		}
		if sameSign(eff.Delta, observed) {
			return true
		}
	}
	return false
}

func sameSign(a, b float64) bool {
	if a == 0 || b == 0 {
		return false
	}
	return (a > 0) == (b > 0)
}
