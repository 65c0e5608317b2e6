package rules

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/gobwas/glob"
)

// Registry is the process-wide rule set. It is a single-writer structure
// during startup (Register/Unregister), then Freeze() is called exactly
// once before the coordinator begins a run; after that, ApplyAll and
// ReverseApply may be called concurrently by many workers (spec §4.2,
// §9 "two-phase lifecycle... generation counter guards against late
// mutation").
type Registry struct {
	mu      sync.Mutex
	rules   map[string]*Rule
	order   []string // registration order, for tie-break and apply order
	frozen  atomic.Bool
	genCtr  atomic.Uint64
	sorted  []*Rule // built at Freeze: priority desc, id asc tie-break

	readSets map[string][]string // ruleID -> resolved names it reads, built at Freeze
}

// NewRegistry constructs an empty, unfrozen registry.
func NewRegistry() *Registry {
	return &Registry{rules: make(map[string]*Rule)}
}

// Register adds a rule. Returns ErrRegistryFrozen once Freeze has run, or
// ErrDuplicateID if the id already exists.
func (r *Registry) Register(rule *Rule) error {
	if r.frozen.Load() {
		return ErrRegistryFrozen
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.rules[rule.ID]; exists {
		return ErrDuplicateID
	}
	r.rules[rule.ID] = rule
	r.order = append(r.order, rule.ID)
	r.genCtr.Add(1)
	return nil
}

// Unregister removes a rule by id. No-op if absent.
func (r *Registry) Unregister(id string) error {
	if r.frozen.Load() {
		return ErrRegistryFrozen
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rules[id]; !ok {
		return nil
	}
	delete(r.rules, id)
	for i, o := range r.order {
		if o == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	r.genCtr.Add(1)
	return nil
}

// Generation returns the mutation counter; a coordinator can snapshot it
// before launching workers and assert it hasn't moved since, guarding
// against late mutation during a run.
func (r *Registry) Generation() uint64 { return r.genCtr.Load() }

// Frozen reports whether Freeze has been called.
func (r *Registry) Frozen() bool { return r.frozen.Load() }

// Freeze resolves every rule's Reads/Writes glob patterns against the
// supplied known-name namespace, detects write-write conflicts between
// rules at the same priority tier, and fixes the deterministic apply
// order (priority descending, rule id ascending within a tier). It must
// be called exactly once, before the coordinator dispatches any batch.
func (r *Registry) Freeze(knownNames []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen.Load() {
		return nil
	}

	writeSets := make(map[string][]string, len(r.rules)) // ruleID -> resolved write names
	readSets := make(map[string][]string, len(r.rules))
	for id, rule := range r.rules {
		resolved, err := resolvePatterns(rule.Writes, knownNames)
		if err != nil {
			return fmt.Errorf("%w: rule %s: %v", ErrInvalidPattern, id, err)
		}
		writeSets[id] = resolved

		readResolved, err := resolvePatterns(rule.Reads, knownNames)
		if err != nil {
			return fmt.Errorf("%w: rule %s: %v", ErrInvalidPattern, id, err)
		}
		readSets[id] = readResolved
	}

	// Group by priority tier and detect intersecting write-sets within a tier.
	tiers := make(map[int][]string)
	for id, rule := range r.rules {
		tiers[rule.Priority] = append(tiers[rule.Priority], id)
	}
	for _, ids := range tiers {
		owner := make(map[string]string, 16)
		for _, id := range ids {
			for _, name := range writeSets[id] {
				if other, ok := owner[name]; ok && other != id {
					return fmt.Errorf("%w: %s and %s both write %q at the same priority", ErrConflictingEffects, other, id, name)
				}
				owner[name] = id
			}
		}
	}

	sorted := make([]*Rule, 0, len(r.rules))
	for _, id := range r.order {
		sorted = append(sorted, r.rules[id])
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Priority != sorted[j].Priority {
			return sorted[i].Priority > sorted[j].Priority
		}
		return sorted[i].ID < sorted[j].ID
	})
	r.sorted = sorted
	r.readSets = readSets
	r.frozen.Store(true)
	return nil
}

// ReadSets returns, for every registered rule, the resolved set of
// variable/overlay/capital names it reads (Reads glob patterns expanded
// against the namespace passed to Freeze). Valid only after Freeze;
// returns nil before that.
func (r *Registry) ReadSets() map[string][]string {
	if !r.frozen.Load() {
		return nil
	}
	return r.readSets
}

// Sorted returns the deterministic apply order fixed at Freeze. Calling
// it before Freeze returns the registration order.
func (r *Registry) Sorted() []*Rule {
	if r.frozen.Load() {
		return append([]*Rule(nil), r.sorted...)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Rule, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.rules[id])
	}
	return out
}

// Get returns a rule by id, or nil.
func (r *Registry) Get(id string) *Rule {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rules[id]
}

func resolvePatterns(patterns []string, knownNames []string) ([]string, error) {
	var out []string
	seen := make(map[string]bool, len(knownNames))
	for _, p := range patterns {
		g, err := glob.Compile(p)
		if err != nil {
			return nil, err
		}
		for _, name := range knownNames {
			if g.Match(name) && !seen[name] {
				seen[name] = true
				out = append(out, name)
			}
		}
	}
	return out, nil
}
