package trust

// RuleSnapshot is one rule's serializable posterior state.
type RuleSnapshot struct {
	RuleID         string
	Alpha          float64
	Beta           float64
	Observations   float64
	LastUpdateTurn uint64
}

// Snapshot is the full tracker state, sorted by RuleID for a
// deterministic byte representation across processes.
type Snapshot struct {
	Rules []RuleSnapshot
}

// Snapshot captures every rule's current posterior, in RuleID order.
func (t *Tracker) Snapshot() Snapshot {
	var out []RuleSnapshot
	for _, sh := range t.shards {
		sh.mu.RLock()
		for id, rs := range sh.rules {
			rs.mu.Lock()
			out = append(out, RuleSnapshot{
				RuleID:         id,
				Alpha:          rs.beta.Alpha,
				Beta:           rs.beta.Beta,
				Observations:   rs.n,
				LastUpdateTurn: rs.lastUpdateTurn,
			})
			rs.mu.Unlock()
		}
		sh.mu.RUnlock()
	}
	sortRuleSnapshots(out)
	return Snapshot{Rules: out}
}

// Restore replaces the tracker's state with the given snapshot. Rules
// absent from the snapshot are left untouched; existing entries not in
// the snapshot are not removed. Intended for resuming a run from a
// persisted checkpoint, not as a full-state compare.
func (t *Tracker) Restore(snap Snapshot) {
	for _, rs := range snap.Rules {
		state := t.getOrCreate(rs.RuleID)
		state.mu.Lock()
		state.beta = Beta{Alpha: rs.Alpha, Beta: rs.Beta}
		state.n = rs.Observations
		state.lastUpdateTurn = rs.LastUpdateTurn
		state.mu.Unlock()
	}
}

func sortRuleSnapshots(rs []RuleSnapshot) {
	for i := 1; i < len(rs); i++ {
		for j := i; j > 0 && rs[j-1].RuleID > rs[j].RuleID; j-- {
			rs[j-1], rs[j] = rs[j], rs[j-1]
		}
	}
}
