package pipeline

import (
	"time"

	"retrograde/config"
	"retrograde/coordinator"
	"retrograde/trust"
)

// EnrichSummary fills in the parts of a RunSummary that Coordinator has
// no way to compute on its own — the resolved config, the per-rule
// trust scores, and the derived throughput figures — completing the
// spec §6.2 persisted layout. Safe to call more than once: every field
// it touches is recomputed from scratch rather than accumulated.
func EnrichSummary(summary *coordinator.RunSummary, cfg config.Config, tracker *trust.Tracker) {
	if summary == nil {
		return
	}
	summary.Config = cfg
	summary.Variables.TrustScores = trustScores(summary, tracker)
	if cfg.Audit.Dir != "" {
		summary.TraceRef = cfg.Audit.Dir + "/trail.jsonl"
	}

	var sequential time.Duration
	for _, res := range summary.Results {
		sequential += res.Duration
	}
	summary.Performance = coordinator.PerformanceSummary{
		WallSeconds:                summary.WallTime.Seconds(),
		EstimatedSequentialSeconds: sequential.Seconds(),
	}
	if summary.Performance.WallSeconds > 0 {
		summary.Performance.Speedup = summary.Performance.EstimatedSequentialSeconds / summary.Performance.WallSeconds
	}
}

// trustScores collects every rule id a run actually attributed trust
// deltas to and reports the tracker's current posterior mean for each
// — Tracker itself exposes no "list known rule ids" method, so the set
// of rule ids has to come from the results that were just produced.
func trustScores(summary *coordinator.RunSummary, tracker *trust.Tracker) map[string]float64 {
	ruleIDs := make(map[string]struct{})
	for _, res := range summary.Results {
		for ruleID := range res.TrustDeltas {
			ruleIDs[ruleID] = struct{}{}
		}
	}
	scores := make(map[string]float64, len(ruleIDs))
	if tracker == nil {
		return scores
	}
	for ruleID := range ruleIDs {
		scores[ruleID] = tracker.GetTrust(ruleID)
	}
	return scores
}
