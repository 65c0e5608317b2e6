package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"retrograde/config"
	"retrograde/coordinator"
	"retrograde/trust"
)

func TestEnrichSummaryPopulatesConfigAndPerformance(t *testing.T) {
	summary := &coordinator.RunSummary{
		WallTime: time.Second,
		Results: []coordinator.TrainingResult{
			{Duration: 3 * time.Second},
			{Duration: 2 * time.Second},
		},
	}
	cfg := config.Default()

	EnrichSummary(summary, cfg, trust.NewTracker(0))

	assert.Equal(t, cfg, summary.Config)
	assert.Equal(t, 1.0, summary.Performance.WallSeconds)
	assert.Equal(t, 5.0, summary.Performance.EstimatedSequentialSeconds)
	assert.Equal(t, 5.0, summary.Performance.Speedup)
}

func TestEnrichSummaryReportsTrustScoresForRulesTheRunTouched(t *testing.T) {
	tracker := trust.NewTracker(0)
	tracker.BatchUpdate([]trust.Delta{{RuleID: "R1", Successes: 3, Failures: 1}})

	summary := &coordinator.RunSummary{
		Results: []coordinator.TrainingResult{
			{TrustDeltas: map[string]coordinator.TrustDelta{"R1": {Successes: 3, Failures: 1}}},
		},
	}

	EnrichSummary(summary, config.Default(), tracker)

	require := assert.New(t)
	require.Contains(summary.Variables.TrustScores, "R1")
	require.InDelta(tracker.GetTrust("R1"), summary.Variables.TrustScores["R1"], 1e-9)
}

func TestEnrichSummarySetsTraceRefFromAuditDir(t *testing.T) {
	summary := &coordinator.RunSummary{}
	cfg := config.Default()
	cfg.Audit.Dir = "/var/run/audit"

	EnrichSummary(summary, cfg, nil)

	assert.Equal(t, "/var/run/audit/trail.jsonl", summary.TraceRef)
}

func TestEnrichSummaryHandlesNilSummary(t *testing.T) {
	assert.NotPanics(t, func() { EnrichSummary(nil, config.Default(), nil) })
}
