// Package coordinator implements the Parallel Coordinator (spec C9),
// the core of the training engine: a work-stealing worker pool that
// executes a planned batch list to completion (or cancellation) with
// bounded memory, commutative result aggregation, and a run-level
// abort gate. It also implements the §6.1 Coordinator API as a plain
// Go surface (coordinator.RunRegistry) for an embedding HTTP/RPC layer
// to sit on top of.
package coordinator

import (
	"context"
	"time"

	"retrograde/config"
	"retrograde/planner"
)

// BatchStatus is a batch's terminal (or in-flight) state.
type BatchStatus string

const (
	BatchPending   BatchStatus = "pending"
	BatchInFlight  BatchStatus = "in_flight"
	BatchSucceeded BatchStatus = "succeeded"
	BatchFailed    BatchStatus = "failed"
	BatchCancelled BatchStatus = "cancelled"
)

// TrustDelta is the per-rule (successes, failures) a batch execution
// attributes to the trust tracker; the coordinator only threads this
// through, it never interprets rule ids.
type TrustDelta struct {
	Successes float64
	Failures  float64
}

// TrainingResult is the outcome of executing one TrainingBatch.
type TrainingResult struct {
	BatchID     string                 `json:"batch_id" yaml:"batch_id"`
	Status      BatchStatus            `json:"status" yaml:"status"`
	Duration    time.Duration          `json:"duration" yaml:"duration"`
	TrustDeltas map[string]TrustDelta  `json:"trust_deltas,omitempty" yaml:"trust_deltas,omitempty"`
	Metrics     map[string]float64     `json:"metrics,omitempty" yaml:"metrics,omitempty"`
	Error       string                 `json:"error,omitempty" yaml:"error,omitempty"`
	TraceRef    string                 `json:"trace_ref,omitempty" yaml:"trace_ref,omitempty"`
}

// RunState is the coarse lifecycle state of a submitted run (§6.1).
type RunState string

const (
	RunQueued    RunState = "queued"
	RunRunning   RunState = "running"
	RunCompleted RunState = "completed"
	RunFailed    RunState = "failed"
	RunCancelled RunState = "cancelled"
)

// VariablesSummary is the §6.2 `variables` block: how many distinct
// variables the run touched, and the trust posterior mean the tracker
// settled on for every rule the run exercised.
type VariablesSummary struct {
	Total       int                `json:"total" yaml:"total"`
	TrustScores map[string]float64 `json:"trust_scores" yaml:"trust_scores"`
}

// PerformanceSummary is the §6.2 `performance` block. EstimatedSequentialSeconds
// sums every batch's own duration, as if one worker had run them one at
// a time; Speedup is that figure over WallSeconds, so a value near
// MaxWorkers indicates the worker pool stayed saturated.
type PerformanceSummary struct {
	WallSeconds                float64 `json:"wall_seconds" yaml:"wall_seconds"`
	EstimatedSequentialSeconds float64 `json:"estimated_sequential_seconds" yaml:"estimated_sequential_seconds"`
	Speedup                    float64 `json:"speedup" yaml:"speedup"`
}

// RunSummary aggregates every batch's outcome for a completed run, and
// is the in-memory shape persistence.Persist writes out verbatim as the
// §6.2 stable persisted layout.
type RunSummary struct {
	Total       int              `json:"total" yaml:"total"`
	Succeeded   int              `json:"succeeded" yaml:"succeeded"`
	Failed      int              `json:"failed" yaml:"failed"`
	Cancelled   int              `json:"cancelled" yaml:"cancelled"`
	SuccessRate float64          `json:"success_rate" yaml:"success_rate"`
	Results     []TrainingResult `json:"results" yaml:"results"`
	WallTime    time.Duration    `json:"wall_time" yaml:"wall_time"`
	Aborted     bool             `json:"aborted" yaml:"aborted"`
	AbortReason string           `json:"abort_reason,omitempty" yaml:"abort_reason,omitempty"`

	Config      config.Config      `json:"config" yaml:"config"`
	Variables   VariablesSummary   `json:"variables" yaml:"variables"`
	Performance PerformanceSummary `json:"performance" yaml:"performance"`
	RemoteURI   string             `json:"remote_uri,omitempty" yaml:"remote_uri,omitempty"`
	TraceRef    string             `json:"trace_ref,omitempty" yaml:"trace_ref,omitempty"`
}

// ProgressEvent is emitted to the supervisor-owned progress callback
// (and to StreamEvents subscribers) after every batch completion.
type ProgressEvent struct {
	RunID       string
	Completed   int
	Total       int
	InFlight    int
	ETAEstimate time.Duration
	LastResult  TrainingResult
}

// BatchExecutor runs one batch to completion. Implementations live one
// layer up (pipeline), where a batch execution means repeatedly calling
// turn.RunTurn against a datastore-backed WorldState and accumulating
// trust deltas; the coordinator itself has no notion of worldstate or
// rules, only of scheduling and aggregation.
type BatchExecutor interface {
	Execute(ctx context.Context, batch planner.TrainingBatch) (TrainingResult, error)
}
