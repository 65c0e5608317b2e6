package pipeline

import (
	"context"
	"fmt"

	"retrograde/audit"
	"retrograde/coordinator"
	"retrograde/datastore"
	"retrograde/planner"
	"retrograde/rules"
	"retrograde/trust"
	"retrograde/turn"
	"retrograde/worldstate"
)

// BatchTrainer is the coordinator.BatchExecutor that actually runs
// retrodiction training: replay the historical rows behind one planned
// batch through the rule engine turn by turn, and attribute trust
// outcomes by comparing each turn's rule-predicted next state against
// the row that was actually observed next. Every batch is assumed to
// name a dataset id equal to its own ID — the caller is responsible
// for having staged that dataset into the Store under that key
// (DataLoadStage only plans the batches).
// Audit, when non-nil, receives one hash-chained entry per replayed
// turn (spec C13) so a completed run can later be checked for
// tampering or replayed turn by turn.
type BatchTrainer struct {
	Store      *datastore.Store
	Registry   *rules.Registry
	Tracker    *trust.Tracker
	TurnConfig turn.Config
	Audit      *audit.Writer
}

// Execute streams the rows behind batch, replays them turn by turn, and
// returns the aggregated outcome. A batch with fewer than two rows
// succeeds trivially (nothing to compare a prediction against).
func (bt *BatchTrainer) Execute(ctx context.Context, batch planner.TrainingBatch) (coordinator.TrainingResult, error) {
	rows, err := bt.loadRows(ctx, batch)
	if err != nil {
		return coordinator.TrainingResult{}, fmt.Errorf("loading batch rows: %w", err)
	}
	if len(rows) < 2 {
		return coordinator.TrainingResult{Metrics: map[string]float64{"turns_run": 0, "rows": float64(len(rows))}}, nil
	}

	state, err := worldstate.New(batch.ID, toFloat64Map(rows[0]), nil)
	if err != nil {
		return coordinator.TrainingResult{}, fmt.Errorf("constructing worldstate: %w", err)
	}

	deltas := make(map[string]*coordinator.TrustDelta)
	var turnsRun, turnsAborted int

	for i := 0; i < len(rows)-1; i++ {
		if err := ctx.Err(); err != nil {
			return coordinator.TrainingResult{}, fmt.Errorf("batch cancelled mid-replay: %w", err)
		}

		applyRow(state, rows[i])
		pre := state.Clone()

		rec, err := turn.RunTurn(state, bt.Registry, bt.TurnConfig)
		if bt.Audit != nil {
			if _, auditErr := bt.Audit.Append(rec.Turn, batch.ID, rec); auditErr != nil {
				return coordinator.TrainingResult{}, fmt.Errorf("appending audit entry: %w", auditErr)
			}
		}
		if err != nil {
			turnsAborted++
			continue
		}
		turnsRun++

		actual := pre.Clone()
		applyRow(actual, rows[i+1])

		predicted := bt.Registry.ReverseApply(pre, state)
		realized := bt.Registry.ReverseApply(pre, actual)
		realizedSet := make(map[string]bool, len(realized))
		for _, id := range realized {
			realizedSet[id] = true
		}

		for _, ruleID := range dedupeRuleIDs(rec.RuleTrace) {
			d := deltas[ruleID]
			if d == nil {
				d = &coordinator.TrustDelta{}
				deltas[ruleID] = d
			}
			if contains(predicted, ruleID) && realizedSet[ruleID] {
				d.Successes++
			} else if contains(predicted, ruleID) {
				d.Failures++
			}
		}
	}

	if bt.Tracker != nil {
		applyTrustDeltas(bt.Tracker, deltas)
	}

	out := make(map[string]coordinator.TrustDelta, len(deltas))
	for id, d := range deltas {
		out[id] = *d
	}
	var traceRef string
	if bt.Audit != nil {
		traceRef = batch.ID
	}
	return coordinator.TrainingResult{
		TrustDeltas: out,
		TraceRef:    traceRef,
		Metrics: map[string]float64{
			"turns_run":     float64(turnsRun),
			"turns_aborted": float64(turnsAborted),
			"rows":          float64(len(rows)),
		},
	}, nil
}

func (bt *BatchTrainer) loadRows(ctx context.Context, batch planner.TrainingBatch) ([]datastore.Row, error) {
	filter := datastore.Filter{Variables: batch.Variables, WindowStart: batch.WindowStart, WindowEnd: batch.WindowEnd}
	ch, err := bt.Store.Stream(ctx, batch.ID, filter, 0)
	if err != nil {
		return nil, err
	}
	var rows []datastore.Row
	for block := range ch {
		rows = append(rows, block.Rows...)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return rows, nil
}

func toFloat64Map(r datastore.Row) map[string]float64 {
	out := make(map[string]float64, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

func applyRow(state *worldstate.WorldState, row datastore.Row) {
	for k, v := range row {
		_ = state.SetVariable(k, v)
	}
}

func dedupeRuleIDs(trace []rules.AppliedRule) []string {
	var out []string
	for _, ar := range trace {
		if ar.Triggered {
			out = append(out, ar.RuleID)
		}
	}
	return out
}

func contains(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}

func applyTrustDeltas(t *trust.Tracker, deltas map[string]*coordinator.TrustDelta) {
	batch := make([]trust.Delta, 0, len(deltas))
	for id, d := range deltas {
		batch = append(batch, trust.Delta{RuleID: id, Successes: d.Successes, Failures: d.Failures})
	}
	t.BatchUpdate(batch)
}
