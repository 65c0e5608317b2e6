// Package planner implements the Batch Planner (spec C8): it slices a
// variable set and a time range into TrainingBatch values on a fixed
// window/step grid, assigning each batch a deterministic id so the same
// (variables, range, window, step) always plans identically.
package planner

import (
	"encoding/binary"
	"errors"
	"math"
	"sort"

	"github.com/cespare/xxhash/v2"
)

// TrainingBatch is one unit of work handed to the coordinator: a
// variable subset and a time window, plus bookkeeping the curriculum
// and coordinator attach to it.
type TrainingBatch struct {
	ID               string
	Variables        []string
	WindowStart      float64
	WindowEnd        float64
	ExpectedRowCount int
	Priority         float64
}

// Config controls how a range is sliced into batches.
type Config struct {
	Variables []string
	Start     float64
	End       float64
	Window    float64
	Step      float64 // 0 defaults to Window (non-overlapping)

	// RowsPerUnitTime estimates ExpectedRowCount; 0 leaves it at 0
	// (the planner does not require the data store to size batches).
	RowsPerUnitTime float64
}

func (c Config) withDefaults() Config {
	if c.Step <= 0 {
		c.Step = c.Window
	}
	return c
}

// Plan slices [Start, End) into TrainingBatch values of width Window,
// advancing by Step each time. Step < Window produces overlapping
// batches (for smoothed residual curves); Step == Window (the default)
// produces a non-overlapping partition. Batches come back in time
// order with stable, content-derived ids. An empty variable set or an
// empty range (Start >= End) is not an error — both are valid "nothing
// to train" inputs and yield a nil batch list (spec §8 boundary
// behaviors), leaving Coordinator.Run's own total==0 fast path to
// produce the run summary.
func Plan(cfg Config) ([]TrainingBatch, error) {
	cfg = cfg.withDefaults()
	if cfg.Window <= 0 {
		return nil, errors.New("planner: window must be positive")
	}
	if cfg.Start >= cfg.End {
		return nil, nil
	}
	if len(cfg.Variables) == 0 {
		return nil, nil
	}

	vars := sortedCopy(cfg.Variables)

	var batches []TrainingBatch
	for ws := cfg.Start; ws < cfg.End; ws += cfg.Step {
		we := ws + cfg.Window
		if we > cfg.End {
			we = cfg.End
		}
		if ws >= we {
			break
		}
		batch := TrainingBatch{
			Variables:   vars,
			WindowStart: ws,
			WindowEnd:   we,
		}
		if cfg.RowsPerUnitTime > 0 {
			batch.ExpectedRowCount = int((we - ws) * cfg.RowsPerUnitTime)
		}
		batch.ID = batchID(vars, ws, we)
		batches = append(batches, batch)
	}
	return batches, nil
}

// batchID hashes variables+window_start+window_end, matching the
// teacher's resources.hashKey idiom of turning request shape into a
// stable cache/identity key via xxhash.
func batchID(variables []string, start, end float64) string {
	h := xxhash.New()
	for _, v := range variables {
		_, _ = h.WriteString(v)
		_, _ = h.Write([]byte{0})
	}
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], math.Float64bits(start))
	_, _ = h.Write(buf[:])
	binary.LittleEndian.PutUint64(buf[:], math.Float64bits(end))
	_, _ = h.Write(buf[:])
	return encodeHex(h.Sum64())
}

func sortedCopy(vars []string) []string {
	out := make([]string, len(vars))
	copy(out, vars)
	sort.Strings(out)
	return out
}

const hexDigits = "0123456789abcdef"

func encodeHex(v uint64) string {
	buf := make([]byte, 16)
	for i := 15; i >= 0; i-- {
		buf[i] = hexDigits[v&0xf]
		v >>= 4
	}
	return string(buf)
}
