// Package trustbuffer implements the Trust Update Buffer (spec C5): an
// in-memory aggregator that collects per-rule (successes, failures)
// outcomes and periodically flushes them into a trust.Tracker as a
// single batch_update call per flush, so a burst of updates for one
// rule costs exactly one shard-lock acquisition. Modeled on the
// teacher's resources.Manager checkpoint loop — a ticker plus a
// bounded channel plus an explicit, fully-draining Close.
package trustbuffer

import (
	"sync"
	"time"

	"retrograde/trust"
)

// outcome is one enqueued observation, consumed only by the background
// flush loop.
type outcome struct {
	ruleID  string
	success bool
}

// Config controls the flush triggers.
type Config struct {
	// FlushThreshold: flush once this many outcomes have been
	// aggregated since the last flush.
	FlushThreshold int
	// AutoFlushInterval: flush at least this often regardless of size.
	AutoFlushInterval time.Duration
	// QueueCapacity bounds the enqueue channel; Enqueue blocks once full
	// (the spec makes no backpressure promise for this component, unlike
	// C6, so blocking is the simplest correct choice).
	QueueCapacity int
}

func (c Config) withDefaults() Config {
	if c.FlushThreshold <= 0 {
		c.FlushThreshold = 256
	}
	if c.AutoFlushInterval <= 0 {
		c.AutoFlushInterval = 100 * time.Millisecond
	}
	if c.QueueCapacity <= 0 {
		c.QueueCapacity = 4096
	}
	return c
}

// Buffer is the background-flushed aggregator. Enqueue is safe to call
// from many goroutines; the flush loop runs on a single goroutine
// owned by the Buffer.
type Buffer struct {
	cfg       Config
	tracker   *trust.Tracker
	inCh      chan outcome
	flushCh   chan chan struct{}
	doneCh    chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// New starts the background flush loop immediately; callers must call
// Close to stop it and drain any buffered outcomes.
func New(tracker *trust.Tracker, cfg Config) *Buffer {
	cfg = cfg.withDefaults()
	b := &Buffer{
		cfg:     cfg,
		tracker: tracker,
		inCh:    make(chan outcome, cfg.QueueCapacity),
		flushCh: make(chan chan struct{}),
		doneCh:  make(chan struct{}),
	}
	b.wg.Add(1)
	go b.loop()
	return b
}

// Enqueue records one rule outcome for later aggregation. Blocks only
// if the internal queue is completely full, which under normal
// operation (flush threshold well below capacity) should not happen.
func (b *Buffer) Enqueue(ruleID string, success bool) {
	select {
	case b.inCh <- outcome{ruleID: ruleID, success: success}:
	case <-b.doneCh:
	}
}

// Flush requests an immediate flush and blocks until the background
// loop has applied it.
func (b *Buffer) Flush() {
	ack := make(chan struct{})
	select {
	case b.flushCh <- ack:
		<-ack
	case <-b.doneCh:
	}
}

// Close stops the background loop and synchronously drains every
// outcome enqueued before the call returns — the one guarantee spec
// §4.5 requires of close().
func (b *Buffer) Close() {
	b.closeOnce.Do(func() {
		close(b.inCh)
		b.wg.Wait()
	})
}

func (b *Buffer) loop() {
	defer b.wg.Done()
	ticker := time.NewTicker(b.cfg.AutoFlushInterval)
	defer ticker.Stop()

	agg := make(map[string]*trust.Delta)
	pending := 0

	flush := func() {
		if pending == 0 {
			return
		}
		deltas := make([]trust.Delta, 0, len(agg))
		for _, d := range agg {
			deltas = append(deltas, *d)
		}
		b.tracker.BatchUpdate(deltas)
		for k := range agg {
			delete(agg, k)
		}
		pending = 0
	}

	add := func(o outcome) {
		d, ok := agg[o.ruleID]
		if !ok {
			d = &trust.Delta{RuleID: o.ruleID}
			agg[o.ruleID] = d
		}
		if o.success {
			d.Successes++
		} else {
			d.Failures++
		}
		pending++
		if pending >= b.cfg.FlushThreshold {
			flush()
		}
	}

	for {
		select {
		case o, ok := <-b.inCh:
			if !ok {
				// drain whatever remains buffered in the channel (there is
				// none once closed-and-empty) then flush and exit.
				flush()
				close(b.doneCh)
				return
			}
			add(o)
		case <-ticker.C:
			flush()
		case ack := <-b.flushCh:
			flush()
			close(ack)
		}
	}
}
