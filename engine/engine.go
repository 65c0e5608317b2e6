// Package engine composes every subsystem behind a single facade —
// worldstate, rules, turn, trust, trustbuffer, telemetry, datastore,
// planner, curriculum, coordinator, pipeline, persistence, and audit —
// the same facade role the teacher's own engine.Engine plays over its
// crawl/process/output subsystems (New/Start/Stop/Snapshot).
package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"retrograde/audit"
	"retrograde/config"
	"retrograde/coordinator"
	"retrograde/curriculum"
	"retrograde/datastore"
	"retrograde/persistence"
	"retrograde/pipeline"
	"retrograde/planner"
	"retrograde/rules"
	"retrograde/telemetry/logging"
	"retrograde/telemetry/metrics"
	"retrograde/trust"
	"retrograde/trustbuffer"
)

// Snapshot is a unified, read-only view of engine state for diagnostics
// and health endpoints.
type Snapshot struct {
	StartedAt    time.Time
	Uptime       time.Duration
	MetricsStats metrics.Stats
	RunCount     int
}

// Engine wires every subsystem together and exposes the lifecycle and
// run-submission surface a host process actually needs: New to build
// it from a config.Config and a frozen rules.Registry, Start/Stop to
// bound its background goroutines (trust buffer flush, metrics
// collector), SubmitRun to start a training run and GetStatus/
// GetResults/StreamEvents to follow it, and Snapshot for diagnostics.
type Engine struct {
	cfg      config.Config
	registry *rules.Registry

	store   *datastore.Store
	tracker *trust.Tracker
	buffer  *trustbuffer.Buffer
	metrics *metrics.Collector
	logger  logging.Logger
	auditW  *audit.Writer
	runs    *coordinator.RunRegistry

	started   atomic.Bool
	startedAt time.Time

	mu       sync.Mutex
	runCount int
}

// New constructs an Engine. The registry must already be frozen
// (rules.Registry.Freeze) — New does not mutate it.
func New(cfg config.Config, registry *rules.Registry, store *datastore.Store, sink metrics.Sink, logger logging.Logger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("engine: invalid config: %w", err)
	}
	if !registry.Frozen() {
		return nil, fmt.Errorf("engine: registry must be frozen before New")
	}

	tracker := trust.NewTracker(cfg.Trust.HalfLifeTurns)
	buf := trustbuffer.New(tracker, trustbuffer.Config{
		FlushThreshold:    cfg.Trust.FlushThreshold,
		AutoFlushInterval: cfg.Trust.FlushInterval,
	})

	var collector *metrics.Collector
	if sink != nil {
		collector = metrics.NewCollector(sink, metrics.CollectorConfig{QueueCapacity: cfg.Metrics.QueueSize})
	}

	var auditW *audit.Writer
	if cfg.Audit.Dir != "" {
		w, err := audit.Open(cfg.Audit.Dir + "/trail.jsonl")
		if err != nil {
			return nil, fmt.Errorf("engine: opening audit log: %w", err)
		}
		auditW = w
	}

	return &Engine{
		cfg:      cfg,
		registry: registry,
		store:    store,
		tracker:  tracker,
		buffer:   buf,
		metrics:  collector,
		logger:   logger,
		auditW:   auditW,
		runs:     coordinator.NewRunRegistry(),
	}, nil
}

// Start marks the engine as running. Idempotent.
func (e *Engine) Start(context.Context) error {
	if e.started.CompareAndSwap(false, true) {
		e.startedAt = time.Now()
	}
	return nil
}

// Stop drains background workers and closes owned resources. Safe to
// call more than once.
func (e *Engine) Stop() error {
	if !e.started.CompareAndSwap(true, false) {
		return nil
	}
	e.buffer.Close()
	if e.metrics != nil {
		e.metrics.Close(5 * time.Second)
	}
	if e.auditW != nil {
		_ = e.auditW.Close()
	}
	if e.store != nil {
		return e.store.Close()
	}
	return nil
}

// SubmitRun plans a batch list from planCfg, optionally curriculum-
// reweighs it, and submits it to the coordinator's run registry,
// returning a run id the caller polls/streams via GetStatus/
// GetResults/StreamEvents.
func (e *Engine) SubmitRun(ctx context.Context, planCfg planner.Config, executor coordinator.BatchExecutor) (string, error) {
	batches, err := planner.Plan(planCfg)
	if err != nil {
		return "", fmt.Errorf("engine: planning batches: %w", err)
	}
	if e.cfg.Curriculum.Enabled {
		batches = curriculum.Weigh(batches, curriculum.Weigher{
			ReadSets: e.registry.ReadSets(),
			Tracker:  e.tracker,
		})
	}

	e.mu.Lock()
	e.runCount++
	e.mu.Unlock()

	return e.runs.SubmitRun(ctx, coordinator.RunRequest{
		Batches:  batches,
		Executor: executor,
		Config: coordinator.Config{
			MaxWorkers:       e.cfg.Coordinator.MaxWorkers,
			QueueDepth:       e.cfg.Coordinator.QueueDepth,
			BatchTimeout:     e.cfg.Coordinator.BatchTimeout,
			MaxRetries:       e.cfg.Coordinator.MaxRetries,
			RetryBaseDelay:   e.cfg.Coordinator.RetryBaseDelay,
			MinSuccessRatio:  e.cfg.Coordinator.MinSuccessRatio,
			MinSampleBatches: e.cfg.Coordinator.MinSampleBatches,
			DistributedQueueAddr: e.cfg.Coordinator.DistributedQueueAddr,
		},
	})
}

// NewTrainer builds the default BatchExecutor (pipeline.BatchTrainer)
// wired to this engine's store, registry, and tracker — the executor
// most callers pass to SubmitRun unless they need a test double.
func (e *Engine) NewTrainer() coordinator.BatchExecutor {
	return &pipeline.BatchTrainer{Store: e.store, Registry: e.registry, Tracker: e.tracker, Audit: e.auditW}
}

// GetStatus, GetResults, Cancel, and StreamEvents simply forward to the
// internal RunRegistry — see coordinator.RunRegistry for semantics.
func (e *Engine) GetStatus(runID string) (coordinator.RunStatus, error) { return e.runs.GetStatus(runID) }
func (e *Engine) GetResults(ctx context.Context, runID string) (*coordinator.RunSummary, error) {
	summary, err := e.runs.GetResults(ctx, runID)
	if err != nil {
		return nil, err
	}
	pipeline.EnrichSummary(summary, e.cfg, e.tracker)
	return summary, nil
}
func (e *Engine) Cancel(runID string) error { return e.runs.Cancel(runID) }
func (e *Engine) StreamEvents(runID string) (<-chan coordinator.ProgressEvent, error) {
	return e.runs.StreamEvents(runID)
}

// PersistResults writes a completed run's summary to disk (and,
// if configured, attempts a remote upload), per persistence.Persist.
// The upload goes through persistence.NewS3Uploader; an uploader that
// cannot be built is reported in the result's UploadErr.
func (e *Engine) PersistResults(ctx context.Context, runID string, summary *coordinator.RunSummary) (persistence.Result, error) {
	pipeline.EnrichSummary(summary, e.cfg, e.tracker)
	pcfg := persistence.Config{LocalDir: e.cfg.Persistence.LocalDir, RemoteURI: e.cfg.Persistence.RemoteResultsURI}
	var uploaderErr error
	if pcfg.RemoteURI != "" {
		var up *persistence.S3Uploader
		if up, uploaderErr = persistence.NewS3Uploader(ctx); uploaderErr == nil {
			pcfg.Uploader = up
		}
	}
	res, err := persistence.Persist(ctx, runID, summary, pcfg)
	if err == nil && uploaderErr != nil {
		res.UploadErr = uploaderErr.Error()
	}
	if err == nil && summary != nil {
		summary.RemoteURI = res.RemoteURI
	}
	return res, err
}

// Tracker exposes the trust tracker directly for callers that need the
// low-level API (snapshot/restore across process restarts).
func (e *Engine) Tracker() *trust.Tracker { return e.tracker }

// Snapshot returns a point-in-time diagnostic view.
func (e *Engine) Snapshot() Snapshot {
	snap := Snapshot{StartedAt: e.startedAt}
	if snap.StartedAt.IsZero() {
		snap.StartedAt = time.Now()
	}
	snap.Uptime = time.Since(snap.StartedAt)
	if e.metrics != nil {
		snap.MetricsStats = e.metrics.Stats()
	}
	e.mu.Lock()
	snap.RunCount = e.runCount
	e.mu.Unlock()
	return snap
}
