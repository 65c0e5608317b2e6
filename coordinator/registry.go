package coordinator

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"retrograde/planner"
)

// RunRequest is the logical input to SubmitRun (spec §6.1): the
// already-planned batches, the executor that runs each one, and the
// resolved coordinator Config (planning itself is the caller's
// responsibility — RunRegistry only schedules and tracks execution).
type RunRequest struct {
	Batches  []planner.TrainingBatch
	Executor BatchExecutor
	Config   Config
}

// RunStatus is the snapshot returned by GetStatus.
type RunStatus struct {
	State       RunState
	Progress    float64
	InFlight    int
	ETAEstimate time.Duration
}

type run struct {
	mu       sync.Mutex
	id       string
	state    RunState
	progress float64
	inFlight int
	summary  *RunSummary
	err      error
	cancel   context.CancelFunc
	events   []ProgressEvent
	subs     []chan ProgressEvent
	done     chan struct{}
}

// RunRegistry is the in-memory, library-level implementation of the
// §6.1 Coordinator API: SubmitRun/GetStatus/Cancel/GetResults/
// StreamEvents as plain Go methods. An HTTP or RPC layer embeds this
// and translates requests/responses across the wire; the operations
// themselves are transport-neutral, as the spec requires.
type RunRegistry struct {
	mu   sync.RWMutex
	runs map[string]*run
}

func NewRunRegistry() *RunRegistry {
	return &RunRegistry{runs: make(map[string]*run)}
}

// SubmitRun plans nothing itself — it accepts an already-planned batch
// list and executor, assigns a run id, and starts execution
// asynchronously on a Coordinator built from req.Config.
func (reg *RunRegistry) SubmitRun(ctx context.Context, req RunRequest) (string, error) {
	id := uuid.NewString()
	runCtx, cancel := context.WithCancel(ctx)

	r := &run{
		id:     id,
		state:  RunQueued,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	reg.mu.Lock()
	reg.runs[id] = r
	reg.mu.Unlock()

	req.Config.ProgressCallback = func(ev ProgressEvent) {
		ev.RunID = id
		r.mu.Lock()
		r.inFlight = ev.InFlight
		if ev.Total > 0 {
			r.progress = float64(ev.Completed) / float64(ev.Total)
		}
		r.events = append(r.events, ev)
		subs := append([]chan ProgressEvent(nil), r.subs...)
		r.mu.Unlock()
		for _, s := range subs {
			select {
			case s <- ev:
			default:
			}
		}
	}

	co := New(req.Config)
	go func() {
		r.mu.Lock()
		r.state = RunRunning
		r.mu.Unlock()

		summary, err := co.Run(runCtx, req.Batches, req.Executor)

		r.mu.Lock()
		r.summary = summary
		r.err = err
		switch {
		case runCtx.Err() != nil:
			r.state = RunCancelled
		case err == nil:
			r.state = RunCompleted
		default:
			r.state = RunFailed
		}
		subs := append([]chan ProgressEvent(nil), r.subs...)
		r.subs = nil
		r.mu.Unlock()
		for _, s := range subs {
			close(s)
		}
		close(r.done)
	}()

	return id, nil
}

// GetStatus returns a point-in-time snapshot of run progress.
func (reg *RunRegistry) GetStatus(runID string) (RunStatus, error) {
	r, err := reg.get(runID)
	if err != nil {
		return RunStatus{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return RunStatus{State: r.state, Progress: r.progress, InFlight: r.inFlight}, nil
}

// Cancel requests cooperative cancellation of an in-flight run. It is
// a no-op error (ErrAlreadyTerminal) if the run has already finished.
func (reg *RunRegistry) Cancel(runID string) error {
	r, err := reg.get(runID)
	if err != nil {
		return err
	}
	r.mu.Lock()
	state := r.state
	cancel := r.cancel
	r.mu.Unlock()
	if state == RunCompleted || state == RunFailed || state == RunCancelled {
		return ErrAlreadyTerminal
	}
	cancel()
	return nil
}

// GetResults blocks until the run reaches a terminal state (or ctx is
// cancelled) and returns its summary.
func (reg *RunRegistry) GetResults(ctx context.Context, runID string) (*RunSummary, error) {
	r, err := reg.get(runID)
	if err != nil {
		return nil, err
	}
	select {
	case <-r.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.summary, nil
}

// StreamEvents returns a channel of progress events for an in-flight
// run; the channel is closed when the run reaches a terminal state. A
// slow subscriber drops events rather than backpressuring the run
// (progress streaming is best-effort, unlike trust/metrics delivery).
func (reg *RunRegistry) StreamEvents(runID string) (<-chan ProgressEvent, error) {
	r, err := reg.get(runID)
	if err != nil {
		return nil, err
	}
	ch := make(chan ProgressEvent, 32)
	r.mu.Lock()
	select {
	case <-r.done:
		r.mu.Unlock()
		close(ch)
		return ch, nil
	default:
	}
	r.subs = append(r.subs, ch)
	r.mu.Unlock()
	return ch, nil
}

func (reg *RunRegistry) get(runID string) (*run, error) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	r, ok := reg.runs[runID]
	if !ok {
		return nil, ErrRunNotFound
	}
	return r, nil
}
