package coordinator

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"retrograde/planner"
)

// Config controls one Coordinator's worker pool and abort gate.
type Config struct {
	MaxWorkers       int
	QueueDepth       int
	BatchTimeout     time.Duration
	MaxRetries       int
	RetryBaseDelay   time.Duration
	MinSuccessRatio  float64 // 0 disables the abort gate
	MinSampleBatches int

	DistributedQueueAddr string // non-empty activates RedisWorkQueue-backed distributed mode
	DistributedQueueKey  string

	ProgressCallback func(ProgressEvent)
}

func (c Config) withDefaults() Config {
	if c.MaxWorkers <= 0 {
		c.MaxWorkers = maxInt(1, runtime.NumCPU()-1)
	}
	if c.QueueDepth <= 0 {
		c.QueueDepth = 64
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = 100 * time.Millisecond
	}
	if c.MinSampleBatches <= 0 {
		c.MinSampleBatches = 1
	}
	if c.DistributedQueueKey == "" {
		c.DistributedQueueKey = "retrograde:batches"
	}
	return c
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// countVariables returns the number of distinct variable names named
// across every planned batch.
func countVariables(batches []planner.TrainingBatch) int {
	seen := make(map[string]struct{})
	for _, b := range batches {
		for _, v := range b.Variables {
			seen[v] = struct{}{}
		}
	}
	return len(seen)
}

// Coordinator executes a planned batch list with bounded memory, work
// stealing across a fixed worker pool, and a run-level abort gate. A
// single Coordinator is reusable across many Run calls (it holds no
// per-run state).
type Coordinator struct {
	cfg Config
}

func New(cfg Config) *Coordinator {
	return &Coordinator{cfg: cfg.withDefaults()}
}

// Run executes every batch to completion or cancellation and returns
// the aggregated, completion-order-invariant summary. If the run is
// aborted by the success-ratio floor, the returned error is
// ErrRunAborted but summary is still populated (batches that had
// already succeeded are retained, per spec §4.9).
func (c *Coordinator) Run(ctx context.Context, batches []planner.TrainingBatch, exec BatchExecutor) (*RunSummary, error) {
	total := len(batches)
	if total == 0 {
		return &RunSummary{SuccessRate: 1}, nil
	}

	if c.cfg.DistributedQueueAddr != "" {
		return c.runDistributed(ctx, batches, exec)
	}
	return c.runLocal(ctx, batches, exec)
}

func (c *Coordinator) runLocal(ctx context.Context, batches []planner.TrainingBatch, exec BatchExecutor) (*RunSummary, error) {
	cfg := c.cfg
	total := len(batches)

	numWorkers := cfg.MaxWorkers
	if numWorkers > total {
		numWorkers = total
	}

	workerCtx, stopWorkers := context.WithCancel(ctx)
	defer stopWorkers()

	deques := make([]*workerDeque, numWorkers)
	for i := range deques {
		deques[i] = &workerDeque{}
	}

	var mu sync.Mutex
	cond := sync.NewCond(&mu)
	var done atomic.Bool

	resultCh := make(chan TrainingResult, numWorkers*2)

	var wg sync.WaitGroup
	wg.Add(numWorkers)
	for w := 0; w < numWorkers; w++ {
		go c.worker(workerCtx, w, numWorkers, deques, cond, &done, exec, resultCh, &wg, cfg)
	}

	go func() {
		<-workerCtx.Done()
		cond.L.Lock()
		done.Store(true)
		cond.Broadcast()
		cond.L.Unlock()
	}()

	admission := make(chan struct{}, cfg.QueueDepth)
	go func() {
		for i, b := range batches {
			select {
			case admission <- struct{}{}:
			case <-workerCtx.Done():
				return
			}
			deques[i%numWorkers].pushBack(b)
			cond.L.Lock()
			cond.Broadcast()
			cond.L.Unlock()
		}
	}()

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	return aggregate(batches, resultCh, admission, stopWorkers, cfg)
}

// runDistributed bypasses the local work-stealing deques entirely: a
// RedisWorkQueue already gives a globally fair FIFO dispatch across
// however many coordinator processes are pulling from it, so this
// process's workers simply compete directly on pop() — the same
// contract, ordering, and determinism as the local path.
func (c *Coordinator) runDistributed(ctx context.Context, batches []planner.TrainingBatch, exec BatchExecutor) (*RunSummary, error) {
	cfg := c.cfg
	queue := NewRedisWorkQueue(cfg.DistributedQueueAddr, cfg.DistributedQueueKey)
	defer queue.close()

	workerCtx, stopWorkers := context.WithCancel(ctx)
	defer stopWorkers()

	go func() {
		for _, b := range batches {
			if err := queue.push(workerCtx, b); err != nil {
				return
			}
		}
	}()

	resultCh := make(chan TrainingResult, cfg.MaxWorkers*2)
	var wg sync.WaitGroup
	wg.Add(cfg.MaxWorkers)
	for i := 0; i < cfg.MaxWorkers; i++ {
		go func() {
			defer wg.Done()
			for {
				if workerCtx.Err() != nil {
					return
				}
				b, ok, err := queue.pop(workerCtx)
				if err != nil || !ok {
					if workerCtx.Err() != nil {
						return
					}
					continue
				}
				resultCh <- c.executeWithRetry(workerCtx, exec, b, cfg)
			}
		}()
	}
	go func() {
		wg.Wait()
		close(resultCh)
	}()

	admission := make(chan struct{}, len(batches))
	for i := 0; i < len(batches); i++ {
		admission <- struct{}{}
	}
	return aggregate(batches, resultCh, admission, stopWorkers, cfg)
}

func aggregate(batches []planner.TrainingBatch, resultCh <-chan TrainingResult, admission chan struct{}, stopWorkers context.CancelFunc, cfg Config) (*RunSummary, error) {
	total := len(batches)
	summary := &RunSummary{Total: total, Variables: VariablesSummary{Total: countVariables(batches)}}
	completedIDs := make(map[string]bool, total)
	startTime := time.Now()
	var successCount int

	for res := range resultCh {
		completedIDs[res.BatchID] = true
		summary.Results = append(summary.Results, res)
		switch res.Status {
		case BatchSucceeded:
			summary.Succeeded++
			successCount++
		case BatchFailed:
			summary.Failed++
		case BatchCancelled:
			summary.Cancelled++
		}
		select {
		case <-admission:
		default:
		}

		completed := summary.Succeeded + summary.Failed + summary.Cancelled
		if completed == total {
			stopWorkers()
		}
		if cfg.ProgressCallback != nil {
			cfg.ProgressCallback(ProgressEvent{
				Completed:  completed,
				Total:      total,
				InFlight:   total - completed,
				LastResult: res,
			})
		}
		if !summary.Aborted && cfg.MinSuccessRatio > 0 && completed >= cfg.MinSampleBatches {
			ratio := float64(successCount) / float64(completed)
			if ratio < cfg.MinSuccessRatio {
				summary.Aborted = true
				summary.AbortReason = "success ratio below configured floor"
				stopWorkers()
			}
		}
	}

	for _, b := range batches {
		if !completedIDs[b.ID] {
			summary.Results = append(summary.Results, TrainingResult{BatchID: b.ID, Status: BatchCancelled})
			summary.Cancelled++
		}
	}
	summary.WallTime = time.Since(startTime)
	if total > 0 {
		summary.SuccessRate = float64(summary.Succeeded) / float64(total)
	}

	if summary.Aborted {
		return summary, ErrRunAborted
	}
	return summary, nil
}

func (c *Coordinator) worker(
	ctx context.Context,
	id int,
	numWorkers int,
	deques []*workerDeque,
	cond *sync.Cond,
	done *atomic.Bool,
	exec BatchExecutor,
	resultCh chan<- TrainingResult,
	wg *sync.WaitGroup,
	cfg Config,
) {
	defer wg.Done()
	for {
		if ctx.Err() != nil {
			return
		}
		if b, ok := deques[id].popFront(); ok {
			resultCh <- c.executeWithRetry(ctx, exec, b, cfg)
			continue
		}

		stole := false
		for offset := 1; offset < numWorkers; offset++ {
			peer := (id + offset) % numWorkers
			if b, ok := deques[peer].stealBack(); ok {
				resultCh <- c.executeWithRetry(ctx, exec, b, cfg)
				stole = true
				break
			}
		}
		if stole {
			continue
		}

		cond.L.Lock()
		for !done.Load() && !anyDequeHasWork(deques) {
			cond.Wait()
		}
		exit := done.Load() && !anyDequeHasWork(deques)
		cond.L.Unlock()
		if exit {
			return
		}
	}
}

func anyDequeHasWork(deques []*workerDeque) bool {
	for _, d := range deques {
		if d.len() > 0 {
			return true
		}
	}
	return false
}

// executeWithRetry runs one batch, retrying ErrTransient failures with
// bounded exponential backoff up to cfg.MaxRetries. A batch timeout or
// an outer-context cancellation always takes precedence over retry.
func (c *Coordinator) executeWithRetry(ctx context.Context, exec BatchExecutor, batch planner.TrainingBatch, cfg Config) TrainingResult {
	start := time.Now()
	attempt := 0
	for {
		execCtx := ctx
		var cancelTimeout context.CancelFunc
		if cfg.BatchTimeout > 0 {
			execCtx, cancelTimeout = context.WithTimeout(ctx, cfg.BatchTimeout)
		}
		res, err := exec.Execute(execCtx, batch)
		if cancelTimeout != nil {
			cancelTimeout()
		}
		res.BatchID = batch.ID
		res.Duration = time.Since(start)

		if err == nil {
			res.Status = BatchSucceeded
			return res
		}
		if ctx.Err() != nil {
			res.Status = BatchCancelled
			res.Error = err.Error()
			return res
		}
		if errors.Is(err, ErrTransient) && attempt < cfg.MaxRetries {
			attempt++
			timer := time.NewTimer(backoffDelay(cfg.RetryBaseDelay, attempt))
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				res.Status = BatchCancelled
				res.Error = ctx.Err().Error()
				return res
			}
			continue
		}
		res.Status = BatchFailed
		res.Error = err.Error()
		return res
	}
}

func backoffDelay(base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	d := base * time.Duration(uint(1)<<uint(attempt-1))
	const maxDelay = 30 * time.Second
	if d > maxDelay {
		d = maxDelay
	}
	return d
}
