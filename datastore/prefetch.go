package datastore

import (
	"context"
	"sync"
)

type prefetchJob struct {
	ctx      context.Context
	datasetID string
	done     func(*Block, error)
}

// prefetchPool is a bounded executor reading ahead up to K blocks
// concurrently; shutdown waits for in-flight jobs to finish before
// returning (spec §4.7's "wait-for-completion semantics").
type prefetchPool struct {
	jobs    chan prefetchJob
	fetch   func(ctx context.Context, datasetID string) (*Block, error)
	wg      sync.WaitGroup
	closeCh chan struct{}
	once    sync.Once
}

func newPrefetchPool(workers int, fetch func(ctx context.Context, datasetID string) (*Block, error)) *prefetchPool {
	p := &prefetchPool{
		jobs:    make(chan prefetchJob, workers*4),
		fetch:   fetch,
		closeCh: make(chan struct{}),
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

func (p *prefetchPool) worker() {
	defer p.wg.Done()
	for job := range p.jobs {
		block, err := p.fetch(job.ctx, job.datasetID)
		if job.done != nil {
			job.done(block, err)
		}
	}
}

// submit enqueues a prefetch request, dropping it silently if the pool
// is already shutting down or the queue is saturated — prefetch is
// always best-effort, never a correctness requirement.
func (p *prefetchPool) submit(ctx context.Context, datasetID string, done func(*Block, error)) {
	select {
	case p.jobs <- prefetchJob{ctx: ctx, datasetID: datasetID, done: done}:
	case <-p.closeCh:
	default:
	}
}

func (p *prefetchPool) shutdown() {
	p.once.Do(func() {
		close(p.closeCh)
		close(p.jobs)
	})
	p.wg.Wait()
}
