package metrics

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// Record is one metric observation submitted to the async Collector.
type Record struct {
	Name      string
	Value     float64
	Labels    map[string]string
	Timestamp time.Time
}

// Sink receives flushed records. A sink returning an error is retried
// per the collector's backoff schedule before the error callback fires.
type Sink interface {
	Write(ctx context.Context, rec Record) error
}

// BackpressurePolicy controls what Submit does when the internal queue
// is full.
type BackpressurePolicy int

const (
	// DropOldest pops the oldest queued record to make room, non-blocking.
	DropOldest BackpressurePolicy = iota
	// Block waits (bounded by ctx, if SubmitCtx is used) for room.
	Block
)

// CollectorConfig configures the async metrics collector (spec C6).
type CollectorConfig struct {
	QueueCapacity int
	Policy        BackpressurePolicy
	MaxRetries    int
	RetryBaseWait time.Duration
	// OnPermanentFailure is invoked exactly once per record whose write
	// still fails after the initial attempt and MaxRetries retries.
	OnPermanentFailure func(rec Record, err error)
}

func (c CollectorConfig) withDefaults() CollectorConfig {
	if c.QueueCapacity <= 0 {
		c.QueueCapacity = 1024
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 5
	}
	if c.RetryBaseWait <= 0 {
		c.RetryBaseWait = 50 * time.Millisecond
	}
	return c
}

// Collector is the background-drained bounded queue of metric records,
// modeled on the teacher's telemetry/events.Bus (bounded channel, single
// drain path, counted drops) but terminating in a retrying Sink.Write
// instead of fan-out subscriber channels.
type Collector struct {
	cfg      CollectorConfig
	sink     Sink
	queue    chan Record
	submitted atomic.Uint64
	dropped  atomic.Uint64
	failed   atomic.Uint64
	limiter  *rate.Limiter
	wg       sync.WaitGroup
	mu       sync.Mutex // guards the drop-oldest queue surgery
	closeOnce sync.Once
	doneCh   chan struct{}
}

// NewCollector starts the background drain goroutine immediately.
func NewCollector(sink Sink, cfg CollectorConfig) *Collector {
	cfg = cfg.withDefaults()
	c := &Collector{
		cfg:     cfg,
		sink:    sink,
		queue:   make(chan Record, cfg.QueueCapacity),
		limiter: rate.NewLimiter(rate.Every(cfg.RetryBaseWait), 1),
		doneCh:  make(chan struct{}),
	}
	c.wg.Add(1)
	go c.drain()
	return c
}

// Submit applies the configured backpressure policy if the queue is
// full: under DropOldest it never blocks; under Block it waits for room
// until the collector is closed.
func (c *Collector) Submit(rec Record) {
	c.SubmitCtx(context.Background(), rec)
}

// SubmitCtx behaves like Submit but, under the Block policy, gives up
// if ctx is cancelled before room is available.
func (c *Collector) SubmitCtx(ctx context.Context, rec Record) {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}
	c.submitted.Add(1)

	switch c.cfg.Policy {
	case Block:
		select {
		case c.queue <- rec:
		case <-ctx.Done():
			c.dropped.Add(1)
		case <-c.doneCh:
			c.dropped.Add(1)
		}
	default: // DropOldest
		select {
		case c.queue <- rec:
		default:
			c.mu.Lock()
			select {
			case <-c.queue:
				c.dropped.Add(1)
			default:
			}
			select {
			case c.queue <- rec:
			default:
				c.dropped.Add(1)
			}
			c.mu.Unlock()
		}
	}
}

// Stats is a point-in-time view of collector counters.
type Stats struct {
	Submitted uint64
	Dropped   uint64
	Failed    uint64
	Queued    int
}

func (c *Collector) Stats() Stats {
	return Stats{
		Submitted: c.submitted.Load(),
		Dropped:   c.dropped.Load(),
		Failed:    c.failed.Load(),
		Queued:    len(c.queue),
	}
}

// Close closes the queue and waits up to timeout for the drain
// goroutine to write whatever remains queued. Records still unwritten
// at the deadline are not counted as dropped; the drain goroutine keeps
// writing them after Close returns.
func (c *Collector) Close(timeout time.Duration) {
	c.closeOnce.Do(func() {
		close(c.queue)
		done := make(chan struct{})
		go func() { c.wg.Wait(); close(done) }()
		select {
		case <-done:
		case <-time.After(timeout):
		}
		close(c.doneCh)
	})
}

func (c *Collector) drain() {
	defer c.wg.Done()
	for rec := range c.queue {
		c.writeWithRetry(rec)
	}
}

func (c *Collector) writeWithRetry(rec Record) {
	ctx := context.Background()
	wait := c.cfg.RetryBaseWait
	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			_ = c.limiter.Wait(ctx)
			time.Sleep(wait)
			wait *= 2
		}
		if err := c.sink.Write(ctx, rec); err != nil {
			lastErr = err
			continue
		}
		return
	}
	c.failed.Add(1)
	if c.cfg.OnPermanentFailure != nil {
		c.cfg.OnPermanentFailure(rec, lastErr)
	}
}

// ProviderSink adapts a Provider's counter family into a Sink, letting
// the async collector front a Prometheus/OTel Provider: Record.Name
// selects (or lazily creates) a Counter, and Value is added to it.
type ProviderSink struct {
	provider Provider
	mu       sync.Mutex
	counters map[string]Counter
}

func NewProviderSink(provider Provider) *ProviderSink {
	return &ProviderSink{provider: provider, counters: make(map[string]Counter)}
}

func (s *ProviderSink) Write(_ context.Context, rec Record) error {
	s.mu.Lock()
	counter, ok := s.counters[rec.Name]
	if !ok {
		counter = s.provider.NewCounter(CounterOpts{CommonOpts: CommonOpts{Name: rec.Name, Help: "collected metric " + rec.Name}})
		s.counters[rec.Name] = counter
	}
	s.mu.Unlock()
	counter.Inc(rec.Value)
	return nil
}
