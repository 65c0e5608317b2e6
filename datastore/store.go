package datastore

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Config configures Store construction.
type Config struct {
	Backends        []Backend // tried in order; first available wins
	CacheBudgetBytes int
	PrefetchWorkers int
	ManifestDir     string // optional: watched for dataset add/remove notifications
	StreamBatchSize int
}

func (c Config) withDefaults() Config {
	if c.CacheBudgetBytes <= 0 {
		c.CacheBudgetBytes = 64 << 20 // 64MiB
	}
	if c.PrefetchWorkers <= 0 {
		c.PrefetchWorkers = 4
	}
	if c.StreamBatchSize <= 0 {
		c.StreamBatchSize = 1024
	}
	return c
}

// Store is the Data Store facade (spec C7): Open/Close, Retrieve,
// Stream, Store, all routed through a byte-budget LRU cache in front
// of a fallback chain of Backends, with a bounded prefetch pool.
type Store struct {
	cfg      Config
	cache    *lruCache
	prefetch *prefetchPool
	watcher  *fsnotify.Watcher
	mu       sync.RWMutex
	closed   bool
	stopWatch chan struct{}
	watchWG  sync.WaitGroup

	onManifestChange func(event fsnotify.Event)
}

// Open constructs a Store, opening every configured backend. If a
// backend fails to open, it is dropped from the chain (a later
// Retrieve simply skips it) rather than failing the whole Store — the
// chain's whole point is tolerating partial backend unavailability.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	cfg = cfg.withDefaults()
	if len(cfg.Backends) == 0 {
		return nil, errors.New("datastore: at least one backend required")
	}

	var usable []Backend
	for _, b := range cfg.Backends {
		if err := b.Open(ctx); err != nil {
			continue
		}
		usable = append(usable, b)
	}
	if len(usable) == 0 {
		return nil, fmt.Errorf("%w: no backend opened successfully", ErrBackendUnavailable)
	}
	cfg.Backends = usable

	s := &Store{
		cfg:       cfg,
		cache:     newLRUCache(cfg.CacheBudgetBytes),
		stopWatch: make(chan struct{}),
	}
	s.prefetch = newPrefetchPool(cfg.PrefetchWorkers, s.retrieveUncached)

	if cfg.ManifestDir != "" {
		if w, err := fsnotify.NewWatcher(); err == nil {
			if err := w.Add(cfg.ManifestDir); err == nil {
				s.watcher = w
				s.watchWG.Add(1)
				go s.watchManifest()
			} else {
				_ = w.Close()
			}
		}
	}
	return s, nil
}

// Close terminates the prefetch pool and the manifest watcher before
// returning, then closes every backend.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.prefetch.shutdown()
	if s.watcher != nil {
		close(s.stopWatch)
		s.watchWG.Wait()
		_ = s.watcher.Close()
	}

	var firstErr error
	for _, b := range s.cfg.Backends {
		if err := b.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (s *Store) watchManifest() {
	defer s.watchWG.Done()
	for {
		select {
		case ev, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if s.onManifestChange != nil {
				s.onManifestChange(ev)
			}
		case <-s.watcher.Errors:
		case <-s.stopWatch:
			return
		}
	}
}

// Retrieve returns a full block for datasetID, trying the cache first
// and then each backend in chain order.
func (s *Store) Retrieve(ctx context.Context, datasetID string) (*Block, error) {
	if s.isClosed() {
		return nil, ErrClosed
	}
	if block, ok := s.cache.get(datasetID); ok {
		return block, nil
	}
	block, err := s.retrieveUncached(ctx, datasetID)
	if err != nil {
		return nil, err
	}
	s.cache.put(datasetID, block)
	return block, nil
}

func (s *Store) retrieveUncached(ctx context.Context, datasetID string) (*Block, error) {
	var sawAnyFailure bool
	for _, b := range s.cfg.Backends {
		block, err := b.Retrieve(ctx, datasetID)
		if err == nil {
			return block, nil
		}
		if errors.Is(err, ErrNotFound) {
			continue
		}
		sawAnyFailure = true
	}
	if sawAnyFailure {
		return nil, ErrBackendUnavailable
	}
	return nil, ErrNotFound
}

// Store persists block under datasetID. Writes go to the first backend
// in the chain only (consistent with "atomic from the caller's
// perspective": later backends would otherwise observe a different
// write at a different time).
func (s *Store) Store(ctx context.Context, datasetID string, block *Block) error {
	if s.isClosed() {
		return ErrClosed
	}
	if len(s.cfg.Backends) == 0 {
		return ErrBackendUnavailable
	}
	if err := s.cfg.Backends[0].Store(ctx, datasetID, block); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	s.cache.put(datasetID, block)
	return nil
}

// Stream returns a channel of row-bounded blocks for datasetID, each
// at most batchSize rows, with filter applied in-process to the
// retrieved dataset (see Filter). The channel is closed when the
// dataset is exhausted; it is finite and not restartable.
func (s *Store) Stream(ctx context.Context, datasetID string, filter Filter, batchSize int) (<-chan *Block, error) {
	if s.isClosed() {
		return nil, ErrClosed
	}
	if batchSize <= 0 {
		batchSize = s.cfg.StreamBatchSize
	}
	full, err := s.Retrieve(ctx, datasetID)
	if err != nil {
		return nil, err
	}
	rows := filter.apply(full.Rows)

	out := make(chan *Block)
	go func() {
		defer close(out)
		for start := 0; start < len(rows); start += batchSize {
			end := start + batchSize
			if end > len(rows) {
				end = len(rows)
			}
			chunk := &Block{
				DatasetID: datasetID,
				Rows:      rows[start:end],
				Meta:      full.Meta,
			}
			select {
			case out <- chunk:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Prefetch schedules up to K dataset ids to be warmed into cache ahead
// of need, bounded by the configured worker pool.
func (s *Store) Prefetch(ctx context.Context, datasetIDs []string) {
	for _, id := range datasetIDs {
		id := id
		s.prefetch.submit(ctx, id, func(block *Block, err error) {
			if err == nil {
				s.cache.put(id, block)
			}
		})
	}
}

func (s *Store) isClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}
