package coordinator

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"retrograde/planner"
)

// workQueue is the push/pop contract of a batch queue. RedisWorkQueue
// implements it for the distributed mode (spec §4.9 "Distributed
// mode"), where runDistributed's workers pop batches from it directly.
// The local path does not go through a workQueue: runLocal hands
// batches straight to the per-worker deques.
type workQueue interface {
	push(ctx context.Context, batch planner.TrainingBatch) error
	pop(ctx context.Context) (planner.TrainingBatch, bool, error)
	close()
}

// memQueue is a bounded in-process channel implementation of workQueue:
// push blocks while the queue is full, until ctx is done. Neither run
// path constructs one.
type memQueue struct {
	ch chan planner.TrainingBatch
}

func newMemQueue(depth int) *memQueue {
	if depth <= 0 {
		depth = 1
	}
	return &memQueue{ch: make(chan planner.TrainingBatch, depth)}
}

func (q *memQueue) push(ctx context.Context, batch planner.TrainingBatch) error {
	select {
	case q.ch <- batch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *memQueue) pop(ctx context.Context) (planner.TrainingBatch, bool, error) {
	select {
	case b, ok := <-q.ch:
		return b, ok, nil
	case <-ctx.Done():
		return planner.TrainingBatch{}, false, ctx.Err()
	}
}

func (q *memQueue) close() { close(q.ch) }

// RedisWorkQueue backs the bounded intake with a Redis list, so the
// work queue itself (not just its consumers) can be shared across
// processes. Push is LPUSH, pop is a blocking BRPOP — the same
// producer/consumer ordering the in-memory channel gives.
type RedisWorkQueue struct {
	client *redis.Client
	key    string
	closed chan struct{}
}

func NewRedisWorkQueue(addr, key string) *RedisWorkQueue {
	return &RedisWorkQueue{
		client: redis.NewClient(&redis.Options{Addr: addr}),
		key:    key,
		closed: make(chan struct{}),
	}
}

func (q *RedisWorkQueue) push(ctx context.Context, batch planner.TrainingBatch) error {
	data, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("coordinator: encode batch for redis queue: %w", err)
	}
	return q.client.LPush(ctx, q.key, data).Err()
}

func (q *RedisWorkQueue) pop(ctx context.Context) (planner.TrainingBatch, bool, error) {
	res, err := q.client.BRPop(ctx, 0, q.key).Result()
	if err != nil {
		select {
		case <-q.closed:
			return planner.TrainingBatch{}, false, nil
		default:
		}
		return planner.TrainingBatch{}, false, err
	}
	if len(res) < 2 {
		return planner.TrainingBatch{}, false, fmt.Errorf("coordinator: malformed redis BRPOP reply")
	}
	var batch planner.TrainingBatch
	if err := json.Unmarshal([]byte(res[1]), &batch); err != nil {
		return planner.TrainingBatch{}, false, fmt.Errorf("coordinator: decode batch from redis queue: %w", err)
	}
	return batch, true, nil
}

func (q *RedisWorkQueue) close() {
	select {
	case <-q.closed:
	default:
		close(q.closed)
	}
	_ = q.client.Close()
}
