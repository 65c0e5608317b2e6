package datastore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	mmap := NewMMapBackend(t.TempDir())
	bunt := NewBuntRowBackend(":memory:")
	s, err := Open(context.Background(), Config{
		Backends:         []Backend{mmap, bunt},
		CacheBudgetBytes: 1 << 20,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStoreAndRetrieveRoundTrip(t *testing.T) {
	s := newTestStore(t)
	block := &Block{DatasetID: "ds1", Rows: []Row{{"x": 1, "y": 2}, {"x": 3, "y": 4}}}

	require.NoError(t, s.Store(context.Background(), "ds1", block))

	got, err := s.Retrieve(context.Background(), "ds1")
	require.NoError(t, err)
	assert.Len(t, got.Rows, 2) // served from cache; Store() primes it directly
}

func TestRetrieveFallsThroughToRowBackend(t *testing.T) {
	bunt := NewBuntRowBackend(":memory:")
	require.NoError(t, bunt.Open(context.Background()))
	block := &Block{DatasetID: "ds2", Rows: []Row{{"x": 1}}}
	require.NoError(t, bunt.Store(context.Background(), "ds2", block))

	mmap := NewMMapBackend(t.TempDir()) // empty — every Retrieve misses

	s, err := Open(context.Background(), Config{Backends: []Backend{mmap, bunt}})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	got, err := s.Retrieve(context.Background(), "ds2")
	require.NoError(t, err)
	assert.Equal(t, "row", got.Meta.Source)
}

func TestRetrieveReturnsNotFoundAcrossAllBackends(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Retrieve(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStreamChunksRespectBatchSize(t *testing.T) {
	s := newTestStore(t)
	rows := make([]Row, 10)
	for i := range rows {
		rows[i] = Row{"x": float64(i)}
	}
	require.NoError(t, s.Store(context.Background(), "ds3", &Block{DatasetID: "ds3", Rows: rows}))

	ch, err := s.Stream(context.Background(), "ds3", Filter{}, 3)
	require.NoError(t, err)

	var total int
	var chunks int
	for block := range ch {
		assert.LessOrEqual(t, len(block.Rows), 3)
		total += len(block.Rows)
		chunks++
	}
	assert.Equal(t, 10, total)
	assert.Equal(t, 4, chunks)
}

func TestStreamAppliesVariableFilter(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Store(context.Background(), "ds4", &Block{
		DatasetID: "ds4",
		Rows:      []Row{{"x": 1, "y": 2, "z": 3}},
	}))

	ch, err := s.Stream(context.Background(), "ds4", Filter{Variables: []string{"x", "z"}}, 10)
	require.NoError(t, err)
	block := <-ch
	require.Len(t, block.Rows, 1)
	assert.Equal(t, Row{"x": 1, "z": 3}, block.Rows[0])
}

func TestCloseIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, err := s.Retrieve(context.Background(), "anything")
	assert.ErrorIs(t, err, ErrClosed)
}
