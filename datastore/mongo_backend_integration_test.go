package datastore

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// TestMongoRowBackendRoundTrip exercises MongoRowBackend against a real
// MongoDB container (skipped when Docker is unavailable), the same way
// the pack's goadesign-goa-ai mongo store tests do.
func TestMongoRowBackendRoundTrip(t *testing.T) {
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "mongo:7",
			ExposedPorts: []string{"27017/tcp"},
			WaitingFor:   wait.ForLog("Waiting for connections"),
		},
		Started: true,
	})
	if err != nil {
		t.Skipf("docker not available, skipping mongo backend integration test: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "27017")
	require.NoError(t, err)

	backend := NewMongoRowBackend(MongoRowBackendOptions{
		URI:        fmt.Sprintf("mongodb://%s:%s", host, port.Port()),
		Database:   "retrograde_test",
		Collection: t.Name(),
	})
	require.NoError(t, backend.Open(ctx))
	t.Cleanup(func() { _ = backend.Close() })

	block := &Block{
		DatasetID: "batch-1",
		Rows:      []Row{{"price": 1.5}},
	}
	require.NoError(t, backend.Store(ctx, "batch-1", block))

	got, err := backend.Retrieve(ctx, "batch-1")
	require.NoError(t, err)
	require.Equal(t, "batch-1", got.DatasetID)
	require.Len(t, got.Rows, 1)
	require.Equal(t, 1.5, got.Rows[0]["price"])

	_, err = backend.Retrieve(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)
}
