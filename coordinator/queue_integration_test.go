package coordinator

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"retrograde/planner"
)

// TestRedisWorkQueuePushPopRoundTrip exercises RedisWorkQueue's push/pop
// ordering against a real Redis container (skipped when Docker is
// unavailable), grounded on the same testcontainers pattern used for
// the datastore's mongo backend.
func TestRedisWorkQueuePushPopRoundTrip(t *testing.T) {
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	if err != nil {
		t.Skipf("docker not available, skipping redis work queue integration test: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	q := NewRedisWorkQueue(fmt.Sprintf("%s:%s", host, port.Port()), t.Name())
	t.Cleanup(q.close)

	batch := planner.TrainingBatch{ID: "b1", Variables: []string{"price"}, WindowStart: 0, WindowEnd: 1}
	require.NoError(t, q.push(ctx, batch))

	got, ok, err := q.pop(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, batch, got)
}
