package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultValidates(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestValidateRejectsNegativeMaxWorkers(t *testing.T) {
	c := Default()
	c.Coordinator.MaxWorkers = -1
	assert.Error(t, c.Validate())
}

func TestValidateRejectsOutOfRangeSuccessRatio(t *testing.T) {
	c := Default()
	c.Coordinator.MinSuccessRatio = 1.5
	assert.Error(t, c.Validate())

	c.Coordinator.MinSuccessRatio = -0.1
	assert.Error(t, c.Validate())
}

func TestValidateRejectsNegativeCacheBytes(t *testing.T) {
	c := Default()
	c.DataStore.CacheBytes = -1
	assert.Error(t, c.Validate())
}

func TestValidateRejectsUnknownDropPolicy(t *testing.T) {
	c := Default()
	c.Metrics.DropPolicy = "explode"
	assert.Error(t, c.Validate())
}

func TestValidateRejectsNegativeFlushThreshold(t *testing.T) {
	c := Default()
	c.Trust.FlushThreshold = -5
	assert.Error(t, c.Validate())
}

func TestValidateRejectsNegativeCheckpointInterval(t *testing.T) {
	c := Default()
	c.Audit.CheckpointIntervalTurns = -1
	assert.Error(t, c.Validate())
}

func TestDefaultFieldsAreSane(t *testing.T) {
	c := Default()
	assert.Equal(t, 64, c.Coordinator.QueueDepth)
	assert.Equal(t, 2, c.Coordinator.MaxRetries)
	assert.Equal(t, 100*time.Millisecond, c.Coordinator.RetryBaseDelay)
	assert.True(t, c.Curriculum.Enabled)
}

func TestFromEnvOverridesNamedOptions(t *testing.T) {
	t.Setenv("RETROGRADE_MAX_WORKERS", "7")
	t.Setenv("RETROGRADE_BATCH_TIMEOUT", "30s")
	t.Setenv("RETROGRADE_MIN_SUCCESS_RATIO", "0.8")
	t.Setenv("RETROGRADE_CURRICULUM_ENABLED", "false")
	t.Setenv("RETROGRADE_REMOTE_RESULTS_URI", "s3://bucket/results")

	c := FromEnv(Default())
	assert.Equal(t, 7, c.Coordinator.MaxWorkers)
	assert.Equal(t, 30*time.Second, c.Coordinator.BatchTimeout)
	assert.Equal(t, 0.8, c.Coordinator.MinSuccessRatio)
	assert.False(t, c.Curriculum.Enabled)
	assert.Equal(t, "s3://bucket/results", c.Persistence.RemoteResultsURI)
}

func TestFromEnvLeavesUnsetOptionsAtBase(t *testing.T) {
	base := Default()
	c := FromEnv(base)
	assert.Equal(t, base, c)
}

func TestFromEnvIgnoresMalformedValues(t *testing.T) {
	t.Setenv("RETROGRADE_MAX_WORKERS", "not-a-number")
	base := Default()
	c := FromEnv(base)
	assert.Equal(t, base.Coordinator.MaxWorkers, c.Coordinator.MaxWorkers)
}
