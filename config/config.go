// Package config is the ambient Config surface (spec §6.5): every
// recognized option as a struct field, environment-variable overrides,
// and a Validate() that fans out to one validator per subsystem,
// mirroring the teacher's UnifiedBusinessConfig composition.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config is the resolved, fully-defaulted configuration for one run.
// yaml tags mirror the field names so a config file can be loaded
// directly with gopkg.in/yaml.v3.
type Config struct {
	Coordinator  CoordinatorConfig  `yaml:"coordinator"`
	DataStore    DataStoreConfig    `yaml:"data_store"`
	Metrics      MetricsConfig      `yaml:"metrics"`
	Trust        TrustConfig        `yaml:"trust"`
	Audit        AuditConfig        `yaml:"audit"`
	Curriculum   CurriculumConfig   `yaml:"curriculum"`
	Persistence  PersistenceConfig  `yaml:"persistence"`
}

type CoordinatorConfig struct {
	MaxWorkers       int           `yaml:"max_workers"`
	BatchWindow      float64       `yaml:"batch_window"`
	BatchStep        float64       `yaml:"batch_step"`
	QueueDepth       int           `yaml:"queue_depth"`
	BatchTimeout     time.Duration `yaml:"batch_timeout"`
	MaxRetries       int           `yaml:"max_retries"`
	RetryBaseDelay   time.Duration `yaml:"retry_base_delay"`
	MinSuccessRatio  float64       `yaml:"min_success_ratio"`
	MinSampleBatches int           `yaml:"min_sample_batches"`
	DistributedQueueAddr string   `yaml:"distributed_queue_addr"`
}

type DataStoreConfig struct {
	CacheBytes     int64  `yaml:"cache_bytes"`
	PrefetchBlocks int    `yaml:"prefetch_blocks"`
	ManifestDir    string `yaml:"manifest_dir"`
}

type MetricsConfig struct {
	QueueSize   int    `yaml:"metrics_queue_size"`
	DropPolicy  string `yaml:"metrics_drop_policy"` // "drop_oldest" | "block"
}

type TrustConfig struct {
	FlushThreshold  int           `yaml:"trust_flush_threshold"`
	FlushInterval   time.Duration `yaml:"trust_flush_interval"`
	HalfLifeTurns   uint64        `yaml:"half_life_turns"`
}

type AuditConfig struct {
	CheckpointIntervalTurns int    `yaml:"checkpoint_interval_turns"`
	Dir                     string `yaml:"dir"`
}

type CurriculumConfig struct {
	Enabled bool `yaml:"curriculum_enabled"`
}

type PersistenceConfig struct {
	LocalDir       string `yaml:"local_dir"`
	RemoteResultsURI string `yaml:"remote_results_uri"`
}

// Default returns a Config with every option set to the value named in
// spec §6.5 as the default (CPU-1 workers, etc).
func Default() Config {
	return Config{
		Coordinator: CoordinatorConfig{
			MaxWorkers:       0, // resolved to CPU-1 by coordinator.Config.withDefaults
			QueueDepth:       64,
			MaxRetries:       2,
			RetryBaseDelay:   100 * time.Millisecond,
			MinSampleBatches: 1,
		},
		DataStore: DataStoreConfig{
			CacheBytes:     64 << 20,
			PrefetchBlocks: 4,
		},
		Metrics: MetricsConfig{
			QueueSize:  1024,
			DropPolicy: "drop_oldest",
		},
		Trust: TrustConfig{
			FlushThreshold: 64,
			FlushInterval:  time.Second,
		},
		Audit: AuditConfig{
			CheckpointIntervalTurns: 10,
			Dir:                     "./audit",
		},
		Curriculum: CurriculumConfig{Enabled: true},
		Persistence: PersistenceConfig{
			LocalDir: "./results",
		},
	}
}

// envPrefix namespaces every override so RETROGRADE_MAX_WORKERS can't
// collide with an unrelated variable in the embedding process's
// environment.
const envPrefix = "RETROGRADE_"

// FromEnv returns base with every option named in spec §6.5 replaced
// by its RETROGRADE_-prefixed environment variable, when set. It reads
// the process environment itself, through os.LookupEnv. Malformed
// values are left as base's value rather than failing — Validate()
// catches the result either way.
func FromEnv(base Config) Config {
	c := base

	envInt(&c.Coordinator.MaxWorkers, "MAX_WORKERS")
	envFloat(&c.Coordinator.BatchWindow, "BATCH_WINDOW")
	envFloat(&c.Coordinator.BatchStep, "BATCH_STEP")
	envInt(&c.Coordinator.QueueDepth, "QUEUE_DEPTH")
	envDuration(&c.Coordinator.BatchTimeout, "BATCH_TIMEOUT")
	envInt(&c.Coordinator.MaxRetries, "MAX_RETRIES")
	envDuration(&c.Coordinator.RetryBaseDelay, "RETRY_BASE_DELAY")
	envFloat(&c.Coordinator.MinSuccessRatio, "MIN_SUCCESS_RATIO")
	envInt(&c.Coordinator.MinSampleBatches, "MIN_SAMPLE_BATCHES")
	envString(&c.Coordinator.DistributedQueueAddr, "DISTRIBUTED_QUEUE_ADDR")

	envInt64(&c.DataStore.CacheBytes, "CACHE_BYTES")
	envInt(&c.DataStore.PrefetchBlocks, "PREFETCH_BLOCKS")
	envString(&c.DataStore.ManifestDir, "MANIFEST_DIR")

	envInt(&c.Metrics.QueueSize, "METRICS_QUEUE_SIZE")
	envString(&c.Metrics.DropPolicy, "METRICS_DROP_POLICY")

	envInt(&c.Trust.FlushThreshold, "TRUST_FLUSH_THRESHOLD")
	envDuration(&c.Trust.FlushInterval, "TRUST_FLUSH_INTERVAL")
	envUint64(&c.Trust.HalfLifeTurns, "HALF_LIFE_TURNS")

	envInt(&c.Audit.CheckpointIntervalTurns, "CHECKPOINT_INTERVAL_TURNS")
	envString(&c.Audit.Dir, "AUDIT_DIR")

	envBool(&c.Curriculum.Enabled, "CURRICULUM_ENABLED")

	envString(&c.Persistence.LocalDir, "LOCAL_DIR")
	envString(&c.Persistence.RemoteResultsURI, "REMOTE_RESULTS_URI")

	return c
}

func envString(dst *string, name string) {
	if v, ok := os.LookupEnv(envPrefix + name); ok {
		*dst = v
	}
}

func envBool(dst *bool, name string) {
	v, ok := os.LookupEnv(envPrefix + name)
	if !ok {
		return
	}
	if b, err := strconv.ParseBool(v); err == nil {
		*dst = b
	}
}

func envInt(dst *int, name string) {
	v, ok := os.LookupEnv(envPrefix + name)
	if !ok {
		return
	}
	if n, err := strconv.Atoi(v); err == nil {
		*dst = n
	}
}

func envInt64(dst *int64, name string) {
	v, ok := os.LookupEnv(envPrefix + name)
	if !ok {
		return
	}
	if n, err := strconv.ParseInt(v, 10, 64); err == nil {
		*dst = n
	}
}

func envUint64(dst *uint64, name string) {
	v, ok := os.LookupEnv(envPrefix + name)
	if !ok {
		return
	}
	if n, err := strconv.ParseUint(v, 10, 64); err == nil {
		*dst = n
	}
}

func envFloat(dst *float64, name string) {
	v, ok := os.LookupEnv(envPrefix + name)
	if !ok {
		return
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		*dst = f
	}
}

func envDuration(dst *time.Duration, name string) {
	v, ok := os.LookupEnv(envPrefix + name)
	if !ok {
		return
	}
	if d, err := time.ParseDuration(v); err == nil {
		*dst = d
	}
}

// Validate fans out to one validator per subsystem, matching the
// teacher's UnifiedBusinessConfig.Validate composition.
func (c Config) Validate() error {
	if err := c.Coordinator.validate(); err != nil {
		return fmt.Errorf("coordinator config: %w", err)
	}
	if err := c.DataStore.validate(); err != nil {
		return fmt.Errorf("data store config: %w", err)
	}
	if err := c.Metrics.validate(); err != nil {
		return fmt.Errorf("metrics config: %w", err)
	}
	if err := c.Trust.validate(); err != nil {
		return fmt.Errorf("trust config: %w", err)
	}
	if err := c.Audit.validate(); err != nil {
		return fmt.Errorf("audit config: %w", err)
	}
	return nil
}

func (c CoordinatorConfig) validate() error {
	if c.MaxWorkers < 0 {
		return fmt.Errorf("max_workers cannot be negative: %d", c.MaxWorkers)
	}
	if c.BatchStep < 0 {
		return fmt.Errorf("batch_step cannot be negative: %v", c.BatchStep)
	}
	if c.MinSuccessRatio < 0 || c.MinSuccessRatio > 1 {
		return fmt.Errorf("min_success_ratio must be in [0,1]: %v", c.MinSuccessRatio)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries cannot be negative: %d", c.MaxRetries)
	}
	return nil
}

func (c DataStoreConfig) validate() error {
	if c.CacheBytes < 0 {
		return fmt.Errorf("cache_bytes cannot be negative: %d", c.CacheBytes)
	}
	if c.PrefetchBlocks < 0 {
		return fmt.Errorf("prefetch_blocks cannot be negative: %d", c.PrefetchBlocks)
	}
	return nil
}

func (c MetricsConfig) validate() error {
	if c.QueueSize < 0 {
		return fmt.Errorf("metrics_queue_size cannot be negative: %d", c.QueueSize)
	}
	switch c.DropPolicy {
	case "", "drop_oldest", "block":
	default:
		return fmt.Errorf("metrics_drop_policy must be drop_oldest or block, got %q", c.DropPolicy)
	}
	return nil
}

func (c TrustConfig) validate() error {
	if c.FlushThreshold < 0 {
		return fmt.Errorf("trust_flush_threshold cannot be negative: %d", c.FlushThreshold)
	}
	return nil
}

func (c AuditConfig) validate() error {
	if c.CheckpointIntervalTurns < 0 {
		return fmt.Errorf("checkpoint_interval_turns cannot be negative: %d", c.CheckpointIntervalTurns)
	}
	return nil
}
