package pipeline

import (
	"retrograde/config"
	"retrograde/coordinator"
)

// newCoordinator translates the ambient config.Config into the
// coordinator package's own Config, keeping the two packages from
// depending on each other's option names directly.
func newCoordinator(cfg config.Config) *coordinator.Coordinator {
	cc := cfg.Coordinator
	return coordinator.New(coordinator.Config{
		MaxWorkers:       cc.MaxWorkers,
		QueueDepth:       cc.QueueDepth,
		BatchTimeout:     cc.BatchTimeout,
		MaxRetries:       cc.MaxRetries,
		RetryBaseDelay:   cc.RetryBaseDelay,
		MinSuccessRatio:  cc.MinSuccessRatio,
		MinSampleBatches: cc.MinSampleBatches,

		DistributedQueueAddr: cc.DistributedQueueAddr,
	})
}
