package trustbuffer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"retrograde/trust"
)

func TestFlushAggregatesBeforeBatchUpdate(t *testing.T) {
	tracker := trust.NewTracker(0)
	buf := New(tracker, Config{FlushThreshold: 1000, AutoFlushInterval: time.Hour})
	defer buf.Close()

	for i := 0; i < 7; i++ {
		buf.Enqueue("R1", true)
	}
	for i := 0; i < 3; i++ {
		buf.Enqueue("R1", false)
	}
	buf.Flush()

	assert.InDelta(t, 8.0/12.0, tracker.GetTrust("R1"), 1e-9)
}

func TestSizeThresholdTriggersFlush(t *testing.T) {
	tracker := trust.NewTracker(0)
	buf := New(tracker, Config{FlushThreshold: 5, AutoFlushInterval: time.Hour})
	defer buf.Close()

	for i := 0; i < 5; i++ {
		buf.Enqueue("R1", true)
	}
	assert.Eventually(t, func() bool {
		return tracker.GetTrust("R1") > 0.5
	}, time.Second, time.Millisecond)
}

func TestCloseDrainsBufferedOutcomes(t *testing.T) {
	tracker := trust.NewTracker(0)
	buf := New(tracker, Config{FlushThreshold: 1000, AutoFlushInterval: time.Hour})

	buf.Enqueue("R1", true)
	buf.Enqueue("R1", true)
	buf.Close()

	assert.Greater(t, tracker.GetTrust("R1"), 0.5)
}

func TestAutoFlushIntervalTriggersFlush(t *testing.T) {
	tracker := trust.NewTracker(0)
	buf := New(tracker, Config{FlushThreshold: 1000, AutoFlushInterval: 5 * time.Millisecond})
	defer buf.Close()

	buf.Enqueue("R1", true)
	assert.Eventually(t, func() bool {
		return tracker.GetTrust("R1") > 0.5
	}, time.Second, time.Millisecond)
}
