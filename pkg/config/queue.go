package config

import "time"

// QueueConfig controls how threads (runs) are polled, claimed, and
// processed by the Orchestrator's worker pool (C10).
type QueueConfig struct {
	// WorkerCount is the number of worker goroutines per process.
	WorkerCount int `yaml:"worker_count"`

	// MaxConcurrentRuns is the global limit of concurrently processing
	// threads across all processes, enforced by a database COUNT(*) check.
	MaxConcurrentRuns int `yaml:"max_concurrent_runs"`

	// PollInterval is the base interval for checking pending threads.
	PollInterval time.Duration `yaml:"poll_interval"`

	// PollIntervalJitter is random jitter added to PollInterval.
	PollIntervalJitter time.Duration `yaml:"poll_interval_jitter"`

	// TickTimeout bounds a single planner-or-action tick.
	TickTimeout time.Duration `yaml:"tick_timeout"`

	// GracefulShutdownTimeout bounds how long Stop() waits for in-flight
	// ticks to finish.
	GracefulShutdownTimeout time.Duration `yaml:"graceful_shutdown_timeout"`

	// OrphanDetectionInterval is how often to scan for orphaned (stuck)
	// running threads whose owning process died mid-tick.
	OrphanDetectionInterval time.Duration `yaml:"orphan_detection_interval"`

	// OrphanThreshold is how long a thread can go without a heartbeat
	// before it is considered orphaned and failed (it is not requeued).
	OrphanThreshold time.Duration `yaml:"orphan_threshold"`
}

// DefaultQueueConfig returns the built-in queue defaults.
func DefaultQueueConfig() *QueueConfig {
	return &QueueConfig{
		WorkerCount:             5,
		MaxConcurrentRuns:       10,
		PollInterval:            1 * time.Second,
		PollIntervalJitter:      250 * time.Millisecond,
		TickTimeout:             2 * time.Minute,
		GracefulShutdownTimeout: 2 * time.Minute,
		OrphanDetectionInterval: 1 * time.Minute,
		OrphanThreshold:         3 * time.Minute,
	}
}

// DefaultBufferConfig returns the built-in checkpoint write-buffer defaults.
func DefaultBufferConfig() *BufferYAMLConfig {
	return &BufferYAMLConfig{
		Size:          64,
		FlushInterval: 250 * time.Millisecond,
	}
}
