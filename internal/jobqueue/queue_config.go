package jobqueue

import (
	"time"

	"github.com/riverqueue/river"
)

// QueueConfig holds the tunables for the background extraction queue.
type QueueConfig struct {
	// MaxWorkers bounds concurrent extraction jobs. Each job makes up to three
	// outbound AppView calls, so this also caps outbound fan-out.
	MaxWorkers int

	// MaxAttempts bounds retries for a failing extraction before River
	// discards the job.
	MaxAttempts int

	// JobTimeout bounds a single extraction attempt.
	JobTimeout time.Duration
}

// DefaultQueueConfig returns the default queue configuration.
func DefaultQueueConfig() *QueueConfig {
	return &QueueConfig{
		MaxWorkers:  4,
		MaxAttempts: 5,
		JobTimeout:  60 * time.Second,
	}
}

// RiverQueueConfig converts the config into River's queue map.
func (c *QueueConfig) RiverQueueConfig() map[string]river.QueueConfig {
	return map[string]river.QueueConfig{
		river.QueueDefault: {MaxWorkers: c.MaxWorkers},
	}
}
