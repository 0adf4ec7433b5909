package interfaces

import (
	"context"
	"time"
)

// WorkerStats is a snapshot of the queue processor's counters
type WorkerStats struct {
	Running        bool      `json:"running"`
	ItemsProcessed int64     `json:"items_processed"`
	ItemsFailed    int64     `json:"items_failed"`
	LastPollAt     time.Time `json:"last_poll_at"`
	StartedAt      time.Time `json:"started_at"`
}

// WorkerController controls the queue processor lifecycle
type WorkerController interface {
	Start() error
	Stop() error
	Restart() error
	IsRunning() bool
	Stats() WorkerStats
}

// SchedulerService runs the cron schedule that submits scrape items
type SchedulerService interface {
	Start() error
	Stop() error

	// TriggerScrape submits a scrape run immediately, outside the cron
	// schedule. Returns the queue item id.
	TriggerScrape(ctx context.Context) (string, error)

	// Reload re-reads the scheduler settings document and reschedules.
	Reload(ctx context.Context) error
}
