package core

import "time"

// Outcome is how an AsyncTask ended.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeCancelled Outcome = "cancelled"
	OutcomeFailed    Outcome = "failed"
	OutcomeRejected  Outcome = "rejected"
)

// TaskExecutionRecord captures a finished AsyncTask.
type TaskExecutionRecord struct {
	TaskID     TaskID
	Name       string
	Outcome    Outcome
	Invoked    bool
	StartedAt  time.Time
	FinishedAt time.Time
	Duration   time.Duration
}

// ExecutorStats represents runtime observability state for a serial executor.
type ExecutorStats struct {
	Name     string
	Type     string
	Pending  int
	Active   bool
	Rejected int64
}

// PoolStats represents runtime observability state for a thread pool.
type PoolStats struct {
	ID              string
	CorePoolSize    int
	MaxPoolSize     int
	Workers         int
	LargestPoolSize int
	Queued          int
	QueueCapacity   int
	Active          int
	Completed       int64
	Rejected        int64
	Running         bool
}
