package engine

import (
	"time"

	"intentd/internal/classify"
	"intentd/internal/executor"
	"intentd/internal/intent"
)

// Config controls the scheduler.
type Config struct {
	// Concurrency is the number of workers, and therefore the maximum number
	// of tasks executing at once.
	Concurrency int

	// BaseDelay is the retry backoff unit: the n-th retry waits BaseDelay*2^n.
	BaseDelay time.Duration
	// MaxDelay caps the backoff. 0 leaves it uncapped.
	MaxDelay time.Duration

	// ExecTimeout bounds one executor call. 0 lets an executor hold its slot
	// for as long as it runs.
	ExecTimeout time.Duration
}

const (
	DefaultConcurrency = 3
	DefaultBaseDelay   = time.Second
)

func (c Config) withDefaults() Config {
	if c.Concurrency <= 0 {
		c.Concurrency = DefaultConcurrency
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = DefaultBaseDelay
	}
	if c.MaxDelay < 0 {
		c.MaxDelay = 0
	}
	if c.ExecTimeout < 0 {
		c.ExecTimeout = 0
	}
	return c
}

type Status string

const (
	StatusPending   Status = "pending"
	StatusExecuting Status = "executing"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Task is one schedulable unit. Values returned by the Service are copies.
type Task struct {
	ID             string                  `json:"id"`
	Intent         intent.Intent           `json:"intent"`
	Classification classify.Classification `json:"classification"`
	Status         Status                  `json:"status"`
	CreatedAt      time.Time               `json:"createdAt"`
	StartedAt      *time.Time              `json:"startedAt,omitempty"`
	CompletedAt    *time.Time              `json:"completedAt,omitempty"`
	Result         *executor.Result        `json:"result,omitempty"`
	Error          string                  `json:"error,omitempty"`
	RetryCount     int                     `json:"retryCount"`
	MaxRetries     int                     `json:"maxRetries"`

	seq uint64
}

func (t *Task) clone() Task {
	out := *t
	out.Intent = t.Intent.Clone()
	if t.StartedAt != nil {
		v := *t.StartedAt
		out.StartedAt = &v
	}
	if t.CompletedAt != nil {
		v := *t.CompletedAt
		out.CompletedAt = &v
	}
	if t.Result != nil {
		v := *t.Result
		out.Result = &v
	}
	return out
}

// TaskResult is the per-task summary returned by ProcessTasks.
type TaskResult struct {
	ID      string `json:"id"`
	Status  Status `json:"status"`
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// QueueStatus counts tasks per status. The counts always sum to Total.
type QueueStatus struct {
	Pending   int `json:"pending"`
	Executing int `json:"executing"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Cancelled int `json:"cancelled"`
	Total     int `json:"total"`
}

// TaskEvent is published on the event bus for lifecycle transitions.
type TaskEvent struct {
	ID         string        `json:"id"`
	Status     Status        `json:"status"`
	Priority   string        `json:"priority"`
	RetryCount int           `json:"retry_count"`
	Delay      time.Duration `json:"delay,omitempty"`
	Duration   time.Duration `json:"duration,omitempty"`
	Error      string        `json:"error,omitempty"`
}

// Snapshot is a lightweight view for diagnostics.
type Snapshot struct {
	Running     bool
	Concurrency int
	QueueLen    int
	InFlight    int
	RetryWait   int
	Tasks       int

	Queued    uint64
	Completed uint64
	Failed    uint64
	Retried   uint64
	Cancelled uint64
	Panics    uint64
	TimedOut  uint64

	BaseDelay   time.Duration
	ExecTimeout time.Duration
}
