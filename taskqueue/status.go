package taskqueue

import "time"

// Status is the lifecycle state of an enqueued task.
// Transitions: Queued -> Running -> {Completed | Failed | Cancelled}.
type Status int

const (
	// StatusNotFound is the sentinel returned for unknown task ids. It is
	// never a reachable state of a tracked task.
	StatusNotFound Status = iota
	// StatusQueued means the task is waiting for the dispatcher.
	StatusQueued
	// StatusRunning means the task's work item is executing.
	StatusRunning
	// StatusCompleted means the work item returned without error.
	StatusCompleted
	// StatusFailed means the work item returned an error or panicked.
	StatusFailed
	// StatusCancelled means the run was cancelled through its token.
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusQueued:
		return "queued"
	case StatusRunning:
		return "running"
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	case StatusCancelled:
		return "cancelled"
	default:
		return "not found"
	}
}

// TaskStatus is a point-in-time view of one task instance.
type TaskStatus struct {
	TaskID     string
	Name       string
	Status     Status
	Message    string
	QueuedAt   time.Time
	StartedAt  time.Time
	FinishedAt time.Time
}

// QueueStatus summarizes the queue's tracked tasks.
type QueueStatus struct {
	QueuedCount    int
	RunningCount   int
	CompletedCount int
	FailedCount    int
	CancelledCount int
	TrackedCount   int
	MaxConcurrency int
}
