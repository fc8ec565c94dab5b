package taskqueue

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	defaultMaxConcurrency = 50
	defaultMaxTracked     = 1000

	// headOfLineBackoff bounds the spin when every pending item shares a
	// name with a task that is already running.
	headOfLineBackoff = 20 * time.Millisecond
)

// Work is a task body. It receives a context linked to both the queue
// lifetime and the task's own cancellation source, and returns an
// optional result message.
type Work func(ctx context.Context) (string, error)

// Options controls a single enqueue.
type Options struct {
	// SingleInstance refuses the enqueue when another task with the same
	// name is already queued or running. The check is best-effort: a
	// narrow race with the dispatcher is tolerated by design.
	SingleInstance bool

	// Recurrence, when positive, re-enqueues the same work item under the
	// same name and flags after each completion, once the interval has
	// elapsed. Rescheduling stops when the queue shuts down.
	Recurrence time.Duration
}

// Config controls queue-wide behavior.
type Config struct {
	// MaxConcurrency bounds simultaneously executing tasks regardless of
	// queue depth. Defaults to 50.
	MaxConcurrency int

	// MaxTracked caps the status table. Each enqueue beyond the cap
	// evicts the single oldest-by-queue-time entry.
	MaxTracked int

	// Warn receives diagnostic messages. Defaults to log.Printf.
	Warn func(format string, args ...any)
}

type queueItem struct {
	taskID         string
	name           string
	work           Work
	singleInstance bool
	recurrence     time.Duration
}

type taskState struct {
	TaskStatus
	cancel context.CancelFunc // set while running, nil otherwise
}

// Queue is a bounded-concurrency background task runner. Construct with
// New and stop with Close; all methods are safe for concurrent use.
type Queue struct {
	cfg     Config
	ctx     context.Context
	cancel  context.CancelFunc
	permits chan struct{}
	wg      sync.WaitGroup

	mu          sync.Mutex
	pending     []*queueItem
	statuses    map[string]*taskState
	dispatching bool
}

// New creates a started, empty queue. The queue owns its lifetime
// context; Close cancels all in-flight and future work.
func New(cfg Config) *Queue {
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = defaultMaxConcurrency
	}
	if cfg.MaxTracked <= 0 {
		cfg.MaxTracked = defaultMaxTracked
	}
	if cfg.Warn == nil {
		cfg.Warn = log.Printf
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Queue{
		cfg:      cfg,
		ctx:      ctx,
		cancel:   cancel,
		permits:  make(chan struct{}, cfg.MaxConcurrency),
		statuses: make(map[string]*taskState),
	}
}

// Enqueue schedules work under a logical name and returns its task id.
// Returns "" when the queue is shut down, or when SingleInstance is set
// and another task with the same name is queued or running.
func (q *Queue) Enqueue(name string, work Work, opts Options) string {
	if q.ctx.Err() != nil {
		q.cfg.Warn("taskqueue: enqueue of %q refused, queue is shut down", name)
		return ""
	}

	q.mu.Lock()
	if opts.SingleInstance && q.nameActiveLocked(name) {
		q.mu.Unlock()
		q.cfg.Warn("taskqueue: single-instance task %q is already queued or running", name)
		return ""
	}

	id := uuid.NewString()
	q.statuses[id] = &taskState{TaskStatus: TaskStatus{
		TaskID:   id,
		Name:     name,
		Status:   StatusQueued,
		QueuedAt: time.Now(),
	}}
	q.pending = append(q.pending, &queueItem{
		taskID:         id,
		name:           name,
		work:           work,
		singleInstance: opts.SingleInstance,
		recurrence:     opts.Recurrence,
	})
	q.evictOldestLocked()

	start := !q.dispatching
	if start {
		q.dispatching = true
		q.wg.Add(1)
	}
	q.mu.Unlock()

	if start {
		go q.dispatch()
	}
	return id
}

// nameActiveLocked reports whether any tracked task with the name is
// queued or running. Caller holds q.mu.
func (q *Queue) nameActiveLocked(name string) bool {
	for _, st := range q.statuses {
		if st.Name == name && (st.Status == StatusQueued || st.Status == StatusRunning) {
			return true
		}
	}
	return false
}

func (q *Queue) nameRunningLocked(name string) bool {
	for _, st := range q.statuses {
		if st.Name == name && st.Status == StatusRunning {
			return true
		}
	}
	return false
}

// evictOldestLocked removes the single oldest-by-queue-time status entry
// once the table exceeds the cap. One eviction per enqueue, never a bulk
// trim. Caller holds q.mu.
func (q *Queue) evictOldestLocked() {
	if len(q.statuses) <= q.cfg.MaxTracked {
		return
	}
	oldestID := ""
	var oldest time.Time
	for id, st := range q.statuses {
		if oldestID == "" || st.QueuedAt.Before(oldest) {
			oldestID = id
			oldest = st.QueuedAt
		}
	}
	if oldestID != "" {
		delete(q.statuses, oldestID)
	}
}

// dispatch is the single logical worker loop. It drains the pending
// queue, handing each item to its own goroutine once a concurrency
// permit is available, and exits when the queue is empty (double-checked
// under the lock against a concurrent enqueue) or the lifetime context
// is cancelled.
func (q *Queue) dispatch() {
	defer q.wg.Done()

	for {
		if q.ctx.Err() != nil {
			q.drainCancelled()
			return
		}

		q.mu.Lock()
		if len(q.pending) == 0 {
			// Stop/enqueue race: Enqueue observes dispatching under the
			// same lock, so clearing it here guarantees a restart.
			q.dispatching = false
			q.mu.Unlock()
			return
		}
		item := q.pending[0]
		q.pending = q.pending[1:]

		if q.nameRunningLocked(item.name) {
			// Same logical job already executing; push the item back and
			// keep draining. Back off briefly so a queue holding only
			// blocked names does not spin.
			q.pending = append(q.pending, item)
			q.mu.Unlock()
			select {
			case <-q.ctx.Done():
			case <-time.After(headOfLineBackoff):
			}
			continue
		}
		q.mu.Unlock()

		select {
		case q.permits <- struct{}{}:
		case <-q.ctx.Done():
			q.finishTask(item.taskID, StatusCancelled, "queue shut down before task started")
			continue
		}

		runCtx, cancel := context.WithCancel(q.ctx)

		q.mu.Lock()
		if st, ok := q.statuses[item.taskID]; ok {
			st.Status = StatusRunning
			st.StartedAt = time.Now()
			st.cancel = cancel
		}
		q.wg.Add(1)
		q.mu.Unlock()

		go q.run(item, runCtx, cancel)
	}
}

// drainCancelled marks every still-pending item Cancelled after the
// lifetime context fires, then lets the dispatcher exit.
func (q *Queue) drainCancelled() {
	q.mu.Lock()
	pending := q.pending
	q.pending = nil
	q.dispatching = false
	for _, item := range pending {
		if st, ok := q.statuses[item.taskID]; ok {
			st.Status = StatusCancelled
			st.Message = "queue shut down before task started"
			st.FinishedAt = time.Now()
		}
	}
	q.mu.Unlock()
}

func (q *Queue) run(item *queueItem, ctx context.Context, cancel context.CancelFunc) {
	defer q.wg.Done()

	msg, err := invoke(ctx, item.work)

	switch {
	case ctx.Err() != nil:
		q.finishTask(item.taskID, StatusCancelled, "task cancelled")
	case err != nil:
		// Failures are isolated: recorded in status, never propagated to
		// the dispatcher.
		q.finishTask(item.taskID, StatusFailed, err.Error())
	default:
		q.finishTask(item.taskID, StatusCompleted, msg)
	}

	wasCancelled := ctx.Err() != nil
	cancel()
	<-q.permits

	if item.recurrence > 0 && !wasCancelled && q.ctx.Err() == nil {
		select {
		case <-q.ctx.Done():
		case <-time.After(item.recurrence):
			q.Enqueue(item.name, item.work, Options{
				SingleInstance: item.singleInstance,
				Recurrence:     item.recurrence,
			})
		}
	}
}

// invoke runs the work item, converting panics into errors so a broken
// task cannot take down the dispatcher.
func invoke(ctx context.Context, work Work) (msg string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panic: %v", r)
		}
	}()
	return work(ctx)
}

func (q *Queue) finishTask(taskID string, status Status, message string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	st, ok := q.statuses[taskID]
	if !ok {
		// Evicted from the status table while in flight; nothing to record.
		return
	}
	st.Status = status
	st.Message = message
	st.FinishedAt = time.Now()
	st.cancel = nil
}

// CancelTask triggers the task's per-run cancellation source if one is
// active. Cancellation is best-effort: a task that is running but has no
// source yet (a narrow dispatch race) is logged and left alone, and work
// that ignores its context is not pre-empted.
func (q *Queue) CancelTask(taskID string) {
	q.mu.Lock()
	st, ok := q.statuses[taskID]
	var cancel context.CancelFunc
	running := false
	if ok {
		cancel = st.cancel
		running = st.Status == StatusRunning
	}
	q.mu.Unlock()

	if cancel != nil {
		cancel()
		return
	}
	if running {
		q.cfg.Warn("taskqueue: task %s is running but has no cancellation source", taskID)
	}
}

// CancelAllTasks invokes CancelTask for every tracked id. The sweep is
// not atomic as a whole; individual races are tolerated.
func (q *Queue) CancelAllTasks() {
	q.mu.Lock()
	ids := make([]string, 0, len(q.statuses))
	for id := range q.statuses {
		ids = append(ids, id)
	}
	q.mu.Unlock()

	for _, id := range ids {
		q.CancelTask(id)
	}
}

// GetTaskStatus returns the task's current status, or a StatusNotFound
// sentinel for unknown (or evicted) ids.
func (q *Queue) GetTaskStatus(taskID string) TaskStatus {
	q.mu.Lock()
	defer q.mu.Unlock()
	if st, ok := q.statuses[taskID]; ok {
		return st.TaskStatus
	}
	return TaskStatus{TaskID: taskID, Status: StatusNotFound}
}

// GetTasksStatus returns a snapshot of every tracked task.
func (q *Queue) GetTasksStatus() []TaskStatus {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]TaskStatus, 0, len(q.statuses))
	for _, st := range q.statuses {
		out = append(out, st.TaskStatus)
	}
	return out
}

// GetQueueStatus returns aggregate counts over the tracked tasks.
func (q *Queue) GetQueueStatus() QueueStatus {
	q.mu.Lock()
	defer q.mu.Unlock()
	status := QueueStatus{
		TrackedCount:   len(q.statuses),
		MaxConcurrency: q.cfg.MaxConcurrency,
	}
	for _, st := range q.statuses {
		switch st.Status {
		case StatusQueued:
			status.QueuedCount++
		case StatusRunning:
			status.RunningCount++
		case StatusCompleted:
			status.CompletedCount++
		case StatusFailed:
			status.FailedCount++
		case StatusCancelled:
			status.CancelledCount++
		}
	}
	return status
}

// Close cancels the queue lifetime context, which cancels all in-flight
// runs and any still-pending items, then waits for the dispatcher and
// every task goroutine to finish. Safe to call more than once.
func (q *Queue) Close() {
	q.cancel()
	q.wg.Wait()
}
