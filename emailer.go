package appsec

import (
	"context"
	"strings"

	"github.com/tmarces/appsec/taskqueue"
)

// QueuedEmailer delivers emails asynchronously through the background
// task queue. Each message becomes one named task; delivery failures are
// recorded in the queue's status table rather than surfaced to the
// caller that queued the message.
type QueuedEmailer struct {
	queue  *taskqueue.Queue
	sender EmailSender
}

// NewQueuedEmailer builds an emailer over a running queue.
func NewQueuedEmailer(queue *taskqueue.Queue, sender EmailSender) (*QueuedEmailer, error) {
	if queue == nil || sender == nil {
		return nil, ErrNotReady
	}
	return &QueuedEmailer{queue: queue, sender: sender}, nil
}

// QueueEmail schedules one delivery task. Returns ErrEmailNotQueued when
// the queue refuses the task (shut down).
func (e *QueuedEmailer) QueueEmail(ctx context.Context, msg EmailMessage) error {
	name := "email:" + strings.Join(msg.To, ",")
	id := e.queue.Enqueue(name, func(taskCtx context.Context) (string, error) {
		if err := e.sender.Send(taskCtx, msg); err != nil {
			return "", err
		}
		return "delivered to " + strings.Join(msg.To, ", "), nil
	}, taskqueue.Options{})
	if id == "" {
		return ErrEmailNotQueued
	}
	return nil
}
