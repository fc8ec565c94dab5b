// Package taskqueue runs background work off the request path under a
// bounded concurrency cap, with optional single-instance deduplication by
// task name, optional fixed-interval recurrence, and queryable status.
//
// Tasks run on pooled goroutines; the dispatcher itself is started lazily
// on enqueue and exits when the queue drains, restarting on the next
// enqueue. Cancellation is two-tier: the queue lifetime context (tied to
// host shutdown) cancels everything, and each run gets its own context
// linked to it so a single task can be cancelled in isolation.
package taskqueue
