package scheduler

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/livinlefevreloca/sqlcron/internal/events"
	"github.com/livinlefevreloca/sqlcron/internal/stats"
)

// Task is an event waiting in the execution queue
type Task struct {
	Event    *events.Event
	QueuedAt time.Time
}

// QueueCapacity returns the queue size used for n loaded events
func QueueCapacity(n int) int {
	return 5 * max(n, 1)
}

// Queue is a bounded FIFO of tasks with a single consumer. Producers block
// when it is full; tasks are never dropped.
type Queue struct {
	ch      chan Task
	logger  *slog.Logger
	metrics *stats.Metrics

	closeOnce sync.Once

	enqueued      atomic.Int64
	dequeued      atomic.Int64
	blockedPushes atomic.Int64
	maxDepth      atomic.Int64
	totalLatency  atomic.Int64 // nanoseconds
	maxLatency    atomic.Int64 // nanoseconds
}

// QueueStats tracks queue usage and latency
type QueueStats struct {
	TotalEnqueued int64
	TotalDequeued int64
	BlockedPushes int64
	CurrentDepth  int
	MaxDepthSeen  int
	TotalLatency  time.Duration
	MaxLatency    time.Duration
}

// NewQueue creates a queue holding at most capacity tasks
func NewQueue(capacity int, logger *slog.Logger, metrics *stats.Metrics) *Queue {
	return &Queue{
		ch:      make(chan Task, capacity),
		logger:  logger,
		metrics: metrics,
	}
}

// Push enqueues a task, blocking while the queue is full.
// Push must not be called after Close.
func (q *Queue) Push(task Task) {
	select {
	case q.ch <- task:
	default:
		q.blockedPushes.Add(1)
		q.logger.Warn("execution queue full, waiting",
			"event", task.Event.Label(),
			"capacity", cap(q.ch))
		q.ch <- task
	}

	q.enqueued.Add(1)
	q.updateDepth()
}

// Receive blocks until a task is available. It returns false once the
// queue is closed and empty.
func (q *Queue) Receive() (Task, bool) {
	task, ok := <-q.ch
	if !ok {
		return Task{}, false
	}
	q.dequeued.Add(1)
	q.updateDepth()

	latency := time.Since(task.QueuedAt)
	q.totalLatency.Add(int64(latency))
	for {
		cur := q.maxLatency.Load()
		if int64(latency) <= cur || q.maxLatency.CompareAndSwap(cur, int64(latency)) {
			break
		}
	}
	q.metrics.QueueLatency(latency)

	return task, true
}

// Close stops accepting tasks. Tasks already queued can still be received.
func (q *Queue) Close() {
	q.closeOnce.Do(func() { close(q.ch) })
}

func (q *Queue) Len() int {
	return len(q.ch)
}

func (q *Queue) Cap() int {
	return cap(q.ch)
}

func (q *Queue) updateDepth() {
	depth := int64(len(q.ch))
	for {
		cur := q.maxDepth.Load()
		if depth <= cur || q.maxDepth.CompareAndSwap(cur, depth) {
			break
		}
	}
	q.metrics.QueueDepth(int(depth))
}

// Stats returns a copy of the current queue statistics
func (q *Queue) Stats() QueueStats {
	return QueueStats{
		TotalEnqueued: q.enqueued.Load(),
		TotalDequeued: q.dequeued.Load(),
		BlockedPushes: q.blockedPushes.Load(),
		CurrentDepth:  len(q.ch),
		MaxDepthSeen:  int(q.maxDepth.Load()),
		TotalLatency:  time.Duration(q.totalLatency.Load()),
		MaxLatency:    time.Duration(q.maxLatency.Load()),
	}
}
