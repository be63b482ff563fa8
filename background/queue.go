// Package background runs the fire-and-forget work a gateway request
// kicks off after its response is already on the wire: storing the
// exchange in memory and shipping the audit trail to DataHaven.
package background

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// Task is a unit of background work. It receives a context bound to the
// queue's lifetime, not the originating request's.
type Task func(ctx context.Context)

// Queue is a bounded worker pool. When full, the oldest queued task is
// dropped to make room for the newest — background work is best-effort
// and must never make a caller wait or blow up memory under load.
type Queue struct {
	logger  zerolog.Logger
	tasks   chan Task
	workers int

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	dropped int64
}

// New creates a queue with the given channel capacity and worker count.
func New(capacity, workers int, logger zerolog.Logger) *Queue {
	if capacity <= 0 {
		capacity = 256
	}
	if workers <= 0 {
		workers = 4
	}
	return &Queue{
		logger:  logger.With().Str("component", "background_queue").Logger(),
		tasks:   make(chan Task, capacity),
		workers: workers,
	}
}

// Start launches the worker pool. Call Stop to shut it down.
func (q *Queue) Start() {
	q.ctx, q.cancel = context.WithCancel(context.Background())
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker()
	}
}

func (q *Queue) worker() {
	defer q.wg.Done()
	for {
		select {
		case <-q.ctx.Done():
			return
		case task := <-q.tasks:
			task(q.ctx)
		}
	}
}

// Submit enqueues a task. If the queue is full, the oldest pending task
// is discarded and this one takes its place.
func (q *Queue) Submit(task Task) {
	select {
	case q.tasks <- task:
		return
	default:
	}

	select {
	case <-q.tasks:
		q.mu.Lock()
		q.dropped++
		q.mu.Unlock()
		q.logger.Warn().Msg("background queue full, dropped oldest task")
	default:
	}

	select {
	case q.tasks <- task:
	default:
		q.mu.Lock()
		q.dropped++
		q.mu.Unlock()
		q.logger.Warn().Msg("background queue full, dropped incoming task")
	}
}

// Dropped returns the number of tasks discarded due to a full queue.
func (q *Queue) Dropped() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

// Stop cancels outstanding workers and waits for them to exit. Tasks
// still sitting in the channel are abandoned.
func (q *Queue) Stop() {
	if q.cancel != nil {
		q.cancel()
	}
	q.wg.Wait()
}
