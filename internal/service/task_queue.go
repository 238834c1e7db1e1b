package service

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

type task struct {
	name string
	fn   func()
}

// TaskQueue runs posted tasks one at a time on a single goroutine. Dashboard
// state touched from tasks therefore needs no further locking between tasks.
type TaskQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	tasks  []task
	closed bool
	done   chan struct{}
	logger zerolog.Logger
}

// NewTaskQueue starts the queue goroutine.
func NewTaskQueue(logger zerolog.Logger) *TaskQueue {
	q := &TaskQueue{
		done:   make(chan struct{}),
		logger: logger.With().Str("component", "task_queue").Logger(),
	}
	q.cond = sync.NewCond(&q.mu)
	go q.run()
	return q
}

// Post enqueues fn without blocking. It reports false once the queue is closed.
func (q *TaskQueue) Post(name string, fn func()) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.tasks = append(q.tasks, task{name: name, fn: fn})
	q.cond.Signal()
	return true
}

// Flush waits until every task posted before the call has run.
func (q *TaskQueue) Flush(ctx context.Context) error {
	reached := make(chan struct{})
	if !q.Post("flush", func() { close(reached) }) {
		<-q.done
		return nil
	}

	select {
	case <-reached:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close runs the remaining tasks and stops the queue goroutine.
func (q *TaskQueue) Close() {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		q.cond.Broadcast()
	}
	q.mu.Unlock()

	<-q.done
}

func (q *TaskQueue) run() {
	defer close(q.done)

	for {
		q.mu.Lock()
		for len(q.tasks) == 0 && !q.closed {
			q.cond.Wait()
		}
		if len(q.tasks) == 0 {
			q.mu.Unlock()
			return
		}
		next := q.tasks[0]
		q.tasks[0] = task{}
		q.tasks = q.tasks[1:]
		q.mu.Unlock()

		q.execute(next)
	}
}

func (q *TaskQueue) execute(t task) {
	defer func() {
		if recovered := recover(); recovered != nil {
			q.logger.Error().Interface("panic", recovered).Str("task", t.name).Msg("task panicked")
		}
	}()
	t.fn()
}
