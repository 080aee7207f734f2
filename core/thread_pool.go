package core

import (
	"context"
	"time"
)

// ThreadPool is the execution-engine abstraction every TaskRunner posts
// through: SequencedTaskRunner and ParallelTaskRunner only depend on this
// interface, never on a concrete pool, so any of
// them can run on top of WorkerPool (via the GoroutineThreadPool adapter)
// or a test double.
type ThreadPool interface {
	PostInternal(task Task, traits TaskTraits)
	PostDelayedInternal(task Task, delay time.Duration, traits TaskTraits, target TaskRunner)

	Start(ctx context.Context)
	Stop()

	ID() string
	IsRunning() bool

	WorkerCount() int
	QueuedTaskCount() int  // in queue
	ActiveTaskCount() int  // executing
	DelayedTaskCount() int // parked in the timer
}
