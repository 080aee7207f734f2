package core

import (
	"context"
	"time"
)

// Task is the unit of work a TaskRunner schedules. It is eventually wrapped
// into a Dispatchable (see taskJobDispatchable in the taskrunner package)
// and handed to a WorkerPool, which knows nothing about Task or TaskTraits
// beyond the closure it was given.
type Task func(ctx context.Context)

// =============================================================================
// TaskTraits: Define task attributes (priority, blocking behavior, etc.)
// =============================================================================

// TaskPriority orders pending work within a single runner's TaskQueue. It
// has no effect once a task reaches the WorkerPool: the engine's HandleQueue
// is strict FIFO, so priority can only shape which task a runner hands to
// the pool next, not how the pool itself schedules it.
type TaskPriority int

const (
	// TaskPriorityBestEffort: Lowest priority
	TaskPriorityBestEffort TaskPriority = iota

	// TaskPriorityUserVisible: Default priority
	TaskPriorityUserVisible

	// TaskPriorityUserBlocking: Highest priority
	// `UserBlocking` means the task may block the main thread.
	// If main thread is blocked, the UI will be unresponsive.
	// The user experience will be affected if the task blocks the main thread.
	TaskPriorityUserBlocking
)

// TaskTraits are the per-task hints a runner's TaskQueue consults when
// deciding dispatch order (ParallelTaskRunner's PriorityTaskQueue) and that
// observability threads through to TaskExecutionRecord and Metrics labels.
type TaskTraits struct {
	Priority TaskPriority
	MayBlock bool
	Category string
}

func DefaultTaskTraits() TaskTraits {
	return TaskTraits{Priority: TaskPriorityUserVisible}
}

func TraitsUserBlocking() TaskTraits {
	return TaskTraits{Priority: TaskPriorityUserBlocking}
}

func TraitsBestEffort() TaskTraits {
	return TaskTraits{Priority: TaskPriorityBestEffort}
}

func TraitsUserVisible() TaskTraits {
	return TaskTraits{Priority: TaskPriorityUserVisible}
}

// =============================================================================
// TaskRunner: Define task submission interface
// =============================================================================
type TaskRunner interface {
	PostTask(task Task)
	PostTaskWithTraits(task Task, traits TaskTraits)
	PostDelayedTask(task Task, delay time.Duration)

	// [v2.1 New] Support delayed tasks with specific traits
	PostDelayedTaskWithTraits(task Task, delay time.Duration, traits TaskTraits)
}

// =============================================================================
// Context Helper
// =============================================================================
// RepeatingTaskHandle controls the lifecycle of a task scheduled via
// PostRepeatingTask (and its variants).
type RepeatingTaskHandle interface {
	Stop()
	IsStopped() bool
}

// TaskWithResult is a unit of work that produces a result of type T.
type TaskWithResult[T any] func(ctx context.Context) (T, error)

// ReplyWithResult receives the result produced by a TaskWithResult.
type ReplyWithResult[T any] func(ctx context.Context, result T, err error)

type taskRunnerKeyType struct{}

var taskRunnerKey taskRunnerKeyType

func GetCurrentTaskRunner(ctx context.Context) TaskRunner {
	if v := ctx.Value(taskRunnerKey); v != nil {
		return v.(TaskRunner)
	}
	return nil
}
