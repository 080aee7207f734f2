package taskrunner

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/coreflow/workerpool/core"
)

// GoroutineThreadPool is the default core.ThreadPool implementation:
// SequencedTaskRunner and ParallelTaskRunner post through it, and it in turn runs every posted closure through a
// core.WorkerPool, the fixed-size, revocable, reference-counted execution
// engine at the heart of this module. The adapter's only job is to turn a
// Task closure into a core.Dispatchable so the engine never has to know
// about TaskTraits or delayed targets.
type GoroutineThreadPool struct {
	id        string
	workers   int
	pool      *core.WorkerPool
	logger    *zap.Logger
	ctx       context.Context
	cancel    context.CancelFunc
	running   bool
	runningMu sync.RWMutex
}

// NewGoroutineThreadPool creates a pool with workers Minion slots (plus the
// engine's own timer slot and borrowed-join slot, invisible to this API).
func NewGoroutineThreadPool(id string, workers int) *GoroutineThreadPool {
	return NewGoroutineThreadPoolWithLogger(id, workers, nil)
}

// NewGoroutineThreadPoolWithLogger is NewGoroutineThreadPool with an
// explicit logger for the underlying engine's panic reporting.
func NewGoroutineThreadPoolWithLogger(id string, workers int, logger *zap.Logger) *GoroutineThreadPool {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GoroutineThreadPool{
		id:      id,
		workers: workers,
		pool:    core.NewWorkerPool(workers+2, logger.With(zap.String("pool", id))),
		logger:  logger,
	}
}

// taskDispatchable adapts a Task closure (plus the traits/target needed to
// replay a delayed post) into a core.Dispatchable.
type taskDispatchable struct {
	core.RefCounted

	ctx    context.Context
	task   Task
	traits TaskTraits
	target TaskRunner
}

func (d *taskDispatchable) Dispatch() {
	if d.target != nil {
		d.target.PostTaskWithTraits(d.task, d.traits)
		return
	}
	d.task(d.ctx)
}

// Start starts all workers goroutines. The engine also reserves a slot-1
// "borrowed thread" that nothing occupies here: this adapter never calls
// WorkerPool.Join, so WorkerCount reports exactly the requested worker
// goroutines.
func (tg *GoroutineThreadPool) Start(ctx context.Context) {
	tg.runningMu.Lock()
	defer tg.runningMu.Unlock()

	if tg.running {
		return
	}

	tg.ctx, tg.cancel = context.WithCancel(ctx)
	tg.running = true

	if err := tg.pool.Run(); err != nil {
		tg.logger.Error("pool run failed", zap.Error(err))
	}
}

// Stop disables the queue and waits for every Minion (and the joined
// goroutine) to drain.
func (tg *GoroutineThreadPool) Stop() {
	tg.runningMu.Lock()
	if !tg.running {
		tg.runningMu.Unlock()
		return
	}
	tg.runningMu.Unlock()

	if tg.cancel != nil {
		tg.cancel()
	}
	_ = tg.pool.Stop()

	tg.runningMu.Lock()
	tg.running = false
	tg.runningMu.Unlock()
}

// StopGraceful waits up to timeout for the queue to drain and every slot to
// go idle before stopping, instead of Stop's immediate cutover. It returns
// core.ErrTimeout if the deadline elapses first; either way the pool is
// stopped by the time this returns.
func (tg *GoroutineThreadPool) StopGraceful(timeout time.Duration) error {
	tg.runningMu.RLock()
	running := tg.running
	tg.runningMu.RUnlock()
	if !running {
		return nil
	}

	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()

	for {
		snap := tg.pool.Snapshot()
		if snap.Pending == 0 && snap.Occupation == 0 {
			tg.Stop()
			return nil
		}
		if time.Now().After(deadline) {
			tg.Stop()
			return core.ErrTimeout
		}
		<-ticker.C
	}
}

// Join stops the pool if it is still running and returns once Stop has
// finished draining. GoroutineThreadPool does not expose the engine's own
// Join (which borrows the calling goroutine as an executor); nothing in this
// adapter calls it.
func (tg *GoroutineThreadPool) Join() {
	tg.runningMu.RLock()
	running := tg.running
	tg.runningMu.RUnlock()
	if running {
		tg.Stop()
	}
}

// ID returns the ID of the thread pool
func (tg *GoroutineThreadPool) ID() string {
	return tg.id
}

// IsRunning returns whether the thread pool is running
func (tg *GoroutineThreadPool) IsRunning() bool {
	tg.runningMu.RLock()
	defer tg.runningMu.RUnlock()
	return tg.running
}

func (tg *GoroutineThreadPool) currentContext() context.Context {
	tg.runningMu.RLock()
	defer tg.runningMu.RUnlock()
	if tg.ctx == nil {
		return context.Background()
	}
	return tg.ctx
}

// PostInternal submits task for immediate dispatch.
func (tg *GoroutineThreadPool) PostInternal(task Task, traits TaskTraits) {
	d := &taskDispatchable{RefCounted: core.NewRefCounted(), ctx: tg.currentContext(), task: task, traits: traits}
	_ = tg.pool.Submit(d)
}

// PostDelayedInternal schedules task to run after delay. On expiry the
// engine's Timer submits the wrapping Dispatchable back into the queue;
// Dispatch then replays the post onto target, or runs task directly when
// no target was given.
func (tg *GoroutineThreadPool) PostDelayedInternal(task Task, delay time.Duration, traits TaskTraits, target TaskRunner) {
	d := &taskDispatchable{RefCounted: core.NewRefCounted(), ctx: tg.currentContext(), task: task, traits: traits, target: target}
	tg.pool.Schedule(time.Now().Add(delay), d)
}

// WorkerCount returns the number of Minion slots requested at construction.
func (tg *GoroutineThreadPool) WorkerCount() int {
	return tg.workers
}

func (tg *GoroutineThreadPool) QueuedTaskCount() int {
	return tg.pool.Snapshot().Pending
}

func (tg *GoroutineThreadPool) ActiveTaskCount() int {
	return int(tg.pool.Snapshot().Occupation)
}

func (tg *GoroutineThreadPool) DelayedTaskCount() int {
	return tg.pool.TimerTaskCount()
}

// Stats satisfies prometheus.PoolSnapshotProvider so this pool can be
// registered directly with a SnapshotPoller.
func (tg *GoroutineThreadPool) Stats() core.PoolStats {
	return core.PoolStats{
		ID:      tg.id,
		Workers: tg.workers,
		Queued:  tg.QueuedTaskCount(),
		Active:  tg.ActiveTaskCount(),
		Delayed: tg.DelayedTaskCount(),
		Running: tg.IsRunning(),
	}
}

// =============================================================================
// Global Thread Pool Helper (Singleton)
// =============================================================================

var (
	globalThreadPool *GoroutineThreadPool
	globalMu         sync.Mutex
)

// InitGlobalThreadPool initializes the global thread pool with specified number of workers.
// It starts the pool immediately.
func InitGlobalThreadPool(workers int) {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalThreadPool != nil {
		return // Already initialized
	}

	globalThreadPool = NewGoroutineThreadPool("global-pool", workers)
	globalThreadPool.Start(context.Background())
	core.SetWorkerPoolInstance(globalThreadPool.pool)
}

// GetGlobalThreadPool returns the global thread pool instance.
// It panics if InitGlobalThreadPool has not been called.
func GetGlobalThreadPool() *GoroutineThreadPool {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalThreadPool == nil {
		panic("GlobalThreadPool not initialized. Call InitGlobalThreadPool() first.")
	}
	return globalThreadPool
}

// GlobalThreadPool is an alias for GetGlobalThreadPool, handy when passing
// the pool straight into a constructor like NewParallelTaskRunner.
func GlobalThreadPool() *GoroutineThreadPool {
	return GetGlobalThreadPool()
}

// ShutdownGlobalThreadPool stops the global thread pool.
func ShutdownGlobalThreadPool() {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalThreadPool != nil {
		globalThreadPool.Stop()
		globalThreadPool = nil
		core.ClearWorkerPoolInstance()
	}
}

// CreateTaskRunner creates a new SequencedTaskRunner using the global thread pool.
// This is the recommended way to get a new TaskRunner.
func CreateTaskRunner(traits TaskTraits) *SequencedTaskRunner {
	pool := GetGlobalThreadPool()
	// SequencedTaskRunner ignores traits for the runner itself (it attaches
	// traits to each task instead).
	return core.NewSequencedTaskRunner(pool)
}
