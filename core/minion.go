package core

import (
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// slotCounters groups the two metadata fields every executing slot updates
// around a dispatch: total occupation and this slot's own counter.
type slotCounters struct {
	occupation *atomic.Int32
	perSlot    *atomic.Uint32
}

// Minion is one fixed worker slot: a single goroutine that repeatedly
// extracts a Job from the shared HandleQueue and dispatches it, updating
// its WorkerStatus around the call so WorkerPool.Revoke can wait for an
// in-flight job to finish. Pull, dispatch, repeat.
type Minion struct {
	index    int
	queue    *HandleQueue
	status   *WorkerStatus
	counters slotCounters
	logger   *zap.Logger

	stop chan struct{}
	done chan struct{}

	goroutineID *goroutineTag
}

// NewMinion builds a Minion for slot index, reading from queue and
// reporting through status. logger may be nil, in which case a no-op
// logger is used.
func NewMinion(index int, queue *HandleQueue, status *WorkerStatus, counters slotCounters, logger *zap.Logger) *Minion {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Minion{
		index:       index,
		queue:       queue,
		status:      status,
		counters:    counters,
		logger:      logger.With(zap.Int("slot", index)),
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
		goroutineID: newGoroutineTag(),
	}
}

// Run starts the worker goroutine. It returns immediately; callers join via
// Wait.
func (m *Minion) Run() {
	go m.loop()
}

func (m *Minion) loop() {
	defer close(m.done)
	m.goroutineID.capture()
	runExecutorLoop(m.queue, m.status, m.counters, m.logger, m.stop)
}

// runExecutorLoop is the extract-dispatch loop shared between a
// goroutine-owned Minion and a caller thread bound to slot 1 via
// WorkerPool.Join.
func runExecutorLoop(queue *HandleQueue, status *WorkerStatus, counters slotCounters, logger *zap.Logger, stop <-chan struct{}) {
	for {
		job, err := queue.Extract(Infinite)
		if err != nil {
			// ErrDisabled: the pool is stopping and there is nothing left
			// to drain.
			return
		}

		dispatchOne(job, status, counters, logger)

		select {
		case <-stop:
			return
		default:
		}
	}
}

// dispatchOne executes one Job. A panic inside Dispatch is not recovered: a
// client dispatch() is a leaf, and an uncaught failure propagating out of it
// is a core-level fault that terminates the process. The occupation/status
// bookkeeping still unwinds correctly through the deferred decrement, so a
// crash here does not leave other slots' counters corrupted mid-flight, but
// it does bring the process down.
func dispatchOne(job Job, status *WorkerStatus, counters slotCounters, logger *zap.Logger) {
	status.JobStarted(job.Identity())
	counters.perSlot.Add(1)
	counters.occupation.Add(1)
	defer func() {
		counters.occupation.Add(-1)
		status.JobFinished()
	}()

	job.dispatch()
}

// Stop signals the worker to exit once it finishes any job in flight and
// the queue has been disabled upstream (WorkerPool.Stop is responsible for
// disabling the queue so Extract returns ErrDisabled promptly).
func (m *Minion) Stop() {
	select {
	case <-m.stop:
	default:
		close(m.stop)
	}
}

// Wait blocks until the worker goroutine has exited.
func (m *Minion) Wait() {
	<-m.done
}

// WaitTimeout blocks until the worker goroutine exits or budget elapses,
// whichever comes first. WorkerPool.Stop uses this to bound how long it
// waits on any single slot so one stuck Dispatch cannot hang shutdown
// indefinitely; it reports ErrTimeout rather than blocking forever.
func (m *Minion) WaitTimeout(budget time.Duration) error {
	select {
	case <-m.done:
		return nil
	case <-time.After(budget):
		return ErrTimeout
	}
}

// GoroutineID exposes this slot's synthetic goroutine identity.
func (m *Minion) GoroutineID() uint64 {
	return m.goroutineID.get()
}
