package core

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// minionShutdownBudget bounds how long Stop waits for any single Minion
// slot before reporting it as slow, rather than hanging forever on one
// stuck Dispatch.
const minionShutdownBudget = 30 * time.Second

// State is one of WorkerPool's four lifecycle states.
type State int

const (
	Constructed State = iota
	Running
	Stopping
	Stopped
)

func (s State) String() string {
	switch s {
	case Constructed:
		return "constructed"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Metadata is the snapshot returned by WorkerPool.Snapshot.
type Metadata struct {
	Slots           int
	Pending         int
	Occupation      int32
	PerSlotCounters []uint32
}

// RevokeResult is the outcome of WorkerPool.Revoke.
type RevokeResult int

const (
	RevokeUnavailable RevokeResult = iota
	RevokeOK
)

// WorkerPool is the composition root of the execution engine: it owns the
// HandleQueue, the Timer, one WorkerStatus per slot, and the Minions
// occupying slots 2..N-1, and implements Submit/Schedule/Revoke/Snapshot/
// Run/Stop/Join plus the slot-id accessor.
//
// Slot 0 is the Timer, slot 1 is the thread that calls Join (borrowed, not
// owned), slots 2..N-1 are Minion-owned goroutines.
type WorkerPool struct {
	mu    sync.Mutex
	state State

	slots    int
	queue    *HandleQueue
	timer    *Timer
	statuses []*WorkerStatus
	minions  []*Minion

	occupation atomic.Int32
	perSlot    []atomic.Uint32

	joinedTag *goroutineTag

	logger *zap.Logger
}

// NewWorkerPool constructs a WorkerPool with slots total threads
// (slots must be ≥ 2: one timer slot, one joined slot, zero or more
// Minions). The pool starts in the Constructed state; call Run to begin
// dispatching.
func NewWorkerPool(slots int, logger *zap.Logger) *WorkerPool {
	if slots < 2 {
		panic(fmt.Sprintf("workerpool: slots must be >= 2, got %d", slots))
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	p := &WorkerPool{
		slots:    slots,
		queue:    NewHandleQueue(),
		statuses: make([]*WorkerStatus, slots),
		perSlot:  make([]atomic.Uint32, slots),
		logger:   logger,
	}
	for i := range p.statuses {
		p.statuses[i] = NewWorkerStatus()
	}
	p.timer = NewTimer(p.queue)
	return p
}

// State reports the pool's current lifecycle state.
func (p *WorkerPool) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Run transitions Constructed|Stopped → Running: enables the queue and
// starts every Minion-owned slot (2..slots-1).
func (p *WorkerPool) Run() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != Constructed && p.state != Stopped {
		return fmt.Errorf("workerpool: Run called in state %s: %w", p.state, ErrPrecondition)
	}

	p.queue.Enable()
	p.minions = p.minions[:0]
	for i := 2; i < p.slots; i++ {
		counters := slotCounters{occupation: &p.occupation, perSlot: &p.perSlot[i]}
		m := NewMinion(i, p.queue, p.statuses[i], counters, p.logger)
		p.minions = append(p.minions, m)
		m.Run()
	}
	p.state = Running
	return nil
}

// Stop transitions Running → Stopping → Stopped: disables the queue
// (waking every blocked Minion and Join with ErrDisabled), then waits for
// every Minion to exit. Each slot's wait is independent and bounded by
// minionShutdownBudget; any slots that do not exit in time are aggregated
// into a single combined error with go.uber.org/multierr rather than
// letting one stuck slot hide how many others are also stuck.
func (p *WorkerPool) Stop() error {
	p.mu.Lock()
	if p.state != Running {
		p.mu.Unlock()
		return fmt.Errorf("workerpool: Stop called in state %s: %w", p.state, ErrPrecondition)
	}
	p.state = Stopping
	minions := p.minions
	p.mu.Unlock()

	p.queue.Disable()

	var wg sync.WaitGroup
	errs := make([]error, len(minions))
	for i, m := range minions {
		wg.Add(1)
		go func(i int, m *Minion) {
			defer wg.Done()
			if err := m.WaitTimeout(minionShutdownBudget); err != nil {
				errs[i] = fmt.Errorf("workerpool: slot %d did not stop: %w", i+2, err)
			}
		}(i, m)
	}
	wg.Wait()

	p.mu.Lock()
	p.state = Stopped
	p.mu.Unlock()

	combined := multierr.Combine(errs...)
	if combined != nil {
		p.logger.Warn("workerpool stop observed slow minions", zap.Error(combined))
	}
	return combined
}

// Join binds the calling goroutine as slot 1's executor, running the same
// loop a Minion runs, until the queue is disabled. It is intended to be
// called from the application's main goroutine after Run; Stop does not
// wait for it to return (slot 1 is a borrowed thread the caller owns), but
// since Stop disables the queue first, a blocked Join returns promptly
// once Stop has been called.
func (p *WorkerPool) Join() {
	p.mu.Lock()
	if p.joinedTag == nil {
		p.joinedTag = newGoroutineTag()
	}
	p.mu.Unlock()

	p.joinedTag.capture()
	counters := slotCounters{occupation: &p.occupation, perSlot: &p.perSlot[1]}
	runExecutorLoop(p.queue, p.statuses[1], counters, p.logger, nil)
}

// Submit enqueues d for dispatch. It never blocks: the HandleQueue has no
// capacity bound. Submitting the same Dispatchable more than once is
// accepted; it dispatches once per submission.
func (p *WorkerPool) Submit(d Dispatchable) error {
	d.acquire()
	job := newJob(d)
	if err := p.queue.Insert(job, 0); err != nil {
		d.release()
		return err
	}
	return nil
}

// Schedule parks d in the Timer to be submitted at at.
func (p *WorkerPool) Schedule(at time.Time, d Dispatchable) {
	d.acquire()
	job := newJob(d)
	p.timer.Schedule(at, job)
}

// Revoke implements the three-location cancellation protocol: try the
// Timer, then the HandleQueue, then wait on each executor slot's
// WorkerStatus. waitFor applies per slot (Infinite for no deadline),
// since only one slot can ever be running a given job identity at a time.
//
// Slot 0 (the Timer) is never consulted as an executor slot; slot
// iteration starts at 1.
//
// A RevokeResult of RevokeOK or RevokeUnavailable is the only signal most
// callers need; per-slot WaitForJobDone timeouts (ErrTimeout, when waitFor
// is bounded) are aggregated with go.uber.org/multierr and logged at debug
// level rather than silently discarded, since a caller debugging a
// stuck Revoke benefits from seeing which slots timed out. ErrUnknownKey,
// which only means the slot is not running this job, is not collected.
func (p *WorkerPool) Revoke(d Dispatchable, waitFor time.Duration) RevokeResult {
	found := false
	probe := newJob(d)

	if p.timer.Revoke(probe) {
		found = true
		d.release()
	}
	if p.queue.Remove(probe) {
		found = true
		d.release()
	}

	id := d.Identity()
	var slotErrs []error
	for i := 1; i < p.slots; i++ {
		if err := p.statuses[i].WaitForJobDone(id, waitFor); err == nil {
			found = true
		} else if err == ErrTimeout {
			slotErrs = append(slotErrs, fmt.Errorf("workerpool: slot %d: %w", i, err))
		}
	}
	if combined := multierr.Combine(slotErrs...); combined != nil {
		p.logger.Debug("workerpool revoke observed slow slots", zap.Error(combined))
	}

	if found {
		return RevokeOK
	}
	return RevokeUnavailable
}

// Snapshot returns the current metadata counters. No locking is required:
// counters are monotonic increments read with atomics and may lag by a
// dispatch or two under concurrent load.
func (p *WorkerPool) Snapshot() Metadata {
	per := make([]uint32, p.slots)
	for i := range p.perSlot {
		per[i] = p.perSlot[i].Load()
	}
	return Metadata{
		Slots:           p.slots,
		Pending:         p.queue.Length(),
		Occupation:      p.occupation.Load(),
		PerSlotCounters: per,
	}
}

// Id returns the synthetic goroutine identity for slot: slot 0 is the
// Timer, slot 1 is the joined goroutine (0 until Join has been called at
// least once), and slots 2..slots-1 are Minion goroutines. Slot 1 reports
// the joined goroutine's real id rather than a hard-coded 0, so a caller
// can tell whether something has actually joined.
func (p *WorkerPool) Id(slot int) uint64 {
	switch {
	case slot == 0:
		return p.timer.GoroutineID()
	case slot == 1:
		p.mu.Lock()
		tag := p.joinedTag
		p.mu.Unlock()
		if tag == nil {
			return 0
		}
		return tag.get()
	case slot >= 2 && slot < p.slots:
		idx := slot - 2
		p.mu.Lock()
		minions := p.minions
		p.mu.Unlock()
		if idx >= len(minions) {
			return 0
		}
		return minions[idx].GoroutineID()
	default:
		return 0
	}
}

// Slots reports the fixed thread count this pool was constructed with.
func (p *WorkerPool) Slots() int {
	return p.slots
}

// TimerTaskCount reports how many Jobs are currently parked in the Timer
// waiting to fire.
func (p *WorkerPool) TimerTaskCount() int {
	return p.timer.TaskCount()
}

var (
	instanceMu sync.Mutex
	instance   *WorkerPool
)

// SetWorkerPoolInstance installs p as the process-wide singleton. Ambient
// global reach is a re-architecture hazard: prefer passing a *WorkerPool
// explicitly to anything that needs one. This accessor exists only for
// API-surface parity with code that cannot be changed to take an explicit
// handle.
func SetWorkerPoolInstance(p *WorkerPool) {
	instanceMu.Lock()
	defer instanceMu.Unlock()
	instance = p
}

// WorkerPoolInstance returns the process-wide singleton previously
// installed with SetWorkerPoolInstance. It returns ErrPrecondition if none
// has been installed (before construction or after Stop and eventual
// teardown).
func WorkerPoolInstance() (*WorkerPool, error) {
	instanceMu.Lock()
	defer instanceMu.Unlock()
	if instance == nil {
		return nil, ErrPrecondition
	}
	return instance, nil
}

// ClearWorkerPoolInstance removes the process-wide singleton. Intended for
// test teardown and for an orderly shutdown sequence after Stop.
func ClearWorkerPoolInstance() {
	instanceMu.Lock()
	defer instanceMu.Unlock()
	instance = nil
}
