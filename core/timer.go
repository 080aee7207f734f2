package core

import (
	"container/heap"
	"sync"
	"time"
)

// timerEntry is one scheduled (absolute-time, Job) pair. seq breaks ties
// between entries sharing the same runAt so they fire in insertion order;
// time.Time equality is too coarse to rely on otherwise.
type timerEntry struct {
	runAt time.Time
	job   Job
	seq   uint64
	index int // for container/heap
}

type timerHeap []*timerEntry

func (h timerHeap) Len() int { return len(h) }
func (h timerHeap) Less(i, j int) bool {
	if h[i].runAt.Equal(h[j].runAt) {
		return h[i].seq < h[j].seq
	}
	return h[i].runAt.Before(h[j].runAt)
}
func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index, h[j].index = i, j
}
func (h *timerHeap) Push(x any) {
	e := x.(*timerEntry)
	e.index = len(*h)
	*h = append(*h, e)
}
func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}
func (h timerHeap) Peek() *timerEntry {
	if len(h) == 0 {
		return nil
	}
	return h[0]
}

// Timer is the single dedicated goroutine owning the pool's ordered
// (time, Job) collection. At most one Timer goroutine ever runs for a
// given Timer value; entries fire in non-decreasing time order, and
// equal-time entries fire in insertion order via the seq tiebreak in
// timerHeap.Less, the same stability PriorityTaskQueue gives same-priority
// entries (core/queue.go).
type Timer struct {
	mu      sync.Mutex
	pq      timerHeap
	nextSeq uint64
	wakeup  chan struct{}
	queue   *HandleQueue

	goroutineID *goroutineTag
	stop        chan struct{}
	stopped     chan struct{}
	stopOnce    sync.Once
}

// NewTimer starts the timer goroutine immediately, feeding expiries into
// queue.
func NewTimer(queue *HandleQueue) *Timer {
	t := &Timer{
		wakeup:      make(chan struct{}, 1),
		queue:       queue,
		goroutineID: newGoroutineTag(),
		stop:        make(chan struct{}),
		stopped:     make(chan struct{}),
	}
	heap.Init(&t.pq)
	go t.loop()
	return t
}

// Schedule parks job to fire at at. If the new entry becomes the new head,
// the timer goroutine is woken so it can recompute its sleep duration.
func (t *Timer) Schedule(at time.Time, job Job) {
	t.mu.Lock()
	entry := &timerEntry{runAt: at, job: job, seq: t.nextSeq}
	t.nextSeq++
	heap.Push(&t.pq, entry)
	becameHead := entry.index == 0
	t.mu.Unlock()

	if becameHead {
		select {
		case t.wakeup <- struct{}{}:
		default:
		}
	}
}

// Revoke removes the first entry whose Job equals job by identity and
// reports whether anything was removed. A false return means the timer
// goroutine has already claimed the entry (it is at or past firing);
// callers must then also check the HandleQueue and each WorkerStatus to
// find it.
func (t *Timer) Revoke(job Job) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i, e := range t.pq {
		if e.job.Equal(job) {
			heap.Remove(&t.pq, i)
			return true
		}
	}
	return false
}

// TaskCount reports the number of still-pending timer entries.
func (t *Timer) TaskCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pq)
}

// GoroutineID exposes the timer goroutine's identity (slot 0 of the pool).
func (t *Timer) GoroutineID() uint64 {
	return t.goroutineID.get()
}

func (t *Timer) loop() {
	defer close(t.stopped)
	t.goroutineID.capture()

	timer := time.NewTimer(time.Hour)
	timer.Stop()

	for {
		t.mu.Lock()
		var fireNow *timerEntry
		var wait time.Duration
		if head := t.pq.Peek(); head == nil {
			wait = 1000 * time.Hour
		} else if !head.runAt.After(time.Now()) {
			fireNow = heap.Pop(&t.pq).(*timerEntry)
		} else {
			wait = time.Until(head.runAt)
		}
		t.mu.Unlock()

		if fireNow != nil {
			fireNow.job.onTimerFire(t.queue)
			continue
		}

		timer.Reset(wait)
		select {
		case <-t.stop:
			timer.Stop()
			return
		case <-timer.C:
		case <-t.wakeup:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		}
	}
}

// Stop halts the timer goroutine. Any still-pending entries are dropped
// without firing; WorkerPool.Stop is responsible for draining/revoking
// what callers still care about before calling this.
func (t *Timer) Stop() {
	t.stopOnce.Do(func() {
		close(t.stop)
	})
	<-t.stopped
}
