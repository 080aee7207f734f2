package core

// Job is a core-internal value wrapper over a Dispatchable, carrying its
// identity for equality and revocation. Jobs are cheap to copy; copies
// share ownership of the underlying Dispatchable, which is why Job itself
// never calls acquire/release directly except at the two well-defined
// lifecycle points (dispatch, onTimerFire).
type Job struct {
	dispatchable Dispatchable
}

// newJob wraps d. Callers are responsible for having already called
// d.acquire() to account for the reference this Job represents.
func newJob(d Dispatchable) Job {
	return Job{dispatchable: d}
}

// IsValid reports whether this Job wraps a Dispatchable at all (the zero
// Job is invalid).
func (j Job) IsValid() bool {
	return j.dispatchable != nil
}

// Identity returns the wrapped Dispatchable's stable identity.
func (j Job) Identity() Identity {
	if !j.IsValid() {
		return 0
	}
	return j.dispatchable.Identity()
}

// Equal implements identity-based equality: two Jobs are equal iff they
// wrap the same underlying Dispatchable instance.
func (j Job) Equal(other Job) bool {
	return j.IsValid() && other.IsValid() && j.Identity() == other.Identity()
}

// dispatch calls the Dispatchable's Dispatch exactly once, then releases
// the pool's reference.
func (j Job) dispatch() {
	j.dispatchable.Dispatch()
	j.dispatchable.release()
}

// onTimerFire submits the Job into the owning pool's HandleQueue. The
// timer's reference is not released here: ownership transfers directly to
// the queued entry, so the total reference count the pool holds for this
// Dispatchable stays at exactly one until dispatch or revocation releases
// it. There is no reschedule: a fired timer entry runs at most once.
//
// If the queue has already been disabled (the pool is stopping, racing
// with this entry's fire), Insert fails and ownership never transfers to
// the queue; the reference acquired at Schedule time would otherwise leak,
// so it is released here instead.
func (j Job) onTimerFire(q *HandleQueue) {
	if err := q.Insert(j, 0); err != nil {
		j.dispatchable.release()
	}
}
