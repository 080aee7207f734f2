package core

import "sync/atomic"

// SelfSubmittingImplementation is the user-supplied behavior a
// SelfSubmittingDispatcher wraps.
type SelfSubmittingImplementation interface {
	Dispatch()
}

// SelfSubmittingDispatcher adapts an implementation's Dispatch method into
// a Dispatchable that enforces at-most-one-in-flight submission: rapid
// repeated Submit calls coalesce into a single pending dispatch rather than
// queuing one Job per call.
//
// It holds only a borrowed reference to the wrapped implementation: the
// caller owns that object's lifetime, so there is no cyclic-ownership
// back-edge between dispatcher and implementation.
type SelfSubmittingDispatcher struct {
	RefCounted

	pool           *WorkerPool
	implementation SelfSubmittingImplementation
	submitted      atomic.Bool
}

// NewSelfSubmittingDispatcher wraps implementation, submitting through
// pool. The pool is captured explicitly at construction rather than
// reached through a singleton.
func NewSelfSubmittingDispatcher(pool *WorkerPool, implementation SelfSubmittingImplementation) *SelfSubmittingDispatcher {
	return &SelfSubmittingDispatcher{
		RefCounted:     NewRefCounted(),
		pool:           pool,
		implementation: implementation,
	}
}

// Submit atomically flips submitted false→true; on success it posts this
// dispatcher into the pool. A call that finds submitted already true is a
// no-op: the pending dispatch will observe the latest state when it runs.
func (d *SelfSubmittingDispatcher) Submit() {
	if d.submitted.CompareAndSwap(false, true) {
		_ = d.pool.Submit(d)
	}
}

// Dispatch is called by a Minion after this dispatcher reaches the head of
// the queue. It flips submitted true→false and, only on success, invokes
// the wrapped implementation's Dispatch. A failed compare-and-swap means
// the dispatcher was revoked between being queued and reaching the head;
// the call is dropped.
func (d *SelfSubmittingDispatcher) Dispatch() {
	if d.submitted.CompareAndSwap(true, false) {
		d.implementation.Dispatch()
	}
}

// Close marks this dispatcher unsubmitted, then revokes any outstanding
// copy from the pool so no execution can start after the caller considers
// this dispatcher dead.
func (d *SelfSubmittingDispatcher) Close() {
	d.submitted.Store(false)
	d.pool.Revoke(d, Infinite)
}
