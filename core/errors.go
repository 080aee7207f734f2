package core

import "errors"

// Error taxonomy for the worker pool core. All user-visible operations
// return one of these (wrapped with context via fmt.Errorf/%w) instead of
// panicking; see the propagation policy in the design notes.
var (
	// ErrUnavailable is returned by Revoke when the target job was not
	// found in the timer, the queue, or any worker slot.
	ErrUnavailable = errors.New("workerpool: job unavailable")

	// ErrUnknownKey is returned by WorkerStatus.WaitForJobDone when the
	// slot is not currently running the identity the caller asked about.
	ErrUnknownKey = errors.New("workerpool: unknown job identity")

	// ErrTimeout is returned by a bounded wait that elapsed before the
	// awaited condition was observed.
	ErrTimeout = errors.New("workerpool: wait timed out")

	// ErrDisabled is returned by HandleQueue operations attempted while
	// the queue is disabled.
	ErrDisabled = errors.New("workerpool: queue disabled")

	// ErrPrecondition indicates a programming error: accessing the
	// process-wide WorkerPool singleton before it has been constructed,
	// or after it has been torn down.
	ErrPrecondition = errors.New("workerpool: precondition violated")
)
