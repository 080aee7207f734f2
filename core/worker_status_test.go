package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestWorkerStatus_IdleByDefault verifies the zero-value lifecycle state
// Given: a freshly constructed WorkerStatus
// When: IsRunning is called
// Then: it reports not running with a zero identity
func TestWorkerStatus_IdleByDefault(t *testing.T) {
	s := NewWorkerStatus()
	id, running := s.IsRunning()
	require.False(t, running)
	require.Zero(t, id)
}

// TestWorkerStatus_WaitForJobDoneUnknownKey verifies the unknownKey error kind
// Given: an idle WorkerStatus
// When: WaitForJobDone is called with any identity
// Then: it returns ErrUnknownKey immediately
func TestWorkerStatus_WaitForJobDoneUnknownKey(t *testing.T) {
	s := NewWorkerStatus()
	require.ErrorIs(t, s.WaitForJobDone(42, 0), ErrUnknownKey)
}

// TestWorkerStatus_WaitForJobDoneBlocksUntilFinished verifies scenario 5 (revoke running with wait)
// Given: a WorkerStatus marked running with job id 7
// When: WaitForJobDone(7, Infinite) is called and JobFinished runs ~90ms later
// Then: WaitForJobDone blocks roughly that long and then returns nil
func TestWorkerStatus_WaitForJobDoneBlocksUntilFinished(t *testing.T) {
	s := NewWorkerStatus()
	s.JobStarted(7)

	go func() {
		time.Sleep(90 * time.Millisecond)
		s.JobFinished()
	}()

	start := time.Now()
	require.NoError(t, s.WaitForJobDone(7, Infinite))
	require.GreaterOrEqual(t, time.Since(start), 70*time.Millisecond)
}

// TestWorkerStatus_WaitForJobDoneTimesOut verifies the bounded-wait path
// Given: a WorkerStatus running job id 1 that never finishes
// When: WaitForJobDone(1, 20ms) is called
// Then: it returns ErrTimeout
func TestWorkerStatus_WaitForJobDoneTimesOut(t *testing.T) {
	s := NewWorkerStatus()
	s.JobStarted(1)

	require.ErrorIs(t, s.WaitForJobDone(1, 20*time.Millisecond), ErrTimeout)
}

// TestWorkerStatus_WaitForJobDoneWrongIdentity verifies identity-specific waits
// Given: a WorkerStatus running job id 5
// When: WaitForJobDone is called with a different id
// Then: it returns ErrUnknownKey instead of waiting on the wrong job
func TestWorkerStatus_WaitForJobDoneWrongIdentity(t *testing.T) {
	s := NewWorkerStatus()
	s.JobStarted(5)

	require.ErrorIs(t, s.WaitForJobDone(6, 0), ErrUnknownKey)
}

// TestWorkerStatus_MultipleWaitersWokenTogether verifies the broadcast fan-out
// Given: three goroutines waiting on the same running job
// When: JobFinished is called once
// Then: all three waiters unblock with nil error
func TestWorkerStatus_MultipleWaitersWokenTogether(t *testing.T) {
	s := NewWorkerStatus()
	s.JobStarted(9)

	const waiters = 3
	errs := make(chan error, waiters)
	for i := 0; i < waiters; i++ {
		go func() {
			errs <- s.WaitForJobDone(9, Infinite)
		}()
	}

	time.Sleep(10 * time.Millisecond)
	s.JobFinished()

	for i := 0; i < waiters; i++ {
		select {
		case err := <-errs:
			require.NoError(t, err)
		case <-time.After(time.Second):
			t.Fatal("not all waiters were woken by JobFinished")
		}
	}
}
