package taskrunner

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"
)

// TestPoolConstructorsExposeEngine verifies both pool constructors produce
// a pool backed by a usable engine.
// Given: default and logger-configured pool constructors
// When: each pool is created and inspected before Start
// Then: each reports zero delayed tasks and a stable ID
func TestPoolConstructorsExposeEngine(t *testing.T) {
	// Arrange
	logger := zap.NewNop()

	// Act
	p1 := NewGoroutineThreadPool("plain-pool", 1)
	p2 := NewGoroutineThreadPoolWithLogger("logged-pool", 1, logger)

	// Assert
	for _, p := range []*GoroutineThreadPool{p1, p2} {
		if p.DelayedTaskCount() != 0 {
			t.Fatalf("DelayedTaskCount() = %d, want 0 for fresh pool %q", p.DelayedTaskCount(), p.ID())
		}
		if p.IsRunning() {
			t.Fatalf("pool %q should not be running before Start", p.ID())
		}
	}
}

// TestTypeWrappersAndGlobalPoolAccessor verifies top-level wrappers return usable instances
// Given: An initialized global pool
// When: Type wrapper constructors and GetGlobalThreadPool accessor are called
// Then: Wrappers return non-nil runners and tasks execute through shared pool
func TestTypeWrappersAndGlobalPoolAccessor(t *testing.T) {
	// Arrange
	InitGlobalThreadPool(1)
	defer ShutdownGlobalThreadPool()

	// Act
	gp := GetGlobalThreadPool()

	// Assert
	if gp == nil {
		t.Fatal("GetGlobalThreadPool() returned nil")
	}

	// Act
	seq := NewSequencedTaskRunner(gp)

	// Assert
	if seq == nil {
		t.Fatal("NewSequencedTaskRunner() returned nil")
	}

	// Act
	single := NewSingleThreadTaskRunner()

	// Assert
	if single == nil {
		t.Fatal("NewSingleThreadTaskRunner() returned nil")
	}
	defer single.Stop()

	// Act
	par := NewParallelTaskRunner(gp, 1)

	// Assert
	if par == nil {
		t.Fatal("NewParallelTaskRunner() returned nil")
	}
	defer par.Shutdown()

	// Act
	done := make(chan struct{}, 1)
	seq.PostTask(func(ctx context.Context) {
		select {
		case done <- struct{}{}:
		default:
		}
	})

	// Assert
	select {
	case <-done:
	case <-time.After(1 * time.Second):
		t.Fatal("sequenced runner wrapper task did not execute")
	}
}
