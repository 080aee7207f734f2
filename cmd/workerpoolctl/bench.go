package main

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coreflow/workerpool/core"
	"github.com/spf13/cobra"
)

var (
	benchSubmitters int
	benchSubmits    int
	benchWork       time.Duration
)

var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Drive the at-most-one-in-flight SelfSubmittingDispatcher scenario and report coalescing stats",
	RunE:  runBench,
}

func init() {
	benchCmd.Flags().IntVar(&benchSubmitters, "submitters", 8, "number of goroutines calling Submit concurrently")
	benchCmd.Flags().IntVar(&benchSubmits, "submits", 2000, "Submit calls per submitter goroutine")
	benchCmd.Flags().DurationVar(&benchWork, "work", time.Millisecond, "simulated Dispatch duration")
}

// benchImplementation is the SelfSubmittingImplementation bench drives: it
// tracks total dispatches and flags any overlap, mirroring the
// countingImplementation test double in core's tests, which the CLI cannot
// import.
type benchImplementation struct {
	inFlight atomic.Bool
	overlaps atomic.Int64
	count    atomic.Int64
	work     time.Duration
}

func (b *benchImplementation) Dispatch() {
	if !b.inFlight.CompareAndSwap(false, true) {
		b.overlaps.Add(1)
		return
	}
	b.count.Add(1)
	time.Sleep(b.work)
	b.inFlight.Store(false)
}

func runBench(cmd *cobra.Command, args []string) error {
	cfg := loadConfigOrExit()
	logger := mustLogger(cfg)
	defer logger.Sync()

	pool := core.NewWorkerPool(cfg.WorkerCount+2, logger)
	if err := pool.Run(); err != nil {
		return fmt.Errorf("workerpoolctl: starting pool: %w", err)
	}
	defer pool.Stop()

	impl := &benchImplementation{work: benchWork}
	dispatcher := core.NewSelfSubmittingDispatcher(pool, impl)
	defer dispatcher.Close()

	start := time.Now()
	var wg sync.WaitGroup
	for g := 0; g < benchSubmitters; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < benchSubmits; i++ {
				dispatcher.Submit()
			}
		}()
	}
	wg.Wait()

	deadline := time.Now().Add(5 * time.Second)
	last := impl.count.Load()
	for time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
		cur := impl.count.Load()
		if cur == last {
			break
		}
		last = cur
	}
	elapsed := time.Since(start)

	total := int64(benchSubmitters) * int64(benchSubmits)
	fmt.Printf("submitted:  %d (from %d goroutines)\n", total, benchSubmitters)
	fmt.Printf("dispatched: %d\n", impl.count.Load())
	fmt.Printf("overlaps:   %d (want 0)\n", impl.overlaps.Load())
	fmt.Printf("coalescing: %.1fx fewer dispatches than submissions\n", float64(total)/float64(max64(impl.count.Load(), 1)))
	fmt.Printf("elapsed:    %s\n", elapsed)

	return nil
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
