package main

import (
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/coreflow/workerpool/core"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	runRate          time.Duration
	runDelayedShare  float64
	runSnapshotEvery time.Duration
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start a pool and feed it synthetic jobs until interrupted",
	RunE:  runRun,
}

func init() {
	runCmd.Flags().DurationVar(&runRate, "rate", 10*time.Millisecond, "interval between synthetic submissions")
	runCmd.Flags().Float64Var(&runDelayedShare, "delayed-share", 0.2, "fraction of submissions scheduled via the timer instead of submitted directly")
	runCmd.Flags().DurationVar(&runSnapshotEvery, "snapshot-every", time.Second, "interval between Snapshot() printouts")
}

// syntheticJob is a Dispatchable that increments a shared counter and
// sleeps a random jitter to look like real work.
type syntheticJob struct {
	core.RefCounted
	seq     int64
	counter *atomic.Int64
}

func newSyntheticJob(seq int64, counter *atomic.Int64) *syntheticJob {
	return &syntheticJob{RefCounted: core.NewRefCounted(), seq: seq, counter: counter}
}

func (j *syntheticJob) Dispatch() {
	time.Sleep(time.Duration(rand.Intn(5)) * time.Millisecond)
	j.counter.Add(1)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg := loadConfigOrExit()
	logger := mustLogger(cfg)
	defer logger.Sync()

	pool := core.NewWorkerPool(cfg.WorkerCount+2, logger)
	if err := pool.Run(); err != nil {
		return fmt.Errorf("workerpoolctl: starting pool: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var completed atomic.Int64
	var seq int64
	ticker := time.NewTicker(runRate)
	defer ticker.Stop()
	snapshotTicker := time.NewTicker(runSnapshotEvery)
	defer snapshotTicker.Stop()

	logger.Info("workerpoolctl run started",
		zap.Int("worker_count", cfg.WorkerCount),
		zap.Duration("rate", runRate),
	)

	for {
		select {
		case <-ctx.Done():
			logger.Info("shutting down", zap.Int64("completed", completed.Load()))
			return pool.Stop()
		case <-ticker.C:
			seq++
			job := newSyntheticJob(seq, &completed)
			if rand.Float64() < runDelayedShare {
				pool.Schedule(time.Now().Add(cfg.TimerWakeupMinBudget+5*time.Millisecond), job)
			} else if err := pool.Submit(job); err != nil {
				logger.Warn("submit failed", zap.Error(err))
			}
		case <-snapshotTicker.C:
			snap := pool.Snapshot()
			logger.Info("snapshot",
				zap.Int("pending", snap.Pending),
				zap.Int32("occupation", snap.Occupation),
				zap.Int64("completed", completed.Load()),
			)
		}
	}
}
