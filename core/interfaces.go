package core

import (
	"context"
	"time"
)

// =============================================================================
// PanicHandler: Interface for handling task panics
// =============================================================================

// PanicHandler is called when a task panics during execution.
// This allows custom panic handling, logging, and recovery strategies.
//
// Implementations should be thread-safe as they may be called concurrently.
type PanicHandler interface {
	// HandlePanic is called when a task panics.
	//
	// Parameters:
	// - ctx: The context from the panicked task (may contain task runner info)
	// - runnerName: The name of the task runner where the panic occurred
	// - workerID: The ID of the worker (for thread pool workers, -1 for single-threaded runners)
	// - panicInfo: The panic value recovered from the task
	// - stackTrace: The stack trace at the time of panic
	HandlePanic(ctx context.Context, runnerName string, workerID int, panicInfo any, stackTrace []byte)
}

// DefaultPanicHandler logs panic information through a core Logger instead
// of the task runner crashing the process: a nil Logger falls back to
// NewNoOpLogger so a zero-value DefaultPanicHandler is still safe to use.
type DefaultPanicHandler struct {
	Logger Logger
}

func (h *DefaultPanicHandler) logger() Logger {
	if h.Logger == nil {
		return NewNoOpLogger()
	}
	return h.Logger
}

// HandlePanic logs the recovered panic and its stack trace.
func (h *DefaultPanicHandler) HandlePanic(ctx context.Context, runnerName string, workerID int, panicInfo any, stackTrace []byte) {
	if workerID >= 0 {
		h.logger().Error("task panicked",
			F("worker_id", workerID), F("runner", runnerName), F("panic", panicInfo), F("stack", string(stackTrace)))
		return
	}
	h.logger().Error("task panicked",
		F("runner", runnerName), F("panic", panicInfo), F("stack", string(stackTrace)))
}

// =============================================================================
// Metrics: Interface for observability and monitoring
// =============================================================================

// Metrics defines the interface for collecting task execution metrics.
// Implementations can send metrics to monitoring systems (Prometheus, StatsD, etc.).
//
// All methods are optional; implementations should handle nil receivers gracefully.
// Methods should be non-blocking and fast to avoid impacting task execution performance.
type Metrics interface {
	// RecordTaskDuration records how long a task took to execute.
	//
	// Parameters:
	// - runnerName: The name of the task runner
	// - priority: The task priority
	// - duration: How long the task took to execute
	RecordTaskDuration(runnerName string, priority TaskPriority, duration time.Duration)

	// RecordTaskPanic records that a task panicked during execution.
	//
	// Parameters:
	// - runnerName: The name of the task runner
	// - panicInfo: The panic value recovered from the task
	RecordTaskPanic(runnerName string, panicInfo any)

	// RecordQueueDepth records the current queue depth.
	// This can be called periodically to track queue growth/shrinkage.
	//
	// Parameters:
	// - runnerName: The name of the task runner
	// - depth: The current number of tasks in the queue
	RecordQueueDepth(runnerName string, depth int)

	// RecordTaskRejected records that a task was rejected (e.g., during shutdown).
	//
	// Parameters:
	// - runnerName: The name of the task runner
	// - reason: Why the task was rejected
	RecordTaskRejected(runnerName string, reason string)
}

// NilMetrics provides a no-op metrics implementation that does nothing.
// This is the default when no metrics interface is provided.
type NilMetrics struct{}

// RecordTaskDuration is a no-op.
func (m *NilMetrics) RecordTaskDuration(runnerName string, priority TaskPriority, duration time.Duration) {
}

// RecordTaskPanic is a no-op.
func (m *NilMetrics) RecordTaskPanic(runnerName string, panicInfo any) {
}

// RecordQueueDepth is a no-op.
func (m *NilMetrics) RecordQueueDepth(runnerName string, depth int) {
}

// RecordTaskRejected is a no-op.
func (m *NilMetrics) RecordTaskRejected(runnerName string, reason string) {
}

// =============================================================================
// RejectedTaskHandler: Interface for handling rejected tasks
// =============================================================================

// RejectedTaskHandler is called when a task is rejected by the scheduler.
// This can happen when:
// - The scheduler is shutting down
// - The signal channel is full (backpressure)
// - The task queue is full (if bounded queues are implemented in the future)
//
// Implementations should be thread-safe as they may be called concurrently.
type RejectedTaskHandler interface {
	// HandleRejectedTask is called when a task is rejected.
	//
	// Parameters:
	// - runnerName: The name of the task runner
	// - reason: Why the task was rejected (e.g., "shutdown", "backpressure")
	HandleRejectedTask(runnerName string, reason string)
}

// DefaultRejectedTaskHandler logs rejected tasks through a core Logger. A
// nil Logger falls back to NewNoOpLogger.
type DefaultRejectedTaskHandler struct {
	Logger Logger
}

// HandleRejectedTask logs the rejected task.
func (h *DefaultRejectedTaskHandler) HandleRejectedTask(runnerName string, reason string) {
	logger := h.Logger
	if logger == nil {
		logger = NewNoOpLogger()
	}
	logger.Warn("task rejected", F("runner", runnerName), F("reason", reason))
}

// =============================================================================
// RunnerConfig: Observability hooks for a TaskRunner
// =============================================================================

// RunnerConfig holds the panic/metrics/rejection hooks a TaskRunner reports
// through. All fields are optional; a runner built without a RunnerConfig
// falls back to DefaultRunnerConfig's no-op-friendly defaults.
type RunnerConfig struct {
	// PanicHandler is called when a task panics. Defaults to DefaultPanicHandler.
	PanicHandler PanicHandler

	// Metrics is called to record task execution metrics. Defaults to NilMetrics.
	Metrics Metrics

	// RejectedTaskHandler is called when a task is rejected. Defaults to DefaultRejectedTaskHandler.
	RejectedTaskHandler RejectedTaskHandler
}

// DefaultRunnerConfig returns a config with default handlers.
func DefaultRunnerConfig() *RunnerConfig {
	return &RunnerConfig{
		PanicHandler:        &DefaultPanicHandler{},
		Metrics:             &NilMetrics{},
		RejectedTaskHandler: &DefaultRejectedTaskHandler{},
	}
}
