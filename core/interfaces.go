package core

import (
	"context"
	"fmt"
	"time"
)

// =============================================================================
// PanicHandler: Interface for handling panics
// =============================================================================

// PanicHandler is called when a work item or a home callback panics.
// This allows custom panic handling, logging, and recovery strategies.
//
// Implementations should be thread-safe as they may be called concurrently.
type PanicHandler interface {
	// HandlePanic is called when a task panics.
	//
	// Parameters:
	// - ctx: The context of the panicked work item
	// - source: The name of the pool worker or dispatcher where the panic occurred
	// - panicInfo: The panic value recovered
	// - stackTrace: The stack trace at the time of panic
	HandlePanic(ctx context.Context, source string, panicInfo any, stackTrace []byte)
}

// DefaultPanicHandler provides a basic panic handler that logs to stdout.
// Pool workers use it: a panicking work item never takes the worker down.
type DefaultPanicHandler struct{}

// HandlePanic prints panic information to stdout.
func (h *DefaultPanicHandler) HandlePanic(ctx context.Context, source string, panicInfo any, stackTrace []byte) {
	fmt.Printf("[%s] Panic: %v\nStack trace:\n%s", source, panicInfo, stackTrace)
}

// FatalPanicHandler logs the panic and panics again. It is the Dispatcher
// default, so a failed background computation or a panicking callback stops
// the process from the home goroutine.
type FatalPanicHandler struct {
	Logger Logger
}

// HandlePanic logs panicInfo and re-panics with it.
func (h *FatalPanicHandler) HandlePanic(ctx context.Context, source string, panicInfo any, stackTrace []byte) {
	loggerOrDefault(h.Logger).Error("fatal panic on coordinating goroutine",
		F("source", source), F("panic", panicInfo), F("stack", string(stackTrace)))
	panic(panicInfo)
}

// PanicHandlerFunc adapts a function to PanicHandler.
type PanicHandlerFunc func(ctx context.Context, source string, panicInfo any, stackTrace []byte)

// HandlePanic calls f.
func (f PanicHandlerFunc) HandlePanic(ctx context.Context, source string, panicInfo any, stackTrace []byte) {
	f(ctx, source, panicInfo, stackTrace)
}

// =============================================================================
// Metrics: Interface for observability and monitoring
// =============================================================================

// Metrics defines the interface for collecting task execution metrics.
// Implementations can send metrics to monitoring systems (Prometheus, StatsD, etc.).
//
// Methods should be non-blocking and fast to avoid impacting task execution performance.
type Metrics interface {
	// RecordTaskDuration records how long a work item took to execute.
	RecordTaskDuration(executorName string, duration time.Duration)

	// RecordTaskPanic records that a work item or callback panicked.
	RecordTaskPanic(executorName string, panicInfo any)

	// RecordQueueDepth records the current queue depth.
	RecordQueueDepth(executorName string, depth int)

	// RecordTaskRejected records that a work item was rejected (capacity, shutdown).
	RecordTaskRejected(executorName string, reason string)

	// RecordTaskOutcome records how an AsyncTask ended.
	RecordTaskOutcome(taskName string, outcome Outcome)
}

// NilMetrics provides a no-op metrics implementation that does nothing.
// This is the default when no metrics interface is provided.
type NilMetrics struct{}

func (m *NilMetrics) RecordTaskDuration(executorName string, duration time.Duration) {}
func (m *NilMetrics) RecordTaskPanic(executorName string, panicInfo any)             {}
func (m *NilMetrics) RecordQueueDepth(executorName string, depth int)                {}
func (m *NilMetrics) RecordTaskRejected(executorName string, reason string)          {}
func (m *NilMetrics) RecordTaskOutcome(taskName string, outcome Outcome)             {}

// =============================================================================
// RejectedTaskHandler: Interface for handling rejected work
// =============================================================================

// RejectedTaskHandler is called when an executor refuses a work item.
// This can happen when:
// - The executor is shutting down
// - The work queue is full and the pool is at its maximum size
//
// The rejection is still returned to the submitter; the handler only observes it.
type RejectedTaskHandler interface {
	HandleRejectedTask(executorName string, reason string)
}

// DefaultRejectedTaskHandler logs rejected work.
type DefaultRejectedTaskHandler struct {
	Logger Logger
}

// HandleRejectedTask logs the rejected work item.
func (h *DefaultRejectedTaskHandler) HandleRejectedTask(executorName string, reason string) {
	loggerOrDefault(h.Logger).Warn("work rejected", F("executor", executorName), F("reason", reason))
}
