package core

import (
	"context"

	"github.com/google/uuid"
)

// Runnable is the unit of work handed to an Executor (Closure)
type Runnable func(ctx context.Context)

// =============================================================================
// Executor: Define work submission interface
// =============================================================================

// Executor runs submitted work items. Implementations decide whether items run
// concurrently (ThreadPoolExecutor) or one at a time (SerialExecutor).
//
// Execute must not block waiting for the item to run. A non-nil error means
// the item was not accepted and will never run.
type Executor interface {
	Execute(work Runnable) error
}

// ExecutorFunc adapts a plain function to the Executor interface.
type ExecutorFunc func(work Runnable) error

// Execute calls f(work).
func (f ExecutorFunc) Execute(work Runnable) error {
	return f(work)
}

// =============================================================================
// TaskID
// =============================================================================

// TaskID identifies one AsyncTask instance.
type TaskID uuid.UUID

// GenerateTaskID returns a new random TaskID.
func GenerateTaskID() TaskID {
	return TaskID(uuid.New())
}

func (id TaskID) String() string {
	return uuid.UUID(id).String()
}

// =============================================================================
// Context Helper
// =============================================================================
type homeKeyType struct{}

var homeKey homeKeyType

type workerKeyType struct{}

var workerKey workerKeyType

// GetCurrentDispatcher returns the Dispatcher whose home goroutine is running
// the callback that received ctx, or nil outside of a home callback.
func GetCurrentDispatcher(ctx context.Context) *Dispatcher {
	if v := ctx.Value(homeKey); v != nil {
		return v.(*Dispatcher)
	}
	return nil
}

// GetWorkerName returns the name of the pool worker running the current work
// item ("AsyncTask #3"), or "" when ctx does not come from a pool worker.
func GetWorkerName(ctx context.Context) string {
	if v := ctx.Value(workerKey); v != nil {
		return v.(string)
	}
	return ""
}
