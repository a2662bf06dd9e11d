package asynctask

import (
	"context"
	"sync"

	"github.com/Swind/go-async-task/core"
)

// =============================================================================
// Global Execution Context Helper (Singleton)
// =============================================================================

var (
	globalContext *core.ExecutionContext
	globalMu      sync.Mutex
)

// InitGlobalExecutionContext creates the global execution context from cfg.
// Later calls are ignored until ShutdownGlobalExecutionContext.
func InitGlobalExecutionContext(cfg core.ExecutionContextConfig) {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalContext != nil {
		return // Already initialized
	}

	globalContext = core.NewExecutionContext(cfg)
}

// GetGlobalExecutionContext returns the global execution context.
// It panics if InitGlobalExecutionContext has not been called.
func GetGlobalExecutionContext() *core.ExecutionContext {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalContext == nil {
		panic("global ExecutionContext not initialized. Call InitGlobalExecutionContext() first.")
	}
	return globalContext
}

// ShutdownGlobalExecutionContext drains and stops the global execution context.
func ShutdownGlobalExecutionContext(ctx context.Context) error {
	globalMu.Lock()
	ec := globalContext
	globalContext = nil
	globalMu.Unlock()

	if ec == nil {
		return nil
	}
	return ec.Shutdown(ctx)
}

// NewTask creates an AsyncTask bound to the global execution context.
func NewTask[P, G, R any](body core.Background[P, G, R], opts ...core.TaskOption) *core.AsyncTask[P, G, R] {
	return core.NewAsyncTask(GetGlobalExecutionContext(), body, opts...)
}

// Run submits a plain work item to the global default executor.
func Run(work core.Runnable) error {
	return GetGlobalExecutionContext().Run(work)
}

// SetDefaultExecutor replaces the executor used by AsyncTask.Execute on the
// global execution context. Nil restores the thread pool.
func SetDefaultExecutor(exec core.Executor) {
	GetGlobalExecutionContext().SetDefaultExecutor(exec)
}

// ExecuteAndReply runs task on the global default executor and delivers its
// result to reply on the home goroutine.
func ExecuteAndReply[R any](task core.TaskWithResult[R], reply core.ReplyWithResult[R]) (*core.AsyncTask[struct{}, struct{}, R], error) {
	return core.ExecuteAndReply(GetGlobalExecutionContext(), nil, task, reply)
}
