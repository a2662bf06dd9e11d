package asynctask

import "github.com/Swind/go-async-task/core"

// Re-export commonly used types from core package for convenience.
// This allows users to import only the asynctask package for most use cases.

// AsyncTask runs DoInBackground on an Executor and its callbacks on the home goroutine
type AsyncTask[P, G, R any] = core.AsyncTask[P, G, R]

// Background is the task body
type Background[P, G, R any] = core.Background[P, G, R]

// ProgressPublisher is handed to DoInBackground
type ProgressPublisher[G any] = core.ProgressPublisher[G]

// Funcs builds a task body from plain functions
type Funcs[P, G, R any] = core.Funcs[P, G, R]

// TaskOption configures an AsyncTask
type TaskOption = core.TaskOption

// Runnable is the unit of work handed to an Executor
type Runnable = core.Runnable

// Executor runs submitted work items
type Executor = core.Executor

// ExecutorFunc adapts a function to Executor
type ExecutorFunc = core.ExecutorFunc

// Status is the lifecycle state of an AsyncTask
type Status = core.Status

// ExecutionMode selects the default executor
type ExecutionMode = core.ExecutionMode

// ExecutionContext bundles the home dispatcher, the pool and the default executor
type ExecutionContext = core.ExecutionContext

// ExecutionContextConfig holds configuration options for ExecutionContext
type ExecutionContextConfig = core.ExecutionContextConfig

// TaskWithResult and ReplyWithResult for the ExecuteAndReply pattern
type TaskWithResult[R any] = core.TaskWithResult[R]
type ReplyWithResult[R any] = core.ReplyWithResult[R]

// Status constants
const (
	StatusPending  = core.StatusPending
	StatusRunning  = core.StatusRunning
	StatusFinished = core.StatusFinished
)

// Execution modes
const (
	ModeParallel = core.ModeParallel
	ModeSerial   = core.ModeSerial
)

// Errors
var (
	ErrIllegalState = core.ErrIllegalState
	ErrTaskRunning  = core.ErrTaskRunning
	ErrTaskFinished = core.ErrTaskFinished
	ErrCancelled    = core.ErrCancelled
	ErrTimeout      = core.ErrTimeout
	ErrRejected     = core.ErrRejected
)

// Convenience functions
var (
	WithName                      = core.WithName
	WithLogger                    = core.WithLogger
	DefaultExecutionContextConfig = core.DefaultExecutionContextConfig
	NewExecutionContext           = core.NewExecutionContext
	GetCurrentDispatcher          = core.GetCurrentDispatcher
	GetWorkerName                 = core.GetWorkerName
)
