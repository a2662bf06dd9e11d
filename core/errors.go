package core

import (
	"errors"
	"fmt"
)

var (
	// ErrIllegalState is the parent of every lifecycle usage error.
	ErrIllegalState = errors.New("illegal state")

	// ErrTaskRunning is returned when executing a task that is already running.
	ErrTaskRunning = fmt.Errorf("%w: cannot execute task: the task is already running", ErrIllegalState)

	// ErrTaskFinished is returned when executing a task a second time.
	ErrTaskFinished = fmt.Errorf("%w: cannot execute task: the task has already been executed (a task can be executed only once)", ErrIllegalState)

	// ErrCancelled is returned by Get when the computation was cancelled.
	ErrCancelled = errors.New("task cancelled")

	// ErrTimeout is returned by GetTimeout when the result is not ready in time.
	ErrTimeout = errors.New("timed out waiting for task result")

	// ErrRejected is the parent of every RejectedError.
	ErrRejected = errors.New("work rejected")

	// ErrDispatcherClosed is returned when posting to a closed Dispatcher.
	ErrDispatcherClosed = errors.New("dispatcher is closed")
)

// Rejection reasons reported by executors.
const (
	RejectReasonShutdown = "shutdown"
	RejectReasonCapacity = "capacity"
)

// RejectedError reports that an executor refused a work item.
type RejectedError struct {
	Executor string
	Reason   string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("executor %s rejected work: %s", e.Executor, e.Reason)
}

// Is makes errors.Is(err, ErrRejected) hold for every RejectedError.
func (e *RejectedError) Is(target error) bool {
	return target == ErrRejected
}

// ExecutionError wraps a failure of a background computation.
type ExecutionError struct {
	TaskID TaskID
	Cause  error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("an error occurred while executing DoInBackground (task %s): %v", e.TaskID, e.Cause)
}

func (e *ExecutionError) Unwrap() error {
	return e.Cause
}
