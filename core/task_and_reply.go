package core

import (
	"context"
	"fmt"
)

// =============================================================================
// Task and Reply with Result
// =============================================================================

// TaskWithResult is a background computation that produces a value.
type TaskWithResult[R any] func(ctx context.Context) (R, error)

// ReplyWithResult receives the value on the home goroutine.
// err is the task error, or ErrCancelled when the task was cancelled.
type ReplyWithResult[R any] func(result R, err error)

// ExecuteAndReply runs task on exec and hands its result and error to reply
// on the home goroutine of ec. Unlike a plain AsyncTask, a task error does
// not raise on the home goroutine; it is passed to reply instead.
//
// A nil exec uses the default executor of ec. The returned task can be used to
// cancel or to wait with Get.
//
// Example:
//
//	core.ExecuteAndReply(ec, nil,
//	    func(ctx context.Context) (*User, error) {
//	        return loadUser(ctx, id)
//	    },
//	    func(user *User, err error) {
//	        if err != nil {
//	            showError(err)
//	            return
//	        }
//	        render(user)
//	    },
//	)
func ExecuteAndReply[R any](
	ec *ExecutionContext,
	exec Executor,
	task TaskWithResult[R],
	reply ReplyWithResult[R],
	opts ...TaskOption,
) (*AsyncTask[struct{}, struct{}, R], error) {
	if task == nil {
		panic("ExecuteAndReply: task must not be nil")
	}
	if reply == nil {
		panic("ExecuteAndReply: reply must not be nil")
	}

	var taskErr error
	body := Funcs[struct{}, struct{}, R]{
		Background: func(ctx context.Context, _ ProgressPublisher[struct{}], _ ...struct{}) (R, error) {
			// taskErr is written before the result is posted and read on the
			// home goroutine after it is delivered
			value, err := callCatching(ctx, task)
			taskErr = err
			return value, nil
		},
		PostExecute: func(result R) {
			reply(result, taskErr)
		},
		Cancelled: func(result R) {
			reply(result, ErrCancelled)
		},
	}

	opts = append([]TaskOption{WithName(fmt.Sprintf("reply:%T", task))}, opts...)
	t := NewAsyncTask[struct{}, struct{}, R](ec, body, opts...)

	if exec == nil {
		exec = ec.DefaultExecutor()
	}
	return t, t.ExecuteOnExecutor(exec)
}
