package core

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"
)

// TaskOption configures an AsyncTask.
type TaskOption func(*taskOptions)

type taskOptions struct {
	name   string
	logger Logger
}

// WithName sets the name used in logs, metrics and execution records.
func WithName(name string) TaskOption {
	return func(o *taskOptions) { o.name = name }
}

// WithLogger overrides the execution context logger for one task.
func WithLogger(logger Logger) TaskOption {
	return func(o *taskOptions) { o.logger = logger }
}

// AsyncTask runs DoInBackground on an Executor and replays its progress and
// its result on the home goroutine of an ExecutionContext.
//
// P is the input type, G the progress type and R the result type.
//
// Lifecycle: Pending -> Running (Execute) -> Finished (after OnPostExecute or
// OnCancelled). A task runs at most once; executing it again returns an
// ErrIllegalState error. Exactly one of OnPostExecute and OnCancelled runs,
// exactly once, for every task that was executed or cancelled.
type AsyncTask[P, G, R any] struct {
	id      TaskID
	name    string
	ec      *ExecutionContext
	home    Coordinator
	logger  Logger
	metrics Metrics

	body Background[P, G, R]

	lc        lifecycle
	future    *Future[R]
	params    []P
	startedAt atomic.Int64 // unix nanos, 0 until executed
}

// NewAsyncTask creates a Pending task bound to ec.
// Panics if ec or body is nil.
func NewAsyncTask[P, G, R any](ec *ExecutionContext, body Background[P, G, R], opts ...TaskOption) *AsyncTask[P, G, R] {
	if ec == nil {
		panic("AsyncTask: execution context must not be nil")
	}
	if body == nil {
		panic("AsyncTask: body must not be nil")
	}

	var o taskOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.name == "" {
		o.name = fmt.Sprintf("%T", body)
	}
	if o.logger == nil {
		o.logger = ec.logger
	}

	id := GenerateTaskID()
	t := &AsyncTask[P, G, R]{
		id:      id,
		name:    o.name,
		ec:      ec,
		home:    ec.home,
		logger:  o.logger,
		metrics: ec.metrics,
		body:    body,
		future:  newFuture[R](id),
	}
	t.future.onStart = func() { t.lc.markInvoked() }
	t.future.onCancel = func(wasPending bool) {
		// A computation that never started still owes its OnCancelled
		if wasPending {
			var zero R
			t.postResult(zero)
		}
	}
	return t
}

// ID returns the task identifier.
func (t *AsyncTask[P, G, R]) ID() TaskID {
	return t.id
}

// Name returns the task name.
func (t *AsyncTask[P, G, R]) Name() string {
	return t.name
}

// Status returns the current lifecycle state.
func (t *AsyncTask[P, G, R]) Status() Status {
	return t.lc.status()
}

// IsCancelled reports whether Cancel was called before the task finished.
func (t *AsyncTask[P, G, R]) IsCancelled() bool {
	return t.lc.isCancelled()
}

// Execute runs the task on the execution context's default executor.
// See ExecuteOnExecutor.
func (t *AsyncTask[P, G, R]) Execute(params ...P) error {
	return t.ExecuteOnExecutorContext(context.Background(), t.ec.DefaultExecutor(), params...)
}

// ExecuteContext is Execute for callers holding the ctx of a home callback.
func (t *AsyncTask[P, G, R]) ExecuteContext(ctx context.Context, params ...P) error {
	return t.ExecuteOnExecutorContext(ctx, t.ec.DefaultExecutor(), params...)
}

// ExecuteOnExecutor moves the task to Running, runs OnPreExecute on the home
// goroutine and waits for it, then submits DoInBackground(params...) to exec.
// Called from the home goroutine, OnPreExecute runs inline.
//
// It returns ErrTaskRunning or ErrTaskFinished, without side effects, when the
// task has already been executed or was cancelled. If exec rejects the work
// the task finishes immediately, Get reports the rejection and the error is
// returned; no terminal hook runs in that case. The same holds when exec
// later discards the work without running it, e.g. on ShutdownNow.
func (t *AsyncTask[P, G, R]) ExecuteOnExecutor(exec Executor, params ...P) error {
	return t.ExecuteOnExecutorContext(context.Background(), exec, params...)
}

// ExecuteOnExecutorContext is ExecuteOnExecutor for callers holding the ctx
// of a home callback. ctx is used to recognise the home goroutine only.
func (t *AsyncTask[P, G, R]) ExecuteOnExecutorContext(ctx context.Context, exec Executor, params ...P) error {
	if exec == nil {
		return fmt.Errorf("%w: cannot execute task %s on a nil executor", ErrIllegalState, t.name)
	}

	if prev, ok := t.lc.tryStart(); !ok {
		if prev == StatusRunning {
			return ErrTaskRunning
		}
		return ErrTaskFinished
	}
	t.startedAt.Store(time.Now().UnixNano())

	if err := t.preExecute(ctx); err != nil {
		t.abort(err)
		return fmt.Errorf("execute task %s: %w", t.name, err)
	}
	t.params = params

	if err := submitTo(exec, t.run, t.abort); err != nil {
		t.abort(err)
		return fmt.Errorf("execute task %s: %w", t.name, err)
	}
	return nil
}

// preExecute runs OnPreExecute on the home goroutine and waits for it.
func (t *AsyncTask[P, G, R]) preExecute(ctx context.Context) error {
	pre, ok := t.body.(PreExecuter)
	if !ok {
		return nil
	}
	if o, ok := t.body.(interface{ hasPreExecute() bool }); ok && !o.hasPreExecute() {
		return nil
	}
	if h, ok := t.home.(interface{ IsHome(context.Context) bool }); ok && h.IsHome(ctx) {
		pre.OnPreExecute()
		return nil
	}

	ran := make(chan struct{})
	err := t.home.Post(Notification{
		Kind:   NotifyPreExecute,
		TaskID: t.id,
		Deliver: func(context.Context) {
			defer close(ran)
			pre.OnPreExecute()
		},
	})
	if err != nil {
		return homeClosed(err)
	}

	var stopped <-chan struct{}
	if d, ok := t.home.(interface{ Done() <-chan struct{} }); ok {
		stopped = d.Done()
	}
	select {
	case <-ran:
		return nil
	case <-stopped:
		select {
		case <-ran:
			return nil
		default:
			return homeClosed(ErrDispatcherClosed)
		}
	}
}

// homeClosed reports a closed home as a shutdown rejection.
func homeClosed(err error) error {
	return fmt.Errorf("%w: %w", &RejectedError{Executor: "home", Reason: RejectReasonShutdown}, err)
}

// abort finishes a task whose computation will never run. It does nothing if
// a concurrent Cancel got there first; OnCancelled is then already posted.
func (t *AsyncTask[P, G, R]) abort(cause error) {
	if !t.future.reject(cause) {
		return
	}
	t.lc.finish()
	t.record(OutcomeRejected)
	t.logger.Warn("task rejected by executor", F("task", t.name), F("id", t.id), F("error", cause))
}

// run is the work item handed to the executor.
func (t *AsyncTask[P, G, R]) run(ctx context.Context) {
	runCtx, ok := t.future.begin(ctx)
	if !ok {
		// Cancelled before it could start; Cancel already posted the result
		return
	}

	value, err := callCatching(runCtx, func(c context.Context) (R, error) {
		return t.body.DoInBackground(c, t, t.params...)
	})
	t.future.settle(value, err)

	if err != nil {
		if !t.lc.isCancelled() {
			t.postFailure(err)
			return
		}
		t.logger.Debug("cancelled task returned an error", F("task", t.name), F("error", err))
	}
	t.postResult(value)
}

// PublishProgress posts values for OnProgressUpdate on the home goroutine.
// Call it from DoInBackground only. Once the task is cancelled, calls are
// dropped silently.
func (t *AsyncTask[P, G, R]) PublishProgress(values ...G) {
	if t.lc.isCancelled() || t.lc.status() != StatusRunning {
		return
	}
	updater, ok := t.body.(ProgressUpdater[G])
	if !ok {
		return
	}

	snapshot := append([]G(nil), values...)
	err := t.home.Post(Notification{
		Kind:   NotifyProgress,
		TaskID: t.id,
		Deliver: func(context.Context) {
			updater.OnProgressUpdate(snapshot...)
		},
	})
	if err != nil {
		t.logger.Debug("progress dropped", F("task", t.name), F("error", err))
	}
}

func (t *AsyncTask[P, G, R]) postResult(value R) {
	if !t.lc.markResultPosted() {
		return
	}
	err := t.home.Post(Notification{
		Kind:   NotifyResult,
		TaskID: t.id,
		Deliver: func(context.Context) {
			t.finish(value)
		},
	})
	if err != nil {
		t.logger.Warn("result dropped, task finished without callback",
			F("task", t.name), F("id", t.id), F("error", err))
		t.lc.finish()
	}
}

func (t *AsyncTask[P, G, R]) postFailure(cause error) {
	if !t.lc.markResultPosted() {
		return
	}
	err := t.home.Post(Notification{
		Kind:   NotifyFailure,
		TaskID: t.id,
		Deliver: func(context.Context) {
			if t.lc.isCancelled() {
				var zero R
				t.finish(zero)
				return
			}
			t.lc.finish()
			t.record(OutcomeFailed)
			panic(&ExecutionError{TaskID: t.id, Cause: cause})
		},
	})
	if err != nil {
		t.logger.Error("background computation failed and the dispatcher is closed",
			F("task", t.name), F("id", t.id), F("error", cause))
		t.lc.finish()
	}
}

// finish runs the terminal hook on the home goroutine.
func (t *AsyncTask[P, G, R]) finish(result R) {
	outcome := OutcomeCompleted
	defer func() {
		t.lc.finish()
		t.record(outcome)
	}()

	if t.lc.isCancelled() {
		outcome = OutcomeCancelled
		if h, ok := t.body.(CancelHandler[R]); ok {
			h.OnCancelled(result)
		}
		return
	}
	if h, ok := t.body.(PostExecuter[R]); ok {
		h.OnPostExecute(result)
	}
}

func (t *AsyncTask[P, G, R]) record(outcome Outcome) {
	finishedAt := time.Now()
	rec := TaskExecutionRecord{
		TaskID:     t.id,
		Name:       t.name,
		Outcome:    outcome,
		Invoked:    t.lc.isInvoked(),
		FinishedAt: finishedAt,
	}
	if ns := t.startedAt.Load(); ns != 0 {
		rec.StartedAt = time.Unix(0, ns)
		rec.Duration = finishedAt.Sub(rec.StartedAt)
	}
	t.ec.recordTask(rec)
}

// Cancel marks the task cancelled and cancels its computation. If
// DoInBackground has not started it never will, and OnCancelled runs with the
// zero result. If it is running, mayInterrupt cancels its context; either way
// OnCancelled receives whatever it returns.
//
// Cancel returns false if the task had already finished or its computation
// had already completed. Repeated calls have no further effect.
func (t *AsyncTask[P, G, R]) Cancel(mayInterrupt bool) bool {
	if t.lc.status() == StatusFinished {
		return false
	}
	t.lc.markCancelled()
	return t.future.Cancel(mayInterrupt)
}

// Get blocks until the computation settles. It returns ErrCancelled after a
// cancellation and an *ExecutionError when DoInBackground failed.
// Never call it from the home goroutine: the result is delivered there.
func (t *AsyncTask[P, G, R]) Get() (R, error) {
	return t.future.Get()
}

// GetTimeout is Get bounded by timeout; it returns ErrTimeout on expiry and
// leaves the computation running.
func (t *AsyncTask[P, G, R]) GetTimeout(timeout time.Duration) (R, error) {
	return t.future.GetTimeout(timeout)
}

// GetContext is Get bounded by ctx.
func (t *AsyncTask[P, G, R]) GetContext(ctx context.Context) (R, error) {
	return t.future.GetContext(ctx)
}

// Done returns a channel closed when the computation settles. The terminal
// hook may still be pending on the home goroutine at that point.
func (t *AsyncTask[P, G, R]) Done() <-chan struct{} {
	return t.future.Done()
}
