package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sourcegraph/conc/panics"
)

type futureState int

const (
	futurePending futureState = iota
	futureRunning
	futureCompleted
	futureCancelled
	futureFailed
)

func (s futureState) settled() bool {
	return s >= futureCompleted
}

// Future is the result handle of one background computation. Its state is a
// tagged union (pending, running, completed, cancelled, failed) guarded by a
// single mutex; done is closed exactly once, when the state settles.
type Future[R any] struct {
	id TaskID

	mu        sync.Mutex
	state     futureState
	result    R
	err       error
	interrupt context.CancelFunc

	done chan struct{}

	// onStart runs inside the pending->running critical section.
	onStart func()
	// onCancel runs after a successful Cancel, outside the lock.
	onCancel func(wasPending bool)
}

func newFuture[R any](id TaskID) *Future[R] {
	return &Future[R]{
		id:   id,
		done: make(chan struct{}),
	}
}

// begin moves the future from pending to running and returns the context the
// computation must observe. It returns false if the future was cancelled (or
// otherwise settled) before it could start.
func (f *Future[R]) begin(parent context.Context) (context.Context, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.state != futurePending {
		return nil, false
	}
	ctx, cancel := context.WithCancel(parent)
	f.interrupt = cancel
	f.state = futureRunning
	if f.onStart != nil {
		f.onStart()
	}
	return ctx, true
}

// settle records the computation outcome. It returns false if the future was
// cancelled while the computation ran; the outcome is then discarded.
func (f *Future[R]) settle(value R, err error) bool {
	f.mu.Lock()
	interrupt := f.interrupt
	f.interrupt = nil
	if f.state != futureRunning {
		f.mu.Unlock()
		if interrupt != nil {
			interrupt()
		}
		return false
	}
	if err != nil {
		f.state = futureFailed
		f.err = &ExecutionError{TaskID: f.id, Cause: err}
	} else {
		f.state = futureCompleted
		f.result = value
	}
	close(f.done)
	f.mu.Unlock()

	if interrupt != nil {
		interrupt()
	}
	return true
}

// reject fails a future that never started. It returns false when the future
// had already left the pending state, e.g. through a concurrent Cancel.
func (f *Future[R]) reject(cause error) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != futurePending {
		return false
	}
	f.state = futureFailed
	f.err = &ExecutionError{TaskID: f.id, Cause: cause}
	close(f.done)
	return true
}

// Cancel attempts to cancel the computation. A pending computation will never
// run. For a running one, mayInterrupt cancels the context it was given.
// Cancel returns false if the future had already settled.
func (f *Future[R]) Cancel(mayInterrupt bool) bool {
	f.mu.Lock()
	var wasPending bool
	var interrupt context.CancelFunc
	switch f.state {
	case futurePending:
		wasPending = true
	case futureRunning:
		if mayInterrupt {
			interrupt = f.interrupt
		}
	default:
		f.mu.Unlock()
		return false
	}
	f.state = futureCancelled
	close(f.done)
	f.mu.Unlock()

	if interrupt != nil {
		interrupt()
	}
	if f.onCancel != nil {
		f.onCancel(wasPending)
	}
	return true
}

// Done returns a channel closed once the future has settled.
func (f *Future[R]) Done() <-chan struct{} {
	return f.done
}

// IsDone reports whether the future has settled (completed, failed or cancelled).
func (f *Future[R]) IsDone() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state.settled()
}

// IsCancelled reports whether the future was cancelled before it settled.
func (f *Future[R]) IsCancelled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state == futureCancelled
}

// Get blocks until the future settles. Never call it from the home goroutine.
func (f *Future[R]) Get() (R, error) {
	<-f.done
	return f.outcome()
}

// GetTimeout is Get bounded by timeout. On expiry it returns ErrTimeout and
// the computation keeps running.
func (f *Future[R]) GetTimeout(timeout time.Duration) (R, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-f.done:
		return f.outcome()
	case <-timer.C:
		var zero R
		return zero, ErrTimeout
	}
}

// GetContext is Get bounded by ctx.
func (f *Future[R]) GetContext(ctx context.Context) (R, error) {
	select {
	case <-f.done:
		return f.outcome()
	case <-ctx.Done():
		var zero R
		return zero, fmt.Errorf("waiting for task %s: %w", f.id, ctx.Err())
	}
}

func (f *Future[R]) outcome() (R, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var zero R
	switch f.state {
	case futureCompleted:
		return f.result, nil
	case futureCancelled:
		return zero, ErrCancelled
	case futureFailed:
		return zero, f.err
	default:
		return zero, fmt.Errorf("%w: future %s has not settled", ErrIllegalState, f.id)
	}
}

// callCatching runs fn and turns a panic into an error carrying the stack.
func callCatching[R any](ctx context.Context, fn func(ctx context.Context) (R, error)) (value R, err error) {
	recovered := panics.Try(func() {
		value, err = fn(ctx)
	})
	if recovered != nil {
		var zero R
		return zero, recovered.AsError()
	}
	return value, err
}
