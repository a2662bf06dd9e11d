package core

import (
	"context"
	"errors"
)

// Background is the one method every task body implements. It runs on a pool
// worker. ctx is cancelled when the task is cancelled with mayInterrupt, or
// when the pool is stopped; long computations should watch it.
type Background[P, G, R any] interface {
	DoInBackground(ctx context.Context, progress ProgressPublisher[G], params ...P) (R, error)
}

// ProgressPublisher is handed to DoInBackground. AsyncTask implements it.
type ProgressPublisher[G any] interface {
	PublishProgress(values ...G)
}

// The optional hooks below are detected on the task body with a type
// assertion. They all run on the home goroutine, one at a time.

// PreExecuter is called before the background computation is submitted.
// Execute waits for it.
type PreExecuter interface {
	OnPreExecute()
}

// ProgressUpdater receives every PublishProgress call made before cancellation.
type ProgressUpdater[G any] interface {
	OnProgressUpdate(values ...G)
}

// PostExecuter receives the result of a task that was not cancelled.
type PostExecuter[R any] interface {
	OnPostExecute(result R)
}

// CancelHandler receives the result of a cancelled task: whatever
// DoInBackground returned, or the zero value if it never ran.
type CancelHandler[R any] interface {
	OnCancelled(result R)
}

var errNoBackground = errors.New("Funcs: Background is nil")

// Funcs builds a task body from plain functions. Nil hooks are skipped.
//
//	body := core.Funcs[string, int, []byte]{
//		Background: func(ctx context.Context, p core.ProgressPublisher[int], urls ...string) ([]byte, error) {
//			return fetch(ctx, urls[0])
//		},
//		PostExecute: func(b []byte) { render(b) },
//	}
type Funcs[P, G, R any] struct {
	PreExecute     func()
	Background     func(ctx context.Context, progress ProgressPublisher[G], params ...P) (R, error)
	ProgressUpdate func(values ...G)
	PostExecute    func(result R)
	Cancelled      func(result R)
}

func (f Funcs[P, G, R]) DoInBackground(ctx context.Context, progress ProgressPublisher[G], params ...P) (R, error) {
	if f.Background == nil {
		var zero R
		return zero, errNoBackground
	}
	return f.Background(ctx, progress, params...)
}

func (f Funcs[P, G, R]) OnPreExecute() {
	if f.PreExecute != nil {
		f.PreExecute()
	}
}

func (f Funcs[P, G, R]) hasPreExecute() bool {
	return f.PreExecute != nil
}

func (f Funcs[P, G, R]) OnProgressUpdate(values ...G) {
	if f.ProgressUpdate != nil {
		f.ProgressUpdate(values...)
	}
}

func (f Funcs[P, G, R]) OnPostExecute(result R) {
	if f.PostExecute != nil {
		f.PostExecute(result)
	}
}

func (f Funcs[P, G, R]) OnCancelled(result R) {
	if f.Cancelled != nil {
		f.Cancelled(result)
	}
}
