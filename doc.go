// Package asynctask runs background computations and replays their progress
// and results on a single coordinating goroutine, the way Android's AsyncTask
// does on the UI thread.
//
// An AsyncTask goes through four steps: OnPreExecute runs on the home
// goroutine owned by a Dispatcher while Execute waits for it, DoInBackground
// runs on a pool worker, and OnProgressUpdate and OnPostExecute (or
// OnCancelled) run on the home goroutine again. Callbacks never race each other, so state touched only from
// callbacks needs no locks.
//
// # Quick Start
//
// Initialize the global execution context at application startup:
//
//	asynctask.InitGlobalExecutionContext(asynctask.DefaultExecutionContextConfig())
//	defer asynctask.ShutdownGlobalExecutionContext(context.Background())
//
// Create and execute a task:
//
//	task := asynctask.NewTask[string, int, []byte](asynctask.Funcs[string, int, []byte]{
//		Background: func(ctx context.Context, p asynctask.ProgressPublisher[int], urls ...string) ([]byte, error) {
//			p.PublishProgress(50)
//			return fetch(ctx, urls[0])
//		},
//		ProgressUpdate: func(values ...int) { bar.Set(values[0]) },
//		PostExecute:    func(body []byte) { render(body) },
//	})
//	task.Execute("https://example.com")
//
// # Key Concepts
//
// ThreadPoolExecutor: a bounded pool (5 core workers, 128 max, a queue of 8)
// that rejects work once saturated.
//
// SerialExecutor: runs one item at a time, in submission order, on top of the
// pool. SetExecutionMode(ModeSerial) makes it the default.
//
// Dispatcher: the home goroutine. Every callback and every failure of a
// background computation is delivered there.
//
// # Errors
//
// A task runs once; executing it again returns ErrIllegalState. Get returns
// ErrCancelled after Cancel and an *ExecutionError when DoInBackground failed.
// A failed computation is also raised as a panic on the home goroutine, which
// the default FatalPanicHandler turns into a crash.
package asynctask
