package core

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
)

// NotificationKind tags what a Notification carries.
type NotificationKind int

const (
	// NotifyRunnable: an arbitrary closure posted with RunOnHome
	NotifyRunnable NotificationKind = iota

	// NotifyProgress: a PublishProgress call to replay through OnProgressUpdate
	NotifyProgress

	// NotifyResult: the single terminal result of a task
	NotifyResult

	// NotifyFailure: a background computation failed; raised on the home goroutine
	NotifyFailure

	// NotifyPreExecute: OnPreExecute of a task executed off the home goroutine
	NotifyPreExecute
)

func (k NotificationKind) String() string {
	switch k {
	case NotifyRunnable:
		return "runnable"
	case NotifyProgress:
		return "progress"
	case NotifyResult:
		return "result"
	case NotifyFailure:
		return "failure"
	case NotifyPreExecute:
		return "pre-execute"
	default:
		return fmt.Sprintf("NotificationKind(%d)", int(k))
	}
}

// Notification is one message for the home goroutine. Deliver runs there.
type Notification struct {
	Kind    NotificationKind
	TaskID  TaskID
	Deliver func(ctx context.Context)
}

// Coordinator is the run-on-home-thread capability. Every notification posted
// must be delivered, in posting order, on one single goroutine.
type Coordinator interface {
	Post(n Notification) error
}

// DispatcherConfig holds optional collaborators for Dispatcher.
type DispatcherConfig struct {
	Name string

	// PanicHandler receives panics raised by callbacks, including background
	// failures. Defaults to FatalPanicHandler.
	PanicHandler PanicHandler
	Metrics      Metrics
	Logger       Logger
}

// Dispatcher owns a dedicated goroutine (the home goroutine) that drains an
// unbounded FIFO of notifications. All task callbacks run there, so they never
// race each other.
//
// Posting never blocks: worker goroutines append and move on.
type Dispatcher struct {
	name         string
	panicHandler PanicHandler
	metrics      Metrics
	logger       Logger

	mu     sync.Mutex
	queue  fifoQueue[Notification]
	closed bool
	wake   chan struct{}

	// Lifecycle control
	ctx          context.Context
	cancel       context.CancelFunc
	stopped      chan struct{}
	shutdownOnce sync.Once
	stopOnce     sync.Once

	delivered atomic.Int64
	homeGID   atomic.Uint64
}

// NewDispatcher creates and starts a Dispatcher with default collaborators.
func NewDispatcher() *Dispatcher {
	return NewDispatcherWithConfig(DispatcherConfig{})
}

// NewDispatcherWithConfig creates and starts a Dispatcher.
// It immediately spawns the home goroutine.
func NewDispatcherWithConfig(cfg DispatcherConfig) *Dispatcher {
	if cfg.Name == "" {
		cfg.Name = "home"
	}
	logger := loggerOrDefault(cfg.Logger)
	if cfg.PanicHandler == nil {
		cfg.PanicHandler = &FatalPanicHandler{Logger: logger}
	}
	if cfg.Metrics == nil {
		cfg.Metrics = &NilMetrics{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		name:         cfg.Name,
		panicHandler: cfg.PanicHandler,
		metrics:      cfg.Metrics,
		logger:       logger,
		queue:        newFIFOQueue[Notification](),
		wake:         make(chan struct{}, 1),
		ctx:          ctx,
		cancel:       cancel,
		stopped:      make(chan struct{}),
	}

	go d.runLoop()

	return d
}

// Name returns the name of the dispatcher
func (d *Dispatcher) Name() string {
	return d.name
}

// Post appends n to the home queue. It fails only once the dispatcher is closed.
func (d *Dispatcher) Post(n Notification) error {
	if n.Deliver == nil {
		panic("Dispatcher: notification without Deliver")
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrDispatcherClosed
	}
	d.queue.Push(n)
	d.mu.Unlock()

	d.signal()
	return nil
}

// RunOnHome posts fn to run on the home goroutine.
func (d *Dispatcher) RunOnHome(fn func(ctx context.Context)) error {
	return d.Post(Notification{Kind: NotifyRunnable, Deliver: fn})
}

func (d *Dispatcher) signal() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// runLoop is the core of this dispatcher, it occupies the home goroutine
func (d *Dispatcher) runLoop() {
	defer close(d.stopped)
	d.homeGID.Store(goroutineID())

	runCtx := context.WithValue(d.ctx, homeKey, d)

	for {
		d.mu.Lock()
		n, ok := d.queue.Pop()
		closed := d.closed
		d.mu.Unlock()

		if ok {
			d.deliver(runCtx, n)
			continue
		}
		if closed {
			return
		}

		select {
		case <-d.wake:
		case <-d.ctx.Done():
			return
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, n Notification) {
	defer func() {
		if r := recover(); r != nil {
			d.metrics.RecordTaskPanic(d.name, r)
			d.panicHandler.HandlePanic(ctx, d.name, r, debug.Stack())
		}
	}()
	n.Deliver(ctx)
	d.delivered.Add(1)
}

// IsHome reports whether the caller runs on this dispatcher's home goroutine.
// A ctx handed to a home callback answers without inspecting the stack.
func (d *Dispatcher) IsHome(ctx context.Context) bool {
	if ctx != nil && GetCurrentDispatcher(ctx) == d {
		return true
	}
	gid := d.homeGID.Load()
	return gid != 0 && gid == goroutineID()
}

// PendingCount returns the number of undelivered notifications.
func (d *Dispatcher) PendingCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.queue.Len()
}

// DeliveredCount returns the number of notifications delivered without panicking.
func (d *Dispatcher) DeliveredCount() int64 {
	return d.delivered.Load()
}

// =============================================================================
// Shutdown and Lifecycle Management
// =============================================================================

// Shutdown stops accepting notifications. Already queued ones are still
// delivered, then the home goroutine exits. Safe to call from a callback.
func (d *Dispatcher) Shutdown() {
	d.shutdownOnce.Do(func() {
		d.mu.Lock()
		d.closed = true
		d.mu.Unlock()
		d.signal()
	})
}

// Stop closes the dispatcher, drops undelivered notifications and waits for
// the home goroutine to exit. Must not be called from a home callback.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() {
		d.Shutdown()

		d.mu.Lock()
		dropped := d.queue.Clear()
		d.mu.Unlock()

		d.cancel()
		<-d.stopped
		if dropped > 0 {
			d.logger.Warn("dispatcher stopped with undelivered notifications",
				F("dispatcher", d.name), F("dropped", dropped))
		}
	})
}

// IsClosed returns true once Shutdown or Stop was called.
func (d *Dispatcher) IsClosed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// Done returns a channel closed when the home goroutine has exited.
func (d *Dispatcher) Done() <-chan struct{} {
	return d.stopped
}

// =============================================================================
// Synchronization Methods
// =============================================================================

// WaitIdle blocks until every notification posted before the call has been
// delivered. It posts a barrier and waits for it.
//
// Returns error if:
// - Context is cancelled or deadline exceeded
// - Dispatcher is closed when WaitIdle is called
func (d *Dispatcher) WaitIdle(ctx context.Context) error {
	done := make(chan struct{})

	if err := d.RunOnHome(func(context.Context) { close(done) }); err != nil {
		return err
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
