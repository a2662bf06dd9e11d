package core

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"
)

const (
	DefaultCorePoolSize     = 5
	DefaultMaxPoolSize      = 128
	DefaultKeepAlive        = time.Second
	DefaultQueueCapacity    = 8
	DefaultThreadNamePrefix = "AsyncTask #"

	// maxAllowedPoolSize bounds MaxPoolSize.
	// Values higher than this could lead to excessive goroutine creation and memory exhaustion.
	maxAllowedPoolSize = 10000
)

// ThreadPoolConfig holds configuration options for ThreadPoolExecutor.
// All handlers are optional; if not provided, default implementations will be used.
type ThreadPoolConfig struct {
	// Name labels logs, metrics and rejections. Defaults to "thread-pool".
	Name string

	// CorePoolSize workers are kept alive while idle.
	CorePoolSize int

	// MaxPoolSize is the hard limit on live workers.
	MaxPoolSize int

	// KeepAlive is how long a worker above CorePoolSize may idle before retiring.
	KeepAlive time.Duration

	// QueueCapacity bounds the number of items waiting for a worker.
	QueueCapacity int

	// AllowCoreThreadTimeOut lets core workers retire after KeepAlive too.
	AllowCoreThreadTimeOut bool

	// ThreadNamePrefix is prepended to the worker sequence number.
	ThreadNamePrefix string

	PanicHandler        PanicHandler
	Metrics             Metrics
	RejectedTaskHandler RejectedTaskHandler
	Logger              Logger
}

// DefaultThreadPoolConfig returns the classic AsyncTask sizing: 5 core
// workers, 128 max, 1s keep-alive and a work queue of 8.
func DefaultThreadPoolConfig() ThreadPoolConfig {
	return ThreadPoolConfig{
		Name:             "thread-pool",
		CorePoolSize:     DefaultCorePoolSize,
		MaxPoolSize:      DefaultMaxPoolSize,
		KeepAlive:        DefaultKeepAlive,
		QueueCapacity:    DefaultQueueCapacity,
		ThreadNamePrefix: DefaultThreadNamePrefix,
	}
}

type workItem struct {
	run   Runnable
	abort func(error)
	seq   uint64
}

// abortingExecutor is implemented by executors that can tell a submitter its
// work was discarded without running. abort is called at most once, never
// together with work.
type abortingExecutor interface {
	executeAbortable(work Runnable, abort func(error)) error
}

// submitTo hands work to exec, passing abort along when exec supports it.
func submitTo(exec Executor, work Runnable, abort func(error)) error {
	if a, ok := exec.(abortingExecutor); ok {
		return a.executeAbortable(work, abort)
	}
	return exec.Execute(work)
}

// ThreadPoolExecutor runs work items on a bounded set of worker goroutines fed
// by a bounded FIFO queue. Workers are started lazily on submission.
//
// Submission policy, in order:
//  1. fewer than CorePoolSize workers: start a worker for the item
//  2. room in the queue: enqueue
//  3. fewer than MaxPoolSize workers: start a worker for the item
//  4. otherwise reject with a *RejectedError
type ThreadPoolExecutor struct {
	cfg ThreadPoolConfig

	queue chan workItem

	mu         sync.Mutex
	workers    int
	largest    int
	shutdown   bool
	quit       chan struct{}
	terminated chan struct{}
	termOnce   sync.Once

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	active    atomic.Int32
	completed atomic.Int64
	rejected  atomic.Int64
	nextSeq   atomic.Uint64
	threadSeq atomic.Int32

	logger Logger
}

// NewThreadPoolExecutor creates a pool from cfg.
// Panics if the sizing is invalid: CorePoolSize < 0, MaxPoolSize < 1,
// MaxPoolSize < CorePoolSize, MaxPoolSize > 10000 or QueueCapacity < 0.
func NewThreadPoolExecutor(cfg ThreadPoolConfig) *ThreadPoolExecutor {
	if cfg.CorePoolSize < 0 {
		panic("ThreadPoolExecutor: CorePoolSize must not be negative")
	}
	if cfg.MaxPoolSize < 1 {
		panic("ThreadPoolExecutor: MaxPoolSize must be at least 1")
	}
	if cfg.MaxPoolSize < cfg.CorePoolSize {
		panic("ThreadPoolExecutor: MaxPoolSize must not be less than CorePoolSize")
	}
	if cfg.MaxPoolSize > maxAllowedPoolSize {
		panic(fmt.Sprintf("ThreadPoolExecutor: MaxPoolSize must not exceed %d", maxAllowedPoolSize))
	}
	if cfg.QueueCapacity < 0 {
		panic("ThreadPoolExecutor: QueueCapacity must not be negative")
	}

	if cfg.Name == "" {
		cfg.Name = "thread-pool"
	}
	if cfg.ThreadNamePrefix == "" {
		cfg.ThreadNamePrefix = DefaultThreadNamePrefix
	}
	if cfg.KeepAlive <= 0 {
		cfg.KeepAlive = DefaultKeepAlive
	}
	cfg.Logger = loggerOrDefault(cfg.Logger)
	if cfg.PanicHandler == nil {
		cfg.PanicHandler = &DefaultPanicHandler{}
	}
	if cfg.Metrics == nil {
		cfg.Metrics = &NilMetrics{}
	}
	if cfg.RejectedTaskHandler == nil {
		cfg.RejectedTaskHandler = &DefaultRejectedTaskHandler{Logger: cfg.Logger}
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &ThreadPoolExecutor{
		cfg:        cfg,
		queue:      make(chan workItem, cfg.QueueCapacity),
		quit:       make(chan struct{}),
		terminated: make(chan struct{}),
		ctx:        ctx,
		cancel:     cancel,
		logger:     cfg.Logger,
	}
}

// Name returns the pool name.
func (p *ThreadPoolExecutor) Name() string {
	return p.cfg.Name
}

// Execute submits work. It never blocks on a full queue: when the queue is
// full and the pool is at MaxPoolSize the item is rejected.
func (p *ThreadPoolExecutor) Execute(work Runnable) error {
	return p.executeAbortable(work, nil)
}

func (p *ThreadPoolExecutor) executeAbortable(work Runnable, abort func(error)) error {
	if work == nil {
		panic("ThreadPoolExecutor: work must not be nil")
	}
	item := workItem{run: work, abort: abort, seq: p.nextSeq.Add(1)}

	p.mu.Lock()
	if p.shutdown {
		p.mu.Unlock()
		return p.reject(RejectReasonShutdown)
	}

	if p.workers < p.cfg.CorePoolSize {
		p.addWorkerLocked(&item)
		p.mu.Unlock()
		return nil
	}

	select {
	case p.queue <- item:
		if p.workers == 0 {
			p.addWorkerLocked(nil)
		}
		depth := len(p.queue)
		p.mu.Unlock()
		p.cfg.Metrics.RecordQueueDepth(p.cfg.Name, depth)
		return nil
	default:
	}

	if p.workers < p.cfg.MaxPoolSize {
		p.addWorkerLocked(&item)
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	return p.reject(RejectReasonCapacity)
}

func (p *ThreadPoolExecutor) reject(reason string) error {
	p.rejected.Add(1)
	p.cfg.RejectedTaskHandler.HandleRejectedTask(p.cfg.Name, reason)
	p.cfg.Metrics.RecordTaskRejected(p.cfg.Name, reason)
	return &RejectedError{Executor: p.cfg.Name, Reason: reason}
}

// PrestartCoreThreads starts all core workers ahead of any submission and
// returns how many were started.
func (p *ThreadPoolExecutor) PrestartCoreThreads() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := 0
	for !p.shutdown && p.workers < p.cfg.CorePoolSize {
		p.addWorkerLocked(nil)
		n++
	}
	return n
}

func (p *ThreadPoolExecutor) addWorkerLocked(first *workItem) {
	p.workers++
	if p.workers > p.largest {
		p.largest = p.workers
	}
	name := fmt.Sprintf("%s%d", p.cfg.ThreadNamePrefix, p.threadSeq.Add(1))
	p.wg.Add(1)
	go p.workerLoop(name, first)
}

// workerLoop is the main loop for each worker
func (p *ThreadPoolExecutor) workerLoop(name string, first *workItem) {
	defer p.wg.Done()
	ctx := context.WithValue(p.ctx, workerKey, name)

	if first != nil {
		p.runItem(ctx, name, *first)
	}

	for {
		item, ok := p.take()
		if !ok {
			return
		}
		p.runItem(ctx, name, item)
	}
}

// take blocks until an item is available. It returns false once the worker
// must exit; the worker count has then already been decremented.
func (p *ThreadPoolExecutor) take() (workItem, bool) {
	for {
		var timeout <-chan time.Time
		var timer *time.Timer
		if p.mayTimeOut() {
			timer = time.NewTimer(p.cfg.KeepAlive)
			timeout = timer.C
		}

		select {
		case item := <-p.queue:
			stopTimer(timer)
			return item, true

		case <-p.quit:
			stopTimer(timer)
			// Shutdown drains what is already queued
			select {
			case item := <-p.queue:
				return item, true
			default:
			}
			p.mu.Lock()
			p.exitWorkerLocked()
			p.mu.Unlock()
			return workItem{}, false

		case <-timeout:
			p.mu.Lock()
			if p.canRetireLocked() {
				p.exitWorkerLocked()
				p.mu.Unlock()
				return workItem{}, false
			}
			p.mu.Unlock()
		}
	}
}

func stopTimer(t *time.Timer) {
	if t != nil {
		t.Stop()
	}
}

func (p *ThreadPoolExecutor) mayTimeOut() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cfg.AllowCoreThreadTimeOut || p.workers > p.cfg.CorePoolSize
}

func (p *ThreadPoolExecutor) canRetireLocked() bool {
	if !p.cfg.AllowCoreThreadTimeOut && p.workers <= p.cfg.CorePoolSize {
		return false
	}
	// The last worker stays while items are queued
	return !(p.workers == 1 && len(p.queue) > 0)
}

func (p *ThreadPoolExecutor) exitWorkerLocked() {
	p.workers--
	if p.shutdown && p.workers == 0 {
		p.markTerminated()
	}
}

func (p *ThreadPoolExecutor) markTerminated() {
	p.termOnce.Do(func() {
		p.cancel()
		close(p.terminated)
	})
}

func (p *ThreadPoolExecutor) runItem(ctx context.Context, name string, item workItem) {
	p.active.Add(1)
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			p.cfg.Metrics.RecordTaskPanic(p.cfg.Name, r)
			p.cfg.PanicHandler.HandlePanic(ctx, name, r, debug.Stack())
		}
		p.active.Add(-1)
		p.completed.Add(1)
		p.cfg.Metrics.RecordTaskDuration(p.cfg.Name, time.Since(start))
	}()

	item.run(ctx)
}

// =============================================================================
// Shutdown and Lifecycle Management
// =============================================================================

// Shutdown stops accepting new work. Queued items still run; workers exit once
// the queue is empty. It does not wait, see AwaitTermination.
func (p *ThreadPoolExecutor) Shutdown() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.shutdown {
		return
	}
	p.shutdown = true
	close(p.quit)
	if p.workers == 0 {
		p.markTerminated()
	}
	p.logger.Debug("thread pool shutting down", F("pool", p.cfg.Name), F("queued", len(p.queue)))
}

// ShutdownNow stops accepting new work, discards queued items and interrupts
// running ones by cancelling their context. Items submitted by an AsyncTask
// or a SerialExecutor are told they were discarded; every discarded item is
// returned, in queue order, and has not run.
func (p *ThreadPoolExecutor) ShutdownNow() []Runnable {
	p.mu.Lock()
	p.shutdown = true
	var dropped []workItem
	for {
		select {
		case item := <-p.queue:
			dropped = append(dropped, item)
			continue
		default:
		}
		break
	}
	select {
	case <-p.quit:
	default:
		close(p.quit)
	}
	if p.workers == 0 {
		p.markTerminated()
	}
	p.mu.Unlock()

	p.cancel()
	p.logger.Debug("thread pool stopped", F("pool", p.cfg.Name), F("dropped", len(dropped)))

	discarded := make([]Runnable, 0, len(dropped))
	for _, item := range dropped {
		if item.abort != nil {
			item.abort(&RejectedError{Executor: p.cfg.Name, Reason: RejectReasonShutdown})
		}
		discarded = append(discarded, item.run)
	}
	return discarded
}

// AwaitTermination blocks until every worker has exited after a shutdown, or
// ctx is done.
func (p *ThreadPoolExecutor) AwaitTermination(ctx context.Context) error {
	select {
	case <-p.terminated:
		p.wg.Wait()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsShutdown reports whether Shutdown or ShutdownNow was called.
func (p *ThreadPoolExecutor) IsShutdown() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.shutdown
}

// IsTerminated reports whether the pool is shut down and every worker exited.
func (p *ThreadPoolExecutor) IsTerminated() bool {
	select {
	case <-p.terminated:
		return true
	default:
		return false
	}
}

// =============================================================================
// Introspection
// =============================================================================

func (p *ThreadPoolExecutor) CorePoolSize() int     { return p.cfg.CorePoolSize }
func (p *ThreadPoolExecutor) MaxPoolSize() int      { return p.cfg.MaxPoolSize }
func (p *ThreadPoolExecutor) QueueCapacity() int    { return p.cfg.QueueCapacity }
func (p *ThreadPoolExecutor) ActiveCount() int      { return int(p.active.Load()) }
func (p *ThreadPoolExecutor) QueuedCount() int      { return len(p.queue) }
func (p *ThreadPoolExecutor) CompletedCount() int64 { return p.completed.Load() }
func (p *ThreadPoolExecutor) RejectedCount() int64  { return p.rejected.Load() }

// PoolSize returns the number of live workers.
func (p *ThreadPoolExecutor) PoolSize() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.workers
}

// LargestPoolSize returns the highest number of workers ever alive at once.
func (p *ThreadPoolExecutor) LargestPoolSize() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.largest
}

// Stats returns current observability data for this pool.
func (p *ThreadPoolExecutor) Stats() PoolStats {
	p.mu.Lock()
	workers, largest, running := p.workers, p.largest, !p.shutdown
	p.mu.Unlock()

	return PoolStats{
		ID:              p.cfg.Name,
		CorePoolSize:    p.cfg.CorePoolSize,
		MaxPoolSize:     p.cfg.MaxPoolSize,
		Workers:         workers,
		LargestPoolSize: largest,
		Queued:          len(p.queue),
		QueueCapacity:   p.cfg.QueueCapacity,
		Active:          p.ActiveCount(),
		Completed:       p.completed.Load(),
		Rejected:        p.rejected.Load(),
		Running:         running,
	}
}
