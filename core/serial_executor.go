package core

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
)

// SerialExecutorConfig holds optional collaborators for SerialExecutor.
type SerialExecutorConfig struct {
	Name         string
	Logger       Logger
	Metrics      Metrics
	PanicHandler PanicHandler
}

// SerialExecutor runs work items one at a time, in submission order, on top
// of another Executor (usually the shared ThreadPoolExecutor). It never parks
// a worker: the next item is forwarded to the target only when the previous
// one has finished.
//
// The pending queue and the active slot are guarded by one mutex, which is
// held only for enqueue/dequeue and never across a call into the target.
type SerialExecutor struct {
	name         string
	target       Executor
	logger       Logger
	metrics      Metrics
	panicHandler PanicHandler

	mu     sync.Mutex
	tasks  fifoQueue[workItem]
	active bool

	activeRunners atomic.Int32 // atomic guard for concurrency assertion
	rejected      atomic.Int64
}

// NewSerialExecutor creates a SerialExecutor on top of target.
// Panics if target is nil.
func NewSerialExecutor(target Executor) *SerialExecutor {
	return NewSerialExecutorWithConfig(target, SerialExecutorConfig{})
}

// NewSerialExecutorWithConfig creates a SerialExecutor with explicit collaborators.
// Panics if target is nil.
func NewSerialExecutorWithConfig(target Executor, cfg SerialExecutorConfig) *SerialExecutor {
	if target == nil {
		panic("SerialExecutor: target executor must not be nil")
	}
	if cfg.Name == "" {
		cfg.Name = "serial"
	}
	if cfg.Metrics == nil {
		cfg.Metrics = &NilMetrics{}
	}
	if cfg.PanicHandler == nil {
		cfg.PanicHandler = &DefaultPanicHandler{}
	}
	return &SerialExecutor{
		name:         cfg.Name,
		target:       target,
		logger:       loggerOrDefault(cfg.Logger),
		metrics:      cfg.Metrics,
		panicHandler: cfg.PanicHandler,
		tasks:        newFIFOQueue[workItem](),
	}
}

// Name returns the executor name.
func (s *SerialExecutor) Name() string {
	return s.name
}

// Execute queues work behind every item submitted before it.
//
// If nothing is active the item is forwarded to the target right away and a
// rejection by the target is returned to the caller. Items queued behind an
// active one are always accepted.
func (s *SerialExecutor) Execute(work Runnable) error {
	return s.executeAbortable(work, nil)
}

func (s *SerialExecutor) executeAbortable(work Runnable, abort func(error)) error {
	if work == nil {
		panic("SerialExecutor: work must not be nil")
	}
	item := workItem{run: work, abort: abort}

	s.mu.Lock()
	if s.active {
		s.tasks.Push(item)
		depth := s.tasks.Len()
		s.mu.Unlock()
		s.metrics.RecordQueueDepth(s.name, depth)
		return nil
	}
	// Queue is empty whenever nothing is active
	s.active = true
	s.mu.Unlock()

	if err := s.forward(item); err != nil {
		s.rejected.Add(1)
		// Items may have queued behind the rejected one meanwhile
		s.scheduleNext(context.Background(), false)
		return err
	}
	return nil
}

// forward hands the active item to the target.
func (s *SerialExecutor) forward(item workItem) error {
	return submitTo(s.target, s.wrap(item.run), func(err error) {
		s.abortChain(item, err)
	})
}

func (s *SerialExecutor) wrap(work Runnable) Runnable {
	return func(ctx context.Context) {
		defer s.scheduleNext(ctx, true)
		s.runOne(ctx, work)
	}
}

// abortChain runs when the target discarded the active item: nothing behind
// it can be forwarded any more, so every queued item is discarded with it.
func (s *SerialExecutor) abortChain(active workItem, cause error) {
	s.mu.Lock()
	pending := make([]workItem, 0, s.tasks.Len())
	for {
		item, ok := s.tasks.Pop()
		if !ok {
			break
		}
		pending = append(pending, item)
	}
	s.active = false
	s.mu.Unlock()

	dropped := 0
	for _, item := range append([]workItem{active}, pending...) {
		if item.abort != nil {
			item.abort(cause)
			continue
		}
		dropped++
	}
	if dropped > 0 {
		s.logger.Warn("serial executor: target discarded queued work",
			F("executor", s.name), F("dropped", dropped), F("error", cause))
	}
}

// runOne asserts that no other item of this executor is running.
func (s *SerialExecutor) runOne(ctx context.Context, work Runnable) {
	if n := s.activeRunners.Add(1); n > 1 {
		panic(fmt.Sprintf("SerialExecutor: concurrent execution detected (count=%d)", n))
	}
	defer s.activeRunners.Add(-1)
	work(ctx)
}

func (s *SerialExecutor) runInline(ctx context.Context, work Runnable) {
	defer func() {
		if r := recover(); r != nil {
			s.metrics.RecordTaskPanic(s.name, r)
			s.panicHandler.HandlePanic(ctx, s.name, r, debug.Stack())
		}
	}()
	s.runOne(ctx, work)
}

// scheduleNext pops the queue head into the active slot and forwards it, or
// clears the slot when the queue is empty.
//
// A follow-up item the target rejects runs inline: on the finishing worker
// when onWorker is set, otherwise on a fresh goroutine so the submitter is
// never blocked. If the finishing worker was interrupted, the rejected item
// and everything behind it are discarded instead.
func (s *SerialExecutor) scheduleNext(ctx context.Context, onWorker bool) {
	for {
		s.mu.Lock()
		next, ok := s.tasks.Pop()
		if !ok {
			s.active = false
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()

		err := s.forward(next)
		if err == nil {
			return
		}

		s.rejected.Add(1)
		if onWorker && ctx.Err() != nil {
			// The worker was interrupted by a stopping target
			s.abortChain(next, err)
			return
		}
		s.logger.Warn("serial executor: target rejected queued item, running inline",
			F("executor", s.name), F("error", err))

		if !onWorker {
			go func() {
				bg := context.Background()
				s.runInline(bg, next.run)
				s.scheduleNext(bg, true)
			}()
			return
		}
		s.runInline(ctx, next.run)
	}
}

// PendingCount returns the number of items waiting behind the active one.
func (s *SerialExecutor) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tasks.Len()
}

// IsActive reports whether an item currently owns the active slot.
func (s *SerialExecutor) IsActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// RejectedCount returns how many forwards the target refused.
func (s *SerialExecutor) RejectedCount() int64 {
	return s.rejected.Load()
}

// Stats returns current observability data for this executor.
func (s *SerialExecutor) Stats() ExecutorStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ExecutorStats{
		Name:     s.name,
		Type:     "serial",
		Pending:  s.tasks.Len(),
		Active:   s.active,
		Rejected: s.rejected.Load(),
	}
}
