package core

import (
	"context"
	"fmt"
	"sync/atomic"
)

// ExecutionMode selects the default executor of an ExecutionContext.
type ExecutionMode string

const (
	// ModeParallel runs tasks concurrently on the thread pool
	ModeParallel ExecutionMode = "parallel"

	// ModeSerial runs tasks one at a time, in submission order
	ModeSerial ExecutionMode = "serial"

	// ModeCustom is reported when SetDefaultExecutor installed another executor
	ModeCustom ExecutionMode = "custom"
)

// ParseExecutionMode accepts "parallel" or "serial".
func ParseExecutionMode(s string) (ExecutionMode, error) {
	switch ExecutionMode(s) {
	case ModeParallel, ModeSerial:
		return ExecutionMode(s), nil
	default:
		return "", fmt.Errorf("unknown execution mode %q (want %q or %q)", s, ModeParallel, ModeSerial)
	}
}

// ExecutionContextConfig holds configuration options for ExecutionContext.
type ExecutionContextConfig struct {
	// Home delivers callbacks. Nil creates a Dispatcher from Dispatcher.
	Home       Coordinator
	Dispatcher DispatcherConfig

	// Pool sizes the parallel ThreadPoolExecutor.
	Pool ThreadPoolConfig

	// Mode is the initial default executor. Defaults to ModeParallel.
	Mode ExecutionMode

	// HistoryCapacity bounds RecentTasks. Defaults to 100.
	HistoryCapacity int

	Logger  Logger
	Metrics Metrics
}

// DefaultExecutionContextConfig returns the classic AsyncTask setup: a fresh
// home Dispatcher, a 5/128 pool with a queue of 8, parallel by default.
func DefaultExecutionContextConfig() ExecutionContextConfig {
	return ExecutionContextConfig{
		Pool: DefaultThreadPoolConfig(),
		Mode: ModeParallel,
	}
}

type executorRef struct {
	exec Executor
}

// ExecutionContext bundles what AsyncTasks need: the home Coordinator, the
// parallel pool, a SerialExecutor over that pool and the default executor.
//
// The default executor is shared mutable configuration: SetDefaultExecutor
// affects every later Execute on any task bound to this context, from any
// goroutine. It is not confined to the home goroutine.
type ExecutionContext struct {
	home           Coordinator
	dispatcher     *Dispatcher
	ownsDispatcher bool

	pool   *ThreadPoolExecutor
	serial *SerialExecutor

	defaultExec atomic.Pointer[executorRef]

	history *executionHistory
	logger  Logger
	metrics Metrics
}

// NewExecutionContext builds a context from cfg.
// Panics if cfg.Mode is not a known mode or the pool sizing is invalid.
func NewExecutionContext(cfg ExecutionContextConfig) *ExecutionContext {
	logger := loggerOrDefault(cfg.Logger)
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = &NilMetrics{}
	}

	ec := &ExecutionContext{
		history: newExecutionHistory(cfg.HistoryCapacity),
		logger:  logger,
		metrics: metrics,
	}

	if cfg.Home != nil {
		ec.home = cfg.Home
		if d, ok := cfg.Home.(*Dispatcher); ok {
			ec.dispatcher = d
		}
	} else {
		dcfg := cfg.Dispatcher
		if dcfg.Logger == nil {
			dcfg.Logger = logger
		}
		if dcfg.Metrics == nil {
			dcfg.Metrics = metrics
		}
		ec.dispatcher = NewDispatcherWithConfig(dcfg)
		ec.home = ec.dispatcher
		ec.ownsDispatcher = true
	}

	pcfg := cfg.Pool
	if pcfg.MaxPoolSize == 0 {
		pcfg = DefaultThreadPoolConfig()
	}
	if pcfg.Logger == nil {
		pcfg.Logger = logger
	}
	if pcfg.Metrics == nil {
		pcfg.Metrics = metrics
	}
	ec.pool = NewThreadPoolExecutor(pcfg)
	ec.serial = NewSerialExecutorWithConfig(ec.pool, SerialExecutorConfig{
		Name:    pcfg.Name + "-serial",
		Logger:  logger,
		Metrics: metrics,
	})

	mode := cfg.Mode
	if mode == "" {
		mode = ModeParallel
	}
	if err := ec.SetExecutionMode(mode); err != nil {
		panic(fmt.Sprintf("ExecutionContext: %v", err))
	}
	return ec
}

// Home returns the Coordinator that delivers task callbacks.
func (ec *ExecutionContext) Home() Coordinator {
	return ec.home
}

// Dispatcher returns the home Dispatcher, or nil when Home is a custom Coordinator.
func (ec *ExecutionContext) Dispatcher() *Dispatcher {
	return ec.dispatcher
}

// ThreadPool returns the parallel executor.
func (ec *ExecutionContext) ThreadPool() *ThreadPoolExecutor {
	return ec.pool
}

// Serial returns the serial executor layered on ThreadPool.
func (ec *ExecutionContext) Serial() *SerialExecutor {
	return ec.serial
}

// DefaultExecutor returns the executor used by AsyncTask.Execute.
func (ec *ExecutionContext) DefaultExecutor() Executor {
	return ec.defaultExec.Load().exec
}

// SetDefaultExecutor replaces the default executor. Nil restores the pool.
func (ec *ExecutionContext) SetDefaultExecutor(exec Executor) {
	if exec == nil {
		exec = ec.pool
	}
	ec.defaultExec.Store(&executorRef{exec: exec})
}

// SetExecutionMode switches the default executor between the pool and the
// serial executor.
func (ec *ExecutionContext) SetExecutionMode(mode ExecutionMode) error {
	switch mode {
	case ModeParallel:
		ec.SetDefaultExecutor(ec.pool)
	case ModeSerial:
		ec.SetDefaultExecutor(ec.serial)
	default:
		return fmt.Errorf("unknown execution mode %q", mode)
	}
	ec.logger.Debug("default executor changed", F("mode", mode))
	return nil
}

// UseSerialByDefault makes Execute run tasks one at a time.
func (ec *ExecutionContext) UseSerialByDefault() {
	_ = ec.SetExecutionMode(ModeSerial)
}

// UseParallelByDefault makes Execute run tasks on the pool.
func (ec *ExecutionContext) UseParallelByDefault() {
	_ = ec.SetExecutionMode(ModeParallel)
}

// ExecutionMode reports which executor is the default.
func (ec *ExecutionContext) ExecutionMode() ExecutionMode {
	switch ec.DefaultExecutor() {
	case Executor(ec.pool):
		return ModeParallel
	case Executor(ec.serial):
		return ModeSerial
	default:
		return ModeCustom
	}
}

// Run submits a plain work item to the default executor.
func (ec *ExecutionContext) Run(work Runnable) error {
	return ec.DefaultExecutor().Execute(work)
}

func (ec *ExecutionContext) recordTask(rec TaskExecutionRecord) {
	ec.history.Add(rec)
	ec.metrics.RecordTaskOutcome(rec.Name, rec.Outcome)
}

// RecentTasks returns finished task records in newest-first order.
func (ec *ExecutionContext) RecentTasks(limit int) []TaskExecutionRecord {
	return ec.history.Recent(limit)
}

// LastTask returns the most recently finished task record.
func (ec *ExecutionContext) LastTask() (TaskExecutionRecord, bool) {
	return ec.history.Last()
}

// ExecutionStats aggregates pool and serial executor state.
type ExecutionStats struct {
	Mode   ExecutionMode
	Pool   PoolStats
	Serial ExecutorStats
}

// Stats returns current observability data for this context.
func (ec *ExecutionContext) Stats() ExecutionStats {
	return ExecutionStats{
		Mode:   ec.ExecutionMode(),
		Pool:   ec.pool.Stats(),
		Serial: ec.serial.Stats(),
	}
}

// Shutdown stops the pool, waits for queued and running work, then lets the
// owned Dispatcher deliver what is left and exit. A Coordinator passed in
// through the config is left running.
func (ec *ExecutionContext) Shutdown(ctx context.Context) error {
	ec.pool.Shutdown()
	if err := ec.pool.AwaitTermination(ctx); err != nil {
		ec.pool.ShutdownNow()
		return fmt.Errorf("waiting for thread pool %s: %w", ec.pool.Name(), err)
	}

	if !ec.ownsDispatcher {
		return nil
	}
	ec.dispatcher.Shutdown()
	select {
	case <-ec.dispatcher.Done():
		return nil
	case <-ctx.Done():
		ec.dispatcher.Stop()
		return fmt.Errorf("waiting for dispatcher %s: %w", ec.dispatcher.Name(), ctx.Err())
	}
}
