package core

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPool(t *testing.T, mutate func(*ThreadPoolConfig)) *ThreadPoolExecutor {
	t.Helper()
	cfg := DefaultThreadPoolConfig()
	cfg.Name = "test-pool"
	cfg.Logger = NewNoOpLogger()
	if mutate != nil {
		mutate(&cfg)
	}
	p := NewThreadPoolExecutor(cfg)
	t.Cleanup(func() {
		p.ShutdownNow()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = p.AwaitTermination(ctx)
	})
	return p
}

// TestThreadPoolExecutor_RunsWork verifies submitted items run on named workers
func TestThreadPoolExecutor_RunsWork(t *testing.T) {
	p := newTestPool(t, nil)

	var wg sync.WaitGroup
	var mu sync.Mutex
	names := map[string]bool{}

	for range 20 {
		wg.Add(1)
		require.NoError(t, p.Execute(func(ctx context.Context) {
			defer wg.Done()
			mu.Lock()
			names[GetWorkerName(ctx)] = true
			mu.Unlock()
		}))
	}
	wg.Wait()

	for name := range names {
		assert.True(t, strings.HasPrefix(name, DefaultThreadNamePrefix), "worker name %q", name)
	}
	assert.Eventually(t, func() bool { return p.CompletedCount() == 20 }, time.Second, 5*time.Millisecond)
}

// TestThreadPoolExecutor_SaturationRejects verifies the submission policy
// Given: The default pool (core 5, max 128, queue 8) and 200 blocking items
// When: All items are submitted while none can finish
// Then: Exactly 64 are rejected and never more than 128 run at once
func TestThreadPoolExecutor_SaturationRejects(t *testing.T) {
	var handled atomic.Int32
	p := newTestPool(t, func(cfg *ThreadPoolConfig) {
		cfg.RejectedTaskHandler = NewTestRejectedTaskHandler()
	})

	gate := make(chan struct{})
	var running, peak atomic.Int32
	var rejected int

	for range 200 {
		err := p.Execute(func(ctx context.Context) {
			n := running.Add(1)
			for {
				old := peak.Load()
				if n <= old || peak.CompareAndSwap(old, n) {
					break
				}
			}
			<-gate
			running.Add(-1)
			handled.Add(1)
		})
		if err != nil {
			rejected++
			assert.ErrorIs(t, err, ErrRejected)
			var rejErr *RejectedError
			require.ErrorAs(t, err, &rejErr)
			assert.Equal(t, RejectReasonCapacity, rejErr.Reason)
		}
	}

	assert.Equal(t, 64, rejected)
	assert.Equal(t, int64(64), p.RejectedCount())
	assert.Equal(t, 128, p.PoolSize())
	assert.Equal(t, 8, p.QueuedCount())

	close(gate)
	assert.Eventually(t, func() bool { return handled.Load() == 136 }, 5*time.Second, 5*time.Millisecond)
	assert.LessOrEqual(t, peak.Load(), int32(128))
	assert.Equal(t, 128, p.LargestPoolSize())
}

// TestThreadPoolExecutor_KeepAliveRetiresExtraWorkers verifies idle non-core workers exit
func TestThreadPoolExecutor_KeepAliveRetiresExtraWorkers(t *testing.T) {
	p := newTestPool(t, func(cfg *ThreadPoolConfig) {
		cfg.CorePoolSize = 1
		cfg.MaxPoolSize = 3
		cfg.QueueCapacity = 0
		cfg.KeepAlive = 30 * time.Millisecond
	})

	gate := make(chan struct{})
	for range 3 {
		require.NoError(t, p.Execute(func(context.Context) { <-gate }))
	}
	assert.Equal(t, 3, p.PoolSize())

	err := p.Execute(func(context.Context) {})
	assert.ErrorIs(t, err, ErrRejected, "no queue and no spare worker")

	close(gate)
	assert.Eventually(t, func() bool { return p.PoolSize() == 1 }, 2*time.Second, 10*time.Millisecond)
}

// TestThreadPoolExecutor_AllowCoreThreadTimeOut verifies core workers may retire too
func TestThreadPoolExecutor_AllowCoreThreadTimeOut(t *testing.T) {
	p := newTestPool(t, func(cfg *ThreadPoolConfig) {
		cfg.CorePoolSize = 2
		cfg.KeepAlive = 20 * time.Millisecond
		cfg.AllowCoreThreadTimeOut = true
	})

	assert.Equal(t, 2, p.PrestartCoreThreads())
	assert.Eventually(t, func() bool { return p.PoolSize() == 0 }, 2*time.Second, 10*time.Millisecond)

	done := make(chan struct{})
	require.NoError(t, p.Execute(func(context.Context) { close(done) }))
	<-done
}

// TestThreadPoolExecutor_Shutdown verifies queued work drains and new work is rejected
// Given: A single-worker pool with items queued behind a blocked one
// When: Shutdown is called and the blocked item is released
// Then: Queued items still run, new submissions fail, AwaitTermination returns
func TestThreadPoolExecutor_Shutdown(t *testing.T) {
	p := newTestPool(t, func(cfg *ThreadPoolConfig) {
		cfg.CorePoolSize = 1
		cfg.MaxPoolSize = 1
	})

	gate := make(chan struct{})
	var ran atomic.Int32
	require.NoError(t, p.Execute(func(context.Context) { <-gate; ran.Add(1) }))
	for range 3 {
		require.NoError(t, p.Execute(func(context.Context) { ran.Add(1) }))
	}

	p.Shutdown()
	assert.True(t, p.IsShutdown())

	err := p.Execute(func(context.Context) {})
	var rejErr *RejectedError
	require.ErrorAs(t, err, &rejErr)
	assert.Equal(t, RejectReasonShutdown, rejErr.Reason)

	close(gate)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, p.AwaitTermination(ctx))

	assert.Equal(t, int32(4), ran.Load())
	assert.True(t, p.IsTerminated())
	assert.False(t, p.Stats().Running)
}

// TestThreadPoolExecutor_ShutdownNow verifies queued work is dropped and running work interrupted
func TestThreadPoolExecutor_ShutdownNow(t *testing.T) {
	p := newTestPool(t, func(cfg *ThreadPoolConfig) {
		cfg.CorePoolSize = 1
		cfg.MaxPoolSize = 1
	})

	started := make(chan struct{})
	interrupted := make(chan error, 1)
	require.NoError(t, p.Execute(func(ctx context.Context) {
		close(started)
		<-ctx.Done()
		interrupted <- ctx.Err()
	}))
	<-started

	for range 3 {
		require.NoError(t, p.Execute(func(context.Context) {
			t.Error("dropped item must not run")
		}))
	}

	assert.Len(t, p.ShutdownNow(), 3)
	assert.True(t, errors.Is(<-interrupted, context.Canceled))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, p.AwaitTermination(ctx))
}

// TestThreadPoolExecutor_PanicRecovery verifies a panicking item does not kill its worker
func TestThreadPoolExecutor_PanicRecovery(t *testing.T) {
	handler := NewTestPanicHandler()
	metrics := NewTestMetrics()
	p := newTestPool(t, func(cfg *ThreadPoolConfig) {
		cfg.CorePoolSize = 1
		cfg.MaxPoolSize = 1
		cfg.PanicHandler = handler
		cfg.Metrics = metrics
	})

	require.NoError(t, p.Execute(func(context.Context) { panic("worker boom") }))

	done := make(chan struct{})
	require.NoError(t, p.Execute(func(context.Context) { close(done) }))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not survive the panic")
	}

	require.Equal(t, 1, handler.CallCount())
	call := handler.GetCalls()[0]
	assert.Equal(t, "worker boom", call.PanicInfo)
	assert.Equal(t, DefaultThreadNamePrefix+"1", call.Source)
	assert.Len(t, metrics.GetTaskPanics(), 1)
}

// TestThreadPoolExecutor_InvalidConfig verifies sizing validation
func TestThreadPoolExecutor_InvalidConfig(t *testing.T) {
	cases := map[string]func(*ThreadPoolConfig){
		"negative core":  func(c *ThreadPoolConfig) { c.CorePoolSize = -1 },
		"zero max":       func(c *ThreadPoolConfig) { c.MaxPoolSize = 0 },
		"max below core": func(c *ThreadPoolConfig) { c.CorePoolSize = 10; c.MaxPoolSize = 5 },
		"max too large":  func(c *ThreadPoolConfig) { c.MaxPoolSize = maxAllowedPoolSize + 1 },
		"negative queue": func(c *ThreadPoolConfig) { c.QueueCapacity = -1 },
	}

	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultThreadPoolConfig()
			mutate(&cfg)
			assert.Panics(t, func() { NewThreadPoolExecutor(cfg) })
		})
	}
}

// TestThreadPoolExecutor_Stats verifies the snapshot reflects configuration
func TestThreadPoolExecutor_Stats(t *testing.T) {
	p := newTestPool(t, nil)

	stats := p.Stats()
	assert.Equal(t, "test-pool", stats.ID)
	assert.Equal(t, DefaultCorePoolSize, stats.CorePoolSize)
	assert.Equal(t, DefaultMaxPoolSize, stats.MaxPoolSize)
	assert.Equal(t, DefaultQueueCapacity, stats.QueueCapacity)
	assert.Equal(t, 0, stats.Workers)
	assert.True(t, stats.Running)
}
