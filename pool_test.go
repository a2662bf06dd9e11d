package asynctask

import (
	"context"
	"testing"
	"time"

	"github.com/Swind/go-async-task/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() core.ExecutionContextConfig {
	cfg := core.DefaultExecutionContextConfig()
	cfg.Logger = core.NewNoOpLogger()
	return cfg
}

// TestGlobalExecutionContext_Lifecycle verifies init, access and shutdown
// Given: No global execution context
// When: It is initialized twice, used and shut down
// Then: The first init wins, access works, and access after shutdown panics
func TestGlobalExecutionContext_Lifecycle(t *testing.T) {
	assert.Panics(t, func() { GetGlobalExecutionContext() })

	InitGlobalExecutionContext(testConfig())
	first := GetGlobalExecutionContext()

	InitGlobalExecutionContext(testConfig())
	assert.Same(t, first, GetGlobalExecutionContext(), "second init is ignored")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, ShutdownGlobalExecutionContext(ctx))
	require.NoError(t, ShutdownGlobalExecutionContext(ctx), "shutdown is idempotent")

	assert.Panics(t, func() { GetGlobalExecutionContext() })
}

// TestRun verifies plain work items reach the default executor
func TestRun(t *testing.T) {
	InitGlobalExecutionContext(testConfig())
	defer ShutdownGlobalExecutionContext(context.Background())

	worker := make(chan string, 1)
	require.NoError(t, Run(func(ctx context.Context) {
		worker <- GetWorkerName(ctx)
	}))
	assert.Contains(t, <-worker, core.DefaultThreadNamePrefix)
}

// TestSetDefaultExecutor verifies the global default executor can be swapped
func TestSetDefaultExecutor(t *testing.T) {
	InitGlobalExecutionContext(testConfig())
	defer ShutdownGlobalExecutionContext(context.Background())

	var used bool
	SetDefaultExecutor(ExecutorFunc(func(work Runnable) error {
		used = true
		work(context.Background())
		return nil
	}))

	done := make(chan int, 1)
	task := NewTask[int, int, int](Funcs[int, int, int]{
		Background:  func(_ context.Context, _ ProgressPublisher[int], n ...int) (int, error) { return n[0], nil },
		PostExecute: func(result int) { done <- result },
	})
	require.NoError(t, task.Execute(3))
	assert.Equal(t, 3, <-done)
	assert.True(t, used)

	SetDefaultExecutor(nil)
	assert.Equal(t, ModeParallel, GetGlobalExecutionContext().ExecutionMode())
}
