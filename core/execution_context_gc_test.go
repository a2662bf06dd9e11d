package core

import (
	"context"
	"runtime"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestExecutionContext_GC verifies nothing keeps a shut down context alive
// Given: An execution context that ran tasks in both modes
// When: It is shut down and every reference is dropped
// Then: The context is garbage collected
func TestExecutionContext_GC(t *testing.T) {
	var ecFinalized atomic.Bool

	func() {
		cfg := DefaultExecutionContextConfig()
		cfg.Logger = NewNoOpLogger()
		ec := NewExecutionContext(cfg)
		runtime.SetFinalizer(ec, func(*ExecutionContext) { ecFinalized.Store(true) })

		for _, mode := range []ExecutionMode{ModeParallel, ModeSerial} {
			require.NoError(t, ec.SetExecutionMode(mode))
			task := NewAsyncTask[int, int, int](ec, Funcs[int, int, int]{
				Background: func(_ context.Context, p ProgressPublisher[int], n ...int) (int, error) {
					p.PublishProgress(50)
					return n[0], nil
				},
				ProgressUpdate: func(...int) {},
			})
			require.NoError(t, task.Execute(1))
			_, err := task.Get()
			require.NoError(t, err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		require.NoError(t, ec.Shutdown(ctx))
	}()

	assert.Eventually(t, func() bool {
		runtime.GC()
		return ecFinalized.Load()
	}, 2*time.Second, 10*time.Millisecond)
}
