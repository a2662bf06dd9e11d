package asynctask

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Swind/go-async-task/config"
	"github.com/Swind/go-async-task/core"
)

func TestNewExecutionContextFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Mode = core.ModeSerial
	cfg.Log.Level = "error"
	cfg.Pool.MaxPoolSize = 16

	ec := NewExecutionContextFromConfig(cfg, nil)
	defer func() { _ = ec.Shutdown(context.Background()) }()

	assert.Equal(t, core.ModeSerial, ec.ExecutionMode())
	assert.Equal(t, 16, ec.ThreadPool().MaxPoolSize())
}

// TestInitGlobalFromConfig verifies the global context follows the loaded file
func TestInitGlobalFromConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "asynctask.yaml")
	require.NoError(t, os.WriteFile(path, []byte("mode: serial\nlog:\n  level: error\n"), 0o644))

	cfg, err := InitGlobalFromConfig(path, nil)
	require.NoError(t, err)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = ShutdownGlobalExecutionContext(ctx)
	}()

	assert.Equal(t, core.ModeSerial, cfg.Mode)
	assert.Equal(t, core.ModeSerial, GetGlobalExecutionContext().ExecutionMode())

	_, err = InitGlobalFromConfig(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	assert.Error(t, err)
}
