package config

import (
	"bytes"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Swind/go-async-task/core"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "asynctask.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

// TestLoadDefaults verifies the classic AsyncTask sizing when nothing is configured
func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")

	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, core.ModeParallel, cfg.Mode)
	assert.Equal(t, 5, cfg.Pool.CorePoolSize)
	assert.Equal(t, 128, cfg.Pool.MaxPoolSize)
	assert.Equal(t, time.Second, cfg.Pool.KeepAlive)
	assert.Equal(t, 8, cfg.Pool.QueueCapacity)
}

// TestLoadFromFile verifies yaml values override defaults
func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, t.TempDir(), `
mode: serial
pool:
  name: workers
  core_pool_size: 2
  max_pool_size: 4
  keep_alive: 250ms
  queue_capacity: 0
log:
  level: debug
  format: json
`)

	loader := NewLoader(path)
	cfg, err := loader.Load()

	require.NoError(t, err)
	assert.Equal(t, path, loader.ConfigFile())
	assert.Equal(t, core.ModeSerial, cfg.Mode)
	assert.Equal(t, "workers", cfg.Pool.Name)
	assert.Equal(t, 2, cfg.Pool.CorePoolSize)
	assert.Equal(t, 4, cfg.Pool.MaxPoolSize)
	assert.Equal(t, 250*time.Millisecond, cfg.Pool.KeepAlive)
	assert.Equal(t, 0, cfg.Pool.QueueCapacity)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "home", cfg.Dispatcher.Name, "unset keys keep their defaults")
}

// TestLoadFromEnv verifies environment variables take precedence over the file
func TestLoadFromEnv(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "pool:\n  max_pool_size: 16\n")
	t.Setenv("ASYNCTASK_POOL_MAX_POOL_SIZE", "32")
	t.Setenv("ASYNCTASK_POOL_KEEP_ALIVE", "3s")
	t.Setenv("ASYNCTASK_MODE", "serial")

	cfg, err := Load(path)

	require.NoError(t, err)
	assert.Equal(t, 32, cfg.Pool.MaxPoolSize)
	assert.Equal(t, 3*time.Second, cfg.Pool.KeepAlive)
	assert.Equal(t, core.ModeSerial, cfg.Mode)
}

// TestLoadValidation verifies invalid settings are rejected
func TestLoadValidation(t *testing.T) {
	tests := map[string]map[string]string{
		"max below core":  {"ASYNCTASK_POOL_CORE_POOL_SIZE": "10", "ASYNCTASK_POOL_MAX_POOL_SIZE": "4"},
		"zero max":        {"ASYNCTASK_POOL_MAX_POOL_SIZE": "0"},
		"max above limit": {"ASYNCTASK_POOL_MAX_POOL_SIZE": "20000"},
		"negative queue":  {"ASYNCTASK_POOL_QUEUE_CAPACITY": "-1"},
		"unknown mode":    {"ASYNCTASK_MODE": "random"},
		"unknown level":   {"ASYNCTASK_LOG_LEVEL": "trace"},
		"unknown policy":  {"ASYNCTASK_DISPATCHER_ON_FAILURE": "ignore"},
	}

	for name, env := range tests {
		t.Run(name, func(t *testing.T) {
			for k, v := range env {
				t.Setenv(k, v)
			}
			cfg, err := Load("")
			require.Error(t, err)
			assert.Nil(t, cfg)
			assert.Contains(t, err.Error(), "invalid configuration")
		})
	}
}

// TestLoadMetricsRequiresAddress verifies an enabled exporter needs an address
func TestLoadMetricsRequiresAddress(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "metrics:\n  enabled: true\n  address: \"\"\n")

	_, err := Load(path)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "Address")
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

// TestExecutionContextConfig verifies the conversion feeds a working context
// Main test items:
// 1. Pool sizing and names are carried over
// 2. The "log" failure policy does not re-panic
// 3. The context starts in the configured mode
func TestExecutionContextConfig(t *testing.T) {
	cfg := Default()
	cfg.Mode = core.ModeSerial
	cfg.Pool.Name = "cfg-pool"
	cfg.Pool.CorePoolSize = 1
	cfg.Pool.MaxPoolSize = 2
	cfg.Dispatcher.OnFailure = "log"

	ecfg := cfg.ExecutionContextConfig(core.NewNoOpLogger(), nil)
	assert.Equal(t, "cfg-pool", ecfg.Pool.Name)
	assert.Equal(t, 2, ecfg.Pool.MaxPoolSize)
	assert.Equal(t, "home", ecfg.Dispatcher.Name)
	require.NotNil(t, ecfg.Dispatcher.PanicHandler)
	assert.NotPanics(t, func() {
		ecfg.Dispatcher.PanicHandler.HandlePanic(t.Context(), "home", "boom", nil)
	})

	ec := core.NewExecutionContext(ecfg)
	defer func() { _ = ec.Shutdown(t.Context()) }()
	assert.Equal(t, core.ModeSerial, ec.ExecutionMode())
	assert.Equal(t, 1, ec.ThreadPool().CorePoolSize())

	cfg.Dispatcher.OnFailure = "fatal"
	_, fatal := cfg.ExecutionContextConfig(nil, nil).Dispatcher.PanicHandler.(*core.FatalPanicHandler)
	assert.True(t, fatal)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	cfg := Default()
	cfg.Log.Level = "warn"
	cfg.Log.Format = "json"

	logger := cfg.NewLogger(&buf)
	logger.Info("hidden")
	logger.Warn("shown", core.F("pool", "p"))

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)
	assert.Contains(t, buf.String(), `"pool":"p"`)
}

// TestWatch verifies a rewritten file is reported and applied
// Given: A loader watching a file in parallel mode
// When: The file is rewritten with mode serial, then with an invalid mode
// Then: The context switches to serial and the invalid reload is reported as an error
func TestWatch(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "mode: parallel\n")
	loader := NewLoader(path)
	cfg, err := loader.Load()
	require.NoError(t, err)

	ecfg := cfg.ExecutionContextConfig(core.NewNoOpLogger(), nil)
	ec := core.NewExecutionContext(ecfg)
	defer func() { _ = ec.Shutdown(t.Context()) }()

	var mu sync.Mutex
	var errs []error
	apply := ApplyMode(ec, nil)
	loader.Watch(func(e fsnotify.Event, cfg *Config, err error) {
		mu.Lock()
		errs = append(errs, err)
		mu.Unlock()
		apply(e, cfg, err)
	})

	writeConfig(t, filepath.Dir(path), "mode: serial\n")
	assert.Eventually(t, func() bool {
		return ec.ExecutionMode() == core.ModeSerial
	}, 5*time.Second, 20*time.Millisecond)

	writeConfig(t, filepath.Dir(path), "mode: sideways\n")
	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(errs) > 0 && errs[len(errs)-1] != nil
	}, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, core.ModeSerial, ec.ExecutionMode())
}
