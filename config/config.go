package config

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/Swind/go-async-task/core"
)

// Config holds all execution context settings.
type Config struct {
	Mode            core.ExecutionMode `mapstructure:"mode" validate:"required,oneof=parallel serial"`
	HistoryCapacity int                `mapstructure:"history_capacity" validate:"gte=0"`

	Pool       PoolConfig       `mapstructure:"pool" validate:"required"`
	Dispatcher DispatcherConfig `mapstructure:"dispatcher" validate:"required"`
	Log        LogConfig        `mapstructure:"log" validate:"required"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
}

// PoolConfig sizes the parallel thread pool.
type PoolConfig struct {
	Name                   string        `mapstructure:"name" validate:"required"`
	CorePoolSize           int           `mapstructure:"core_pool_size" validate:"gte=0"`
	MaxPoolSize            int           `mapstructure:"max_pool_size" validate:"gt=0,lte=10000,gtefield=CorePoolSize"`
	KeepAlive              time.Duration `mapstructure:"keep_alive" validate:"gte=0s"`
	QueueCapacity          int           `mapstructure:"queue_capacity" validate:"gte=0"`
	AllowCoreThreadTimeOut bool          `mapstructure:"allow_core_thread_timeout"`
	ThreadNamePrefix       string        `mapstructure:"thread_name_prefix"`
}

// DispatcherConfig configures the home dispatcher.
type DispatcherConfig struct {
	Name string `mapstructure:"name" validate:"required"`

	// OnFailure is "fatal" (re-panic on the home goroutine) or "log".
	OnFailure string `mapstructure:"on_failure" validate:"required,oneof=fatal log"`
}

// LogConfig selects the slog level and handler.
type LogConfig struct {
	Level  string `mapstructure:"level" validate:"required,oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"required,oneof=text json"`
}

// MetricsConfig controls the Prometheus exporter.
type MetricsConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Namespace    string        `mapstructure:"namespace" validate:"required_if=Enabled true"`
	Address      string        `mapstructure:"address" validate:"required_if=Enabled true"`
	PollInterval time.Duration `mapstructure:"poll_interval" validate:"gte=0s"`
}

// Default returns the classic AsyncTask setup.
func Default() *Config {
	return &Config{
		Mode:            core.ModeParallel,
		HistoryCapacity: 100,
		Pool: PoolConfig{
			Name:             "thread-pool",
			CorePoolSize:     core.DefaultCorePoolSize,
			MaxPoolSize:      core.DefaultMaxPoolSize,
			KeepAlive:        core.DefaultKeepAlive,
			QueueCapacity:    core.DefaultQueueCapacity,
			ThreadNamePrefix: core.DefaultThreadNamePrefix,
		},
		Dispatcher: DispatcherConfig{
			Name:      "home",
			OnFailure: "fatal",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Namespace:    "asynctask",
			Address:      ":9090",
			PollInterval: 5 * time.Second,
		},
	}
}

// SlogLevel maps Log.Level onto slog. Unknown values read as info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.Log.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger builds a core.Logger writing to w with the configured handler.
func (c *Config) NewLogger(w io.Writer) core.Logger {
	opts := &slog.HandlerOptions{Level: c.SlogLevel()}
	var h slog.Handler
	if c.Log.Format == "json" {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	return core.NewSlogLogger(slog.New(h))
}

// ExecutionContextConfig converts c for core.NewExecutionContext.
// A nil metrics leaves the core default in place.
func (c *Config) ExecutionContextConfig(logger core.Logger, metrics core.Metrics) core.ExecutionContextConfig {
	return core.ExecutionContextConfig{
		Dispatcher: core.DispatcherConfig{
			Name:         c.Dispatcher.Name,
			PanicHandler: c.panicHandler(logger),
		},
		Pool: core.ThreadPoolConfig{
			Name:                   c.Pool.Name,
			CorePoolSize:           c.Pool.CorePoolSize,
			MaxPoolSize:            c.Pool.MaxPoolSize,
			KeepAlive:              c.Pool.KeepAlive,
			QueueCapacity:          c.Pool.QueueCapacity,
			AllowCoreThreadTimeOut: c.Pool.AllowCoreThreadTimeOut,
			ThreadNamePrefix:       c.Pool.ThreadNamePrefix,
		},
		Mode:            c.Mode,
		HistoryCapacity: c.HistoryCapacity,
		Logger:          logger,
		Metrics:         metrics,
	}
}

func (c *Config) panicHandler(logger core.Logger) core.PanicHandler {
	if c.Dispatcher.OnFailure != "log" {
		return &core.FatalPanicHandler{Logger: logger}
	}
	if logger == nil {
		logger = core.NewDefaultLogger()
	}
	return core.PanicHandlerFunc(func(ctx context.Context, source string, panicInfo any, stack []byte) {
		logger.Error("task failure on home goroutine",
			core.F("source", source), core.F("panic", panicInfo), core.F("stack", string(stack)))
	})
}
