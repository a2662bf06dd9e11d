package config

import (
	"github.com/fsnotify/fsnotify"

	"github.com/Swind/go-async-task/core"
)

// ChangeFunc receives the file event and the re-validated configuration.
// err is set when the new file does not decode or validate; the previous
// configuration should stay in effect.
type ChangeFunc func(event fsnotify.Event, cfg *Config, err error)

// Watch re-reads the config file whenever it changes and calls fn.
// Load must have found a file first.
func (l *Loader) Watch(fn ChangeFunc) {
	l.v.OnConfigChange(func(e fsnotify.Event) {
		cfg, err := l.decode()
		fn(e, cfg, err)
	})
	l.v.WatchConfig()
}

// ApplyMode returns a ChangeFunc that switches ec's default executor to the
// mode of each valid reload.
func ApplyMode(ec *core.ExecutionContext, logger core.Logger) ChangeFunc {
	if logger == nil {
		logger = core.NewNoOpLogger()
	}
	return func(e fsnotify.Event, cfg *Config, err error) {
		if err != nil {
			logger.Warn("ignoring config change", core.F("file", e.Name), core.F("error", err))
			return
		}
		if cfg.Mode == ec.ExecutionMode() {
			return
		}
		if err := ec.SetExecutionMode(cfg.Mode); err != nil {
			logger.Warn("ignoring config change", core.F("file", e.Name), core.F("error", err))
			return
		}
		logger.Info("execution mode reloaded", core.F("file", e.Name), core.F("mode", cfg.Mode))
	}
}
