package asynctask

import (
	"os"

	"github.com/Swind/go-async-task/config"
	"github.com/Swind/go-async-task/core"
)

// NewExecutionContextFromConfig builds an execution context from a loaded
// config, logging to stderr at the configured level. metrics may be nil.
func NewExecutionContextFromConfig(cfg *config.Config, metrics core.Metrics) *core.ExecutionContext {
	logger := cfg.NewLogger(os.Stderr)
	return core.NewExecutionContext(cfg.ExecutionContextConfig(logger, metrics))
}

// InitGlobalFromConfig loads path (see config.Load) and initialises the
// global execution context from it.
func InitGlobalFromConfig(path string, metrics core.Metrics) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	logger := cfg.NewLogger(os.Stderr)
	InitGlobalExecutionContext(cfg.ExecutionContextConfig(logger, metrics))
	return cfg, nil
}
