package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

const (
	// EnvPrefix prefixes every environment override, e.g. ASYNCTASK_POOL_MAX_POOL_SIZE.
	EnvPrefix = "ASYNCTASK"

	// DefaultConfigName is looked up in the working directory when no path is given.
	DefaultConfigName = "asynctask"
)

// Loader reads Config from defaults, an optional yaml file and the
// environment, in increasing precedence.
type Loader struct {
	v        *viper.Viper
	validate *validator.Validate
}

// NewLoader prepares a Loader for path. An empty path searches the working
// directory for asynctask.yaml and tolerates its absence.
func NewLoader(path string) *Loader {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(DefaultConfigName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return &Loader{v: v, validate: validator.New()}
}

// Load reads and validates the configuration.
func (l *Loader) Load() (*Config, error) {
	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}
	return l.decode()
}

// ConfigFile returns the file in use, or "" when none was found.
func (l *Loader) ConfigFile() string {
	return l.v.ConfigFileUsed()
}

func (l *Loader) decode() (*Config, error) {
	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := l.validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Load is shorthand for NewLoader(path).Load().
func Load(path string) (*Config, error) {
	return NewLoader(path).Load()
}

func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("mode", string(d.Mode))
	v.SetDefault("history_capacity", d.HistoryCapacity)

	v.SetDefault("pool.name", d.Pool.Name)
	v.SetDefault("pool.core_pool_size", d.Pool.CorePoolSize)
	v.SetDefault("pool.max_pool_size", d.Pool.MaxPoolSize)
	v.SetDefault("pool.keep_alive", d.Pool.KeepAlive)
	v.SetDefault("pool.queue_capacity", d.Pool.QueueCapacity)
	v.SetDefault("pool.allow_core_thread_timeout", d.Pool.AllowCoreThreadTimeOut)
	v.SetDefault("pool.thread_name_prefix", d.Pool.ThreadNamePrefix)

	v.SetDefault("dispatcher.name", d.Dispatcher.Name)
	v.SetDefault("dispatcher.on_failure", d.Dispatcher.OnFailure)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)

	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.namespace", d.Metrics.Namespace)
	v.SetDefault("metrics.address", d.Metrics.Address)
	v.SetDefault("metrics.poll_interval", d.Metrics.PollInterval)
}
