package core

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the typed settings struct for a workerpool process. WorkerPool
// and its collaborators take every one of these as constructor parameters
// directly, with no loader of their own; LoadConfig lets cmd/workerpoolctl
// (and any embedder that wants one) assemble a Config from the environment
// or a YAML file instead of wiring each field by hand.
type Config struct {
	// WorkerCount is the number of Minion slots a WorkerPool should run,
	// i.e. NewWorkerPool(WorkerCount+2, ...).
	WorkerCount int `mapstructure:"worker_count"`

	// DefaultRevokeWait is the waitFor passed to Revoke by callers that
	// don't have a more specific deadline in mind.
	DefaultRevokeWait time.Duration `mapstructure:"default_revoke_wait"`

	// TimerWakeupMinBudget is a lower bound on how soon a caller should
	// expect a freshly Scheduled entry to be honored; cmd/workerpoolctl's run
	// command adds it to the delay of every job it Schedules.
	TimerWakeupMinBudget time.Duration `mapstructure:"timer_wakeup_min_budget"`

	// LogEnvironment selects zap.NewProduction ("production") or
	// zap.NewDevelopment (anything else) in NewZapLoggerFromConfig.
	LogEnvironment string `mapstructure:"log_environment"`

	// MetricsNamespace is the Prometheus namespace passed to
	// observability/prometheus.NewMetricsExporter.
	MetricsNamespace string `mapstructure:"metrics_namespace"`
}

// DefaultConfig returns the zero-config defaults: a 4-worker pool, a 5s
// default revoke wait, production logging, and the "workerpool" metrics
// namespace.
func DefaultConfig() Config {
	return Config{
		WorkerCount:          4,
		DefaultRevokeWait:    5 * time.Second,
		TimerWakeupMinBudget: time.Millisecond,
		LogEnvironment:       "production",
		MetricsNamespace:     "workerpool",
	}
}

// LoadConfig reads settings from environment variables (prefixed
// WORKERPOOL_, e.g. WORKERPOOL_WORKER_COUNT) and, if configPath is
// non-empty, an optional YAML file, layering both over DefaultConfig.
// configPath may point to a file that does not exist; that is not an error,
// since an all-env or all-default configuration is just as valid.
func LoadConfig(configPath string) (Config, error) {
	defaults := DefaultConfig()

	v := viper.New()
	v.SetEnvPrefix("WORKERPOOL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("worker_count", defaults.WorkerCount)
	v.SetDefault("default_revoke_wait", defaults.DefaultRevokeWait)
	v.SetDefault("timer_wakeup_min_budget", defaults.TimerWakeupMinBudget)
	v.SetDefault("log_environment", defaults.LogEnvironment)
	v.SetDefault("metrics_namespace", defaults.MetricsNamespace)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound && !errors.Is(err, fs.ErrNotExist) {
				return Config{}, fmt.Errorf("core: reading config file %q: %w", configPath, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("core: unmarshaling config: %w", err)
	}
	if cfg.WorkerCount < 1 {
		return Config{}, fmt.Errorf("core: worker_count must be >= 1, got %d", cfg.WorkerCount)
	}
	return cfg, nil
}
