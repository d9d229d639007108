// Package config provides YAML-based configuration loading for media task
// pipelines.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/Swind/go-media-task/core"
)

// Config is the root application configuration.
type Config struct {
	// Log holds logging configuration
	Log LogConfig `mapstructure:"log"`

	// Metrics controls the Prometheus endpoint
	Metrics MetricsConfig `mapstructure:"metrics"`

	// Task holds defaults for every Task the pipeline creates
	Task TaskConfig `mapstructure:"task"`

	// Pipeline describes the tasks, retry policy and schedules
	Pipeline PipelineConfig `mapstructure:"pipeline"`
}

// LogConfig defines logger settings.
type LogConfig struct {
	// Level: debug, info, warn, error
	Level string `mapstructure:"level"`
	// Format: console or json
	Format string `mapstructure:"format"`
	// Outputs: list of outputs: stdout, stderr, or file paths
	Outputs []string `mapstructure:"outputs"`

	// Rotation controls file rotation when writing to files
	Rotation RotationConfig `mapstructure:"rotation"`
	// Development toggles development-friendly logging options
	Development bool `mapstructure:"development"`
}

// RotationConfig controls log file rotation for file outputs.
type RotationConfig struct {
	Enable     bool   `mapstructure:"enable"`
	Filename   string `mapstructure:"filename"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// MetricsConfig controls metric export.
type MetricsConfig struct {
	Enable    bool   `mapstructure:"enable"`
	Listen    string `mapstructure:"listen"`
	Path      string `mapstructure:"path"`
	Namespace string `mapstructure:"namespace"`
	// PollInterval is how often Task stats snapshots are exported
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

// TaskConfig mirrors core.TaskConfig's plain settings.
type TaskConfig struct {
	StackSize  int  `mapstructure:"stack_size"`
	Priority   int  `mapstructure:"priority"`
	Core       int  `mapstructure:"core"`
	StackInExt bool `mapstructure:"stack_in_ext"`
	// Timeout bounds synchronous control calls; "forever" or a negative
	// value waits without bound, zero is rejected
	Timeout     string        `mapstructure:"timeout"`
	IdleWait    time.Duration `mapstructure:"idle_wait"`
	MaxJobs     int           `mapstructure:"max_jobs"`
	HistorySize int           `mapstructure:"history_size"`
}

// RetryConfig mirrors core.RetryPolicy.
type RetryConfig struct {
	MaxRetries   int           `mapstructure:"max_retries"`
	InitialDelay time.Duration `mapstructure:"initial_delay"`
	MaxDelay     time.Duration `mapstructure:"max_delay"`
	BackoffRatio float64       `mapstructure:"backoff_ratio"`
}

// ScheduleConfig is one cron-driven control operation. An empty Task applies
// Op to every task of the pipeline.
type ScheduleConfig struct {
	Spec string `mapstructure:"spec"`
	Task string `mapstructure:"task"`
	Op   string `mapstructure:"op"`
}

// PipelineConfig describes one pipeline.
type PipelineConfig struct {
	Name      string           `mapstructure:"name"`
	Tasks     []string         `mapstructure:"tasks"`
	Retry     RetryConfig      `mapstructure:"retry"`
	Schedules []ScheduleConfig `mapstructure:"schedules"`
	// AutoRun starts the pipeline once it is built
	AutoRun bool `mapstructure:"auto_run"`
}

// Default returns a Config populated with sensible defaults.
func Default() *Config {
	thread := core.DefaultThreadConfig()
	retry := core.DefaultRetryPolicy()
	return &Config{
		Log: LogConfig{
			Level:       "info",
			Format:      "console",
			Outputs:     []string{"stdout"},
			Development: false,
			Rotation: RotationConfig{
				Enable:     false,
				Filename:   "logs/gmf.log",
				MaxSizeMB:  50,
				MaxBackups: 3,
				MaxAgeDays: 28,
				Compress:   true,
			},
		},
		Metrics: MetricsConfig{
			Enable:       true,
			Listen:       ":9464",
			Path:         "/metrics",
			Namespace:    "gmf",
			PollInterval: time.Second,
		},
		Task: TaskConfig{
			StackSize:   thread.StackSize,
			Priority:    thread.Priority,
			Core:        int(thread.Core),
			Timeout:     core.DefaultControlTimeout.String(),
			IdleWait:    core.DefaultIdleWait,
			HistorySize: 64,
		},
		Pipeline: PipelineConfig{
			Name:  "gmf-pipeline",
			Tasks: []string{"audio", "video"},
			Retry: RetryConfig{
				MaxRetries:   retry.MaxRetries,
				InitialDelay: retry.InitialDelay,
				MaxDelay:     retry.MaxDelay,
				BackoffRatio: retry.BackoffRatio,
			},
			AutoRun: true,
		},
	}
}

// Load reads configuration from the provided path (if non-empty),
// otherwise it searches common locations and supports environment overrides.
// Environment variables use the prefix GMF and `.`/`-` are replaced with `_`.
// Example: GMF_LOG_LEVEL=debug
func Load(path string) (*Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("GMF")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// seed defaults for viper so env-only configs work
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)
	v.SetDefault("log.outputs", cfg.Log.Outputs)
	v.SetDefault("log.development", cfg.Log.Development)
	v.SetDefault("log.rotation.enable", cfg.Log.Rotation.Enable)
	v.SetDefault("log.rotation.filename", cfg.Log.Rotation.Filename)
	v.SetDefault("log.rotation.max_size_mb", cfg.Log.Rotation.MaxSizeMB)
	v.SetDefault("log.rotation.max_backups", cfg.Log.Rotation.MaxBackups)
	v.SetDefault("log.rotation.max_age_days", cfg.Log.Rotation.MaxAgeDays)
	v.SetDefault("log.rotation.compress", cfg.Log.Rotation.Compress)
	v.SetDefault("metrics.enable", cfg.Metrics.Enable)
	v.SetDefault("metrics.listen", cfg.Metrics.Listen)
	v.SetDefault("metrics.path", cfg.Metrics.Path)
	v.SetDefault("metrics.namespace", cfg.Metrics.Namespace)
	v.SetDefault("metrics.poll_interval", cfg.Metrics.PollInterval)
	v.SetDefault("task.stack_size", cfg.Task.StackSize)
	v.SetDefault("task.priority", cfg.Task.Priority)
	v.SetDefault("task.core", cfg.Task.Core)
	v.SetDefault("task.stack_in_ext", cfg.Task.StackInExt)
	v.SetDefault("task.timeout", cfg.Task.Timeout)
	v.SetDefault("task.idle_wait", cfg.Task.IdleWait)
	v.SetDefault("task.max_jobs", cfg.Task.MaxJobs)
	v.SetDefault("task.history_size", cfg.Task.HistorySize)
	v.SetDefault("pipeline.name", cfg.Pipeline.Name)
	v.SetDefault("pipeline.tasks", cfg.Pipeline.Tasks)
	v.SetDefault("pipeline.retry.max_retries", cfg.Pipeline.Retry.MaxRetries)
	v.SetDefault("pipeline.retry.initial_delay", cfg.Pipeline.Retry.InitialDelay)
	v.SetDefault("pipeline.retry.max_delay", cfg.Pipeline.Retry.MaxDelay)
	v.SetDefault("pipeline.retry.backoff_ratio", cfg.Pipeline.Retry.BackoffRatio)
	v.SetDefault("pipeline.schedules", cfg.Pipeline.Schedules)
	v.SetDefault("pipeline.auto_run", cfg.Pipeline.AutoRun)

	// Choose config file
	if path == "" {
		if envPath := os.Getenv("GMF_CONFIG"); envPath != "" {
			path = envPath
		}
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("gmf")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".gmf"))
		}
	}

	// Read config file if present; if not found, continue with defaults/env
	if err := v.ReadInConfig(); err != nil {
		var viperConfigFileNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &viperConfigFileNotFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	// every key is seeded above; decode into a fresh value so lists from the
	// file replace the defaults instead of overlaying them
	cfg = &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// MustLoad is a convenience that panics on error.
func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic(err)
	}
	return cfg
}

func (c *Config) validate() error {
	lvl := strings.ToLower(strings.TrimSpace(c.Log.Level))
	switch lvl {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid log.level: %q", c.Log.Level)
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
	if len(c.Log.Outputs) == 0 {
		c.Log.Outputs = []string{"stdout"}
	}

	if _, err := c.Task.ControlTimeout(); err != nil {
		return err
	}
	if c.Task.IdleWait < 0 {
		return fmt.Errorf("invalid task.idle_wait: %s", c.Task.IdleWait)
	}
	if c.Task.MaxJobs < 0 {
		return fmt.Errorf("invalid task.max_jobs: %d", c.Task.MaxJobs)
	}
	if c.Task.Core < 0 || c.Task.Core > core.MaxCore {
		return fmt.Errorf("invalid task.core: %d", c.Task.Core)
	}
	if err := c.Task.Thread().Validate(); err != nil {
		return fmt.Errorf("invalid task thread settings: %w", err)
	}

	if c.Pipeline.Retry.MaxRetries < 0 {
		return fmt.Errorf("invalid pipeline.retry.max_retries: %d", c.Pipeline.Retry.MaxRetries)
	}
	if c.Pipeline.Retry.BackoffRatio < 1 {
		c.Pipeline.Retry.BackoffRatio = 1
	}

	seen := make(map[string]bool, len(c.Pipeline.Tasks))
	for i, name := range c.Pipeline.Tasks {
		name = strings.TrimSpace(name)
		if name == "" {
			return fmt.Errorf("pipeline.tasks[%d] is empty", i)
		}
		if seen[name] {
			return fmt.Errorf("duplicate pipeline task %q", name)
		}
		seen[name] = true
		c.Pipeline.Tasks[i] = name
	}
	for i, s := range c.Pipeline.Schedules {
		if strings.TrimSpace(s.Spec) == "" {
			return fmt.Errorf("pipeline.schedules[%d]: empty spec", i)
		}
		if _, err := core.ParseOp(strings.ToLower(s.Op)); err != nil {
			return fmt.Errorf("pipeline.schedules[%d]: %w", i, err)
		}
		if s.Task != "" && !seen[s.Task] {
			return fmt.Errorf("pipeline.schedules[%d]: unknown task %q", i, s.Task)
		}
	}
	return nil
}

// Thread returns the thread settings as a core.ThreadConfig.
func (c TaskConfig) Thread() core.ThreadConfig {
	return core.ThreadConfig{
		StackSize:  c.StackSize,
		Priority:   c.Priority,
		Core:       uint8(c.Core),
		StackInExt: c.StackInExt,
	}
}

// ControlTimeout parses Timeout. "forever" and negative durations map to
// core.MaxDelay, empty selects core.DefaultControlTimeout. Zero is an error:
// core.NewTask would silently replace it with the default.
func (c TaskConfig) ControlTimeout() (time.Duration, error) {
	s := strings.TrimSpace(strings.ToLower(c.Timeout))
	switch s {
	case "":
		return core.DefaultControlTimeout, nil
	case "forever", "max":
		return core.MaxDelay, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid task.timeout %q: %w", c.Timeout, err)
	}
	switch {
	case d < 0:
		return core.MaxDelay, nil
	case d == 0:
		return 0, fmt.Errorf("invalid task.timeout %q: must not be zero", c.Timeout)
	}
	return d, nil
}

// ForTask returns a core.TaskConfig for the named task. Handlers are left at
// the core defaults.
func (c TaskConfig) ForTask(name string) (core.TaskConfig, error) {
	tc := core.DefaultTaskConfig()
	timeout, err := c.ControlTimeout()
	if err != nil {
		return tc, err
	}
	tc.Name = name
	tc.Thread = c.Thread()
	tc.Timeout = timeout
	tc.IdleWait = c.IdleWait
	tc.MaxJobs = c.MaxJobs
	tc.HistorySize = c.HistorySize
	return tc, nil
}

// Policy returns the retry settings as a core.RetryPolicy.
func (r RetryConfig) Policy() core.RetryPolicy {
	return core.RetryPolicy{
		MaxRetries:   r.MaxRetries,
		InitialDelay: r.InitialDelay,
		MaxDelay:     r.MaxDelay,
		BackoffRatio: r.BackoffRatio,
	}
}

// ParsedOp returns the schedule's control operation.
func (s ScheduleConfig) ParsedOp() (core.Op, error) {
	return core.ParseOp(strings.ToLower(strings.TrimSpace(s.Op)))
}
