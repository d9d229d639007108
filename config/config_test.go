package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Swind/go-media-task/core"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gmf.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

// TestLoad_Defaults tests loading with no config file present
func TestLoad_Defaults(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("HOME", dir)
	t.Setenv("GMF_CONFIG", "")

	cfg, err := Load("")
	require.NoError(t, err)

	def := Default()
	assert.Equal(t, def.Log.Level, cfg.Log.Level)
	assert.Equal(t, []string{"audio", "video"}, cfg.Pipeline.Tasks)
	assert.Equal(t, core.DefaultRetryPolicy(), cfg.Pipeline.Retry.Policy())

	timeout, err := cfg.Task.ControlTimeout()
	require.NoError(t, err)
	assert.Equal(t, core.DefaultControlTimeout, timeout)
	assert.Equal(t, core.DefaultThreadConfig(), cfg.Task.Thread())
}

// TestLoad_File tests a YAML file with every section set
func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
log:
  level: debug
  format: json
metrics:
  listen: "127.0.0.1:9100"
  poll_interval: 250ms
task:
  stack_size: 8192
  priority: 10
  core: 1
  timeout: forever
  idle_wait: 20ms
  max_jobs: 8
pipeline:
  name: camera
  tasks: [capture, encode]
  retry:
    max_retries: 5
    initial_delay: 50ms
    max_delay: 2s
    backoff_ratio: 1.5
  schedules:
    - spec: "0 0 2 * * * *"
      task: encode
      op: Stop
    - spec: "0 5 2 * * * *"
      op: run
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, []string{"stdout"}, cfg.Log.Outputs)
	assert.Equal(t, "127.0.0.1:9100", cfg.Metrics.Listen)
	assert.Equal(t, 250*time.Millisecond, cfg.Metrics.PollInterval)

	tc, err := cfg.Task.ForTask("capture")
	require.NoError(t, err)
	assert.Equal(t, "capture", tc.Name)
	assert.Equal(t, core.ThreadConfig{StackSize: 8192, Priority: 10, Core: 1}, tc.Thread)
	assert.Equal(t, core.MaxDelay, tc.Timeout)
	assert.Equal(t, 20*time.Millisecond, tc.IdleWait)
	assert.Equal(t, 8, tc.MaxJobs)

	assert.Equal(t, "camera", cfg.Pipeline.Name)
	assert.Equal(t, []string{"capture", "encode"}, cfg.Pipeline.Tasks)
	assert.Equal(t, core.RetryPolicy{
		MaxRetries:   5,
		InitialDelay: 50 * time.Millisecond,
		MaxDelay:     2 * time.Second,
		BackoffRatio: 1.5,
	}, cfg.Pipeline.Retry.Policy())

	require.Len(t, cfg.Pipeline.Schedules, 2)
	op, err := cfg.Pipeline.Schedules[0].ParsedOp()
	require.NoError(t, err)
	assert.Equal(t, core.OpStop, op)
	assert.Equal(t, "", cfg.Pipeline.Schedules[1].Task)
}

// TestLoad_ShorterList tests that a file list replaces the default list
func TestLoad_ShorterList(t *testing.T) {
	cfg, err := Load(writeConfig(t, "pipeline:\n  tasks: [mic]\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"mic"}, cfg.Pipeline.Tasks)
}

// TestLoad_EnvOverride tests GMF_ environment overrides
func TestLoad_EnvOverride(t *testing.T) {
	path := writeConfig(t, "log:\n  level: info\n")
	t.Setenv("GMF_LOG_LEVEL", "warn")
	t.Setenv("GMF_TASK_TIMEOUT", "500ms")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Log.Level)
	timeout, err := cfg.Task.ControlTimeout()
	require.NoError(t, err)
	assert.Equal(t, 500*time.Millisecond, timeout)
}

// TestLoad_Invalid tests validation failures
func TestLoad_Invalid(t *testing.T) {
	cases := map[string]string{
		"log level":      "log:\n  level: loud\n",
		"timeout":        "task:\n  timeout: soon\n",
		"zero timeout":   "task:\n  timeout: 0s\n",
		"thread core":    "task:\n  core: 99\n",
		"duplicate task": "pipeline:\n  tasks: [a, a]\n",
		"schedule op":    "pipeline:\n  tasks: [a]\n  schedules:\n    - spec: \"* * * * *\"\n      op: explode\n",
		"schedule task":  "pipeline:\n  tasks: [a]\n  schedules:\n    - spec: \"* * * * *\"\n      task: b\n      op: run\n",
		"negative retry": "pipeline:\n  retry:\n    max_retries: -1\n",
		"negative max":   "task:\n  max_jobs: -2\n",
		"malformed yaml": "log: [\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			assert.Error(t, err)
		})
	}
}

func TestTaskConfig_ControlTimeout(t *testing.T) {
	for in, want := range map[string]time.Duration{
		"":        core.DefaultControlTimeout,
		"forever": core.MaxDelay,
		"-1ms":    core.MaxDelay,
		"750ms":   750 * time.Millisecond,
	} {
		got, err := TaskConfig{Timeout: in}.ControlTimeout()
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	for _, in := range []string{"0", "0s", "soon"} {
		_, err := TaskConfig{Timeout: in}.ControlTimeout()
		assert.Error(t, err, in)
		_, err = TaskConfig{Timeout: in}.ForTask("dec")
		assert.Error(t, err, in)
	}
}
