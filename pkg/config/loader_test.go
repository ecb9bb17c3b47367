package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"

	"github.com/Sumatoshi-tech/collview/pkg/config"
)

const (
	testYield      = 2 * time.Millisecond
	testAsync      = 500
	testInsertion  = 8
	testSequential = 64
	testMerge      = 128
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), ".collview.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestLoadConfig_EmptyFile_UsesDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadConfig(writeConfig(t, ""))
	require.NoError(t, err)

	assert.Equal(t, config.DefaultSortParallel, cfg.Sort.Parallel)
	assert.Equal(t, config.DefaultSortInsertion, cfg.Sort.Insertion)
	assert.Equal(t, config.DefaultSortSequential, cfg.Sort.Sequential)
	assert.Equal(t, config.DefaultSortMerge, cfg.Sort.Merge)
	assert.Equal(t, config.DefaultSortLocale, cfg.Sort.Locale)
	assert.Equal(t, config.DefaultYieldThreshold, cfg.Scheduler.YieldThreshold)
	assert.Equal(t, config.DefaultAsyncThreshold, cfg.Scheduler.AsyncThreshold)
	assert.False(t, cfg.Engine.CrossContext)
	assert.False(t, cfg.Engine.CrossContextReads)
	assert.Equal(t, config.DefaultLogLevel, cfg.Logging.Level)
	assert.Equal(t, config.DefaultLogFormat, cfg.Logging.Format)
	assert.Equal(t, config.DefaultServiceName, cfg.Telemetry.ServiceName)
	assert.Equal(t, config.DefaultShutdownTimeout, cfg.Telemetry.ShutdownTimeout)
	assert.Empty(t, cfg.Telemetry.OTLPEndpoint)
}

func TestLoadConfig_ValidFile_Unmarshals(t *testing.T) {
	t.Parallel()

	content := `sort:
  parallel: true
  insertion: 8
  sequential: 64
  merge: 128
  locale: sv
scheduler:
  yield_threshold: 2ms
  async_threshold: 500
engine:
  cross_context: true
  cross_context_reads: true
logging:
  level: debug
  format: json
telemetry:
  service_name: bench
  otlp_endpoint: localhost:4317
  otlp_headers: "x-team=views, x-env=ci"
  sample_ratio: 0.25
  metrics_addr: ":9464"
`

	cfg, err := config.LoadConfig(writeConfig(t, content))
	require.NoError(t, err)

	assert.True(t, cfg.Sort.Parallel)
	assert.Equal(t, testInsertion, cfg.Sort.Insertion)
	assert.Equal(t, testSequential, cfg.Sort.Sequential)
	assert.Equal(t, testMerge, cfg.Sort.Merge)
	assert.Equal(t, language.Swedish, cfg.Locale())
	assert.Equal(t, testYield, cfg.Scheduler.YieldThreshold)
	assert.Equal(t, testAsync, cfg.Scheduler.AsyncThreshold)
	assert.True(t, cfg.Engine.CrossContext)
	assert.True(t, cfg.Engine.CrossContextReads)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "bench", cfg.Telemetry.ServiceName)
	assert.Equal(t, "localhost:4317", cfg.Telemetry.OTLPEndpoint)
	assert.InDelta(t, 0.25, cfg.Telemetry.SampleRatio, 0.0001)
	assert.Equal(t, ":9464", cfg.Telemetry.MetricsAddr)
}

func TestLoadConfig_InvalidValues(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
		want    error
	}{
		{"negative yield", "scheduler:\n  yield_threshold: -1ms\n", config.ErrInvalidYieldThreshold},
		{"negative async", "scheduler:\n  async_threshold: -5\n", config.ErrInvalidAsyncThreshold},
		{"negative insertion", "sort:\n  insertion: -1\n", config.ErrInvalidSortThresholds},
		{"bad locale", "sort:\n  locale: \"not a locale!\"\n", config.ErrInvalidLocale},
		{"bad level", "logging:\n  level: loud\n", config.ErrInvalidLogLevel},
		{"bad format", "logging:\n  format: xml\n", config.ErrInvalidLogFormat},
		{"bad ratio", "telemetry:\n  sample_ratio: 1.5\n", config.ErrInvalidSampleRatio},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := config.LoadConfig(writeConfig(t, tt.content))
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestLoadConfig_MalformedFile(t *testing.T) {
	t.Parallel()

	_, err := config.LoadConfig(writeConfig(t, "sort: [unclosed\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config")
}

//nolint:paralleltest // t.Setenv is incompatible with t.Parallel.
func TestLoadConfig_EnvOverridesFile(t *testing.T) {
	t.Setenv("COLLVIEW_SCHEDULER_ASYNC_THRESHOLD", "42")
	t.Setenv("COLLVIEW_ENGINE_CROSS_CONTEXT", "true")

	cfg, err := config.LoadConfig(writeConfig(t, "scheduler:\n  async_threshold: 7\n"))
	require.NoError(t, err)

	assert.Equal(t, 42, cfg.Scheduler.AsyncThreshold)
	assert.True(t, cfg.Engine.CrossContext)
}
