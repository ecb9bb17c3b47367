package config_test

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"

	"github.com/Sumatoshi-tech/collview/pkg/alg/mergesort"
	"github.com/Sumatoshi-tech/collview/pkg/config"
	"github.com/Sumatoshi-tech/collview/pkg/eventloop"
	"github.com/Sumatoshi-tech/collview/pkg/observability"
	"github.com/Sumatoshi-tech/collview/pkg/source"
	"github.com/Sumatoshi-tech/collview/pkg/view"
)

func validConfig() config.Config {
	return config.Config{
		Sort: config.SortConfig{
			Locale:     "de",
			Insertion:  config.DefaultSortInsertion,
			Sequential: config.DefaultSortSequential,
			Merge:      config.DefaultSortMerge,
		},
		Logging:   config.LoggingConfig{Level: "warn", Format: "JSON"},
		Telemetry: config.TelemetryConfig{ServiceName: "collview"},
	}
}

func TestConfig_Accessors(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, language.German, cfg.Locale())
	assert.Equal(t, slog.LevelWarn, cfg.LogLevel())
	assert.Equal(t, config.DefaultSortMerge, cfg.SortThresholds().Merge)

	cfg.Logging.Level = "nonsense"
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel())

	cfg.Sort.Locale = "!!"
	assert.Equal(t, language.Und, cfg.Locale())
}

func TestConfig_Observability(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.Telemetry.Environment = "ci"
	cfg.Telemetry.OTLPEndpoint = "collector:4317"
	cfg.Telemetry.OTLPHeaders = "x-team=views"
	cfg.Telemetry.SampleRatio = 0.5
	cfg.Telemetry.ShutdownTimeout = 2 * time.Second

	oc := cfg.Observability(observability.ModeVerify, "v1.2.3")

	assert.Equal(t, "collview", oc.ServiceName)
	assert.Equal(t, "v1.2.3", oc.ServiceVersion)
	assert.Equal(t, "ci", oc.Environment)
	assert.Equal(t, observability.ModeVerify, oc.Mode)
	assert.Equal(t, "collector:4317", oc.OTLPEndpoint)
	assert.Equal(t, map[string]string{"x-team": "views"}, oc.OTLPHeaders)
	assert.InDelta(t, 0.5, oc.SampleRatio, 0.0001)
	assert.Equal(t, slog.LevelWarn, oc.LogLevel)
	assert.True(t, oc.LogJSON)
	assert.Equal(t, 2*time.Second, oc.ShutdownTimeout)

	cfg.Telemetry.ShutdownTimeout = 0
	assert.Equal(t, observability.DefaultConfig().ShutdownTimeout, cfg.Observability(observability.ModeCLI, "").ShutdownTimeout)
}

func TestViewOptions_BuildView(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.Sort.Parallel = true
	cfg.Scheduler.AsyncThreshold = 0

	loop := eventloop.New(eventloop.WithLogger(slog.New(slog.DiscardHandler)))
	list := source.NewList(3, 1, 2)

	opts := append(config.ViewOptions[int](&cfg), view.WithComparator[int](func(a, b int) int { return a - b }))

	v, err := view.New[int](list, loop, opts...)
	require.NoError(t, err)

	assert.Equal(t, []int{1, 2, 3}, v.Items())

	cfg.Sort.Insertion = -1

	_, err = view.New[int](list, loop, config.ViewOptions[int](&cfg)...)
	require.ErrorIs(t, err, mergesort.ErrInvalidThresholds)
}
