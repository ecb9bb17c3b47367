package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/text/language"

	"github.com/Sumatoshi-tech/collview/pkg/alg/mergesort"
	"github.com/Sumatoshi-tech/collview/pkg/observability"
	"github.com/Sumatoshi-tech/collview/pkg/view"
)

// Sentinel validation errors.
var (
	ErrInvalidYieldThreshold = errors.New("yield threshold must not be negative")
	ErrInvalidAsyncThreshold = errors.New("async threshold must not be negative")
	ErrInvalidSortThresholds = errors.New("invalid sort thresholds")
	ErrInvalidLocale         = errors.New("invalid sort locale")
	ErrInvalidLogLevel       = errors.New("invalid log level")
	ErrInvalidLogFormat      = errors.New("invalid log format")
	ErrInvalidSampleRatio    = errors.New("sample ratio must be within [0, 1]")
)

// Config holds all collview configuration.
type Config struct {
	Sort      SortConfig      `mapstructure:"sort"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Engine    EngineConfig    `mapstructure:"engine"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// SortConfig controls full recomputes.
type SortConfig struct {
	Locale     string `mapstructure:"locale"`
	Insertion  int    `mapstructure:"insertion"`
	Sequential int    `mapstructure:"sequential"`
	Merge      int    `mapstructure:"merge"`
	Parallel   bool   `mapstructure:"parallel"`
}

// SchedulerConfig controls change-log draining.
type SchedulerConfig struct {
	YieldThreshold time.Duration `mapstructure:"yield_threshold"`
	AsyncThreshold int           `mapstructure:"async_threshold"`
}

// EngineConfig selects the threading mode.
type EngineConfig struct {
	CrossContext      bool `mapstructure:"cross_context"`
	CrossContextReads bool `mapstructure:"cross_context_reads"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// TelemetryConfig holds OpenTelemetry export settings.
type TelemetryConfig struct {
	ServiceName     string        `mapstructure:"service_name"`
	Environment     string        `mapstructure:"environment"`
	OTLPEndpoint    string        `mapstructure:"otlp_endpoint"`
	OTLPHeaders     string        `mapstructure:"otlp_headers"`
	MetricsAddr     string        `mapstructure:"metrics_addr"`
	SampleRatio     float64       `mapstructure:"sample_ratio"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	OTLPInsecure    bool          `mapstructure:"otlp_insecure"`
}

// Validate checks every section.
func (c *Config) Validate() error {
	if c.Scheduler.YieldThreshold < 0 {
		return fmt.Errorf("%w: %s", ErrInvalidYieldThreshold, c.Scheduler.YieldThreshold)
	}

	if c.Scheduler.AsyncThreshold < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidAsyncThreshold, c.Scheduler.AsyncThreshold)
	}

	if err := c.SortThresholds().Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSortThresholds, err)
	}

	if _, err := language.Parse(c.Sort.Locale); err != nil {
		return fmt.Errorf("%w: %q: %w", ErrInvalidLocale, c.Sort.Locale, err)
	}

	if _, err := parseLevel(c.Logging.Level); err != nil {
		return err
	}

	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("%w: %q", ErrInvalidLogFormat, c.Logging.Format)
	}

	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("%w: %g", ErrInvalidSampleRatio, c.Telemetry.SampleRatio)
	}

	return nil
}

// SortThresholds returns the merge sort thresholds.
func (c *Config) SortThresholds() mergesort.Thresholds {
	return mergesort.Thresholds{
		Insertion:  c.Sort.Insertion,
		Sequential: c.Sort.Sequential,
		Merge:      c.Sort.Merge,
	}
}

// Locale returns the collation locale. Invalid values fall back to
// language.Und; Validate reports them.
func (c *Config) Locale() language.Tag {
	tag, err := language.Parse(c.Sort.Locale)
	if err != nil {
		return language.Und
	}

	return tag
}

// LogLevel returns the configured slog level.
func (c *Config) LogLevel() slog.Level {
	level, err := parseLevel(c.Logging.Level)
	if err != nil {
		return slog.LevelInfo
	}

	return level
}

// Observability converts the logging and telemetry sections.
func (c *Config) Observability(mode observability.AppMode, version string) observability.Config {
	oc := observability.DefaultConfig()

	oc.ServiceName = c.Telemetry.ServiceName
	oc.ServiceVersion = version
	oc.Environment = c.Telemetry.Environment
	oc.Mode = mode
	oc.OTLPEndpoint = c.Telemetry.OTLPEndpoint
	oc.OTLPHeaders = observability.ParseOTLPHeaders(c.Telemetry.OTLPHeaders)
	oc.OTLPInsecure = c.Telemetry.OTLPInsecure
	oc.SampleRatio = c.Telemetry.SampleRatio
	oc.LogLevel = c.LogLevel()
	oc.LogJSON = strings.EqualFold(c.Logging.Format, "json")

	if c.Telemetry.ShutdownTimeout > 0 {
		oc.ShutdownTimeout = c.Telemetry.ShutdownTimeout
	}

	return oc
}

// ViewOptions translates the sort, scheduler and engine sections into view
// options.
func ViewOptions[T comparable](c *Config) []view.Option[T] {
	return []view.Option[T]{
		view.WithParallelSort[T](c.Sort.Parallel),
		view.WithSortThresholds[T](c.SortThresholds()),
		view.WithYieldThreshold[T](c.Scheduler.YieldThreshold),
		view.WithAsyncThreshold[T](c.Scheduler.AsyncThreshold),
		view.WithCrossContext[T](c.Engine.CrossContext),
		view.WithCrossContextReads[T](c.Engine.CrossContextReads),
	}
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level

	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("%w: %q", ErrInvalidLogLevel, s)
	}

	return level, nil
}
