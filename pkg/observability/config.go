// Package observability wires OpenTelemetry tracing, metrics and structured
// logging for the collview binaries and the view engine.
package observability

import (
	"log/slog"
	"time"
)

// AppMode identifies how the binary was launched.
type AppMode string

const (
	// ModeCLI is a plain command invocation.
	ModeCLI AppMode = "cli"
	// ModeBench is the benchmark driver.
	ModeBench AppMode = "bench"
	// ModeVerify is the scenario verifier.
	ModeVerify AppMode = "verify"
)

const (
	defaultServiceName     = "collview"
	defaultShutdownTimeout = 5 * time.Second
)

// Config holds all observability configuration.
type Config struct {
	// ServiceName is the OTel resource service name.
	ServiceName string

	// ServiceVersion is the version of the running binary.
	ServiceVersion string

	// Environment is the deployment environment, e.g. "ci" or "dev".
	Environment string

	Mode AppMode

	// OTLPEndpoint is the OTLP gRPC collector address. Empty disables export
	// and installs no-op providers.
	OTLPEndpoint string

	OTLPHeaders  map[string]string
	OTLPInsecure bool

	// DebugTrace forces 100% trace sampling.
	DebugTrace bool

	// SampleRatio is the root sampling ratio. Zero samples everything.
	SampleRatio float64

	LogLevel slog.Level
	LogJSON  bool

	// ShutdownTimeout bounds the flush on shutdown.
	ShutdownTimeout time.Duration
}

// DefaultConfig returns a Config for zero-config startup.
func DefaultConfig() Config {
	return Config{
		ServiceName:     defaultServiceName,
		Mode:            ModeCLI,
		LogLevel:        slog.LevelInfo,
		ShutdownTimeout: defaultShutdownTimeout,
	}
}
