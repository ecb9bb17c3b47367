// Package config loads collview settings from defaults, an optional YAML
// file and COLLVIEW_* environment variables.
package config

import (
	"time"

	"github.com/Sumatoshi-tech/collview/pkg/alg/mergesort"
	"github.com/Sumatoshi-tech/collview/pkg/view"
)

// Sort defaults.
const (
	DefaultSortParallel   = false
	DefaultSortInsertion  = mergesort.DefaultInsertionThreshold
	DefaultSortSequential = mergesort.DefaultSequentialThreshold
	DefaultSortMerge      = mergesort.DefaultMergeThreshold
	DefaultSortLocale     = "und"
)

// Scheduler defaults.
const (
	DefaultYieldThreshold = view.DefaultYieldThreshold
	DefaultAsyncThreshold = view.DefaultAsyncThreshold
)

// Engine defaults.
const (
	DefaultCrossContext      = false
	DefaultCrossContextReads = false
)

// Logging defaults.
const (
	DefaultLogLevel  = "info"
	DefaultLogFormat = "text"
)

// Telemetry defaults.
const (
	DefaultServiceName     = "collview"
	DefaultSampleRatio     = 0.0
	DefaultShutdownTimeout = 5 * time.Second
)
