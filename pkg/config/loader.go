package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// configName is the config file name without extension.
const configName = ".collview"

// configType is the config file format.
const configType = "yaml"

// envPrefix is the environment variable prefix.
const envPrefix = "COLLVIEW"

// envKeySeparator replaces "." in nested keys for environment lookups.
const envKeySeparator = "_"

// LoadConfig loads configuration from defaults, a config file and the
// environment, in increasing priority. With an empty configPath the file is
// searched as .collview.yaml in the working directory and $HOME; a missing
// file is not an error.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	applyDefaults(v)

	v.SetConfigType(configType)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", envKeySeparator))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName(configName)
		v.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(home)
		}
	}

	readErr := v.ReadInConfig()
	if readErr != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(readErr, &notFound) {
			return nil, fmt.Errorf("read config: %w", readErr)
		}
	}

	var cfg Config

	unmarshalErr := v.Unmarshal(&cfg)
	if unmarshalErr != nil {
		return nil, fmt.Errorf("unmarshal config: %w", unmarshalErr)
	}

	validateErr := cfg.Validate()
	if validateErr != nil {
		return nil, fmt.Errorf("validate config: %w", validateErr)
	}

	return &cfg, nil
}

func applyDefaults(v *viper.Viper) {
	v.SetDefault("sort.parallel", DefaultSortParallel)
	v.SetDefault("sort.insertion", DefaultSortInsertion)
	v.SetDefault("sort.sequential", DefaultSortSequential)
	v.SetDefault("sort.merge", DefaultSortMerge)
	v.SetDefault("sort.locale", DefaultSortLocale)

	v.SetDefault("scheduler.yield_threshold", DefaultYieldThreshold)
	v.SetDefault("scheduler.async_threshold", DefaultAsyncThreshold)

	v.SetDefault("engine.cross_context", DefaultCrossContext)
	v.SetDefault("engine.cross_context_reads", DefaultCrossContextReads)

	v.SetDefault("logging.level", DefaultLogLevel)
	v.SetDefault("logging.format", DefaultLogFormat)

	v.SetDefault("telemetry.service_name", DefaultServiceName)
	v.SetDefault("telemetry.environment", "")
	v.SetDefault("telemetry.otlp_endpoint", "")
	v.SetDefault("telemetry.otlp_headers", "")
	v.SetDefault("telemetry.otlp_insecure", false)
	v.SetDefault("telemetry.sample_ratio", DefaultSampleRatio)
	v.SetDefault("telemetry.shutdown_timeout", DefaultShutdownTimeout)
	v.SetDefault("telemetry.metrics_addr", "")
}
