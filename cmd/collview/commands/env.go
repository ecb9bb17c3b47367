// Package commands implements the collview subcommands.
package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/collview/pkg/config"
	"github.com/Sumatoshi-tech/collview/pkg/observability"
	"github.com/Sumatoshi-tech/collview/pkg/version"
)

// FlagConfig is the persistent flag naming the config file.
const FlagConfig = "config"

// env is what every command needs after startup.
type env struct {
	cfg       *config.Config
	providers observability.Providers
	logger    *slog.Logger
}

func setup(cmd *cobra.Command, mode observability.AppMode) (*env, error) {
	var path string
	if f := cmd.Flag(FlagConfig); f != nil {
		path = f.Value.String()
	}

	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, err
	}

	providers, err := observability.InitWithWriter(cfg.Observability(mode, version.Version), cmd.ErrOrStderr())
	if err != nil {
		return nil, fmt.Errorf("init observability: %w", err)
	}

	return &env{cfg: cfg, providers: providers, logger: providers.Logger}, nil
}

func (e *env) close(ctx context.Context) {
	if err := e.providers.Shutdown(context.WithoutCancel(ctx)); err != nil {
		e.logger.WarnContext(ctx, "telemetry shutdown failed", "error", err)
	}
}

func setColor(noColor bool) {
	if noColor {
		color.NoColor = true //nolint:reassign // library global
	}
}
