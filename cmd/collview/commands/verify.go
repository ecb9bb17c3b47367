package commands

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/collview/pkg/config"
	"github.com/Sumatoshi-tech/collview/pkg/observability"
	"github.com/Sumatoshi-tech/collview/pkg/scenario"
)

// ErrVerifyFailed is returned when at least one scenario does not pass.
var ErrVerifyFailed = errors.New("scenario verification failed")

type verifyOptions struct {
	noColor bool
	quiet   bool
}

// NewVerifyCommand replays scenario files.
func NewVerifyCommand() *cobra.Command {
	var opts verifyOptions

	cmd := &cobra.Command{
		Use:   "verify <scenario.yaml>...",
		Short: "Replay scenarios and compare the view with a full recompute",
		Long: `Replay each scenario through a live view and check that the incrementally
maintained result equals a full filter and sort of the final source.

Examples:
  collview verify testdata/ranking.yaml
  collview schema > scenario.schema.json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerify(cmd, args, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.noColor, "no-color", false, "disable colored output")
	cmd.Flags().BoolVarP(&opts.quiet, "quiet", "q", false, "print failures only")

	return cmd
}

func runVerify(cmd *cobra.Command, paths []string, opts verifyOptions) error {
	setColor(opts.noColor)

	e, err := setup(cmd, observability.ModeVerify)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	defer e.close(ctx)

	metrics, err := observability.NewViewMetrics(e.providers.Meter)
	if err != nil {
		return err
	}

	runOpts := scenario.Options{
		Logger:      e.logger,
		Tracer:      e.providers.Tracer,
		Metrics:     metrics,
		ViewOptions: config.ViewOptions[scenario.Record](e.cfg),
	}

	out := cmd.OutOrStdout()
	failed := 0

	for _, path := range paths {
		sc, err := scenario.Load(path)
		if err != nil {
			return err
		}

		res, err := scenario.Run(ctx, sc, runOpts)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}

		if !res.Passed {
			failed++
		}

		if res.Passed && opts.quiet {
			continue
		}

		printResult(out, path, res)
	}

	if failed > 0 {
		return fmt.Errorf("%w: %d of %d", ErrVerifyFailed, failed, len(paths))
	}

	return nil
}

func printResult(out io.Writer, path string, res *scenario.Result) {
	if res.Passed {
		color.New(color.FgGreen).Fprintf(out, "PASS %s (%s, %d items, %d events)\n",
			path, res.Elapsed.Round(time.Microsecond), len(res.Items), res.Events)

		return
	}

	color.New(color.FgRed).Fprintf(out, "FAIL %s\n", path)

	if !res.Sorted {
		color.New(color.FgYellow).Fprintf(out, "  view is not ordered by the active sort\n")
	}

	for line := range strings.SplitSeq(strings.TrimSuffix(res.Diff, "\n"), "\n") {
		switch {
		case strings.HasPrefix(line, "- "):
			color.New(color.FgRed).Fprintf(out, "  %s\n", line)
		case strings.HasPrefix(line, "+ "):
			color.New(color.FgGreen).Fprintf(out, "  %s\n", line)
		case line != "":
			fmt.Fprintf(out, "  %s\n", line)
		}
	}
}
