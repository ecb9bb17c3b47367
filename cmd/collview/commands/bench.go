package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/metric"

	"github.com/Sumatoshi-tech/collview/pkg/config"
	"github.com/Sumatoshi-tech/collview/pkg/observability"
)

// ErrBenchMismatch is returned when the maintained view differs from a full
// recompute at the end of a bench run.
var ErrBenchMismatch = errors.New("bench: view does not match recompute")

// ErrBenchArgs reports a negative size, edit or writer count.
var ErrBenchArgs = errors.New("bench: size, edits and writers must not be negative")

const (
	defaultBenchSize  = 100_000
	defaultBenchEdits = 10_000

	readHeaderTimeout = 5 * time.Second
)

type benchOptions struct {
	workload

	seed        int64
	metricsAddr string
	hold        time.Duration
	noColor     bool
}

// NewBenchCommand runs a random edit workload against a view.
func NewBenchCommand() *cobra.Command {
	opts := benchOptions{workload: workload{size: defaultBenchSize, edits: defaultBenchEdits}}

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Run a random edit workload against a view and report timings",
		Long: `Build a view over random integers, apply random single-item edits, force a
full refresh and check the result against a recompute.

With --writers the edits come from that many goroutines and the view runs in
cross-context mode. Engine settings come from the config file.

Examples:
  collview bench --size 1000000 --edits 50000
  collview bench --writers 4 --metrics-addr :9464 --hold 30s`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBench(cmd, opts)
		},
	}

	cmd.Flags().IntVar(&opts.size, "size", defaultBenchSize, "initial source length")
	cmd.Flags().IntVar(&opts.edits, "edits", defaultBenchEdits, "number of random edits")
	cmd.Flags().IntVar(&opts.writers, "writers", 0, "edit from this many goroutines (0 = on the consumer loop)")
	cmd.Flags().Int64Var(&opts.seed, "seed", 1, "random seed")
	cmd.Flags().BoolVar(&opts.filter, "filter", true, "keep even values only")
	cmd.Flags().BoolVar(&opts.sort, "sort", true, "sort ascending")
	cmd.Flags().StringVar(&opts.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (overrides telemetry.metrics_addr)")
	cmd.Flags().DurationVar(&opts.hold, "hold", 0, "keep the metrics endpoint up this long after the run")
	cmd.Flags().BoolVar(&opts.noColor, "no-color", false, "disable colored output")

	return cmd
}

func runBench(cmd *cobra.Command, opts benchOptions) error {
	setColor(opts.noColor)

	if opts.size < 0 || opts.edits < 0 || opts.writers < 0 {
		return ErrBenchArgs
	}

	e, err := setup(cmd, observability.ModeBench)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	defer e.close(ctx)

	addr := opts.metricsAddr
	if addr == "" {
		addr = e.cfg.Telemetry.MetricsAddr
	}

	meter := e.providers.Meter

	if addr != "" {
		promMeter, stop, err := serveMetrics(ctx, e, addr)
		if err != nil {
			return err
		}

		defer stop()

		meter = promMeter
	}

	metrics, err := observability.NewViewMetrics(meter)
	if err != nil {
		return err
	}

	if _, err := observability.NewRuntimeMetrics(meter); err != nil {
		return err
	}

	opts.workload.seed = uint64(opts.seed) //nolint:gosec // any seed is fine

	report, err := runWorkload(ctx, opts.workload, metrics, e.logger, config.ViewOptions[int](e.cfg))
	if err != nil {
		return err
	}

	printReport(cmd.OutOrStdout(), opts.workload, report)

	if addr != "" && opts.hold > 0 {
		e.logger.InfoContext(ctx, "bench: holding metrics endpoint", "addr", addr, "for", opts.hold)

		select {
		case <-time.After(opts.hold):
		case <-ctx.Done():
		}
	}

	if !report.matches {
		return ErrBenchMismatch
	}

	return nil
}

func serveMetrics(ctx context.Context, e *env, addr string) (metric.Meter, func(), error) {
	mp, handler, err := observability.PrometheusProvider()
	if err != nil {
		return nil, nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: readHeaderTimeout}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			e.logger.ErrorContext(ctx, "bench: metrics server failed", "addr", addr, "error", err)
		}
	}()

	e.logger.InfoContext(ctx, "bench: serving metrics", "addr", addr)

	stop := func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), readHeaderTimeout)
		defer cancel()

		_ = srv.Shutdown(shutdownCtx)
		_ = mp.Shutdown(shutdownCtx)
	}

	return mp.Meter(observability.InstrumentationName), stop, nil
}

func printReport(out io.Writer, w workload, r *benchReport) {
	tw := table.NewWriter()
	tw.SetOutputMirror(out)
	tw.SetStyle(table.StyleLight)
	tw.AppendHeader(table.Row{"Phase", "Ops", "Duration", "Ops/s"})

	var total time.Duration

	for _, p := range r.phases {
		total += p.took

		rate := "-"
		if p.took > 0 {
			rate = humanize.Commaf(float64(int64(float64(p.ops) / p.took.Seconds())))
		}

		tw.AppendRow(table.Row{p.name, humanize.Comma(int64(p.ops)), p.took.Round(time.Microsecond), rate})
	}

	tw.AppendFooter(table.Row{"total", "", total.Round(time.Microsecond), ""})
	tw.Render()

	mode := "consumer loop"
	if w.writers > 0 {
		mode = fmt.Sprintf("%d writers, cross-context", w.writers)
	}

	fmt.Fprintf(out, "source %s items, view %s items, edits from %s\n",
		humanize.Comma(int64(w.size)), humanize.Comma(int64(r.viewLen)), mode)
	fmt.Fprintf(out, "translated %s edits (%s changed the view), %d recomputes, %d yields, %d superseded\n",
		humanize.Comma(r.edits), humanize.Comma(r.applied), r.recomputes, r.yields, r.superseded)
	if lat := r.recomputeLatency; lat.Count > 0 {
		fmt.Fprintf(out, "recompute latency p50 %s, p95 %s, max %s\n",
			lat.P50.Round(time.Microsecond), lat.P95.Round(time.Microsecond), lat.Max.Round(time.Microsecond))
	}

	fmt.Fprintf(out, "allocated %s\n", humanize.Bytes(r.heapDelta))

	if r.matches {
		color.New(color.FgGreen).Fprintln(out, "view matches full recompute")
	} else {
		color.New(color.FgRed).Fprintln(out, "view differs from full recompute")
	}
}
