package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sourcegraph/conc"
	"github.com/spf13/cobra"

	"github.com/Swind/go-async-task/config"
	"github.com/Swind/go-async-task/core"
	obs "github.com/Swind/go-async-task/observability/prometheus"
)

type runOptions struct {
	mode        string
	tasks       int
	steps       int
	stepDelay   time.Duration
	cancelEvery int
	cancelAfter time.Duration
	metricsAddr string
	linger      time.Duration
	watch       bool
}

func newRunCmd(root *rootOptions) *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a synthetic AsyncTask workload",
		Long: `Run submits --tasks AsyncTasks, each sleeping through --steps steps and
publishing its progress to the home goroutine. Every --cancel-every'th task is
cancelled --cancel-after it was submitted. Submissions the pool refuses are
counted as rejected.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorkload(cmd, root, opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.mode, "mode", "", "execution mode override: parallel or serial")
	f.IntVar(&opts.tasks, "tasks", 10, "number of tasks to submit")
	f.IntVar(&opts.steps, "steps", 4, "progress steps per task")
	f.DurationVar(&opts.stepDelay, "step-delay", 50*time.Millisecond, "sleep per step")
	f.IntVar(&opts.cancelEvery, "cancel-every", 0, "cancel every Nth task (0 disables)")
	f.DurationVar(&opts.cancelAfter, "cancel-after", 75*time.Millisecond, "delay before cancelling")
	f.StringVar(&opts.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (overrides config)")
	f.DurationVar(&opts.linger, "linger", 0, "keep the metrics endpoint up this long after the workload")
	f.BoolVar(&opts.watch, "watch", false, "apply execution mode changes from the config file while running")
	return cmd
}

type tally struct {
	completed atomic.Int64
	cancelled atomic.Int64
	rejected  atomic.Int64
}

func runWorkload(cmd *cobra.Command, root *rootOptions, opts *runOptions) error {
	loader := config.NewLoader(root.configFile)
	cfg, err := loader.Load()
	if err != nil {
		return err
	}
	if opts.mode != "" {
		mode, err := core.ParseExecutionMode(opts.mode)
		if err != nil {
			return err
		}
		cfg.Mode = mode
	}
	if opts.metricsAddr != "" {
		cfg.Metrics.Enabled = true
		cfg.Metrics.Address = opts.metricsAddr
	}

	logger := cfg.NewLogger(cmd.ErrOrStderr())
	out := &lockedWriter{w: cmd.OutOrStdout()}

	var metrics core.Metrics
	var reg *prom.Registry
	if cfg.Metrics.Enabled {
		reg = prom.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector())
		exporter, err := obs.NewMetricsExporter(cfg.Metrics.Namespace, reg, obs.ExporterOptions{})
		if err != nil {
			return fmt.Errorf("failed to create metrics exporter: %w", err)
		}
		metrics = exporter
	}

	ec := core.NewExecutionContext(cfg.ExecutionContextConfig(logger, metrics))

	if reg != nil {
		poller, err := obs.NewSnapshotPoller(cfg.Metrics.Namespace, reg, cfg.Metrics.PollInterval)
		if err != nil {
			_ = ec.Shutdown(context.Background())
			return fmt.Errorf("failed to create snapshot poller: %w", err)
		}
		poller.AddExecutionContext(ec)
		poller.Start(cmd.Context())
		defer poller.Stop()

		stop, err := serveMetrics(cfg.Metrics.Address, reg, logger)
		if err != nil {
			_ = ec.Shutdown(context.Background())
			return err
		}
		defer stop()
	}

	if opts.watch && loader.ConfigFile() != "" {
		loader.Watch(config.ApplyMode(ec, logger))
	}

	logger.Info("starting workload",
		core.F("tasks", opts.tasks), core.F("mode", ec.ExecutionMode()), core.F("pool", ec.ThreadPool().Name()))

	var t tally
	var wg conc.WaitGroup
	var submitErr error
	for i := 1; i <= opts.tasks && submitErr == nil; i++ {
		task := core.NewAsyncTask[int, int, int](ec, &stepper{id: i, delay: opts.stepDelay, out: out},
			core.WithName("stepper"), core.WithLogger(logger))

		if err := task.Execute(opts.steps); err != nil {
			if !errors.Is(err, core.ErrRejected) {
				submitErr = err
				break
			}
			t.rejected.Add(1)
			fmt.Fprintf(out, "task %d: rejected\n", i)
			continue
		}
		if opts.cancelEvery > 0 && i%opts.cancelEvery == 0 {
			time.AfterFunc(opts.cancelAfter, func() { task.Cancel(true) })
		}
		wg.Go(func() {
			_, err := task.Get()
			switch {
			case err == nil:
				t.completed.Add(1)
			case errors.Is(err, core.ErrCancelled):
				t.cancelled.Add(1)
			default:
				logger.Error("task failed", core.F("task", task.ID()), core.F("error", err))
			}
		})
	}
	wg.Wait()

	stats := ec.Stats()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := ec.Shutdown(ctx); err != nil {
		return err
	}
	if submitErr != nil {
		return submitErr
	}

	fmt.Fprintf(out, "completed=%d cancelled=%d rejected=%d mode=%s largest_pool=%d\n",
		t.completed.Load(), t.cancelled.Load(), t.rejected.Load(), stats.Mode, stats.Pool.LargestPoolSize)

	if reg != nil && opts.linger > 0 {
		select {
		case <-time.After(opts.linger):
		case <-cmd.Context().Done():
		}
	}
	return nil
}

// serveMetrics starts a /metrics endpoint and returns its shutdown func.
func serveMetrics(addr string, reg *prom.Registry, logger core.Logger) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	server := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped", core.F("error", err))
		}
	}()
	logger.Info("serving metrics", core.F("addr", ln.Addr().String()))

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = server.Shutdown(ctx)
	}, nil
}
