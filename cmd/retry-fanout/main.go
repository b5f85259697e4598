// Copyright (c) 2025 Simon Lapacek
// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"k8s.io/apimachinery/pkg/api/equality"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"

	"github.com/lapacek-labs/retry-fanout/api/v1alpha1"
	"github.com/lapacek-labs/retry-fanout/internal/orchestrator"
	"github.com/lapacek-labs/retry-fanout/pkg/attempt"
	"github.com/lapacek-labs/retry-fanout/pkg/config"
	"github.com/lapacek-labs/retry-fanout/pkg/logging"
	"github.com/lapacek-labs/retry-fanout/pkg/observability"
	"github.com/lapacek-labs/retry-fanout/pkg/observability/noop"
	"github.com/lapacek-labs/retry-fanout/pkg/observability/prom"
	"github.com/lapacek-labs/retry-fanout/pkg/operation"
)

const (
	modeSimulated = "simulated"
	modeHTTP      = "http"
)

type options struct {
	configPath string
	items      int
	mode       string
	baseURL    string
	seed       uint64
	failRate   float64
	minLatency time.Duration
	maxLatency time.Duration

	maxConcurrency int
	attemptTimeout time.Duration
	maxRetry       int

	reportPath  string
	force       bool
	metricsAddr string
	verbosity   int

	zap zap.Options
}

var setupLog = ctrl.Log.WithName("setup")

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	o := &options{zap: zap.Options{Development: true}}

	cmd := &cobra.Command{
		Use:          "retry-fanout",
		Short:        "Fan a batch of items out against an unreliable operation with bounded concurrency and retries",
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logging.InitLogging(&o.zap, o.verbosity, cmd.Flags().Changed("zap-log-level"))

			flags := make(map[string]any)
			cmd.Flags().VisitAll(func(f *pflag.Flag) {
				flags[f.Name] = f.Value
			})
			setupLog.Info("Flags processed", "flags", flags)

			return run(ctrl.SetupSignalHandler(), o)
		},
	}

	f := cmd.Flags()
	f.StringVar(&o.configPath, "config", "", "Path to a BatchPolicy YAML file. Defaults apply when empty or missing.")
	f.IntVar(&o.items, "items", 0, "Number of items to submit. Zero uses spec.batchSize.")
	f.StringVar(&o.mode, "mode", modeSimulated, "Operation to run: simulated or http.")
	f.StringVar(&o.baseURL, "base-url", operation.DefaultTodoBaseURL, "Todo API base URL used in http mode.")
	f.Uint64Var(&o.seed, "seed", 0, "Seed of the simulated operation. Zero picks one from the clock.")
	f.Float64Var(&o.failRate, "failure-rate", 0.5, "Failure probability of the simulated operation.")
	f.DurationVar(&o.minLatency, "min-latency", time.Second, "Minimum latency of the simulated operation.")
	f.DurationVar(&o.maxLatency, "max-latency", 3*time.Second, "Maximum latency of the simulated operation.")

	f.IntVar(&o.maxConcurrency, "max-concurrency", 0, "Overrides spec.maxConcurrency when > 0.")
	f.DurationVar(&o.attemptTimeout, "attempt-timeout", 0, "Overrides spec.attemptTimeout when > 0.")
	f.IntVar(&o.maxRetry, "max-retry", 0, "Overrides spec.maxRetry when > 0.")

	f.StringVar(&o.reportPath, "report", "", "Path of the YAML status report. A clean report for the same items skips the run.")
	f.BoolVar(&o.force, "force", false, "Run even when the report says the items already succeeded.")
	f.StringVar(&o.metricsAddr, "metrics-bind-address", "", "Address of the Prometheus /metrics endpoint, e.g. :8080. Empty disables it.")
	f.IntVarP(&o.verbosity, "verbosity", "v", logging.DEFAULT, "number for the log level verbosity")

	goFlags := flag.NewFlagSet("zap", flag.ContinueOnError)
	o.zap.BindFlags(goFlags)
	f.AddGoFlagSet(goFlags)

	return cmd
}

func run(ctx context.Context, o *options) error {
	policy, err := config.LoadOrDefault(o.configPath)
	if err != nil {
		setupLog.Error(err, "Failed to load batch policy", "path", o.configPath)
		return err
	}
	o.applyOverrides(&policy.Spec)
	if err := policy.Spec.Validate(); err != nil {
		setupLog.Error(err, "Invalid batch policy after flag overrides")
		return err
	}

	if err := restoreStatus(policy, o.reportPath); err != nil {
		setupLog.Error(err, "Failed to read previous report", "path", o.reportPath)
		return err
	}

	op, err := o.newOperation()
	if err != nil {
		setupLog.Error(err, "Failed to create operation", "mode", o.mode)
		return err
	}

	var recorder observability.Recorder = noop.Recorder{}
	var registry *prometheus.Registry
	if o.metricsAddr != "" {
		registry = prometheus.NewRegistry()
		registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		recorder = prom.NewRecorder(registry)
	}

	orch, err := orchestrator.New(policy.Spec, op,
		orchestrator.WithName(policy.Name),
		orchestrator.WithRecorder(recorder),
		orchestrator.WithLogLimiter(logging.NewLimiter(0)),
	)
	if err != nil {
		setupLog.Error(err, "Failed to create orchestrator")
		return err
	}

	if registry != nil {
		prom.RegisterInFlight(registry, orch.Limiter().InFlight)
		stop := serveMetrics(ctx, registry, o.metricsAddr)
		defer stop()
	}

	items := o.buildItems(int(policy.Spec.BatchSize))
	itemsHash := orchestrator.ItemsHash(items)
	if !o.force && orchestrator.ShouldSkip(policy, itemsHash) {
		setupLog.Info("Previous batch already succeeded for these items, skipping", "report", o.reportPath, "batch", policy.Status.LastBatch.ID)
		return nil
	}

	setupLog.Info("Batch starting", "items", len(items), "mode", o.mode)
	batch, decision, runErr := orch.RunBatch(ctx, items)
	if runErr == nil {
		fmt.Printf("results: %q\n", batch.Values())
	}

	orchestrator.ApplyStatus(policy, batch, itemsHash, decision, time.Now())
	if o.reportPath != "" {
		if err := config.WriteReport(o.reportPath, policy); err != nil {
			setupLog.Error(err, "Failed to write report", "path", o.reportPath)
			return errors.Join(runErr, err)
		}
	}

	if runErr != nil {
		setupLog.Error(runErr, "Batch abandoned")
		return runErr
	}
	setupLog.Info("Batch finished",
		"outcome", decision.Outcome,
		"exhausted", len(batch.Exhausted()),
		"elapsed", batch.Elapsed,
	)
	return nil
}

func (o *options) applyOverrides(spec *v1alpha1.BatchPolicySpec) {
	if o.maxConcurrency > 0 {
		spec.MaxConcurrency = int32(o.maxConcurrency)
	}
	if o.attemptTimeout > 0 {
		spec.AttemptTimeout = metav1.Duration{Duration: o.attemptTimeout}
	}
	if o.maxRetry > 0 {
		spec.MaxRetry = int32(o.maxRetry)
	}
	if o.items > 0 {
		spec.BatchSize = int32(o.items)
	}
}

// restoreStatus carries the previous report's status over and bumps the
// generation whenever the spec changed since that report.
func restoreStatus(policy *v1alpha1.BatchPolicy, path string) error {
	policy.SetGeneration(1)
	if path == "" {
		return nil
	}
	previous, err := config.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}

	generation := max(previous.GetGeneration(), 1)
	if !equality.Semantic.DeepEqual(previous.Spec, policy.Spec) {
		generation++
	}
	policy.SetGeneration(generation)
	policy.Status = previous.Status
	return nil
}

func (o *options) newOperation() (attempt.Operation, error) {
	switch o.mode {
	case modeSimulated:
		seed := o.seed
		if seed == 0 {
			seed = uint64(time.Now().UnixNano())
		}
		return operation.NewSimulated(o.minLatency, o.maxLatency, o.failRate, seed)
	case modeHTTP:
		return operation.NewTodoFetcher(&http.Client{}, o.baseURL), nil
	default:
		return nil, fmt.Errorf("unknown mode %q, want %s or %s", o.mode, modeSimulated, modeHTTP)
	}
}

// buildItems numbers items from 0, or from 1 in http mode where todo ids
// start at 1.
func (o *options) buildItems(n int) []attempt.Item {
	items := orchestrator.Range(n)
	if o.mode == modeHTTP {
		for i := range items {
			items[i]++
		}
	}
	return items
}

func serveMetrics(ctx context.Context, registry *prometheus.Registry, addr string) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	log := ctrl.Log.WithName("metrics")
	go func() {
		log.Info("Serving metrics", "address", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(err, "Metrics server failed")
		}
	}()

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}
}
