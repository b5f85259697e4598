// Copyright (c) 2025 Simon Lapacek
// SPDX-License-Identifier: MIT

package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"k8s.io/apimachinery/pkg/util/wait"
	logf "sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/lapacek-labs/retry-fanout/api/v1alpha1"
	"github.com/lapacek-labs/retry-fanout/pkg/admission"
	"github.com/lapacek-labs/retry-fanout/pkg/attempt"
	"github.com/lapacek-labs/retry-fanout/pkg/errclass"
	"github.com/lapacek-labs/retry-fanout/pkg/logging"
	"github.com/lapacek-labs/retry-fanout/pkg/observability"
	"github.com/lapacek-labs/retry-fanout/pkg/observability/noop"
	"github.com/lapacek-labs/retry-fanout/pkg/result"
	"github.com/lapacek-labs/retry-fanout/pkg/retry"
)

const (
	ID = "retry-fanout"

	defaultMaxSamples = 5
)

type Option func(*Orchestrator)

func WithName(name string) Option {
	return func(o *Orchestrator) { o.name = name }
}

func WithRecorder(rec observability.Recorder) Option {
	return func(o *Orchestrator) { o.metrics = rec }
}

func WithLogLimiter(lim *logging.Limiter) Option {
	return func(o *Orchestrator) { o.logLimiter = lim }
}

func WithDecisionPolicy(p Policy) Option {
	return func(o *Orchestrator) { o.policy = p }
}

func WithNotFoundPolicy(p errclass.NotFoundPolicy) Option {
	return func(o *Orchestrator) { o.notFoundPolicy = p }
}

// Orchestrator runs batches of items against one operation. Every batch it
// runs shares the same admission limiter.
type Orchestrator struct {
	name           string
	spec           v1alpha1.BatchPolicySpec
	op             attempt.Operation
	limiter        *admission.Limiter
	coordinator    *Coordinator
	driver         *retry.Driver
	metrics        observability.Recorder
	logLimiter     *logging.Limiter
	policy         Policy
	notFoundPolicy errclass.NotFoundPolicy
}

func New(spec v1alpha1.BatchPolicySpec, op attempt.Operation, opts ...Option) (*Orchestrator, error) {
	if op == nil {
		return nil, errors.New("orchestrator requires an operation")
	}

	if spec.Backoff != nil {
		b := *spec.Backoff
		spec.Backoff = &b
	}
	if spec.RateLimit != nil {
		r := *spec.RateLimit
		spec.RateLimit = &r
	}
	spec.Default()
	if err := spec.Validate(); err != nil {
		return nil, fmt.Errorf("invalid batch policy: %w", err)
	}

	o := &Orchestrator{
		name:           ID,
		spec:           spec,
		op:             op,
		metrics:        noop.Recorder{},
		logLimiter:     logging.NewLimiter(0),
		policy:         DefaultPolicy(),
		notFoundPolicy: errclass.NotFoundAsConfig,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.metrics == nil {
		o.metrics = noop.Recorder{}
	}

	var limiterOpts []admission.Option
	if r := spec.RateLimit; r != nil {
		limiterOpts = append(limiterOpts, admission.WithRate(r.AttemptsPerSecond, int(r.Burst)))
	}
	limiter, err := admission.NewLimiter(int(spec.MaxConcurrency), limiterOpts...)
	if err != nil {
		return nil, err
	}
	supervisor, err := attempt.NewSupervisor(limiter, spec.AttemptTimeout.Duration)
	if err != nil {
		return nil, err
	}
	driver, err := retry.NewDriver(supervisor, retry.Options{
		MaxRetry:       int(spec.MaxRetry),
		Backoff:        toWaitBackoff(spec.Backoff, int(spec.MaxRetry)),
		Recorder:       o.metrics,
		NotFoundPolicy: o.notFoundPolicy,
	})
	if err != nil {
		return nil, err
	}

	o.limiter = limiter
	o.driver = driver
	o.coordinator = NewCoordinator(driver)
	return o, nil
}

func toWaitBackoff(b *v1alpha1.Backoff, steps int) *wait.Backoff {
	if b == nil {
		return nil
	}
	return &wait.Backoff{
		Duration: b.Initial.Duration,
		Factor:   b.Factor,
		Jitter:   b.Jitter,
		Steps:    steps,
		Cap:      b.Cap.Duration,
	}
}

func (o *Orchestrator) Spec() v1alpha1.BatchPolicySpec {
	return o.spec
}

// Limiter exposes the shared admission limiter, e.g. for an in-flight gauge.
func (o *Orchestrator) Limiter() *admission.Limiter {
	return o.limiter
}

// RunBatch fans items out and waits for every one of them. Batch.Values() is
// index aligned with items. The error is only set when ctx ends before the
// batch completes; the returned Batch is then empty and the decision is
// canceled.
func (o *Orchestrator) RunBatch(ctx context.Context, items []attempt.Item) (Batch, result.Decision, error) {
	batchID := uuid.NewString()
	logger := logf.FromContext(ctx).WithValues(
		"orchestrator", o.name,
		"operation", observability.OpBatch,
		"batch", batchID,
	)
	ctx = logf.IntoContext(ctx, logger)
	start := time.Now()

	logger.V(1).Info("Batch started",
		"items", len(items),
		"maxConcurrency", o.spec.MaxConcurrency,
		"attemptTimeout", o.spec.AttemptTimeout.Duration,
		"maxRetry", o.spec.MaxRetry,
	)

	batch, err := o.coordinator.Run(ctx, o.op, items)
	if err != nil {
		decision := result.Decision{
			Outcome: result.OutcomeCanceled,
			Reason:  result.ReasonCanceled,
			Msg:     "batch abandoned before every item finished",
			Err:     err,
		}
		o.metrics.RecordFanout(observability.Fanout{
			Outcome: decision.Outcome,
			Total:   len(items),
		}, time.Since(start))
		logger.Info("Batch canceled", "items", len(items), "error", err.Error())
		return Batch{}, decision, err
	}
	batch.ID = batchID

	observation := Observe(batch, defaultMaxSamples, o.notFoundPolicy)
	decision := o.policy.Decide(observation)

	o.metrics.RecordFanout(observability.Fanout{
		Outcome:   decision.Outcome,
		Total:     observation.Total,
		Succeeded: observation.Succeeded,
		Exhausted: observation.Exhausted,
	}, batch.Elapsed)

	logBatchIfAllowed(ctx, o.logLimiter, o.name, decision, observation)

	return batch, decision, nil
}

// RunRange runs the items 0..n-1.
func (o *Orchestrator) RunRange(ctx context.Context, n int) (Batch, result.Decision, error) {
	return o.RunBatch(ctx, Range(n))
}

func Range(n int) []attempt.Item {
	items := make([]attempt.Item, max(n, 0))
	for i := range items {
		items[i] = attempt.Item(i)
	}
	return items
}
