// Copyright (c) 2025 Simon Lapacek
// SPDX-License-Identifier: MIT

package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"k8s.io/apimachinery/pkg/util/wait"
	logf "sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/lapacek-labs/retry-fanout/pkg/attempt"
	"github.com/lapacek-labs/retry-fanout/pkg/errclass"
	"github.com/lapacek-labs/retry-fanout/pkg/observability"
	"github.com/lapacek-labs/retry-fanout/pkg/observability/noop"
)

type State string

const (
	StateAttempting State = "attempting"
	StateSucceeded  State = "succeeded"
	StateExhausted  State = "exhausted"
)

// ItemResult is the terminal result of one item.
type ItemResult struct {
	Item     attempt.Item
	Value    string
	State    State
	Attempts int
	// LastErr and Reason describe the last failed attempt; both are empty
	// when the item succeeded.
	LastErr error
	Reason  errclass.ErrorReason
}

func (r ItemResult) Exhausted() bool {
	return r.State == StateExhausted
}

// Sentinel is the value reported for an item whose attempts all failed.
func Sentinel(item attempt.Item) string {
	return fmt.Sprintf("[%d] ERROR", item)
}

type Options struct {
	// MaxRetry is the total number of attempts per item.
	MaxRetry int
	// Backoff delays the attempts after the first one. Nil retries immediately.
	Backoff        *wait.Backoff
	Recorder       observability.Recorder
	NotFoundPolicy errclass.NotFoundPolicy
}

type Driver struct {
	supervisor     *attempt.Supervisor
	maxRetry       int
	backoff        *wait.Backoff
	recorder       observability.Recorder
	notFoundPolicy errclass.NotFoundPolicy
}

func NewDriver(supervisor *attempt.Supervisor, opts Options) (*Driver, error) {
	if supervisor == nil {
		return nil, errors.New("retry driver requires a supervisor")
	}
	if opts.MaxRetry < 1 {
		return nil, fmt.Errorf("max retry must be >= 1, got %d", opts.MaxRetry)
	}
	recorder := opts.Recorder
	if recorder == nil {
		recorder = noop.Recorder{}
	}
	return &Driver{
		supervisor:     supervisor,
		maxRetry:       opts.MaxRetry,
		backoff:        opts.Backoff,
		recorder:       recorder,
		notFoundPolicy: opts.NotFoundPolicy,
	}, nil
}

func (d *Driver) MaxRetry() int {
	return d.maxRetry
}

// Run drives one item to Succeeded or Exhausted. Exhaustion is a normal
// result carrying Sentinel(item); the error is only set when ctx ends, in
// which case no result is produced.
func (d *Driver) Run(ctx context.Context, op attempt.Operation, item attempt.Item) (ItemResult, error) {
	logger := logf.FromContext(ctx).WithValues("item", item)

	var backoff wait.Backoff
	if d.backoff != nil {
		backoff = *d.backoff
		if backoff.Steps < 1 {
			backoff.Steps = d.maxRetry
		}
	}

	res := ItemResult{Item: item, State: StateAttempting}
	for i := 1; i <= d.maxRetry; i++ {
		out, err := d.supervisor.Supervise(ctx, op, item)
		if err != nil {
			return ItemResult{}, err
		}
		res.Attempts = i

		if out.Succeeded() {
			d.recorder.RecordAttempt(observability.Attempt{Kind: out.Kind, Number: i}, out.Latency)
			res.State = StateSucceeded
			res.Value = out.Value
			res.LastErr = nil
			res.Reason = ""
			d.recorder.RecordItem(observability.Item{State: observability.StateSucceeded, Attempts: i})
			logger.V(1).Info("Attempt succeeded", "attempt", i, "latency", out.Latency)
			return res, nil
		}

		kind, reason := errclass.ClassifyError(out.Err, d.notFoundPolicy)
		d.recorder.RecordAttempt(observability.Attempt{Kind: out.Kind, Reason: reason, Number: i}, out.Latency)
		res.LastErr = out.Err
		res.Reason = reason

		if out.Kind == attempt.KindTimeout {
			logger.Info("Attempt timed out",
				"attempt", i,
				"maxRetry", d.maxRetry,
				"timeout", d.supervisor.Timeout(),
			)
		} else {
			logger.Info("Attempt failed",
				"attempt", i,
				"maxRetry", d.maxRetry,
				"kind", kind,
				"reason", reason,
				"error", out.Err.Error(),
			)
		}

		if i < d.maxRetry && d.backoff != nil {
			if err := sleep(ctx, backoff.Step()); err != nil {
				return ItemResult{}, err
			}
		}
	}

	res.State = StateExhausted
	res.Value = Sentinel(item)
	d.recorder.RecordItem(observability.Item{State: observability.StateExhausted, Attempts: res.Attempts})
	logger.Error(res.LastErr, "Item exhausted retries", "attempts", res.Attempts, "reason", res.Reason)
	return res, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
