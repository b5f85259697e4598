// Copyright (c) 2025 Simon Lapacek
// SPDX-License-Identifier: MIT

package attempt

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/lapacek-labs/retry-fanout/pkg/admission"
)

// Supervisor runs one attempt under an admission permit and a deadline.
type Supervisor struct {
	limiter *admission.Limiter
	timeout time.Duration
}

func NewSupervisor(limiter *admission.Limiter, timeout time.Duration) (*Supervisor, error) {
	if limiter == nil {
		return nil, errors.New("supervisor requires an admission limiter")
	}
	if timeout <= 0 {
		return nil, fmt.Errorf("attempt timeout must be > 0, got %s", timeout)
	}
	return &Supervisor{limiter: limiter, timeout: timeout}, nil
}

func (s *Supervisor) Timeout() time.Duration {
	return s.timeout
}

// Supervise returns the attempt outcome. The error is non-nil only when ctx
// ended; per-attempt failures and timeouts are reported in the Outcome.
//
// The permit is held from before the call starts until Supervise returns.
// A call still running after the deadline is abandoned: its context is
// canceled and whatever it eventually returns is dropped.
func (s *Supervisor) Supervise(ctx context.Context, op Operation, item Item) (Outcome, error) {
	permit, err := s.limiter.Acquire(ctx)
	if err != nil {
		return Outcome{}, err
	}
	defer permit.Release()

	start := time.Now()
	attemptCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	// Buffered so an abandoned call can always deliver and exit.
	done := make(chan Outcome, 1)
	go func() {
		done <- call(attemptCtx, op, item)
	}()

	select {
	case out := <-done:
		out.Latency = time.Since(start)
		if out.Kind == KindSuccess {
			return out, nil
		}
		if err := ctx.Err(); err != nil {
			return Outcome{}, err
		}
		if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
			return Outcome{Kind: KindTimeout, Err: ErrAttemptTimeout, Latency: out.Latency}, nil
		}
		return out, nil
	case <-attemptCtx.Done():
		if err := ctx.Err(); err != nil {
			return Outcome{}, err
		}
		return Outcome{Kind: KindTimeout, Err: ErrAttemptTimeout, Latency: time.Since(start)}, nil
	}
}

func call(ctx context.Context, op Operation, item Item) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			out = Outcome{
				Kind: KindFailure,
				Err:  &PanicError{Item: item, Value: r, Stack: debug.Stack()},
			}
		}
	}()

	value, err := op.Call(ctx, item)
	if err != nil {
		return Outcome{Kind: KindFailure, Err: err}
	}
	return Outcome{Kind: KindSuccess, Value: value}
}
