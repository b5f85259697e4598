// Copyright (c) 2025 Simon Lapacek
// SPDX-License-Identifier: MIT

package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lapacek-labs/retry-fanout/pkg/attempt"
	"github.com/lapacek-labs/retry-fanout/pkg/retry"
)

// Batch holds one result per submitted item, in submission order.
type Batch struct {
	ID        string
	Items     []retry.ItemResult
	StartedAt time.Time
	Elapsed   time.Duration
}

func (b Batch) Len() int {
	return len(b.Items)
}

// Values renders every item as its success value or its sentinel.
func (b Batch) Values() []string {
	out := make([]string, len(b.Items))
	for i, res := range b.Items {
		out[i] = res.Value
	}
	return out
}

// Exhausted lists the items that ran out of attempts, in submission order.
func (b Batch) Exhausted() []attempt.Item {
	var out []attempt.Item
	for _, res := range b.Items {
		if res.Exhausted() {
			out = append(out, res.Item)
		}
	}
	return out
}

func (b Batch) Attempts() int {
	total := 0
	for _, res := range b.Items {
		total += res.Attempts
	}
	return total
}

var ErrBatchAbandoned = errors.New("batch abandoned")

// Coordinator drives every item of a batch concurrently.
type Coordinator struct {
	driver *retry.Driver
}

func NewCoordinator(driver *retry.Driver) *Coordinator {
	return &Coordinator{driver: driver}
}

// Run waits for every item to reach a terminal state. Exhausted items are
// ordinary results and never stop their siblings. When ctx ends first, Run
// still waits for every in-flight attempt to hand back its permit and then
// returns ErrBatchAbandoned without any partial results.
func (c *Coordinator) Run(ctx context.Context, op attempt.Operation, items []attempt.Item) (Batch, error) {
	start := time.Now()
	results := make([]retry.ItemResult, len(items))

	g, gctx := errgroup.WithContext(ctx)
	for i, item := range items {
		g.Go(func() error {
			res, err := c.driver.Run(gctx, op, item)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Batch{}, fmt.Errorf("%w: %w", ErrBatchAbandoned, err)
	}

	return Batch{
		Items:     results,
		StartedAt: start,
		Elapsed:   time.Since(start),
	}, nil
}
