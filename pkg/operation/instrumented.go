// Copyright (c) 2025 Simon Lapacek
// SPDX-License-Identifier: MIT

package operation

import (
	"context"
	"sync"

	"github.com/lapacek-labs/retry-fanout/pkg/attempt"
)

// Instrumented counts calls per item and tracks how many calls run at once.
// Calls abandoned after a timeout keep counting until they actually return.
type Instrumented struct {
	op attempt.Operation

	mu       sync.Mutex
	inFlight int
	peak     int
	calls    map[attempt.Item]int
}

var _ attempt.Operation = (*Instrumented)(nil)

func Instrument(op attempt.Operation) *Instrumented {
	return &Instrumented{op: op, calls: make(map[attempt.Item]int)}
}

func (i *Instrumented) Call(ctx context.Context, item attempt.Item) (string, error) {
	i.mu.Lock()
	i.inFlight++
	i.peak = max(i.peak, i.inFlight)
	i.calls[item]++
	i.mu.Unlock()

	defer func() {
		i.mu.Lock()
		i.inFlight--
		i.mu.Unlock()
	}()

	return i.op.Call(ctx, item)
}

func (i *Instrumented) Peak() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.peak
}

func (i *Instrumented) InFlight() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.inFlight
}

func (i *Instrumented) Calls(item attempt.Item) int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.calls[item]
}

func (i *Instrumented) TotalCalls() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	total := 0
	for _, n := range i.calls {
		total += n
	}
	return total
}
