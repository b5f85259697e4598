// Copyright (c) 2025 Simon Lapacek
// SPDX-License-Identifier: MIT

package operation

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/lapacek-labs/retry-fanout/pkg/attempt"
)

// Simulated stands in for a flaky remote API: every call sleeps a random
// latency in [MinLatency, MaxLatency] and then fails with FailureRate.
type Simulated struct {
	minLatency  time.Duration
	maxLatency  time.Duration
	failureRate float64

	mu  sync.Mutex
	rng *rand.Rand
}

var _ attempt.Operation = (*Simulated)(nil)

func NewSimulated(minLatency, maxLatency time.Duration, failureRate float64, seed uint64) (*Simulated, error) {
	if minLatency < 0 || maxLatency < minLatency {
		return nil, fmt.Errorf("invalid latency range [%s, %s]", minLatency, maxLatency)
	}
	if failureRate < 0 || failureRate > 1 {
		return nil, fmt.Errorf("failure rate must be within [0, 1], got %v", failureRate)
	}
	return &Simulated{
		minLatency:  minLatency,
		maxLatency:  maxLatency,
		failureRate: failureRate,
		rng:         rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}, nil
}

func (s *Simulated) Call(ctx context.Context, item attempt.Item) (string, error) {
	latency, fail := s.draw()

	timer := time.NewTimer(latency)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-timer.C:
	}

	if fail {
		return "", fmt.Errorf("API error (n=%d)", item)
	}
	return fmt.Sprintf("result%d", item), nil
}

func (s *Simulated) draw() (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	latency := s.minLatency
	if spread := s.maxLatency - s.minLatency; spread > 0 {
		latency += time.Duration(s.rng.Int64N(int64(spread) + 1))
	}
	return latency, s.rng.Float64() < s.failureRate
}
