// Copyright (c) 2025 Simon Lapacek
// SPDX-License-Identifier: MIT

package admission

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Limiter caps the number of attempts executing at the same time.
// Waiters are not served in any particular order.
type Limiter struct {
	capacity int
	sem      *semaphore.Weighted
	rate     *rate.Limiter
	inFlight atomic.Int64
	peak     atomic.Int64
}

type Option func(*Limiter)

// WithRate additionally spaces permit grants to at most perSecond per second.
// A non-positive perSecond leaves grants unthrottled.
func WithRate(perSecond float64, burst int) Option {
	return func(l *Limiter) {
		if perSecond <= 0 {
			l.rate = nil
			return
		}
		l.rate = rate.NewLimiter(rate.Limit(perSecond), max(burst, 1))
	}
}

func NewLimiter(capacity int, opts ...Option) (*Limiter, error) {
	if capacity < 1 {
		return nil, fmt.Errorf("admission capacity must be >= 1, got %d", capacity)
	}
	l := &Limiter{
		capacity: capacity,
		sem:      semaphore.NewWeighted(int64(capacity)),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Acquire blocks until a permit is free and, with WithRate, until the rate
// allows another grant. It only fails when ctx ends first.
func (l *Limiter) Acquire(ctx context.Context) (*Permit, error) {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	if l.rate != nil {
		if err := l.rate.Wait(ctx); err != nil {
			l.sem.Release(1)
			return nil, err
		}
	}
	current := l.inFlight.Add(1)
	for {
		peak := l.peak.Load()
		if current <= peak || l.peak.CompareAndSwap(peak, current) {
			break
		}
	}
	return &Permit{limiter: l}, nil
}

func (l *Limiter) release() {
	l.inFlight.Add(-1)
	l.sem.Release(1)
}

func (l *Limiter) Capacity() int {
	return l.capacity
}

// InFlight is the number of permits currently held.
func (l *Limiter) InFlight() int {
	return int(l.inFlight.Load())
}

// Peak is the highest InFlight value observed since construction.
func (l *Limiter) Peak() int {
	return int(l.peak.Load())
}

// Permit is one unit of admitted capacity. Release may be called any number
// of times; only the first call returns capacity.
type Permit struct {
	limiter *Limiter
	once    sync.Once
}

func (p *Permit) Release() {
	if p == nil {
		return
	}
	p.once.Do(p.limiter.release)
}
