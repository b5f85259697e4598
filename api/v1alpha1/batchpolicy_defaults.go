// Copyright (c) 2025 Simon Lapacek
// SPDX-License-Identifier: MIT

package v1alpha1

import (
	"errors"
	"fmt"
	"time"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

const (
	DefaultMaxConcurrency = 3
	DefaultAttemptTimeout = 5 * time.Second
	DefaultMaxRetry       = 3
	DefaultBatchSize      = 10
)

// DefaultSpec returns a spec with every field defaulted.
func DefaultSpec() BatchPolicySpec {
	spec := BatchPolicySpec{}
	spec.Default()
	return spec
}

// Default fills zero fields in place.
func (s *BatchPolicySpec) Default() {
	if s.MaxConcurrency == 0 {
		s.MaxConcurrency = DefaultMaxConcurrency
	}
	if s.AttemptTimeout.Duration == 0 {
		s.AttemptTimeout = metav1.Duration{Duration: DefaultAttemptTimeout}
	}
	if s.MaxRetry == 0 {
		s.MaxRetry = DefaultMaxRetry
	}
	if s.BatchSize == 0 {
		s.BatchSize = DefaultBatchSize
	}
	if s.Backoff != nil && s.Backoff.Factor == 0 {
		s.Backoff.Factor = 2
	}
	if s.RateLimit != nil && s.RateLimit.Burst == 0 {
		s.RateLimit.Burst = 1
	}
}

func (s BatchPolicySpec) Validate() error {
	var errs []error
	if s.MaxConcurrency < 1 {
		errs = append(errs, fmt.Errorf("spec.maxConcurrency: must be >= 1, got %d", s.MaxConcurrency))
	}
	if s.AttemptTimeout.Duration <= 0 {
		errs = append(errs, fmt.Errorf("spec.attemptTimeout: must be > 0, got %s", s.AttemptTimeout.Duration))
	}
	if s.MaxRetry < 1 {
		errs = append(errs, fmt.Errorf("spec.maxRetry: must be >= 1, got %d", s.MaxRetry))
	}
	if s.BatchSize < 0 {
		errs = append(errs, fmt.Errorf("spec.batchSize: must be >= 0, got %d", s.BatchSize))
	}
	if b := s.Backoff; b != nil {
		if b.Initial.Duration <= 0 {
			errs = append(errs, fmt.Errorf("spec.backoff.initial: must be > 0, got %s", b.Initial.Duration))
		}
		if b.Factor < 0 {
			errs = append(errs, fmt.Errorf("spec.backoff.factor: must be >= 0, got %v", b.Factor))
		}
		if b.Jitter < 0 {
			errs = append(errs, fmt.Errorf("spec.backoff.jitter: must be >= 0, got %v", b.Jitter))
		}
		if b.Cap.Duration < 0 {
			errs = append(errs, fmt.Errorf("spec.backoff.cap: must be >= 0, got %s", b.Cap.Duration))
		}
	}
	if r := s.RateLimit; r != nil {
		if r.AttemptsPerSecond <= 0 {
			errs = append(errs, fmt.Errorf("spec.rateLimit.attemptsPerSecond: must be > 0, got %v", r.AttemptsPerSecond))
		}
		if r.Burst < 0 {
			errs = append(errs, fmt.Errorf("spec.rateLimit.burst: must be >= 0, got %d", r.Burst))
		}
	}
	return errors.Join(errs...)
}
