// Copyright (c) 2025 Simon Lapacek
// SPDX-License-Identifier: MIT

package v1alpha1

import (
	"strings"
	"testing"
	"time"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

func TestDefaultSpec_Values(t *testing.T) {
	spec := DefaultSpec()

	if spec.MaxConcurrency != 3 || spec.MaxRetry != 3 || spec.BatchSize != 10 {
		t.Fatalf("unexpected defaults: %+v", spec)
	}
	if spec.AttemptTimeout.Duration != 5*time.Second {
		t.Fatalf("expected 5s attempt timeout, got %s", spec.AttemptTimeout.Duration)
	}
	if spec.Backoff != nil {
		t.Fatalf("expected no backoff by default")
	}
	if err := spec.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestDefault_KeepsExplicitValues(t *testing.T) {
	spec := BatchPolicySpec{
		MaxConcurrency: 7,
		AttemptTimeout: metav1.Duration{Duration: time.Second},
		Backoff:        &Backoff{Initial: metav1.Duration{Duration: time.Millisecond}},
		RateLimit:      &RateLimit{AttemptsPerSecond: 10},
	}
	spec.Default()

	if spec.MaxConcurrency != 7 {
		t.Fatalf("maxConcurrency overwritten: %d", spec.MaxConcurrency)
	}
	if spec.AttemptTimeout.Duration != time.Second {
		t.Fatalf("attemptTimeout overwritten: %s", spec.AttemptTimeout.Duration)
	}
	if spec.Backoff.Factor != 2 {
		t.Fatalf("expected backoff factor defaulted to 2, got %v", spec.Backoff.Factor)
	}
	if spec.RateLimit.Burst != 1 {
		t.Fatalf("expected rate limit burst defaulted to 1, got %d", spec.RateLimit.Burst)
	}
}

func TestValidate_ReportsEveryField(t *testing.T) {
	spec := BatchPolicySpec{
		MaxConcurrency: 0,
		MaxRetry:       -1,
		BatchSize:      -2,
		Backoff:        &Backoff{Jitter: -1},
		RateLimit:      &RateLimit{Burst: -1},
	}

	err := spec.Validate()
	if err == nil {
		t.Fatalf("expected validation error")
	}
	for _, field := range []string{
		"spec.maxConcurrency",
		"spec.attemptTimeout",
		"spec.maxRetry",
		"spec.batchSize",
		"spec.backoff.initial",
		"spec.backoff.jitter",
		"spec.rateLimit.attemptsPerSecond",
		"spec.rateLimit.burst",
	} {
		if !strings.Contains(err.Error(), field) {
			t.Fatalf("expected %s in error, got %q", field, err)
		}
	}
}
