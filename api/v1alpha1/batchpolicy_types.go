// Copyright (c) 2025 Simon Lapacek
// SPDX-License-Identifier: MIT

package v1alpha1

import (
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

const (
	GroupVersion    = "fanout.lapacek-labs.org/v1alpha1"
	BatchPolicyKind = "BatchPolicy"
)

// BatchPolicySpec defines how a batch of items is fanned out against an
// unreliable operation.
type BatchPolicySpec struct {
	// maxConcurrency caps the number of attempts holding an admission permit.
	// +kubebuilder:validation:Minimum=1
	MaxConcurrency int32 `json:"maxConcurrency,omitempty"`

	// attemptTimeout is the deadline of a single attempt. Every retry gets a
	// fresh deadline.
	AttemptTimeout metav1.Duration `json:"attemptTimeout,omitempty"`

	// maxRetry is the total number of attempts per item, first one included.
	// +kubebuilder:validation:Minimum=1
	MaxRetry int32 `json:"maxRetry,omitempty"`

	// batchSize is the number of items submitted when the caller does not
	// provide its own list.
	// +kubebuilder:validation:Minimum=0
	BatchSize int32 `json:"batchSize,omitempty"`

	// backoff, when set, delays retries exponentially. Nil means retries
	// follow each other immediately.
	// +optional
	Backoff *Backoff `json:"backoff,omitempty"`

	// rateLimit, when set, also caps how fast attempts are admitted.
	// +optional
	RateLimit *RateLimit `json:"rateLimit,omitempty"`
}

type RateLimit struct {
	// attemptsPerSecond is the sustained admission rate.
	AttemptsPerSecond float64 `json:"attemptsPerSecond"`

	// burst is the number of attempts admitted back to back. Defaults to 1.
	// +optional
	Burst int32 `json:"burst,omitempty"`
}

type Backoff struct {
	// initial is the delay before the second attempt.
	Initial metav1.Duration `json:"initial"`

	// factor multiplies the delay after every retry. Values <= 1 keep it constant.
	// +optional
	Factor float64 `json:"factor,omitempty"`

	// jitter adds up to jitter*delay of random extra wait.
	// +optional
	Jitter float64 `json:"jitter,omitempty"`

	// cap bounds a single delay.
	// +optional
	Cap metav1.Duration `json:"cap,omitempty"`
}

// BatchPolicyStatus is the observed state of the last batch run.
type BatchPolicyStatus struct {
	Conditions []metav1.Condition `json:"conditions,omitempty"`

	// LastBatch summarizes the most recent completed batch.
	// +optional
	LastBatch *BatchSummary `json:"lastBatch,omitempty"`
}

type BatchSummary struct {
	ID        string          `json:"id"`
	StartedAt metav1.Time     `json:"startedAt"`
	Duration  metav1.Duration `json:"duration"`
	Total     int32           `json:"total"`
	Succeeded int32           `json:"succeeded"`
	Exhausted int32           `json:"exhausted"`
	Attempts  int32           `json:"attempts"`
	Outcome   string          `json:"outcome"`
	// ItemsHash identifies the submitted item list.
	ItemsHash string `json:"itemsHash,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// BatchPolicy is the file format consumed by the retry-fanout command.
type BatchPolicy struct {
	metav1.TypeMeta `json:",inline"`

	// +optional
	metav1.ObjectMeta `json:"metadata,omitzero"`

	// +required
	Spec BatchPolicySpec `json:"spec"`

	// +optional
	Status BatchPolicyStatus `json:"status,omitzero"`
}
