// Copyright (c) 2025 Simon Lapacek
// SPDX-License-Identifier: MIT

package result

// Outcome is the batch-level verdict. Individual exhausted items never turn
// into an error; they only move the batch to partial or failed.
type Outcome string

const (
	OutcomeSuccess  Outcome = "success"
	OutcomePartial  Outcome = "partial"
	OutcomeFailed   Outcome = "failed"
	OutcomeCanceled Outcome = "canceled"
)
