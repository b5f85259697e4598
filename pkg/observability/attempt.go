// Copyright (c) 2025 Simon Lapacek
// SPDX-License-Identifier: MIT

package observability

import (
	"github.com/lapacek-labs/retry-fanout/pkg/attempt"
	"github.com/lapacek-labs/retry-fanout/pkg/errclass"
	"github.com/lapacek-labs/retry-fanout/pkg/result"
)

// Attempt is one supervised call as seen by metrics.
type Attempt struct {
	Kind   attempt.Kind
	Reason errclass.ErrorReason
	Number int
}

type State string

const (
	StateSucceeded State = "succeeded"
	StateExhausted State = "exhausted"
)

// Item is the terminal state of one item.
type Item struct {
	State    State
	Attempts int
}

type Fanout struct {
	Outcome   result.Outcome
	Total     int
	Succeeded int
	Exhausted int
}

const (
	OpBatch   = "batch"
	OpAttempt = "attempt"
)
