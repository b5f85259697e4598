// Copyright (c) 2025 Simon Lapacek
// SPDX-License-Identifier: MIT

package attempt

import (
	"errors"
	"fmt"
	"time"
)

var ErrAttemptTimeout = errors.New("attempt deadline exceeded")

type Kind string

const (
	KindSuccess Kind = "success"
	KindTimeout Kind = "timeout"
	KindFailure Kind = "failure"
)

// Outcome is the result of exactly one supervised call.
type Outcome struct {
	Kind    Kind
	Value   string
	Err     error
	Latency time.Duration
}

func (o Outcome) Succeeded() bool {
	return o.Kind == KindSuccess
}

// PanicError is reported as a failure when the operation panics.
type PanicError struct {
	Item  Item
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("operation panicked for item %d: %v", e.Item, e.Value)
}
