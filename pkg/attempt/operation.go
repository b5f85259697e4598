// Copyright (c) 2025 Simon Lapacek
// SPDX-License-Identifier: MIT

package attempt

import (
	"context"
)

// Item identifies one unit of work in a batch.
type Item int

// Operation is the unreliable remote call being orchestrated. It may fail or
// outlive its context; the supervisor never waits for it past the deadline.
type Operation interface {
	Call(ctx context.Context, item Item) (string, error)
}

type OperationFunc func(ctx context.Context, item Item) (string, error)

func (f OperationFunc) Call(ctx context.Context, item Item) (string, error) {
	return f(ctx, item)
}
