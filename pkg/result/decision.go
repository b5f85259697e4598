// Copyright (c) 2025 Simon Lapacek
// SPDX-License-Identifier: MIT

package result

import (
	"time"
)

type Decision struct {
	// RetryAfter suggests when exhausted items are worth resubmitting.
	// Zero when nothing needs another batch.
	RetryAfter time.Duration
	Outcome    Outcome
	Reason     Reason
	Msg        string
	Err        error
}

// Resubmit reports whether the caller should run the exhausted items again.
func (d Decision) Resubmit() bool {
	return d.Err == nil && d.RetryAfter > 0
}
