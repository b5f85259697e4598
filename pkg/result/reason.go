// Copyright (c) 2025 Simon Lapacek
// SPDX-License-Identifier: MIT

package result

type Reason string

const (
	ReasonCompleted      Reason = "Completed"
	ReasonTimeout        Reason = "Timeout"
	ReasonThrottled      Reason = "Throttled"
	ReasonUnavailable    Reason = "Unavailable"
	ReasonOperationError Reason = "OperationError"
	ReasonInvalidRequest Reason = "InvalidRequest"
	ReasonForbidden      Reason = "Forbidden"
	ReasonConflict       Reason = "Conflict"
	ReasonNotFound       Reason = "NotFound"
	ReasonPanic          Reason = "Panic"
	ReasonCanceled       Reason = "Canceled"
	ReasonUnknown        Reason = "Unknown"
)
