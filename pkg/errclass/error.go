// Copyright (c) 2025 Simon Lapacek
// SPDX-License-Identifier: MIT

package errclass

type NotFoundPolicy int

const (
	NotFoundAsConfig NotFoundPolicy = iota
	NotFoundAsTransient
)

type ErrorKind string

const (
	KindTransient ErrorKind = "Transient"
	KindTerminal  ErrorKind = "Terminal"
	KindConflict  ErrorKind = "Conflict"
	KindConfig    ErrorKind = "Config"
)

// Retriable reports whether a later attempt may plausibly succeed.
func (k ErrorKind) Retriable() bool {
	return k == KindTransient || k == KindConflict
}

type ErrorReason string

const (
	ReasonTimeout     ErrorReason = "Timeout"
	ReasonThrottled   ErrorReason = "Throttled"
	ReasonUnavailable ErrorReason = "Unavailable"
	ReasonConflict    ErrorReason = "Conflict"
	ReasonNotFound    ErrorReason = "NotFound"
	ReasonForbidden   ErrorReason = "Forbidden"
	ReasonInvalid     ErrorReason = "Invalid"
	ReasonPanic       ErrorReason = "Panic"
	ReasonCanceled    ErrorReason = "Canceled"
	ReasonOther       ErrorReason = "Other"
)

func AllReasons() []ErrorReason {
	return []ErrorReason{
		ReasonTimeout,
		ReasonThrottled,
		ReasonUnavailable,
		ReasonConflict,
		ReasonNotFound,
		ReasonForbidden,
		ReasonInvalid,
		ReasonPanic,
		ReasonCanceled,
		ReasonOther,
	}
}

// StatusCoder is implemented by errors carrying an HTTP status code.
type StatusCoder interface {
	StatusCode() int
}
