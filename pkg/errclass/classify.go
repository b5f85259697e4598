// Copyright (c) 2025 Simon Lapacek
// SPDX-License-Identifier: MIT

package errclass

import (
	"context"
	"errors"
	"net"
	"net/http"

	apierrors "k8s.io/apimachinery/pkg/api/errors"

	"github.com/lapacek-labs/retry-fanout/pkg/attempt"
)

// ClassifyError buckets an attempt error for logging, metrics and the batch
// decision. It never decides whether an attempt is retried.
func ClassifyError(err error, notFoundPolicy NotFoundPolicy) (ErrorKind, ErrorReason) {
	if err == nil {
		return "", ""
	}

	// --- Attempt supervision ---
	if errors.Is(err, attempt.ErrAttemptTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return KindTransient, ReasonTimeout
	}
	// Batch abandoned by the caller.
	if errors.Is(err, context.Canceled) {
		return KindTerminal, ReasonCanceled
	}
	var pe *attempt.PanicError
	if errors.As(err, &pe) {
		return KindTerminal, ReasonPanic
	}

	// --- Transport ---
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTransient, ReasonTimeout
	}

	// --- Kubernetes API typed errors, when the operation talks to an API server ---
	switch {
	case apierrors.IsConflict(err), apierrors.IsAlreadyExists(err):
		return KindConflict, ReasonConflict
	case apierrors.IsForbidden(err), apierrors.IsUnauthorized(err):
		return KindConfig, ReasonForbidden
	case apierrors.IsInvalid(err), apierrors.IsBadRequest(err):
		return KindConfig, ReasonInvalid
	case apierrors.IsNotFound(err):
		return notFound(notFoundPolicy)
	case apierrors.IsTooManyRequests(err):
		return KindTransient, ReasonThrottled
	case apierrors.IsTimeout(err), apierrors.IsServerTimeout(err):
		return KindTransient, ReasonTimeout
	case apierrors.IsInternalError(err), apierrors.IsServiceUnavailable(err):
		return KindTransient, ReasonUnavailable
	}

	// --- Plain HTTP status codes ---
	var sc StatusCoder
	if errors.As(err, &sc) {
		return classifyStatusCode(sc.StatusCode(), notFoundPolicy)
	}

	// Unknown errors are retried: the operation is a black box.
	return KindTransient, ReasonOther
}

func classifyStatusCode(code int, notFoundPolicy NotFoundPolicy) (ErrorKind, ErrorReason) {
	switch {
	case code == http.StatusTooManyRequests:
		return KindTransient, ReasonThrottled
	case code == http.StatusRequestTimeout || code == http.StatusGatewayTimeout:
		return KindTransient, ReasonTimeout
	case code == http.StatusConflict:
		return KindConflict, ReasonConflict
	case code == http.StatusNotFound:
		return notFound(notFoundPolicy)
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return KindConfig, ReasonForbidden
	case code >= http.StatusInternalServerError && code <= 599:
		return KindTransient, ReasonUnavailable
	case code >= http.StatusBadRequest:
		return KindConfig, ReasonInvalid
	default:
		return KindTransient, ReasonOther
	}
}

func notFound(policy NotFoundPolicy) (ErrorKind, ErrorReason) {
	if policy == NotFoundAsTransient {
		return KindTransient, ReasonNotFound
	}
	return KindConfig, ReasonNotFound
}
