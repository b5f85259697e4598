// Copyright (c) 2025 Simon Lapacek
// SPDX-License-Identifier: MIT

package orchestrator

import (
	"fmt"
	"sort"
	"time"

	"github.com/lapacek-labs/retry-fanout/pkg/attempt"
	"github.com/lapacek-labs/retry-fanout/pkg/errclass"
	"github.com/lapacek-labs/retry-fanout/pkg/result"
	"github.com/lapacek-labs/retry-fanout/pkg/retry"
)

// Policy turns a batch observation into a decision.
type Policy struct {
	TransientDelay time.Duration
	PermanentDelay time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		TransientDelay: 30 * time.Second,
		PermanentDelay: 10 * time.Minute,
	}
}

func (p Policy) Decide(obs *Observation) result.Decision {
	var outcome result.Outcome
	switch {
	case obs.Total == 0:
		outcome = result.OutcomeSuccess
	case obs.Succeeded == obs.Total:
		outcome = result.OutcomeSuccess
	case obs.Succeeded == 0:
		outcome = result.OutcomeFailed
	default:
		outcome = result.OutcomePartial
	}

	dec := result.Decision{
		Outcome: outcome,
		Reason:  result.ReasonCompleted,
	}

	switch outcome {
	case result.OutcomeSuccess:
		dec.Msg = fmt.Sprintf("%d/%d items succeeded", obs.Succeeded, obs.Total)
	default:
		dec.Reason = obs.PrimaryReason()
		dec.Msg = fmt.Sprintf("%d/%d items exhausted after %d attempts", obs.Exhausted, obs.Total, obs.Attempts)
		if obs.HasTransient {
			dec.RetryAfter = p.TransientDelay
		} else {
			dec.RetryAfter = p.PermanentDelay
		}
	}

	return dec
}

type Observation struct {
	Reasons      map[errclass.ErrorReason]int
	Samples      []Sample
	MaxSample    int
	Succeeded    int
	Exhausted    int
	Total        int
	Attempts     int
	Retried      int
	HasTransient bool
	HasPermanent bool
}

const (
	minSample = 8
)

func NewObservation(total, maxSample int) *Observation {
	return &Observation{
		MaxSample: maxSample,
		Samples:   make([]Sample, 0, min(minSample, maxSample)),
		Total:     total,
	}
}

// Observe builds the observation of a completed batch.
func Observe(batch Batch, maxSample int, notFoundPolicy errclass.NotFoundPolicy) *Observation {
	obs := NewObservation(batch.Len(), maxSample)
	for _, res := range batch.Items {
		if res.Exhausted() {
			kind, reason := errclass.ClassifyError(res.LastErr, notFoundPolicy)
			obs.ObserveExhausted(res, kind, reason)
			continue
		}
		obs.ObserveSuccess(res)
	}
	return obs
}

func (obs *Observation) ObserveSuccess(res retry.ItemResult) {
	obs.Succeeded++
	obs.observeAttempts(res)
}

func (obs *Observation) ObserveExhausted(res retry.ItemResult, kind errclass.ErrorKind, reason errclass.ErrorReason) {
	obs.Exhausted++
	obs.observeAttempts(res)

	if kind.Retriable() {
		obs.HasTransient = true
	} else {
		obs.HasPermanent = true
	}

	if obs.Reasons == nil {
		obs.Reasons = make(map[errclass.ErrorReason]int, len(errclass.AllReasons()))
	}
	obs.Reasons[reason]++

	if len(obs.Samples) < obs.MaxSample {
		message := ""
		if res.LastErr != nil {
			message = res.LastErr.Error()
		}
		obs.Samples = append(obs.Samples, Sample{
			Item:     res.Item,
			Attempts: res.Attempts,
			Message:  message,
			Reason:   reason,
			Kind:     kind,
		})
	}
}

func (obs *Observation) observeAttempts(res retry.ItemResult) {
	obs.Attempts += res.Attempts
	if res.Attempts > 1 {
		obs.Retried++
	}
}

func (obs *Observation) PrimaryReason() result.Reason {
	reasons := obs.ErrorReasonCounts()
	if len(reasons) == 0 {
		return result.ReasonUnknown
	}
	reasons.SortInPlace()
	return mapErrReasonToResultReason(reasons[0].Reason)
}

func (obs *Observation) ErrorReasonCounts() ReasonCounts {
	reasons := make(ReasonCounts, 0, len(obs.Reasons))
	for r, c := range obs.Reasons {
		if c == 0 {
			continue
		}
		reasons = append(reasons, ReasonCount{Reason: r, Count: c})
	}
	return reasons
}

func mapErrReasonToResultReason(reason errclass.ErrorReason) result.Reason {
	switch reason {
	case errclass.ReasonTimeout:
		return result.ReasonTimeout
	case errclass.ReasonThrottled:
		return result.ReasonThrottled
	case errclass.ReasonUnavailable:
		return result.ReasonUnavailable
	case errclass.ReasonConflict:
		return result.ReasonConflict
	case errclass.ReasonNotFound:
		return result.ReasonNotFound
	case errclass.ReasonForbidden:
		return result.ReasonForbidden
	case errclass.ReasonInvalid:
		return result.ReasonInvalidRequest
	case errclass.ReasonPanic:
		return result.ReasonPanic
	case errclass.ReasonCanceled:
		return result.ReasonCanceled
	case errclass.ReasonOther:
		return result.ReasonOperationError
	default:
		return result.ReasonUnknown
	}
}

type Sample struct {
	Item     attempt.Item
	Attempts int
	Message  string
	Reason   errclass.ErrorReason
	Kind     errclass.ErrorKind
}

type ReasonCounts []ReasonCount

type ReasonCount struct {
	Reason errclass.ErrorReason
	Count  int
}

// SortInPlace orders reasons by count, then by priority, then by name.
func (rc ReasonCounts) SortInPlace() {
	sort.Slice(rc, func(i, j int) bool {
		if rc[i].Count != rc[j].Count {
			return rc[i].Count > rc[j].Count
		}
		pi, pj := errReasonPriority(rc[i].Reason), errReasonPriority(rc[j].Reason)
		if pi != pj {
			return pi > pj
		}
		return rc[i].Reason < rc[j].Reason
	})
}

// Higher number wins ties. Reasons that retries cannot fix rank first.
func errReasonPriority(r errclass.ErrorReason) int {
	switch r {
	case errclass.ReasonPanic:
		return 70 // bug in the operation
	case errclass.ReasonInvalid:
		return 60
	case errclass.ReasonForbidden:
		return 50
	case errclass.ReasonNotFound:
		return 40
	case errclass.ReasonConflict:
		return 30
	case errclass.ReasonThrottled:
		return 25
	case errclass.ReasonTimeout:
		return 20 // slow dependency
	case errclass.ReasonUnavailable:
		return 15
	case errclass.ReasonOther:
		return 10
	default:
		return 0
	}
}
