// Copyright (c) 2025 Simon Lapacek
// SPDX-License-Identifier: MIT

package orchestrator

import (
	"time"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/lapacek-labs/retry-fanout/api/v1alpha1"
	"github.com/lapacek-labs/retry-fanout/pkg/result"
	"github.com/lapacek-labs/retry-fanout/pkg/status"
)

func markReady(cs *status.ConditionSet, message string) {
	cs.Set(v1alpha1.ConditionReady, metav1.ConditionTrue, v1alpha1.ReasonAllSucceeded, message)
	cs.Set(v1alpha1.ConditionDegraded, metav1.ConditionFalse, v1alpha1.ReasonAllSucceeded, message)
}

func markDegraded(cs *status.ConditionSet, message string) {
	cs.Set(v1alpha1.ConditionReady, metav1.ConditionTrue, v1alpha1.ReasonItemsExhausted, message)
	cs.Set(v1alpha1.ConditionDegraded, metav1.ConditionTrue, v1alpha1.ReasonItemsExhausted, message)
}

func markFailed(cs *status.ConditionSet, message string) {
	cs.Set(v1alpha1.ConditionReady, metav1.ConditionFalse, v1alpha1.ReasonBatchFailed, message)
	cs.Set(v1alpha1.ConditionDegraded, metav1.ConditionTrue, v1alpha1.ReasonBatchFailed, message)
}

func markCompleted(cs *status.ConditionSet, message string) {
	cs.Set(v1alpha1.ConditionCompleted, metav1.ConditionTrue, v1alpha1.ReasonBatchCompleted, message)
}

func markCanceled(cs *status.ConditionSet, message string) {
	cs.Set(v1alpha1.ConditionCompleted, metav1.ConditionFalse, v1alpha1.ReasonBatchCanceled, message)
}

// ApplyStatus records the outcome of a batch run on policy. A canceled run
// only flips Completed and keeps the previous LastBatch. Returns true when
// the status changed.
func ApplyStatus(
	policy *v1alpha1.BatchPolicy,
	batch Batch,
	itemsHash string,
	decision result.Decision,
	now time.Time,
) bool {
	cs := status.NewConditionSet(policy.Status.Conditions, policy.GetGeneration(), now)

	if decision.Outcome == result.OutcomeCanceled {
		markCanceled(cs, decision.Msg)
		return cs.ApplyTo(&policy.Status.Conditions)
	}

	switch decision.Outcome {
	case result.OutcomeSuccess:
		markReady(cs, decision.Msg)
	case result.OutcomePartial:
		markDegraded(cs, decision.Msg)
	default:
		markFailed(cs, decision.Msg)
	}
	markCompleted(cs, decision.Msg)

	changed := cs.ApplyTo(&policy.Status.Conditions)

	ensureManagedMetadata(&policy.ObjectMeta, batch.ID, string(decision.Outcome))

	summary := summarize(batch, itemsHash, decision)
	if policy.Status.LastBatch == nil || *policy.Status.LastBatch != *summary {
		policy.Status.LastBatch = summary
		changed = true
	}
	return changed
}

func summarize(batch Batch, itemsHash string, decision result.Decision) *v1alpha1.BatchSummary {
	exhausted := len(batch.Exhausted())
	return &v1alpha1.BatchSummary{
		ID:        batch.ID,
		StartedAt: metav1.NewTime(batch.StartedAt),
		Duration:  metav1.Duration{Duration: batch.Elapsed},
		Total:     int32(batch.Len()),
		Succeeded: int32(batch.Len() - exhausted),
		Exhausted: int32(exhausted),
		Attempts:  int32(batch.Attempts()),
		Outcome:   string(decision.Outcome),
		ItemsHash: itemsHash,
		Reason:    string(decision.Reason),
	}
}
