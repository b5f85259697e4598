// Copyright (c) 2025 Simon Lapacek
// SPDX-License-Identifier: MIT

package v1alpha1

type ConditionType string

const (
	ConditionReady    ConditionType = "Ready"
	ConditionDegraded ConditionType = "Degraded"
	// ConditionCompleted is False when the last batch was abandoned before
	// every item reached a terminal state.
	ConditionCompleted ConditionType = "Completed"
)

type ConditionReason string

const (
	ReasonAllSucceeded   ConditionReason = "AllSucceeded"
	ReasonItemsExhausted ConditionReason = "ItemsExhausted"
	ReasonBatchFailed    ConditionReason = "BatchFailed"
	ReasonBatchCompleted ConditionReason = "BatchCompleted"
	ReasonBatchCanceled  ConditionReason = "BatchCanceled"
)
