// Copyright (c) 2025 Simon Lapacek
// SPDX-License-Identifier: MIT

package orchestrator

import (
	"strconv"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/lapacek-labs/retry-fanout/api/v1alpha1"
	"github.com/lapacek-labs/retry-fanout/pkg/attempt"
	"github.com/lapacek-labs/retry-fanout/pkg/status"
)

// ItemsHash fingerprints an item list. Order matters because results are
// index aligned.
func ItemsHash(items []attempt.Item) string {
	keys := make([]string, len(items))
	for i, item := range items {
		keys[i] = strconv.Itoa(i) + "=" + strconv.Itoa(int(item))
	}
	return hashStrings(keys)
}

// ShouldSkip reports whether the recorded status already covers a clean run
// of the same items under the current policy generation.
func ShouldSkip(policy *v1alpha1.BatchPolicy, itemsHash string) bool {
	generation := policy.GetGeneration()
	conditions := policy.Status.Conditions
	if !status.IsCurrent(conditions, v1alpha1.ConditionReady, metav1.ConditionTrue, generation) {
		return false
	}
	if !status.IsCurrent(conditions, v1alpha1.ConditionDegraded, metav1.ConditionFalse, generation) {
		return false
	}
	if !status.IsCurrent(conditions, v1alpha1.ConditionCompleted, metav1.ConditionTrue, generation) {
		return false
	}
	last := policy.Status.LastBatch
	if last == nil || last.ItemsHash != itemsHash {
		return false
	}
	return true
}
