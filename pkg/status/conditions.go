// Copyright (c) 2025 Simon Lapacek
// SPDX-License-Identifier: MIT

package status

import (
	"sort"
	"time"

	"k8s.io/apimachinery/pkg/api/meta"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/lapacek-labs/retry-fanout/api/v1alpha1"
)

// ConditionSet collects the conditions written after one batch run and
// remembers what was there before so callers can skip no-op writes.
type ConditionSet struct {
	original           []metav1.Condition
	conditions         map[v1alpha1.ConditionType]metav1.Condition
	transitionTime     time.Time
	observedGeneration int64
}

func NewConditionSet(conditions []metav1.Condition, generation int64, transitionTime time.Time) *ConditionSet {
	byType := make(map[v1alpha1.ConditionType]metav1.Condition, len(conditions))
	for _, c := range conditions {
		byType[v1alpha1.ConditionType(c.Type)] = c
	}
	return &ConditionSet{
		original:           conditions,
		conditions:         byType,
		transitionTime:     transitionTime,
		observedGeneration: generation,
	}
}

// Conditions returns the current set ordered by type.
func (cs *ConditionSet) Conditions() []metav1.Condition {
	out := make([]metav1.Condition, 0, len(cs.conditions))
	for _, condition := range cs.conditions {
		out = append(out, condition)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Type < out[j].Type
	})
	return out
}

// Set keeps LastTransitionTime when the status does not flip.
func (cs *ConditionSet) Set(
	condType v1alpha1.ConditionType,
	status metav1.ConditionStatus,
	reason v1alpha1.ConditionReason,
	message string,
) {
	next := metav1.Condition{
		Type:               string(condType),
		Status:             status,
		Reason:             string(reason),
		Message:            message,
		ObservedGeneration: cs.observedGeneration,
		LastTransitionTime: metav1.NewTime(cs.transitionTime),
	}
	if prev, found := cs.conditions[condType]; found {
		if prev.Status == next.Status {
			next.LastTransitionTime = prev.LastTransitionTime
		}
		if sameCondition(prev, next) {
			return
		}
	}
	cs.conditions[condType] = next
}

func (cs *ConditionSet) Get(condType v1alpha1.ConditionType) (metav1.Condition, bool) {
	c, ok := cs.conditions[condType]
	return c, ok
}

func (cs *ConditionSet) IsTrue(condType v1alpha1.ConditionType) bool {
	c, ok := cs.conditions[condType]
	return ok && c.Status == metav1.ConditionTrue
}

func (cs *ConditionSet) Changed() bool {
	if len(cs.original) != len(cs.conditions) {
		return true
	}
	for _, prev := range cs.original {
		next, ok := cs.conditions[v1alpha1.ConditionType(prev.Type)]
		if !ok || !sameCondition(prev, next) {
			return true
		}
	}
	return false
}

// ApplyTo merges the set into target, returning true when target changed.
func (cs *ConditionSet) ApplyTo(target *[]metav1.Condition) bool {
	changed := false
	for _, c := range cs.Conditions() {
		if meta.SetStatusCondition(target, c) {
			changed = true
		}
	}
	return changed
}

// IsCurrent reports whether condType has the given status for generation.
func IsCurrent(
	conditions []metav1.Condition,
	condType v1alpha1.ConditionType,
	status metav1.ConditionStatus,
	generation int64,
) bool {
	c := meta.FindStatusCondition(conditions, string(condType))
	return c != nil && c.Status == status && c.ObservedGeneration == generation
}

func sameCondition(prev, next metav1.Condition) bool {
	return prev.Status == next.Status &&
		prev.Reason == next.Reason &&
		prev.Message == next.Message &&
		prev.ObservedGeneration == next.ObservedGeneration
}
