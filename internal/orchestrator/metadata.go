// Copyright (c) 2025 Simon Lapacek
// SPDX-License-Identifier: MIT

package orchestrator

import (
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

const (
	LabelManagedBy = "app.kubernetes.io/managed-by"
	LabelName      = "app.kubernetes.io/name"

	AnnotationLastBatch   = "fanout.lapacek-labs.org/last-batch"
	AnnotationLastOutcome = "fanout.lapacek-labs.org/last-outcome"
)

func ensureManagedMetadata(meta *metav1.ObjectMeta, batchID, outcome string) {
	if meta == nil {
		return
	}
	if meta.Labels == nil {
		meta.Labels = map[string]string{}
	}
	meta.Labels[LabelName] = ID
	meta.Labels[LabelManagedBy] = ID

	if batchID == "" {
		return
	}
	if meta.Annotations == nil {
		meta.Annotations = map[string]string{}
	}
	meta.Annotations[AnnotationLastBatch] = batchID
	meta.Annotations[AnnotationLastOutcome] = outcome
}
