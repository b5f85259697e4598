// Copyright (c) 2025 Simon Lapacek
// SPDX-License-Identifier: MIT

package prom

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/lapacek-labs/retry-fanout/pkg/attempt"
	"github.com/lapacek-labs/retry-fanout/pkg/errclass"
	"github.com/lapacek-labs/retry-fanout/pkg/observability"
	"github.com/lapacek-labs/retry-fanout/pkg/result"
)

func TestRecorder_RecordAttempt_LabelsByKindAndReason(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRecorder(reg)

	r.RecordAttempt(observability.Attempt{Kind: attempt.KindTimeout, Reason: errclass.ReasonTimeout, Number: 1}, time.Second)
	r.RecordAttempt(observability.Attempt{Kind: attempt.KindTimeout, Reason: errclass.ReasonTimeout, Number: 2}, time.Second)
	r.RecordAttempt(observability.Attempt{Kind: attempt.KindSuccess, Number: 3}, time.Millisecond)

	if got := testutil.ToFloat64(r.attemptsTotal.WithLabelValues("timeout", "Timeout")); got != 2 {
		t.Fatalf("expected 2 timeouts, got %v", got)
	}
	if got := testutil.ToFloat64(r.attemptsTotal.WithLabelValues("success", "")); got != 1 {
		t.Fatalf("expected 1 success, got %v", got)
	}
}

func TestRecorder_RecordItemAndFanout(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRecorder(reg)

	r.RecordItem(observability.Item{State: observability.StateSucceeded, Attempts: 1})
	r.RecordItem(observability.Item{State: observability.StateExhausted, Attempts: 3})
	r.RecordFanout(observability.Fanout{Outcome: result.OutcomePartial, Total: 2, Succeeded: 1, Exhausted: 1}, time.Second)

	if got := testutil.ToFloat64(r.itemsTotal.WithLabelValues("exhausted")); got != 1 {
		t.Fatalf("expected 1 exhausted item, got %v", got)
	}
	if got := testutil.ToFloat64(r.batchesTotal.WithLabelValues("partial")); got != 1 {
		t.Fatalf("expected 1 partial batch, got %v", got)
	}
}

func TestRegisterInFlight_ReadsCallback(t *testing.T) {
	reg := prometheus.NewRegistry()
	inFlight := 2
	RegisterInFlight(reg, func() int { return inFlight })

	expected := `
# HELP retry_fanout_admission_permits_in_flight Attempts currently holding an admission permit.
# TYPE retry_fanout_admission_permits_in_flight gauge
retry_fanout_admission_permits_in_flight 2
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "retry_fanout_admission_permits_in_flight"); err != nil {
		t.Fatalf("unexpected gauge: %v", err)
	}
}
