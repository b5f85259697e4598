// Copyright (c) 2025 Simon Lapacek
// SPDX-License-Identifier: MIT

package prom

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/lapacek-labs/retry-fanout/pkg/observability"
)

const namespace = "retry_fanout"

type Recorder struct {
	attemptsTotal   *prometheus.CounterVec
	attemptDuration *prometheus.HistogramVec

	itemsTotal   *prometheus.CounterVec
	itemAttempts prometheus.Histogram

	batchesTotal  *prometheus.CounterVec
	batchDuration prometheus.Histogram
}

func NewRecorder(registerer prometheus.Registerer) *Recorder {
	r := &Recorder{
		attemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "attempts_total",
				Help:      "Number of supervised attempts by kind/reason.",
			},
			[]string{"kind", "reason"},
		),

		attemptDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "attempt_duration_seconds",
				Help:      "Duration of a supervised attempt in seconds by kind.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"kind"},
		),

		itemsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "items_total",
				Help:      "Number of items that reached a terminal state by state.",
			},
			[]string{"state"},
		),

		itemAttempts: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "item_attempts",
				Help:      "Attempts consumed per item before reaching a terminal state.",
				Buckets:   prometheus.LinearBuckets(1, 1, 10),
			},
		),

		batchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "batches_total",
				Help:      "Number of completed batches by outcome.",
			},
			[]string{"outcome"},
		),

		batchDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "batch_duration_seconds",
				Help:      "Duration of a batch in seconds.",
				Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
			},
		),
	}

	registerer.MustRegister(
		r.attemptsTotal,
		r.attemptDuration,
		r.itemsTotal,
		r.itemAttempts,
		r.batchesTotal,
		r.batchDuration,
	)

	return r
}

var _ observability.Recorder = (*Recorder)(nil)

func (r *Recorder) RecordAttempt(attempt observability.Attempt, latency time.Duration) {
	kind := string(attempt.Kind)
	reason := string(attempt.Reason)

	r.attemptsTotal.WithLabelValues(kind, reason).Inc()
	r.attemptDuration.WithLabelValues(kind).Observe(latency.Seconds())
}

func (r *Recorder) RecordItem(item observability.Item) {
	r.itemsTotal.WithLabelValues(string(item.State)).Inc()
	r.itemAttempts.Observe(float64(item.Attempts))
}

func (r *Recorder) RecordFanout(fanout observability.Fanout, latency time.Duration) {
	r.batchesTotal.WithLabelValues(string(fanout.Outcome)).Inc()
	r.batchDuration.Observe(latency.Seconds())
}

// RegisterInFlight exposes the number of held admission permits.
func RegisterInFlight(registerer prometheus.Registerer, inFlight func() int) {
	registerer.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "admission_permits_in_flight",
			Help:      "Attempts currently holding an admission permit.",
		},
		func() float64 { return float64(inFlight()) },
	))
}
