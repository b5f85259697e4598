// Copyright (c) 2025 Simon Lapacek
// SPDX-License-Identifier: MIT

package orchestrator

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"hash/fnv"
	"sort"
	"strings"
	"time"

	"github.com/go-logr/logr"
	logf "sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/lapacek-labs/retry-fanout/pkg/logging"
	"github.com/lapacek-labs/retry-fanout/pkg/result"
)

var errExhausted = errors.New("every item exhausted its attempts")

func logBatchIfAllowed(
	ctx context.Context,
	limiter *logging.Limiter,
	name string,
	decision result.Decision,
	observation *Observation,
) {
	logger := logf.FromContext(ctx)

	if decision.Outcome == result.OutcomeSuccess {
		logBatch(logger, decision, observation, "completed")
		return
	}

	if limiter == nil {
		logBatch(logger, decision, observation, "unthrottled")
		return
	}

	reasonsKey := ""
	samplesHash := ""
	if observation != nil {
		const maxSamples = 3

		reasonsKey = formatReasons(observation.ErrorReasonCounts())
		samplesHash = hashStrings(buildSampleKeys(observation.Samples, maxSamples))
	}

	primary := decision.Reason
	if primary == "" {
		primary = result.ReasonUnknown
	}

	now := time.Now()
	fpReminder := fmt.Sprintf("fail|%s|%s", name, primary)
	fpChange := fmt.Sprintf("chg|%s|%s|%s|%s", name, decision.Outcome, reasonsKey, samplesHash)

	// Log when the reminder interval elapsed or the failure picture changed.
	if limiter.Allow(fpReminder, now, reminderInterval(primary)) || limiter.Allow(fpChange, now, 30*time.Second) {
		logBatch(logger, decision, observation, "reminder")
	}
}

func reminderInterval(r result.Reason) time.Duration {
	switch r {
	case result.ReasonPanic, result.ReasonInvalidRequest, result.ReasonForbidden:
		return 5 * time.Minute
	case result.ReasonTimeout, result.ReasonThrottled, result.ReasonUnavailable:
		return 1 * time.Minute
	default:
		return 2 * time.Minute
	}
}

func logBatch(
	logger logr.Logger,
	decision result.Decision,
	observation *Observation,
	tag string,
) {
	kv := []any{
		"outcome", decision.Outcome,
		"reason", decision.Reason,
		"msg", decision.Msg,
		"tag", tag,
	}
	if decision.RetryAfter > 0 {
		kv = append(kv, "retryAfter", decision.RetryAfter)
	}

	if observation != nil {
		kv = append(kv,
			"succeeded", observation.Succeeded,
			"exhausted", observation.Exhausted,
			"total", observation.Total,
			"attempts", observation.Attempts,
			"retried", observation.Retried,
		)
		if observation.Exhausted > 0 {
			kv = append(kv,
				"hasTransient", observation.HasTransient,
				"hasPermanent", observation.HasPermanent,
				"reasons", formatReasons(observation.ErrorReasonCounts()),
				"samples", formatSamples(observation.Samples),
			)
		}
	}

	switch decision.Outcome {
	case result.OutcomeFailed:
		err := decision.Err
		if err == nil {
			err = errExhausted
		}
		logger.Error(err, "Batch failed", kv...)
	case result.OutcomePartial:
		logger.Info("Batch degraded", kv...)
	default:
		logger.Info("Batch completed", kv...)
	}
}

func formatReasons(reasons ReasonCounts) string {
	if len(reasons) == 0 {
		return ""
	}

	reasons.SortInPlace()

	var b strings.Builder
	for _, rc := range reasons {
		if rc.Count == 0 {
			continue
		}
		if b.Len() > 0 {
			b.WriteString(",")
		}
		fmt.Fprintf(&b, "%s=%d", rc.Reason, rc.Count)
	}
	return b.String()
}

func formatSamples(samples []Sample) []string {
	if len(samples) == 0 {
		return nil
	}
	const maxMsgLen = 120
	out := make([]string, 0, len(samples))
	for _, s := range samples {
		out = append(out, fmt.Sprintf("item=%d attempts=%d kind=%s reason=%s msg=%q",
			s.Item, s.Attempts, s.Kind, s.Reason, truncate(s.Message, maxMsgLen)))
	}
	return out
}

func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}

// buildSampleKeys ignores messages so flapping error text does not defeat
// throttling.
func buildSampleKeys(samples []Sample, max int) []string {
	if max <= 0 || len(samples) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(samples))
	keys := make([]string, 0, len(samples))
	for _, s := range samples {
		key := fmt.Sprintf("item=%d kind=%s reason=%s", s.Item, s.Kind, s.Reason)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		keys = append(keys, key)
	}

	sort.Strings(keys)
	if len(keys) > max {
		keys = keys[:max]
	}
	return keys
}

// hashStrings returns an order-independent fingerprint of items.
func hashStrings(items []string) string {
	h := fnv.New64a()

	cp := append([]string{}, items...)
	sort.Strings(cp)

	for _, s := range cp {
		_, _ = h.Write([]byte(s))
		// Separator so ["ab","c"] and ["a","bc"] differ.
		_, _ = h.Write([]byte{0})
	}

	return hex.EncodeToString(h.Sum(nil))
}
