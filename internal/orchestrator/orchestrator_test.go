// Copyright (c) 2025 Simon Lapacek
// SPDX-License-Identifier: MIT

package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/lapacek-labs/retry-fanout/api/v1alpha1"
	"github.com/lapacek-labs/retry-fanout/pkg/attempt"
	"github.com/lapacek-labs/retry-fanout/pkg/operation"
	"github.com/lapacek-labs/retry-fanout/pkg/result"
	"github.com/lapacek-labs/retry-fanout/pkg/retry"
)

func specWith(k, maxRetry int32, timeout time.Duration) v1alpha1.BatchPolicySpec {
	return v1alpha1.BatchPolicySpec{
		MaxConcurrency: k,
		MaxRetry:       maxRetry,
		AttemptTimeout: metav1.Duration{Duration: timeout},
	}
}

func sleepingOp(d time.Duration) attempt.OperationFunc {
	return func(ctx context.Context, item attempt.Item) (string, error) {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(d):
		}
		return fmt.Sprintf("result%d", item), nil
	}
}

func alwaysFailing() attempt.OperationFunc {
	return func(_ context.Context, item attempt.Item) (string, error) {
		return "", fmt.Errorf("API error (n=%d)", item)
	}
}

// failsFirst fails the first n calls of every item.
func failsFirst(n int32) attempt.OperationFunc {
	var counts [64]atomic.Int32
	return func(_ context.Context, item attempt.Item) (string, error) {
		if counts[item].Add(1) <= n {
			return "", fmt.Errorf("API error (n=%d)", item)
		}
		return fmt.Sprintf("result%d", item), nil
	}
}

func newOrchestrator(spec v1alpha1.BatchPolicySpec, op attempt.Operation) *Orchestrator {
	o, err := New(spec, op, WithName(uniqueStr("orchestrator")))
	Expect(err).NotTo(HaveOccurred())
	return o
}

func uniqueStr(name string) string {
	return name + "-" + uuid.NewString()[:8]
}

var _ = Describe("Orchestrator", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
	})

	Context("configuration", func() {
		It("applies defaults to zero fields", func() {
			o := newOrchestrator(v1alpha1.BatchPolicySpec{}, sleepingOp(0))
			spec := o.Spec()
			Expect(spec.MaxConcurrency).To(Equal(int32(v1alpha1.DefaultMaxConcurrency)))
			Expect(spec.MaxRetry).To(Equal(int32(v1alpha1.DefaultMaxRetry)))
			Expect(spec.AttemptTimeout.Duration).To(Equal(v1alpha1.DefaultAttemptTimeout))
			Expect(o.Limiter().Capacity()).To(Equal(v1alpha1.DefaultMaxConcurrency))
		})

		It("rejects an invalid policy", func() {
			_, err := New(specWith(-1, 3, time.Second), sleepingOp(0))
			Expect(err).To(HaveOccurred())
		})

		It("rejects a nil operation", func() {
			_, err := New(specWith(1, 1, time.Second), nil)
			Expect(err).To(HaveOccurred())
		})
	})

	Context("when every call succeeds", func() {
		It("returns index aligned values", func() {
			o := newOrchestrator(specWith(3, 3, time.Second), sleepingOp(5*time.Millisecond))

			items := []attempt.Item{7, 2, 9, 0, 4}
			batch, decision, err := o.RunBatch(ctx, items)
			Expect(err).NotTo(HaveOccurred())
			Expect(batch.ID).NotTo(BeEmpty())
			Expect(batch.Values()).To(Equal([]string{"result7", "result2", "result9", "result0", "result4"}))
			Expect(batch.Exhausted()).To(BeEmpty())
			Expect(batch.Attempts()).To(Equal(len(items)))
			Expect(decision.Outcome).To(Equal(result.OutcomeSuccess))
			Expect(decision.Resubmit()).To(BeFalse())
		})

		It("completes an empty batch", func() {
			o := newOrchestrator(specWith(3, 3, time.Second), sleepingOp(0))

			batch, decision, err := o.RunRange(ctx, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(batch.Values()).To(BeEmpty())
			Expect(decision.Outcome).To(Equal(result.OutcomeSuccess))
		})
	})

	Context("admission", func() {
		It("never runs more than maxConcurrency calls at once", func() {
			op := operation.Instrument(sleepingOp(20 * time.Millisecond))
			o := newOrchestrator(specWith(3, 1, time.Second), op)

			batch, _, err := o.RunRange(ctx, 12)
			Expect(err).NotTo(HaveOccurred())
			Expect(batch.Len()).To(Equal(12))
			Expect(op.Peak()).To(BeNumerically("<=", 3))
			Expect(op.Peak()).To(BeNumerically(">", 1))
			Expect(o.Limiter().Peak()).To(BeNumerically("<=", 3))
			Expect(o.Limiter().InFlight()).To(BeZero())
		})

		It("shares one cap between concurrent batches", func() {
			op := operation.Instrument(sleepingOp(20 * time.Millisecond))
			o := newOrchestrator(specWith(2, 1, time.Second), op)

			done := make(chan error, 2)
			for range 2 {
				go func() {
					_, _, err := o.RunRange(ctx, 6)
					done <- err
				}()
			}
			Expect(<-done).To(Succeed())
			Expect(<-done).To(Succeed())
			Expect(op.Peak()).To(BeNumerically("<=", 2))
		})
	})

	Context("retries", func() {
		It("recovers items that fail fewer than maxRetry times", func() {
			op := operation.Instrument(failsFirst(2))
			o := newOrchestrator(specWith(3, 3, time.Second), op)

			batch, decision, err := o.RunRange(ctx, 4)
			Expect(err).NotTo(HaveOccurred())
			Expect(batch.Values()).To(Equal([]string{"result0", "result1", "result2", "result3"}))
			for i := range 4 {
				Expect(op.Calls(attempt.Item(i))).To(Equal(3))
			}
			Expect(decision.Outcome).To(Equal(result.OutcomeSuccess))
		})

		It("reports the sentinel after exactly maxRetry failures", func() {
			op := operation.Instrument(alwaysFailing())
			o := newOrchestrator(specWith(2, 3, time.Second), op)

			batch, decision, err := o.RunRange(ctx, 3)
			Expect(err).NotTo(HaveOccurred())
			Expect(batch.Values()).To(Equal([]string{"[0] ERROR", "[1] ERROR", "[2] ERROR"}))
			Expect(batch.Exhausted()).To(HaveLen(3))
			for i := range 3 {
				Expect(op.Calls(attempt.Item(i))).To(Equal(3))
				Expect(batch.Items[i].Attempts).To(Equal(3))
			}
			Expect(op.TotalCalls()).To(Equal(9))
			Expect(decision.Outcome).To(Equal(result.OutcomeFailed))
			Expect(decision.Reason).To(Equal(result.ReasonOperationError))
			Expect(decision.Resubmit()).To(BeTrue())
		})

		It("counts timeouts like failures", func() {
			op := operation.Instrument(sleepingOp(time.Second))
			o := newOrchestrator(specWith(1, 2, 20*time.Millisecond), op)

			start := time.Now()
			batch, decision, err := o.RunRange(ctx, 1)
			Expect(err).NotTo(HaveOccurred())
			Expect(time.Since(start)).To(BeNumerically("<", 500*time.Millisecond))
			Expect(batch.Values()).To(Equal([]string{"[0] ERROR"}))
			Expect(batch.Items[0].Attempts).To(Equal(2))
			Expect(errors.Is(batch.Items[0].LastErr, attempt.ErrAttemptTimeout)).To(BeTrue())
			Expect(decision.Reason).To(Equal(result.ReasonTimeout))
		})
	})

	Context("simulated batch", func() {
		It("terminates with values or the item's own sentinel", func() {
			sim, err := operation.NewSimulated(time.Millisecond, 3*time.Millisecond, 0.5, 7)
			Expect(err).NotTo(HaveOccurred())
			op := operation.Instrument(sim)
			o := newOrchestrator(specWith(3, 3, 50*time.Millisecond), op)

			batch, _, err := o.RunRange(ctx, 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(batch.Len()).To(Equal(10))
			Expect(op.Peak()).To(BeNumerically("<=", 3))
			for i, res := range batch.Items {
				Expect(res.Item).To(Equal(attempt.Item(i)))
				Expect(res.Attempts).To(BeNumerically(">=", 1))
				Expect(res.Attempts).To(BeNumerically("<=", 3))
				Expect(op.Calls(res.Item)).To(Equal(res.Attempts))
				if res.Exhausted() {
					Expect(res.Value).To(Equal(fmt.Sprintf("[%d] ERROR", i)))
					Expect(res.Attempts).To(Equal(3))
				} else {
					Expect(res.Value).To(Equal(fmt.Sprintf("result%d", i)))
				}
			}
		})
	})

	Context("isolation", func() {
		It("keeps other items running when one exhausts", func() {
			op := attempt.OperationFunc(func(ctx context.Context, item attempt.Item) (string, error) {
				if item == 1 {
					return "", errors.New("API error (n=1)")
				}
				return sleepingOp(30*time.Millisecond)(ctx, item)
			})
			o := newOrchestrator(specWith(3, 2, time.Second), op)

			batch, decision, err := o.RunRange(ctx, 3)
			Expect(err).NotTo(HaveOccurred())
			Expect(batch.Values()).To(Equal([]string{"result0", retry.Sentinel(1), "result2"}))
			Expect(batch.Exhausted()).To(Equal([]attempt.Item{1}))
			Expect(decision.Outcome).To(Equal(result.OutcomePartial))
		})

		It("tolerates calls that ignore their deadline", func() {
			release := make(chan struct{})
			DeferCleanup(func() { close(release) })

			op := operation.Instrument(attempt.OperationFunc(func(_ context.Context, item attempt.Item) (string, error) {
				if item == 0 {
					<-release
				}
				return fmt.Sprintf("result%d", item), nil
			}))
			o := newOrchestrator(specWith(2, 2, 20*time.Millisecond), op)

			batch, _, err := o.RunRange(ctx, 3)
			Expect(err).NotTo(HaveOccurred())
			Expect(batch.Values()).To(Equal([]string{"[0] ERROR", "result1", "result2"}))
			Expect(o.Limiter().InFlight()).To(BeZero())
			// Both abandoned calls are still blocked.
			Expect(op.InFlight()).To(Equal(2))
		})
	})

	Context("cancellation", func() {
		It("abandons the batch and releases every permit", func() {
			op := operation.Instrument(sleepingOp(time.Second))
			o := newOrchestrator(specWith(2, 3, 5*time.Second), op)

			cctx, cancel := context.WithCancel(ctx)
			go func() {
				defer GinkgoRecover()
				Eventually(o.Limiter().InFlight).Should(Equal(2))
				cancel()
			}()

			batch, decision, err := o.RunRange(cctx, 6)
			Expect(err).To(MatchError(ErrBatchAbandoned))
			Expect(errors.Is(err, context.Canceled)).To(BeTrue())
			Expect(batch.Items).To(BeNil())
			Expect(decision.Outcome).To(Equal(result.OutcomeCanceled))
			Expect(o.Limiter().InFlight()).To(BeZero())
			Eventually(op.InFlight).Should(BeZero())
		})

		It("returns immediately for an already canceled context", func() {
			o := newOrchestrator(specWith(2, 3, time.Second), sleepingOp(time.Second))

			cctx, cancel := context.WithCancel(ctx)
			cancel()

			_, _, err := o.RunRange(cctx, 4)
			Expect(errors.Is(err, context.Canceled)).To(BeTrue())
		})
	})

	Context("backoff", func() {
		It("waits between attempts when configured", func() {
			spec := specWith(1, 3, time.Second)
			spec.Backoff = &v1alpha1.Backoff{Initial: metav1.Duration{Duration: 30 * time.Millisecond}, Factor: 1}
			o := newOrchestrator(spec, alwaysFailing())

			start := time.Now()
			batch, _, err := o.RunRange(ctx, 1)
			Expect(err).NotTo(HaveOccurred())
			Expect(batch.Values()).To(Equal([]string{"[0] ERROR"}))
			Expect(time.Since(start)).To(BeNumerically(">=", 60*time.Millisecond))
		})
	})

	Context("rate limit", func() {
		It("spaces attempt starts when configured", func() {
			spec := specWith(4, 1, time.Second)
			spec.RateLimit = &v1alpha1.RateLimit{AttemptsPerSecond: 50}
			o := newOrchestrator(spec, sleepingOp(0))

			start := time.Now()
			batch, _, err := o.RunRange(ctx, 4)
			Expect(err).NotTo(HaveOccurred())
			Expect(batch.Exhausted()).To(BeEmpty())
			Expect(time.Since(start)).To(BeNumerically(">=", 50*time.Millisecond))
		})
	})

	Context("status", func() {
		It("records a clean batch so the same items can be skipped", func() {
			o := newOrchestrator(specWith(2, 1, time.Second), sleepingOp(0))
			items := Range(3)

			batch, decision, err := o.RunBatch(ctx, items)
			Expect(err).NotTo(HaveOccurred())

			policy := &v1alpha1.BatchPolicy{Spec: o.Spec()}
			policy.SetGeneration(1)
			hash := ItemsHash(items)
			Expect(ApplyStatus(policy, batch, hash, decision, time.Now())).To(BeTrue())
			Expect(policy.Status.LastBatch.ID).To(Equal(batch.ID))
			Expect(policy.Status.LastBatch.Succeeded).To(Equal(int32(3)))
			Expect(policy.Labels).To(HaveKeyWithValue(LabelManagedBy, ID))
			Expect(policy.Annotations).To(HaveKeyWithValue(AnnotationLastBatch, batch.ID))
			Expect(ShouldSkip(policy, hash)).To(BeTrue())
			Expect(ShouldSkip(policy, ItemsHash(Range(4)))).To(BeFalse())

			policy.SetGeneration(2)
			Expect(ShouldSkip(policy, hash)).To(BeFalse())
		})

		It("keeps the previous summary when a batch is canceled", func() {
			policy := &v1alpha1.BatchPolicy{}
			policy.Status.LastBatch = &v1alpha1.BatchSummary{ID: "previous"}

			decision := result.Decision{Outcome: result.OutcomeCanceled, Msg: "canceled"}
			Expect(ApplyStatus(policy, Batch{}, "", decision, time.Now())).To(BeTrue())
			Expect(policy.Status.LastBatch.ID).To(Equal("previous"))
			Expect(ShouldSkip(policy, "")).To(BeFalse())
		})
	})
})
