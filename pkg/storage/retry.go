package storage

import (
	"context"
	"math"
	"time"

	"github.com/cartoprint/cartoprint/pkg/infrastructure/logging"
)

// RetryPolicy describes whether and how a given error kind is retried.
type RetryPolicy struct {
	Retryable  bool
	MaxRetries int
	BaseDelay  time.Duration
	Multiplier float64
}

// Delay returns the backoff delay before the attempt following the given
// one (1-based): BaseDelay * Multiplier^(attempt-1).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return time.Duration(float64(p.BaseDelay) * math.Pow(p.Multiplier, float64(attempt-1)))
}

// retryPolicies is the per-kind policy table. Transient I/O faults and
// timeouts get a few patient attempts, contention gets more attempts with
// shorter delays, and a full disk gets two widely spaced attempts in case
// an external cleanup frees space. Every other kind fails immediately:
// retrying a validation failure or a corrupt file cannot succeed.
var retryPolicies = map[ErrorKind]RetryPolicy{
	KindIOError:          {Retryable: true, MaxRetries: 3, BaseDelay: 1000 * time.Millisecond, Multiplier: 2},
	KindOperationTimeout: {Retryable: true, MaxRetries: 3, BaseDelay: 1000 * time.Millisecond, Multiplier: 2},
	KindConcurrentAccess: {Retryable: true, MaxRetries: 5, BaseDelay: 500 * time.Millisecond, Multiplier: 1.5},
	KindStorageFull:      {Retryable: true, MaxRetries: 2, BaseDelay: 5000 * time.Millisecond, Multiplier: 1},
}

// PolicyFor returns the retry policy for an error kind. Kinds absent from
// the table are not retryable.
func PolicyFor(kind ErrorKind) RetryPolicy {
	if policy, ok := retryPolicies[kind]; ok {
		return policy
	}
	return RetryPolicy{}
}

// RetryExecutor wraps storage operations with classify-then-retry
// recovery. An operation is re-invoked until it succeeds, fails with a
// non-retryable kind, or exhausts its kind's attempt budget, with
// exponential backoff between attempts. The backoff sleep honors context
// cancellation so an abandoned request does not keep retrying.
type RetryExecutor struct {
	classifier *ErrorClassifier
	logger     *logging.Logger
	metrics    *Metrics

	// sleep is swappable for tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewRetryExecutor creates a retry executor.
func NewRetryExecutor(classifier *ErrorClassifier, logger *logging.Logger, metrics *Metrics) *RetryExecutor {
	if classifier == nil {
		classifier = NewErrorClassifier()
	}
	if logger == nil {
		logger = logging.NewLogger(nil)
	}
	return &RetryExecutor{
		classifier: classifier,
		logger:     logger.WithComponent("retry"),
		metrics:    metrics,
		sleep:      sleepContext,
	}
}

// Execute runs fn, classifying every failure and consulting the policy
// table. The returned error is always a *StorageError; after exhaustion
// the last classified error is returned unchanged.
func (re *RetryExecutor) Execute(ctx context.Context, operation string, fn func() error) error {
	for attempt := 1; ; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}

		serr := re.classifier.Classify(err, operation, "")
		policy := PolicyFor(serr.Kind)
		if !policy.Retryable || attempt >= policy.MaxRetries {
			return serr
		}

		delay := policy.Delay(attempt)
		re.logger.Debug("retrying storage operation", map[string]interface{}{
			"operation": operation,
			"kind":      string(serr.Kind),
			"attempt":   attempt,
			"delay_ms":  delay.Milliseconds(),
		})
		re.metrics.RecordRetry(operation, serr.Kind)

		if err := re.sleep(ctx, delay); err != nil {
			// The caller abandoned the request; surface the last
			// classified failure rather than a bare context error.
			return serr.WithDetail("aborted", err.Error())
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
