package workflow

import (
	"time"

	"github.com/arcflow/orchestrator/pkg/schema"
)

// shouldRetry reports whether a step may retry after err, per §4.1.3: the
// attempt budget isn't exhausted, the error's kind is in the policy's
// retryableErrors, and the error is recoverable.
func shouldRetry(policy schema.RetryPolicy, attempts int, err *schema.EngineError) bool {
	if err == nil || !err.Recoverable {
		return false
	}
	if attempts >= policy.MaxAttempts {
		return false
	}
	for _, kind := range policy.RetryableErrors {
		if kind == string(err.Code) {
			return true
		}
	}
	return false
}

// backoffDelay computes the delay before the next attempt, per §4.1.3's
// three strategies.
func backoffDelay(policy schema.RetryPolicy, attempts int) time.Duration {
	base := time.Duration(policy.BaseDelayMs) * time.Millisecond
	switch policy.BackoffStrategy {
	case schema.BackoffLinear:
		return base * time.Duration(attempts)
	case schema.BackoffExponential:
		d := base
		for i := 1; i < attempts; i++ {
			d *= 2
		}
		if policy.MaxDelayMs > 0 {
			if max := time.Duration(policy.MaxDelayMs) * time.Millisecond; d > max {
				return max
			}
		}
		return d
	default: // fixed
		return base
	}
}
