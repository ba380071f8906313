package platform

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"optiattack/internal/logging"
	"optiattack/internal/oracle"
)

// RetryPolicy bounds the backoff used while waiting for the network under
// test to come up.
type RetryPolicy struct {
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	BackoffFactor  float64
	MaxAttempts    int
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		InitialBackoff: 10 * time.Millisecond,
		MaxBackoff:     200 * time.Millisecond,
		BackoffFactor:  2.0,
		MaxAttempts:    5,
	}
}

func normalizeRetryPolicy(policy RetryPolicy) RetryPolicy {
	def := DefaultRetryPolicy()
	if policy.InitialBackoff <= 0 {
		policy.InitialBackoff = def.InitialBackoff
	}
	if policy.MaxBackoff <= 0 {
		policy.MaxBackoff = def.MaxBackoff
	}
	if policy.MaxBackoff < policy.InitialBackoff {
		policy.MaxBackoff = policy.InitialBackoff
	}
	if policy.BackoffFactor < 1 {
		policy.BackoffFactor = def.BackoffFactor
	}
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = def.MaxAttempts
	}
	return policy
}

// Retry calls fn until it succeeds, fails with anything other than
// oracle.ErrUnavailable, runs out of attempts or ctx is done.
func Retry[T any](ctx context.Context, policy RetryPolicy, logger *slog.Logger, op string, fn func(context.Context) (T, error)) (T, error) {
	policy = normalizeRetryPolicy(policy)
	logger = logging.OrDiscard(logger)
	backoff := policy.InitialBackoff

	for attempt := 1; ; attempt++ {
		result, err := fn(ctx)
		if err == nil || !errors.Is(err, oracle.ErrUnavailable) || attempt >= policy.MaxAttempts {
			return result, err
		}
		logger.Warn("retrying oracle call", "op", op, "attempt", attempt, "backoff", backoff, "err", err)

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			var zero T
			return zero, ctx.Err()
		case <-timer.C:
		}
		next := time.Duration(float64(backoff) * policy.BackoffFactor)
		if next > policy.MaxBackoff {
			next = policy.MaxBackoff
		}
		backoff = next
	}
}
