// Package retry implements the retrying RPC handler (C4): every operation
// against the KV or document store is wrapped so transient failures are
// retried with exponential backoff while the connection manager is told to
// force a reconnect on every attempt after the first.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sheetflow/sheetflow/common"
)

// Policy configures one store's retry behavior. Backoff is the exponential
// multiplier applied to Delay on each successive attempt.
type Policy struct {
	MaxRetries int
	Delay      time.Duration
	Backoff    float64
}

// Merge returns the composite policy for an operation that touches both p
// and other: the max of each field, per §4.2's "composite tasks handler
// takes the max of the two stores' configs" rule.
func (p Policy) Merge(other Policy) Policy {
	merged := p
	if other.MaxRetries > merged.MaxRetries {
		merged.MaxRetries = other.MaxRetries
	}
	if other.Delay > merged.Delay {
		merged.Delay = other.Delay
	}
	if other.Backoff > merged.Backoff {
		merged.Backoff = other.Backoff
	}
	return merged
}

// Op is an RPC-style operation given the attempt's force-reconnect flag.
type Op[T any] func(ctx context.Context, forceReconnect bool) (T, error)

// isTransient reports whether err should be retried, per §4.2: only errors
// classified KindTransient by the common error taxonomy.
func isTransient(err error) bool {
	return common.KindOf(err) == common.KindTransient
}

// Execute runs op up to policy.MaxRetries times. The first attempt passes
// forceReconnect=false; every subsequent attempt passes true, so the caller's
// connection manager reconnects before retrying. Non-transient errors are
// returned immediately, unretried. Exhausting all attempts returns the last
// error wrapped in ErrRetryExhausted.
func Execute[T any](ctx context.Context, policy Policy, op Op[T]) (T, error) {
	var zero T
	var lastErr error
	delay := policy.Delay

	for attempt := 1; attempt <= policy.MaxRetries; attempt++ {
		forceReconnect := attempt > 1

		result, err := op(ctx, forceReconnect)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !isTransient(err) {
			return zero, err
		}

		if attempt < policy.MaxRetries {
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(delay):
			}
			delay = time.Duration(float64(delay) * policy.Backoff)
		}
	}

	return zero, fmt.Errorf("%w: last error: %v", common.ErrRetryExhausted, lastErr)
}

// Exhausted reports whether err is the terminal error Execute returns after
// using up every retry attempt.
func Exhausted(err error) bool {
	return errors.Is(err, common.ErrRetryExhausted)
}
