package store

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/vedran77/pulsechat/internal/domain"
)

// RetryPolicy bounds retries of transient repository failures.
type RetryPolicy struct {
	Initial     time.Duration
	MaxElapsed  time.Duration
	MaxAttempts uint64
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Initial:     50 * time.Millisecond,
		MaxElapsed:  2 * time.Second,
		MaxAttempts: 5,
	}
}

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	if p.Initial > 0 {
		b.InitialInterval = p.Initial
	}
	if p.MaxElapsed > 0 {
		b.MaxElapsedTime = p.MaxElapsed
	}
	var bo backoff.BackOff = b
	if p.MaxAttempts > 0 {
		bo = backoff.WithMaxRetries(bo, p.MaxAttempts)
	}
	return backoff.WithContext(bo, ctx)
}

// retry runs op until it succeeds or returns a non-transient error, or until the policy
// gives up. onRetry is called before every new attempt.
func retry(ctx context.Context, p RetryPolicy, op func() error, onRetry func(err error, wait time.Duration)) error {
	wrapped := func() error {
		err := op()
		if err != nil && !errors.Is(err, domain.ErrTransient) {
			return backoff.Permanent(err)
		}
		return err
	}
	return backoff.RetryNotify(wrapped, p.backOff(ctx), onRetry)
}
