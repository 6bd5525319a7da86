package chain

import (
	"context"
	"errors"
	"time"

	"github.com/avast/retry-go/v4"
)

// RetryPolicy bounds how often an operation class is retried on connectivity
// failures. Other error classes are returned on the first attempt.
type RetryPolicy struct {
	Attempts uint
	Delay    time.Duration
	MaxDelay time.Duration
}

// NoRetry runs an operation exactly once.
var NoRetry = RetryPolicy{Attempts: 1}

// Do runs op with exponential backoff between attempts.
func (p RetryPolicy) Do(ctx context.Context, op func() error) error {
	attempts := p.Attempts
	if attempts == 0 {
		// retry-go treats zero attempts as unbounded.
		attempts = 1
	}
	opts := []retry.Option{
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(p.Delay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return errors.Is(err, ErrConnectivity)
		}),
	}
	if p.MaxDelay > 0 {
		opts = append(opts, retry.MaxDelay(p.MaxDelay))
	}
	return retry.Do(op, opts...)
}
