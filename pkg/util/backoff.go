package util

import (
	"time"

	"github.com/cenkalti/backoff"
)

// BackoffFactory creates a fresh backoff.BackOff for each retry loop.
type BackoffFactory func() backoff.BackOff

// NewBackoffFactory creates a new BackoffFactory based on a backoff.ExponentialBackoff.  A
// maxElapsedTime of zero never stops, a maxRetries of zero does not limit the attempts.
//
// backoff.ConstantBackoff appears to be more of a debug/testing backoff policy, rather than a real
// implementation.  It lacks features such as a maximum duration. Therefore, constant intervals use
// a backoff.ExponentialBackOff with a Multiplier of 1.0 as a replacement.
func NewBackoffFactory(clck backoff.Clock, multiplier, randomization float64, maxElapsedTime, interval time.Duration, maxRetries uint64) BackoffFactory {
	return func() backoff.BackOff {
		bo := backoff.NewExponentialBackOff()
		if clck != nil {
			bo.Clock = clck
		}
		bo.Multiplier = multiplier
		bo.RandomizationFactor = randomization
		bo.MaxElapsedTime = maxElapsedTime
		bo.InitialInterval = interval
		if bo.MaxInterval < interval {
			bo.MaxInterval = interval
		}
		bo.Reset() // Reset is required to make the InitialInterval change take effect.
		if maxRetries == 0 {
			return bo
		}
		return backoff.WithMaxRetries(bo, maxRetries)
	}
}

// NewReconnectBackoffFactory returns backoffs which wait exactly interval between attempts
// and never give up.
func NewReconnectBackoffFactory(clck backoff.Clock, interval time.Duration) BackoffFactory {
	return NewBackoffFactory(clck, 1.0, 0, 0, interval, 0)
}
