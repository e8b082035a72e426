package service

import (
	"context"
	"time"
)

type Options struct {
	// TxTimeout bounds every operation; past it the transaction aborts and
	// the caller gets a transient failure
	TxTimeout time.Duration

	// CheckoutLockTTL must exceed TxTimeout
	CheckoutLockTTL time.Duration

	// IdempotencyTTL is how long a checkout request id maps to its order
	IdempotencyTTL time.Duration
}

func DefaultOptions() Options {
	return Options{
		TxTimeout:       5 * time.Second,
		CheckoutLockTTL: 10 * time.Second,
		IdempotencyTTL:  24 * time.Hour,
	}
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
