package port

import (
	"context"
	"time"
)

type CacheRepository interface {
	// AcquireLock sets key to a fresh token if absent, returns false if already held
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (token string, ok bool, err error)

	// ReleaseLock deletes key only if it still holds token
	ReleaseLock(ctx context.Context, key, token string) error

	// GetIdempotency returns the value stored under key, empty if none
	GetIdempotency(ctx context.Context, key string) (string, error)

	SetIdempotency(ctx context.Context, key, value string, ttl time.Duration) error
}
