// Package ttlstore provides a small expiring-key primitive used for
// cooldowns and throttles: "has key K been set within the last TTL?".
//
// Two drivers are provided. The in-memory driver suits single-process
// deployments and tests; the Redis driver shares state across replicas.
package ttlstore

import (
	"context"
	"time"
)

// Store tracks keys that expire after a TTL.
type Store interface {
	// Acquire sets key for ttl if it is not already held. It returns true
	// when the key was acquired and false when a live entry already exists.
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// Exists reports whether key is currently held.
	Exists(ctx context.Context, key string) (bool, error)

	// Release drops key before its TTL elapses. Releasing an absent key is
	// not an error.
	Release(ctx context.Context, key string) error
}
