package interfaces

import (
	"context"
	"errors"
	"time"
)

// ErrKeyNotFound is returned by KeyValueStore.Get for absent keys. Callers
// rely on it to distinguish "still pending" from store faults.
var ErrKeyNotFound = errors.New("key not found")

// ErrInvalidLocationURI is returned by the storage factory for URIs it
// cannot parse or whose scheme it does not support.
var ErrInvalidLocationURI = errors.New("invalid store location URI")

// KeyValueStore is the typed accessor over the external key-value store.
// It is the only shared mutable resource in the system; all session,
// auth-state, certificate and rate-limit records live behind it and the
// service process keeps no state of its own. The interface carries exactly
// the operations the service performs; keys are only ever removed by the
// store's own expiry or inside ReplaceAndPush, and the signing queues are
// only ever pushed to as part of a digest submission.
//
// Two operations are composite and must be applied atomically by the
// implementation (a transactional pipeline on Redis):
//
//   - ReplaceAndPush: delete + set-with-TTL + list-push, used to attach a
//     digest to a session and queue the signing request as one unit.
//   - IncrementWindow: ensure-exists-at-zero + increment + refresh-TTL,
//     used by the rate limiter so concurrent hits are never undercounted.
type KeyValueStore interface {
	// Get returns the value stored under key, or ErrKeyNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// SetWithTTL stores value under key with the given expiry.
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Exists reports whether key is present.
	Exists(ctx context.Context, key string) (bool, error)

	// ReplaceAndPush atomically deletes key, rewrites it with value and
	// ttl, and prepends payload to the named list.
	ReplaceAndPush(ctx context.Context, key string, value []byte, ttl time.Duration, list string, payload []byte) error

	// IncrementWindow atomically increments the counter under key,
	// creating it at zero if absent, and refreshes its expiry to window.
	// Returns the post-increment count.
	IncrementWindow(ctx context.Context, key string, window time.Duration) (int64, error)

	// Expire resets the expiry of key.
	Expire(ctx context.Context, key string, ttl time.Duration) error

	// Close releases the underlying connections.
	Close() error
}
