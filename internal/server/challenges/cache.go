// Package challenges stores short-lived, single-use ceremony state between
// the "begin" and "complete" halves of a passkey ceremony (and the OAuth
// state of the Google login).
package challenges

import (
	"context"
	"time"
)

// Cache is a key/value store with per-key TTL. Every stored value is read at
// most once: Take returns common.ErrorNotFound for keys that are missing or
// expired, so callers cannot tell the two apart.
type Cache interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Take atomically returns and deletes key.
	Take(ctx context.Context, key string) ([]byte, error)
}
