package driven

import "context"

// Vault persists credential material under stable string keys and survives
// process restarts. It is the single source of truth for client
// configuration and token sets.
//
// Guarantees expected from every implementation:
//   - A failed write does not partially apply.
//   - Load returns the most recent successful write, or ok=false.
//   - Delete of an absent key is not an error.
//   - Concurrent readers never observe half of a SaveMany batch.
type Vault interface {
	// Save stores one value.
	Save(ctx context.Context, key, value string) error

	// Load returns the value and whether the key exists.
	Load(ctx context.Context, key string) (value string, ok bool, err error)

	// Delete removes a key. Idempotent.
	Delete(ctx context.Context, key string) error

	// SaveMany stores all values atomically.
	SaveMany(ctx context.Context, values map[string]string) error

	// DeleteMany removes all keys atomically. Idempotent.
	DeleteMany(ctx context.Context, keys ...string) error
}
