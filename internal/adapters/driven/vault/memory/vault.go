// Package memory provides an in-memory credential vault.
// It is used by tests and by the CLI's --vault=memory mode.
package memory

import (
	"context"
	"maps"
	"sync"
	"sync/atomic"

	"github.com/custodia-labs/suitelink/internal/core/ports/driven"
)

// Ensure Vault implements the interface.
var _ driven.Vault = (*Vault)(nil)

// Vault keeps values in an immutable map that is replaced wholesale on
// every write. Readers load the current map without locking, so a batch
// is either fully visible or not at all.
type Vault struct {
	mu     sync.Mutex // serialises writers
	values atomic.Pointer[map[string]string]
}

// NewVault creates an empty vault.
func NewVault() *Vault {
	v := &Vault{}
	empty := map[string]string{}
	v.values.Store(&empty)
	return v
}

// Save stores one value.
func (v *Vault) Save(ctx context.Context, key, value string) error {
	return v.SaveMany(ctx, map[string]string{key: value})
}

// Load returns the value and whether the key exists.
func (v *Vault) Load(_ context.Context, key string) (string, bool, error) {
	current := *v.values.Load()
	val, ok := current[key]
	return val, ok, nil
}

// Delete removes a key.
func (v *Vault) Delete(ctx context.Context, key string) error {
	return v.DeleteMany(ctx, key)
}

// SaveMany stores all values in one publish.
func (v *Vault) SaveMany(ctx context.Context, values map[string]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	next := maps.Clone(*v.values.Load())
	maps.Copy(next, values)
	v.values.Store(&next)
	return nil
}

// DeleteMany removes all keys in one publish.
func (v *Vault) DeleteMany(ctx context.Context, keys ...string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	next := maps.Clone(*v.values.Load())
	for _, k := range keys {
		delete(next, k)
	}
	v.values.Store(&next)
	return nil
}

// Len returns the number of stored keys.
func (v *Vault) Len() int {
	return len(*v.values.Load())
}
