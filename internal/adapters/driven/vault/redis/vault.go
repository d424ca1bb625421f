// Package redis provides a credential vault stored in a Redis hash, for
// deployments where several processes share one NetSuite connection.
package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/custodia-labs/suitelink/internal/core/ports/driven"
)

// DefaultHashKey is the hash holding all vault entries.
const DefaultHashKey = "suitelink:vault"

// Ensure Vault implements the interface.
var _ driven.Vault = (*Vault)(nil)

// Options configures the Redis connection.
type Options struct {
	Addr     string
	Password string
	DB       int
	// HashKey overrides DefaultHashKey.
	HashKey string
}

// Vault stores entries as fields of a single Redis hash.
type Vault struct {
	client *redis.Client
	key    string
}

// NewVault connects to Redis and verifies the connection.
func NewVault(ctx context.Context, opts Options) (*Vault, error) {
	if opts.Addr == "" {
		return nil, errors.New("redis address is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis at %s: %w", opts.Addr, err)
	}
	return NewVaultFromClient(client, opts.HashKey), nil
}

// NewVaultFromClient wraps an existing client.
func NewVaultFromClient(client *redis.Client, hashKey string) *Vault {
	if hashKey == "" {
		hashKey = DefaultHashKey
	}
	return &Vault{client: client, key: hashKey}
}

// Close closes the client.
func (v *Vault) Close() error {
	return v.client.Close()
}

// Save stores one value.
func (v *Vault) Save(ctx context.Context, key, value string) error {
	if err := v.client.HSet(ctx, v.key, key, value).Err(); err != nil {
		return fmt.Errorf("saving vault entry: %w", err)
	}
	return nil
}

// Load returns the value stored under key.
func (v *Vault) Load(ctx context.Context, key string) (string, bool, error) {
	val, err := v.client.HGet(ctx, v.key, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("loading vault entry: %w", err)
	}
	return val, true, nil
}

// Delete removes key.
func (v *Vault) Delete(ctx context.Context, key string) error {
	return v.DeleteMany(ctx, key)
}

// SaveMany writes all values inside MULTI/EXEC.
func (v *Vault) SaveMany(ctx context.Context, values map[string]string) error {
	if len(values) == 0 {
		return nil
	}
	fields := make([]any, 0, len(values)*2)
	for k, val := range values {
		fields = append(fields, k, val)
	}
	_, err := v.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, v.key, fields...)
		return nil
	})
	if err != nil {
		return fmt.Errorf("saving vault entries: %w", err)
	}
	return nil
}

// DeleteMany removes all keys inside MULTI/EXEC.
func (v *Vault) DeleteMany(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	_, err := v.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HDel(ctx, v.key, keys...)
		return nil
	})
	if err != nil {
		return fmt.Errorf("deleting vault entries: %w", err)
	}
	return nil
}
