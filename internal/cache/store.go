// Package cache provides the shared keyed stores that coordinate output and
// results between concurrent console requests. Entries are volatile: a store
// may drop any key at any time under its size or TTL policy.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotFound is returned by Store.Get when the key has no live entry.
var ErrNotFound = errors.New("cache: key not found")

// Store is a thread-safe key/value store with independent entries per key.
//
// Contract:
//   - Concurrency: implementations must be safe for concurrent use.
//   - Eviction: a missing key means "data unavailable", never corruption.
//   - Ownership: values passed to Put and returned by Get are copies.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Remove(ctx context.Context, keys ...string) error
}

// Backend names accepted by Open.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Options selects and sizes a Store.
type Options struct {
	Backend  string
	Capacity int           // memory backend only
	TTL      time.Duration // zero disables expiry
	Prefix   string        // key namespace, redis backend only

	// Client is the shared redis client used by the redis backend.
	Client redis.UniversalClient
}

// Open builds the Store described by opts.
func Open(opts Options) (Store, error) {
	switch opts.Backend {
	case "", BackendMemory:
		return NewMemoryStore(opts.Capacity, opts.TTL), nil
	case BackendRedis:
		if opts.Client == nil {
			return nil, fmt.Errorf("cache: redis backend requires a client")
		}
		return NewRedisStore(opts.Client, opts.Prefix, opts.TTL), nil
	default:
		return nil, fmt.Errorf("cache: unknown backend %q", opts.Backend)
	}
}

// GetJSON loads key from s and decodes it into v.
func GetJSON(ctx context.Context, s Store, key string, v any) error {
	data, err := s.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decoding %s: %w", key, err)
	}
	return nil
}

// PutJSON encodes v and stores it under key.
func PutJSON(ctx context.Context, s Store, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}
	return s.Put(ctx, key, data)
}
