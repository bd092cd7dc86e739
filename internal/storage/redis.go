package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"

	"github.com/ugoite/ugoite/internal/tracing"
)

// Redis is an Operator backed by a Redis keyspace. Key paths map directly
// to Redis string keys; values are stored without expiry.
type Redis struct {
	client *redis.Client
}

// NewRedis creates a Redis operator from a redis:// or rediss:// URI.
func NewRedis(uri string) (*Redis, error) {
	opts, err := redis.ParseURL(uri)
	if err != nil {
		return nil, fmt.Errorf("storage: invalid redis URI: %w", err)
	}
	return &Redis{client: redis.NewClient(opts)}, nil
}

// Exists reports whether the key exists.
func (r *Redis) Exists(ctx context.Context, path string) (ok bool, err error) {
	if path == "" {
		return false, ErrEmptyPath
	}
	ctx, end := tracing.StartStorageSpan(ctx, "redis", tracing.StorageOperationExists)
	defer func() { end(err) }()

	n, err := r.client.Exists(ctx, path).Result()
	if err != nil {
		return false, fmt.Errorf("storage: exists %s: %w", path, err)
	}
	return n > 0, nil
}

// Read returns the value at path, or ErrNotFound.
func (r *Redis) Read(ctx context.Context, path string) (data []byte, err error) {
	if path == "" {
		return nil, ErrEmptyPath
	}
	ctx, end := tracing.StartStorageSpan(ctx, "redis", tracing.StorageOperationRead)
	defer func() { end(err) }()

	data, err = r.client.Get(ctx, path).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("storage: get %s: %w", path, err)
	}
	return data, nil
}

// Write replaces the value at path with a single SET.
func (r *Redis) Write(ctx context.Context, path string, data []byte) (err error) {
	if path == "" {
		return ErrEmptyPath
	}
	ctx, end := tracing.StartStorageSpan(ctx, "redis", tracing.StorageOperationWrite)
	defer func() { end(err) }()

	if err := r.client.Set(ctx, path, data, 0).Err(); err != nil {
		return fmt.Errorf("storage: set %s: %w", path, err)
	}
	return nil
}

// CreateDir is a no-op for the flat Redis keyspace.
func (r *Redis) CreateDir(_ context.Context, _ string) error {
	return nil
}

// List returns all keys under prefix via SCAN, sorted ascending.
func (r *Redis) List(ctx context.Context, prefix string) (keys []string, err error) {
	ctx, end := tracing.StartStorageSpan(ctx, "redis", tracing.StorageOperationList)
	defer func() { end(err) }()

	iter := r.client.Scan(ctx, 0, prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("storage: scan %s: %w", prefix, err)
	}
	sort.Strings(keys)
	return keys, nil
}

// Close releases the underlying Redis connection pool.
func (r *Redis) Close() error {
	return r.client.Close()
}
