// Package redisstore backs keyvalue.Store with Redis so verdicts survive
// process restarts.
package redisstore

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"

	"purchasekit/keyvalue"
)

// Store persists values in Redis under an optional key prefix.
type Store struct {
	client *redis.Client
	prefix string
}

// New wraps an existing Redis client. The prefix, if non-empty, namespaces
// every key so several installations can share one database.
func New(client *redis.Client, prefix string) *Store {
	return &Store{client: client, prefix: prefix}
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, keyvalue.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	return s.client.Set(ctx, s.prefix+key, value, 0).Err()
}

func (s *Store) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.prefix+key).Err()
}
