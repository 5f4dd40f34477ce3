// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/efchatnet/privchat/backend/storage"
)

const kvPrefix = "privchat:kv:" // privchat:kv:{key} - raw value

// KV stores values as plain Redis strings with no TTL; expiry of
// self-destruct timers is driven by the scheduler, not by Redis.
type KV struct {
	rdb *redis.Client
}

func NewKV(rdb *redis.Client) *KV {
	return &KV{rdb: rdb}
}

func (s *KV) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.rdb.Get(ctx, kvPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s: %w", key, err)
	}
	return data, nil
}

func (s *KV) Set(ctx context.Context, key string, value []byte) error {
	if err := s.rdb.Set(ctx, kvPrefix+key, value, 0).Err(); err != nil {
		return fmt.Errorf("failed to store %s: %w", key, err)
	}
	return nil
}

func (s *KV) Delete(ctx context.Context, key string) error {
	if err := s.rdb.Del(ctx, kvPrefix+key).Err(); err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

// Close leaves the client open; it is owned by whoever created it.
func (s *KV) Close() error { return nil }
