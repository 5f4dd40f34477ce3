// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package integration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/efchatnet/privchat/backend/config"
	"github.com/efchatnet/privchat/backend/storage"
	"github.com/efchatnet/privchat/backend/storage/bolt"
	"github.com/efchatnet/privchat/backend/storage/file"
	"github.com/efchatnet/privchat/backend/storage/memory"
	"github.com/efchatnet/privchat/backend/storage/postgres"
	redisstore "github.com/efchatnet/privchat/backend/storage/redis"
	"github.com/efchatnet/privchat/backend/storage/sqlite"
)

// Backend is an opened storage backend and whatever must be closed with it.
type Backend struct {
	KV    storage.KV
	DB    *sql.DB
	Redis *redis.Client
}

// Close closes the KV and any connections opened for it.
func (b *Backend) Close() error {
	var errs []error
	if b.KV != nil {
		errs = append(errs, b.KV.Close())
	}
	if b.DB != nil {
		errs = append(errs, b.DB.Close())
	}
	if b.Redis != nil {
		errs = append(errs, b.Redis.Close())
	}
	return errors.Join(errs...)
}

// OpenRedis connects to a Redis server given as host:port or redis:// URL.
func OpenRedis(ctx context.Context, addr string) (*redis.Client, error) {
	opts, err := redis.ParseURL(addr)
	if err != nil {
		opts = &redis.Options{Addr: addr}
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return rdb, nil
}

// OpenStorage opens the configured timer storage backend. Postgres tables
// are migrated on open.
func OpenStorage(ctx context.Context, cfg *config.Storage) (*Backend, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		return &Backend{KV: memory.New()}, nil

	case config.BackendFile:
		if err := os.MkdirAll(cfg.Path, 0o700); err != nil {
			return nil, fmt.Errorf("failed to create storage directory: %w", err)
		}
		kv, err := file.New(cfg.Path)
		if err != nil {
			return nil, err
		}
		return &Backend{KV: kv}, nil

	case config.BackendBolt:
		kv, err := bolt.Open(cfg.Path)
		if err != nil {
			return nil, err
		}
		return &Backend{KV: kv}, nil

	case config.BackendSQLite:
		kv, err := sqlite.Open(cfg.Path)
		if err != nil {
			return nil, err
		}
		return &Backend{KV: kv}, nil

	case config.BackendRedis:
		rdb, err := OpenRedis(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		return &Backend{KV: redisstore.NewKV(rdb), Redis: rdb}, nil

	case config.BackendPostgres:
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		store := postgres.NewStore(db)
		if err := store.Ping(ctx); err != nil {
			db.Close()
			return nil, err
		}
		if err := store.Migrate(); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		return &Backend{KV: store, DB: db}, nil
	}
	return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
}
