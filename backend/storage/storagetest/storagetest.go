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

// Package storagetest holds the conformance tests every storage.KV
// backend must pass.
package storagetest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/efchatnet/privchat/backend/models"
	"github.com/efchatnet/privchat/backend/storage"
)

// RunKV exercises kv directly and through storage.Timers.
// The backend must start empty.
func RunKV(t *testing.T, kv storage.KV) {
	t.Helper()
	ctx := context.Background()

	t.Run("raw", func(t *testing.T) {
		require := require.New(t)

		_, err := kv.Get(ctx, "missing")
		require.ErrorIs(err, storage.ErrNotFound)

		require.NoError(kv.Set(ctx, "k", []byte("v1")))
		v, err := kv.Get(ctx, "k")
		require.NoError(err)
		require.Equal([]byte("v1"), v)

		require.NoError(kv.Set(ctx, "k", []byte("v2")))
		v, err = kv.Get(ctx, "k")
		require.NoError(err)
		require.Equal([]byte("v2"), v)

		require.NoError(kv.Delete(ctx, "k"))
		_, err = kv.Get(ctx, "k")
		require.ErrorIs(err, storage.ErrNotFound)

		require.NoError(kv.Delete(ctx, "k"))
	})

	t.Run("timers", func(t *testing.T) {
		require := require.New(t)
		timers := storage.NewTimers(kv)

		all, err := timers.Load(ctx)
		require.NoError(err)
		require.Empty(all)

		a := models.SelfDestructTimer{RoomID: "!a:hs", EventID: "$1", DestroyTime: 1000, TimeoutMs: 500}
		b := models.SelfDestructTimer{RoomID: "!b:hs", EventID: "$2", DestroyTime: 2000, TimeoutMs: 700}
		require.NoError(timers.Put(ctx, a))
		require.NoError(timers.Put(ctx, b))

		all, err = timers.Load(ctx)
		require.NoError(err)
		require.Len(all, 2)
		require.Equal(a, all["!a:hs_$1"])
		require.Equal(b, all["!b:hs_$2"])

		got, ok, err := timers.Get(ctx, b.Key())
		require.NoError(err)
		require.True(ok)
		require.Equal(b, got)

		removed, err := timers.Delete(ctx, a.Key())
		require.NoError(err)
		require.True(removed)
		removed, err = timers.Delete(ctx, a.Key())
		require.NoError(err)
		require.False(removed)

		require.NoError(timers.Reset(ctx))
		all, err = timers.Load(ctx)
		require.NoError(err)
		require.Empty(all)
	})
}
