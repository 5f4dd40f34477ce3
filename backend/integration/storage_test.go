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

package integration_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/efchatnet/privchat/backend/config"
	"github.com/efchatnet/privchat/backend/integration"
	"github.com/efchatnet/privchat/backend/storage"
)

func TestOpenStorage(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	for _, tc := range []config.Storage{
		{Backend: config.BackendMemory},
		{Backend: config.BackendFile, Path: filepath.Join(dir, "timers")},
		{Backend: config.BackendBolt, Path: filepath.Join(dir, "privchat.db")},
		{Backend: config.BackendSQLite, Path: filepath.Join(dir, "privchat.sqlite")},
	} {
		t.Run(tc.Backend, func(t *testing.T) {
			require := require.New(t)
			backend, err := integration.OpenStorage(ctx, &tc)
			require.NoError(err)

			require.NoError(backend.KV.Set(ctx, "k", []byte("v")))
			v, err := backend.KV.Get(ctx, "k")
			require.NoError(err)
			require.Equal([]byte("v"), v)
			require.NoError(backend.Close())
		})
	}
}

func TestOpenStorageUnknownBackend(t *testing.T) {
	_, err := integration.OpenStorage(context.Background(), &config.Storage{Backend: "tape"})
	require.Error(t, err)
}

func TestOpenStorageMissingKey(t *testing.T) {
	backend, err := integration.OpenStorage(context.Background(), &config.Storage{Backend: config.BackendMemory})
	require.NoError(t, err)
	defer backend.Close()

	_, err = backend.KV.Get(context.Background(), "absent")
	require.ErrorIs(t, err, storage.ErrNotFound)
}
