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

package cli

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/efchatnet/privchat/backend/backup"
	"github.com/efchatnet/privchat/backend/config"
	"github.com/efchatnet/privchat/backend/middleware"
	"github.com/efchatnet/privchat/backend/models"
	"github.com/efchatnet/privchat/backend/storage"
	"github.com/efchatnet/privchat/backend/storage/file"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append(args, "--env", filepath.Join(t.TempDir(), "missing.env")))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRecoveryKeyCheck(t *testing.T) {
	require := require.New(t)

	key, err := backup.EncodeRecoveryKey(bytes.Repeat([]byte{7}, 32))
	require.NoError(err)

	out, err := run(t, "recovery-key", "check", key)
	require.NoError(err)
	require.Contains(out, "valid")

	_, err = run(t, "recovery-key", "check", "not-a-key")
	require.ErrorIs(err, models.ErrInvalidRecoveryKey)
}

func TestTokenIsAcceptedByAuthMiddleware(t *testing.T) {
	require := require.New(t)
	t.Setenv("JWT_SECRET", "cli-secret")
	t.Setenv("JWT_ISSUER", "efchat")

	out, err := run(t, "token", "--user", "@alice:test")
	require.NoError(err)
	token := strings.TrimSpace(out)

	var got string
	h := middleware.NewAuthMiddleware("cli-secret", "efchat")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = middleware.GetUserID(r)
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(http.StatusOK, rec.Code)
	require.Equal("@alice:test", got)
}

func TestTokenRequiresSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	_, err := run(t, "token")
	require.Error(t, err)
}

func TestTimersList(t *testing.T) {
	require := require.New(t)
	dir := t.TempDir()

	kv, err := file.New(dir)
	require.NoError(err)
	timers := storage.NewTimers(storage.WithPrefix(kv, "@alice:test/"))
	ctx := context.Background()
	require.NoError(timers.Put(ctx, models.SelfDestructTimer{RoomID: "!room:test", EventID: "$late", DestroyTime: 1700000090000, TimeoutMs: 90000}))
	require.NoError(timers.Put(ctx, models.SelfDestructTimer{RoomID: "!room:test", EventID: "$early", DestroyTime: 1700000010000, TimeoutMs: 10000}))
	require.NoError(kv.Close())

	t.Setenv("PRIVCHAT_STORAGE", "file")
	t.Setenv("PRIVCHAT_STORAGE_PATH", dir)

	out, err := run(t, "timers", "list", "--user", "@alice:test")
	require.NoError(err)
	require.Contains(out, "ROOM")
	require.Contains(out, "!room:test")
	require.Less(strings.Index(out, "$early"), strings.Index(out, "$late"))
	require.Contains(out, "1m30s")

	out, err = run(t, "timers", "list", "--user", "@bob:test")
	require.NoError(err)
	require.Contains(out, "No pending timers for @bob:test")
}

func TestServeRequiresJWTSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	t.Setenv("PRIVCHAT_STORAGE", "memory")

	_, err := run(t, "serve")
	require.ErrorContains(t, err, "JWTSecret")
}

func TestNewLogger(t *testing.T) {
	require := require.New(t)

	path := filepath.Join(t.TempDir(), "privchat.log")
	logger, closeLog, err := newLogger(&config.Logging{File: path, Level: "debug"})
	require.NoError(err)
	logger.Info("hello")
	require.NoError(closeLog())

	_, _, err = newLogger(&config.Logging{Level: "loud"})
	require.Error(err)
}
