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

package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/require"

	"github.com/efchatnet/privchat/backend/middleware"
	"github.com/efchatnet/privchat/backend/models"
	"github.com/efchatnet/privchat/backend/privatechat"
)

func TestWriteErrorStatus(t *testing.T) {
	for _, tc := range []struct {
		err    error
		status int
	}{
		{models.ErrEncryptionNotConfigured, http.StatusPreconditionFailed},
		{models.ErrEncryptionAlgorithmMismatch, http.StatusPreconditionFailed},
		{models.ErrInvalidTimeout, http.StatusBadRequest},
		{models.ErrInvalidMessage, http.StatusBadRequest},
		{models.ErrInvalidRecoveryKey, http.StatusBadRequest},
		{models.ErrRoomSyncTimeout, http.StatusGatewayTimeout},
		{models.ErrRoomCreationFailed, http.StatusBadGateway},
		{models.ErrEncryptionSetupFailed, http.StatusBadGateway},
		{models.ErrSendFailed, http.StatusBadGateway},
		{models.ErrKeyBackupCreationFailed, http.StatusBadGateway},
		{models.ErrKeyBackupRestoreFailed, http.StatusBadGateway},
		{models.ErrTimerExists, http.StatusConflict},
		{models.ErrSchedulerNotReady, http.StatusServiceUnavailable},
		{privatechat.ErrDisposed, http.StatusServiceUnavailable},
		{models.ErrRoomNotFound, http.StatusNotFound},
		{errors.New("boom"), http.StatusInternalServerError},
	} {
		t.Run(tc.err.Error(), func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeError(rec, fmt.Errorf("wrapped: %w", tc.err))

			require.Equal(t, tc.status, rec.Code)
			var body map[string]string
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
			require.NotEmpty(t, body["error"])
		})
	}
}

type sessionsFunc func(ctx context.Context, userID string) (*privatechat.Manager, error)

func (f sessionsFunc) Session(ctx context.Context, userID string) (*privatechat.Manager, error) {
	return f(ctx, userID)
}

func TestHandlersRequireUser(t *testing.T) {
	called := false
	sessions := sessionsFunc(func(context.Context, string) (*privatechat.Manager, error) {
		called = true
		return nil, errors.New("unreachable")
	})
	h := NewMessageHandler(sessions, log.New(io.Discard))

	rec := httptest.NewRecorder()
	h.ListTimers(rec, httptest.NewRequest(http.MethodGet, "/api/private/timers", nil))

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.False(t, called)
}

func TestSessionFailureIsUnavailable(t *testing.T) {
	sessions := sessionsFunc(func(_ context.Context, userID string) (*privatechat.Manager, error) {
		require.Equal(t, "@alice:test", userID)
		return nil, errors.New("gateway down")
	})
	h := NewBackupHandler(sessions, log.New(io.Discard))

	req := httptest.NewRequest(http.MethodGet, "/api/private/backup/status", nil)
	req = req.WithContext(middleware.WithClaims(req.Context(), &middleware.Claims{UserID: "@alice:test"}))
	rec := httptest.NewRecorder()
	h.GetStatus(rec, req)

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
