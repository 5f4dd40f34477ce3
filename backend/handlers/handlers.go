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
	"net/http"

	"github.com/efchatnet/privchat/backend/middleware"
	"github.com/efchatnet/privchat/backend/models"
	"github.com/efchatnet/privchat/backend/privatechat"
)

// Sessions resolves the private chat session of an authenticated user.
type Sessions interface {
	Session(ctx context.Context, userID string) (*privatechat.Manager, error)
}

func session(w http.ResponseWriter, r *http.Request, sessions Sessions) (*privatechat.Manager, bool) {
	userID, ok := middleware.GetUserID(r)
	if !ok || userID == "" {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return nil, false
	}
	m, err := sessions.Session(r.Context(), userID)
	if err != nil {
		http.Error(w, "Failed to open private chat session", http.StatusServiceUnavailable)
		return nil, false
	}
	return m, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps the error taxonomy onto HTTP statuses with a message the
// UI can show as is.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	message := "Internal error"

	switch {
	case errors.Is(err, models.ErrEncryptionNotConfigured):
		status, message = http.StatusPreconditionFailed, "Room is not encrypted; message was not sent"
	case errors.Is(err, models.ErrEncryptionAlgorithmMismatch):
		status, message = http.StatusPreconditionFailed, "Room uses an unexpected encryption algorithm; message was not sent"
	case errors.Is(err, models.ErrInvalidTimeout),
		errors.Is(err, models.ErrInvalidMessage):
		status, message = http.StatusBadRequest, err.Error()
	case errors.Is(err, models.ErrInvalidRecoveryKey):
		status, message = http.StatusBadRequest, "Recovery key is not valid; check it and try again"
	case errors.Is(err, models.ErrRoomSyncTimeout):
		status, message = http.StatusGatewayTimeout, "Room was created but did not sync in time; try again"
	case errors.Is(err, models.ErrRoomCreationFailed):
		status, message = http.StatusBadGateway, "Room could not be created"
	case errors.Is(err, models.ErrEncryptionSetupFailed):
		status, message = http.StatusBadGateway, "Encryption could not be enabled for the room"
	case errors.Is(err, models.ErrSendFailed):
		status, message = http.StatusBadGateway, "Message could not be sent"
	case errors.Is(err, models.ErrKeyBackupCreationFailed):
		status, message = http.StatusBadGateway, "Key backup could not be created"
	case errors.Is(err, models.ErrKeyBackupRestoreFailed):
		status, message = http.StatusBadGateway, "Key backup could not be restored"
	case errors.Is(err, models.ErrTimerExists):
		status, message = http.StatusConflict, "Message already has a self-destruct timer"
	case errors.Is(err, models.ErrSchedulerNotReady),
		errors.Is(err, privatechat.ErrDisposed):
		status, message = http.StatusServiceUnavailable, "Private chat session is not ready; try again"
	case errors.Is(err, models.ErrRoomNotFound):
		status, message = http.StatusNotFound, "Room not found"
	}

	writeJSON(w, status, map[string]string{"error": message})
}
