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
	"encoding/json"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/gorilla/mux"

	"github.com/efchatnet/privchat/backend/models"
)

type RoomHandler struct {
	sessions Sessions
	log      *log.Logger
}

func NewRoomHandler(sessions Sessions, logger *log.Logger) *RoomHandler {
	return &RoomHandler{sessions: sessions, log: logger.WithPrefix("[RoomHandler]")}
}

// CreateRoom creates an encrypted private room and invites the participants.
func (h *RoomHandler) CreateRoom(w http.ResponseWriter, r *http.Request) {
	m, ok := session(w, r, h.sessions)
	if !ok {
		return
	}

	var req struct {
		Participants          []string `json:"participants"`
		Name                  string   `json:"name"`
		Topic                 string   `json:"topic"`
		EncryptionLevel       string   `json:"encryption_level"`
		SelfDestructDefaultMs int64    `json:"self_destruct_default_ms"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	level, err := models.ParseEncryptionLevel(req.EncryptionLevel)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	selfDestructDefault, err := models.SelfDestructFromMs(req.SelfDestructDefaultMs)
	if err != nil {
		writeError(w, err)
		return
	}

	res, err := m.CreateRoom(r.Context(), models.CreateOptions{
		Participants:        req.Participants,
		Name:                req.Name,
		Topic:               req.Topic,
		EncryptionLevel:     level,
		SelfDestructDefault: selfDestructDefault,
	})
	if err != nil {
		h.log.Error("failed to create private room", "user", m.UserID(), "err", err)
		writeError(w, err)
		return
	}

	failed := make(map[string]string, len(res.FailedInvites))
	for userID, err := range res.FailedInvites {
		failed[userID] = err.Error()
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"room_id":                  res.Room.RoomID,
		"participants":             res.Room.Participants,
		"encryption_level":         res.Room.EncryptionLevel,
		"self_destruct_default_ms": res.Room.SelfDestructDefault.Milliseconds(),
		"failed_invites":           failed,
	})
}

// GetEncryption reports the current encryption state of a room.
func (h *RoomHandler) GetEncryption(w http.ResponseWriter, r *http.Request) {
	m, ok := session(w, r, h.sessions)
	if !ok {
		return
	}
	state := m.EncryptionStatus(mux.Vars(r)["roomId"])
	writeJSON(w, http.StatusOK, map[string]any{
		"state":    state,
		"sendable": state.Sendable(),
	})
}
