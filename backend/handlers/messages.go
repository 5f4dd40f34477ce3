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

type MessageHandler struct {
	sessions Sessions
	log      *log.Logger
}

func NewMessageHandler(sessions Sessions, logger *log.Logger) *MessageHandler {
	return &MessageHandler{sessions: sessions, log: logger.WithPrefix("[MessageHandler]")}
}

// SendMessage sends a text or content message. self_destruct_ms > 0 arms
// a self-destruct timer.
func (h *MessageHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	m, ok := session(w, r, h.sessions)
	if !ok {
		return
	}
	roomID := mux.Vars(r)["roomId"]

	var req struct {
		Body           json.RawMessage `json:"body"`
		SelfDestructMs int64           `json:"self_destruct_ms"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	var body any
	if len(req.Body) > 0 {
		if err := json.Unmarshal(req.Body, &body); err != nil {
			http.Error(w, "Invalid message body", http.StatusBadRequest)
			return
		}
	}

	timeout, err := models.SelfDestructFromMs(req.SelfDestructMs)
	if err != nil {
		writeError(w, err)
		return
	}
	eventID, err := m.Send(r.Context(), roomID, body, timeout)
	if err != nil {
		h.log.Warn("message not sent", "room", roomID, "err", err)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"event_id":         eventID,
		"self_destruct_ms": req.SelfDestructMs,
		"remaining_ms":     m.RemainingMs(roomID, eventID),
	})
}

// GetRemaining returns the time left before a message self-destructs.
func (h *MessageHandler) GetRemaining(w http.ResponseWriter, r *http.Request) {
	m, ok := session(w, r, h.sessions)
	if !ok {
		return
	}
	vars := mux.Vars(r)
	writeJSON(w, http.StatusOK, map[string]int64{
		"remaining_ms": m.RemainingMs(vars["roomId"], vars["eventId"]),
	})
}

// DestroyMessage destroys a message now.
func (h *MessageHandler) DestroyMessage(w http.ResponseWriter, r *http.Request) {
	m, ok := session(w, r, h.sessions)
	if !ok {
		return
	}
	vars := mux.Vars(r)
	if err := m.Destroy(r.Context(), vars["roomId"], vars["eventId"]); err != nil {
		h.log.Error("failed to destroy message", "room", vars["roomId"], "event", vars["eventId"], "err", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "destroyed"})
}

// ListTimers lists the armed self-destruct timers of the session.
func (h *MessageHandler) ListTimers(w http.ResponseWriter, r *http.Request) {
	m, ok := session(w, r, h.sessions)
	if !ok {
		return
	}
	timers := m.PendingTimers()
	writeJSON(w, http.StatusOK, map[string]any{
		"timers": timers,
		"count":  len(timers),
	})
}
