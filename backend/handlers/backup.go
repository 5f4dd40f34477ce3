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
)

type BackupHandler struct {
	sessions Sessions
	log      *log.Logger
}

func NewBackupHandler(sessions Sessions, logger *log.Logger) *BackupHandler {
	return &BackupHandler{sessions: sessions, log: logger.WithPrefix("[BackupHandler]")}
}

func (h *BackupHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	m, ok := session(w, r, h.sessions)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, m.BackupStatus(r.Context()))
}

// CreateBackup creates a new backup version. The recovery key is only
// ever returned here.
func (h *BackupHandler) CreateBackup(w http.ResponseWriter, r *http.Request) {
	m, ok := session(w, r, h.sessions)
	if !ok {
		return
	}
	created, err := m.CreateBackup(r.Context())
	if err != nil {
		h.log.Error("failed to create key backup", "user", m.UserID(), "err", err)
		writeError(w, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusCreated, created)
}

func (h *BackupHandler) RestoreBackup(w http.ResponseWriter, r *http.Request) {
	m, ok := session(w, r, h.sessions)
	if !ok {
		return
	}
	var req struct {
		RecoveryKey string `json:"recovery_key"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	result, err := m.RestoreBackup(r.Context(), req.RecoveryKey)
	if err != nil {
		h.log.Warn("key backup restore failed", "user", m.UserID(), "err", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *BackupHandler) GetPrompt(w http.ResponseWriter, r *http.Request) {
	m, ok := session(w, r, h.sessions)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"should_prompt": m.ShouldPromptBackup(r.Context())})
}
