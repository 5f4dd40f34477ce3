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

// Package gateway is the boundary to the chat protocol client. Everything
// behind ProtocolGateway is owned by the host application; this package only
// normalizes what comes back and applies bounded retries.
package gateway

import (
	"context"

	"github.com/efchatnet/privchat/backend/models"
)

// StateEvent is a key addressed room configuration record.
type StateEvent struct {
	Type     string         `json:"type"`
	StateKey string         `json:"state_key"`
	Content  map[string]any `json:"content"`
}

// CreateRoomRequest is the room creation body. InitialState is applied
// atomically with creation.
type CreateRoomRequest struct {
	Name         string       `json:"name,omitempty"`
	Topic        string       `json:"topic,omitempty"`
	Preset       string       `json:"preset,omitempty"`
	Visibility   string       `json:"visibility,omitempty"`
	InitialState []StateEvent `json:"initial_state,omitempty"`
}

// RoomHandle is the locally synced view of a room.
type RoomHandle interface {
	// StateEvent returns the content of the current state event, if any.
	StateEvent(eventType, stateKey string) (map[string]any, bool)
}

// CryptoHandle exposes the key backup surface of the crypto provider.
type CryptoHandle interface {
	// BackupInfo returns nil when the server holds no backup.
	BackupInfo(ctx context.Context) (*models.BackupInfo, error)
	BackupTrust(ctx context.Context, info *models.BackupInfo) (*models.BackupTrust, error)
	CreateBackup(ctx context.Context) (*models.BackupCreated, error)
	RestoreBackup(ctx context.Context, recoveryKey string) (*models.RestoreResult, error)
}

// ProtocolGateway is the call surface of the underlying chat protocol client.
// CreateRoom and SendEvent may return whatever shape the backend produces;
// use Client to get canonical identifiers.
type ProtocolGateway interface {
	CreateRoom(ctx context.Context, req CreateRoomRequest) (any, error)
	Invite(ctx context.Context, roomID, userID string) error
	SendStateEvent(ctx context.Context, roomID, eventType string, content map[string]any, stateKey string) error
	SendEvent(ctx context.Context, roomID, eventType string, content map[string]any, txnID string) (any, error)
	RedactEvent(ctx context.Context, roomID, eventID, reason string) error
	GetRoom(roomID string) (RoomHandle, bool)
	Crypto() (CryptoHandle, bool)
	Connected() bool
	UserID() string
}
