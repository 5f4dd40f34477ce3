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

// Package encryption judges whether a room's encryption state allows sending.
package encryption

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/charmbracelet/log"

	"github.com/efchatnet/privchat/backend/gateway"
	"github.com/efchatnet/privchat/backend/models"
)

// RoomSource looks up the locally synced view of a room.
type RoomSource interface {
	GetRoom(roomID string) (gateway.RoomHandle, bool)
}

// Verifier reads the m.room.encryption state event on every call.
// Nothing is cached: room state can change between two sends.
type Verifier struct {
	rooms RoomSource
	log   *log.Logger
}

func NewVerifier(rooms RoomSource, logger *log.Logger) *Verifier {
	return &Verifier{
		rooms: rooms,
		log:   logger.WithPrefix("[Encryption]"),
	}
}

// Status derives the encryption state of a room. A missing room or
// encryption event yields the zero state.
func (v *Verifier) Status(roomID string) models.EncryptionState {
	room, ok := v.rooms.GetRoom(roomID)
	if !ok {
		return models.EncryptionState{}
	}
	return stateOf(room)
}

// stateOf reads the encryption event of a synced room. An event without an
// algorithm still marks the room encrypted, with an algorithm that cannot
// match.
func stateOf(room gateway.RoomHandle) models.EncryptionState {
	var state models.EncryptionState
	content, ok := room.StateEvent(models.EncryptionEventType, "")
	if !ok || content == nil {
		return state
	}

	algorithm, _ := content["algorithm"].(string)
	state.IsEncrypted = true
	state.Algorithm = algorithm
	state.IsCorrectAlgorithm = algorithm == models.ExpectedAlgorithm
	state.RotationPeriodMs = intField(content, "rotation_period_ms")
	state.RotationPeriodMsgs = intField(content, "rotation_period_msgs")
	return state
}

// Verify reports whether the room is safe to send to.
func (v *Verifier) Verify(roomID string) bool {
	state := v.Status(roomID)
	if !state.Sendable() {
		v.log.Warn("room failed encryption verification",
			"room", roomID, "encrypted", state.IsEncrypted, "algorithm", state.Algorithm)
		return false
	}
	return true
}

// AssertSendable is the gate run immediately before every send.
func (v *Verifier) AssertSendable(roomID string) (models.EncryptionState, error) {
	room, ok := v.rooms.GetRoom(roomID)
	if !ok {
		return models.EncryptionState{}, fmt.Errorf("%w: %s", models.ErrRoomNotFound, roomID)
	}
	state := stateOf(room)
	if !state.IsEncrypted {
		return state, fmt.Errorf("%w: %s", models.ErrEncryptionNotConfigured, roomID)
	}
	if !state.IsCorrectAlgorithm {
		return state, fmt.Errorf("%w: %s uses %q, expected %q",
			models.ErrEncryptionAlgorithmMismatch, roomID, state.Algorithm, models.ExpectedAlgorithm)
	}
	return state, nil
}

func intField(content map[string]any, key string) *int64 {
	var n int64
	switch v := content[key].(type) {
	case int:
		n = int64(v)
	case int32:
		n = int64(v)
	case int64:
		n = v
	case float64:
		if v != math.Trunc(v) {
			return nil
		}
		n = int64(v)
	case json.Number:
		i, err := v.Int64()
		if err != nil {
			return nil
		}
		n = i
	default:
		return nil
	}
	return &n
}
