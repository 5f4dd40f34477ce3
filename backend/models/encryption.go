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

package models

const (
	EncryptionEventType = "m.room.encryption"

	// ExpectedAlgorithm is the only algorithm a private room may use.
	ExpectedAlgorithm = "m.megolm.v1.aes-sha2"

	// RotationPeriodMs rotates sessions weekly regardless of level.
	RotationPeriodMs int64 = 7 * 24 * 60 * 60 * 1000
)

// EncryptionContent is the content of an m.room.encryption state event.
type EncryptionContent struct {
	Algorithm          string `json:"algorithm"`
	RotationPeriodMs   int64  `json:"rotation_period_ms"`
	RotationPeriodMsgs int64  `json:"rotation_period_msgs"`
}

// EncryptionContentFor builds the encryption event for the given level.
func EncryptionContentFor(level EncryptionLevel) EncryptionContent {
	return EncryptionContent{
		Algorithm:          ExpectedAlgorithm,
		RotationPeriodMs:   RotationPeriodMs,
		RotationPeriodMsgs: level.RotationPeriodMsgs(),
	}
}

// Map returns the content in the shape sent over the wire.
func (c EncryptionContent) Map() map[string]any {
	return map[string]any{
		"algorithm":            c.Algorithm,
		"rotation_period_ms":   c.RotationPeriodMs,
		"rotation_period_msgs": c.RotationPeriodMsgs,
	}
}

// EncryptionState is derived from a room's encryption event every time it
// is needed. It is never cached.
type EncryptionState struct {
	IsEncrypted        bool   `json:"is_encrypted"`
	Algorithm          string `json:"algorithm,omitempty"`
	RotationPeriodMs   *int64 `json:"rotation_period_ms,omitempty"`
	RotationPeriodMsgs *int64 `json:"rotation_period_msgs,omitempty"`
	IsCorrectAlgorithm bool   `json:"is_correct_algorithm"`
}

// Sendable reports whether plaintext may be handed to the protocol for this room.
func (s EncryptionState) Sendable() bool {
	return s.IsEncrypted && s.IsCorrectAlgorithm
}
