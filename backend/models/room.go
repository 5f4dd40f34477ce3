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

import (
	"fmt"
	"strings"
	"time"
)

// State event types written into every private room at creation.
const (
	JoinRulesEventType         = "m.room.join_rules"
	HistoryVisibilityEventType = "m.room.history_visibility"
	PrivateMarkerEventType     = "net.efchat.private_chat"

	JoinRuleInvite          = "invite"
	HistoryVisibilityJoined = "joined"
	PresetPrivateChat       = "private_chat"
)

// EncryptionLevel governs the megolm session rotation cadence of a room.
type EncryptionLevel string

const (
	EncryptionStandard EncryptionLevel = "standard"
	EncryptionHigh     EncryptionLevel = "high"
)

// ParseEncryptionLevel accepts "standard" or "high". The empty string is standard.
func ParseEncryptionLevel(s string) (EncryptionLevel, error) {
	switch EncryptionLevel(strings.ToLower(strings.TrimSpace(s))) {
	case "", EncryptionStandard:
		return EncryptionStandard, nil
	case EncryptionHigh:
		return EncryptionHigh, nil
	}
	return "", fmt.Errorf("unknown encryption level %q", s)
}

// RotationPeriodMsgs is the number of messages after which a session rotates.
func (l EncryptionLevel) RotationPeriodMsgs() int64 {
	if l == EncryptionHigh {
		return 100
	}
	return 1000
}

// PrivateChatRoom describes a room created for private messaging.
// It is only ever mutated through protocol state events after creation.
type PrivateChatRoom struct {
	RoomID              string          `json:"room_id"`
	Participants        []string        `json:"participants"`
	EncryptionLevel     EncryptionLevel `json:"encryption_level"`
	SelfDestructDefault time.Duration   `json:"self_destruct_default,omitempty"`
	Name                string          `json:"name,omitempty"`
	Topic               string          `json:"topic,omitempty"`
}

// CreateOptions are the caller supplied parameters for a new private room.
type CreateOptions struct {
	Participants        []string        `json:"participants"`
	Name                string          `json:"name,omitempty"`
	Topic               string          `json:"topic,omitempty"`
	EncryptionLevel     EncryptionLevel `json:"encryption_level"`
	SelfDestructDefault time.Duration   `json:"self_destruct_default,omitempty"`
}

// PrivateMarker is the content of the net.efchat.private_chat state event.
type PrivateMarker struct {
	IsPrivate             bool            `json:"is_private"`
	EncryptionLevel       EncryptionLevel `json:"encryption_level"`
	SelfDestructDefaultMs int64           `json:"self_destruct_default_ms,omitempty"`
}

// Map returns the marker as event content.
func (m PrivateMarker) Map() map[string]any {
	content := map[string]any{
		"is_private":       m.IsPrivate,
		"encryption_level": string(m.EncryptionLevel),
	}
	if m.SelfDestructDefaultMs > 0 {
		content["self_destruct_default_ms"] = m.SelfDestructDefaultMs
	}
	return content
}
