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

package gateway

import (
	"encoding/json"
	"strings"
)

// CreateRoomResponse is the typed form of a room creation reply.
type CreateRoomResponse struct {
	RoomID string `json:"room_id"`
}

// SendEventResponse is the typed form of an event send reply.
type SendEventResponse struct {
	EventID string `json:"event_id"`
}

// NormalizeRoomID extracts a room identifier from a plain string,
// a {room_id} or {roomId} object, a CreateRoomResponse or raw JSON.
// It returns "" when no identifier is present.
func NormalizeRoomID(resp any) string {
	switch r := resp.(type) {
	case CreateRoomResponse:
		return strings.TrimSpace(r.RoomID)
	case *CreateRoomResponse:
		if r == nil {
			return ""
		}
		return strings.TrimSpace(r.RoomID)
	}
	return normalizeID(resp, "room_id", "roomId")
}

// NormalizeEventID is NormalizeRoomID for {event_id} / {eventId} replies.
func NormalizeEventID(resp any) string {
	switch r := resp.(type) {
	case SendEventResponse:
		return strings.TrimSpace(r.EventID)
	case *SendEventResponse:
		if r == nil {
			return ""
		}
		return strings.TrimSpace(r.EventID)
	}
	return normalizeID(resp, "event_id", "eventId")
}

func normalizeID(resp any, keys ...string) string {
	switch r := resp.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(r)
	case *string:
		if r == nil {
			return ""
		}
		return strings.TrimSpace(*r)
	case map[string]string:
		for _, k := range keys {
			if v := strings.TrimSpace(r[k]); v != "" {
				return v
			}
		}
	case map[string]any:
		for _, k := range keys {
			if v, ok := r[k].(string); ok && strings.TrimSpace(v) != "" {
				return strings.TrimSpace(v)
			}
		}
	case json.RawMessage:
		return normalizeJSON(r, keys)
	case []byte:
		return normalizeJSON(r, keys)
	}
	return ""
}

func normalizeJSON(data []byte, keys []string) string {
	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err == nil {
		return normalizeID(obj, keys...)
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		return strings.TrimSpace(s)
	}
	return ""
}
