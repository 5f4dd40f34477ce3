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
	"time"
)

// MaxSelfDestruct is the longest accepted self-destruct timeout.
const MaxSelfDestruct = 365 * 24 * time.Hour

// SelfDestructFromMs converts a millisecond timeout from the wire. Negative
// values and values above MaxSelfDestruct are rejected before they can
// overflow a time.Duration.
func SelfDestructFromMs(ms int64) (time.Duration, error) {
	if ms < 0 || ms > MaxSelfDestruct.Milliseconds() {
		return 0, fmt.Errorf("%w: %dms", ErrInvalidTimeout, ms)
	}
	return time.Duration(ms) * time.Millisecond, nil
}

// SelfDestructTimer is the persisted form of a pending self-destruct.
// DestroyTime is an absolute deadline in epoch milliseconds.
type SelfDestructTimer struct {
	RoomID      string `json:"roomId"`
	EventID     string `json:"eventId"`
	DestroyTime int64  `json:"destroyTime"`
	TimeoutMs   int64  `json:"timeoutMs"`
}

// TimerKey is the composite key "{roomId}_{messageId}".
func TimerKey(roomID, eventID string) string {
	return roomID + "_" + eventID
}

func (t SelfDestructTimer) Key() string {
	return TimerKey(t.RoomID, t.EventID)
}

// Deadline returns DestroyTime as a time.Time.
func (t SelfDestructTimer) Deadline() time.Time {
	return time.UnixMilli(t.DestroyTime)
}
