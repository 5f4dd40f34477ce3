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
	"encoding/json"
	"fmt"
	"time"
)

const (
	MessageEventType = "m.room.message"
	MsgTypeText      = "m.text"

	// SelfDestructKey carries the primary annotation read by current clients.
	SelfDestructKey = "net.efchat.self_destruct"

	// LegacyEphemeralKey carries the annotation read by older clients.
	LegacyEphemeralKey = "net.efchat.ephemeral"
)

// Envelope is the content of an outgoing m.room.message event.
type Envelope map[string]any

// SelfDestructAnnotation is stored under SelfDestructKey.
type SelfDestructAnnotation struct {
	ExpiresAt int64 `json:"expires_at"`
	Timeout   int64 `json:"timeout"`
}

// LegacyEphemeralAnnotation is stored under LegacyEphemeralKey.
// DestroyAfter is in seconds.
type LegacyEphemeralAnnotation struct {
	DestroyAfter     float64 `json:"destroy_after"`
	CreatedAt        int64   `json:"created_at"`
	WillSelfDestruct bool    `json:"will_self_destruct"`
}

var errEmptyBody = fmt.Errorf("%w: body is empty", ErrInvalidMessage)

// NormalizeBody turns a caller supplied body into a message envelope.
// Strings become m.text messages; maps must carry a msgtype.
func NormalizeBody(body any) (Envelope, error) {
	switch b := body.(type) {
	case string:
		if b == "" {
			return nil, errEmptyBody
		}
		return Envelope{"msgtype": MsgTypeText, "body": b}, nil
	case Envelope:
		return copyContent(b)
	case map[string]any:
		return copyContent(b)
	case nil:
		return nil, errEmptyBody
	default:
		return nil, fmt.Errorf("%w: unsupported body type %T", ErrInvalidMessage, body)
	}
}

func copyContent(src map[string]any) (Envelope, error) {
	if len(src) == 0 {
		return nil, errEmptyBody
	}
	if mt, _ := src["msgtype"].(string); mt == "" {
		return nil, fmt.Errorf("%w: content has no msgtype", ErrInvalidMessage)
	}
	env := make(Envelope, len(src)+2)
	for k, v := range src {
		env[k] = v
	}
	return env, nil
}

// WithSelfDestruct attaches both destruct annotations, describing the same
// deadline, and returns the envelope.
func (e Envelope) WithSelfDestruct(now time.Time, timeout time.Duration) Envelope {
	timeoutMs := timeout.Milliseconds()
	e[SelfDestructKey] = SelfDestructAnnotation{
		ExpiresAt: now.UnixMilli() + timeoutMs,
		Timeout:   timeoutMs,
	}
	e[LegacyEphemeralKey] = LegacyEphemeralAnnotation{
		DestroyAfter:     float64(timeoutMs) / 1000,
		CreatedAt:        now.UnixMilli(),
		WillSelfDestruct: true,
	}
	return e
}

// SelfDestruct reads both annotations back. ok is false unless both are present.
func (e Envelope) SelfDestruct() (primary SelfDestructAnnotation, legacy LegacyEphemeralAnnotation, ok bool) {
	if !decodeAnnotation(e[SelfDestructKey], &primary) {
		return primary, legacy, false
	}
	if !decodeAnnotation(e[LegacyEphemeralKey], &legacy) {
		return primary, legacy, false
	}
	return primary, legacy, true
}

func decodeAnnotation(v any, out any) bool {
	switch a := v.(type) {
	case nil:
		return false
	case SelfDestructAnnotation:
		if p, ok := out.(*SelfDestructAnnotation); ok {
			*p = a
			return true
		}
		return false
	case LegacyEphemeralAnnotation:
		if p, ok := out.(*LegacyEphemeralAnnotation); ok {
			*p = a
			return true
		}
		return false
	}
	// Content that went over the wire comes back as generic JSON.
	data, err := json.Marshal(v)
	if err != nil {
		return false
	}
	return json.Unmarshal(data, out) == nil
}
