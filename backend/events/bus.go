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

// Package events carries notifications from the private chat components to
// whatever renders them. Delivery is fire-and-forget.
package events

import (
	"sync"

	"github.com/efchatnet/privchat/backend/models"
)

const (
	MessageSelfDestructedName = "message-self-destructed"
	KeyBackupCreatedName      = "key-backup-created"
	KeyBackupRestoredName     = "key-backup-restored"
)

// DefaultBufferSize is the per-subscriber channel capacity.
const DefaultBufferSize = 64

// Event is a typed UI notification.
type Event interface {
	Name() string
}

type MessageSelfDestructed struct {
	RoomID  string `json:"roomId"`
	EventID string `json:"eventId"`
}

func (MessageSelfDestructed) Name() string { return MessageSelfDestructedName }

type KeyBackupCreated struct {
	Version        string `json:"version"`
	HasRecoveryKey bool   `json:"hasRecoveryKey"`
}

func (KeyBackupCreated) Name() string { return KeyBackupCreatedName }

type KeyBackupRestored models.RestoreResult

func (KeyBackupRestored) Name() string { return KeyBackupRestoredName }

// Publisher accepts events. Publish never blocks on slow consumers and
// never fails the caller.
type Publisher interface {
	Publish(ev Event)
}

// Bus fans events out to in-process subscribers.
type Bus struct {
	mu         sync.RWMutex
	subs       map[int]chan Event
	next       int
	bufferSize int
}

func NewBus(bufferSize int) *Bus {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &Bus{subs: make(map[int]chan Event), bufferSize: bufferSize}
}

// Subscribe returns a channel of events and a cancel func that closes it.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.next
	b.next++
	ch := make(chan Event, b.bufferSize)
	b.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs, id)
			close(ch)
		})
	}
}

// Publish delivers ev to every subscriber with room in its buffer.
// Full subscribers miss the event.
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Multi publishes to each non-nil publisher in order.
type Multi []Publisher

func (m Multi) Publish(ev Event) {
	for _, p := range m {
		if p != nil {
			p.Publish(ev)
		}
	}
}

// Discard drops every event.
type Discard struct{}

func (Discard) Publish(Event) {}
