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

package storage

import (
	"context"
	"errors"

	"github.com/efchatnet/privchat/backend/models"
)

var (
	ErrNotFound = errors.New("storage: key not found")
	ErrCorrupt  = errors.New("storage: record is corrupt")
)

// KV is a flat key-value persistence backend. Values are opaque.
type KV interface {
	// Get returns ErrNotFound when the key is absent.
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	// Delete of an absent key is not an error.
	Delete(ctx context.Context, key string) error
	Close() error
}

// TimerStore persists pending self-destruct timers keyed by
// models.TimerKey. It is the only owner of timer records.
type TimerStore interface {
	Load(ctx context.Context) (map[string]models.SelfDestructTimer, error)
	Get(ctx context.Context, key string) (models.SelfDestructTimer, bool, error)
	Put(ctx context.Context, timer models.SelfDestructTimer) error
	// Delete reports whether a record was removed.
	Delete(ctx context.Context, key string) (bool, error)
	// Reset drops every record. Used to recover from a corrupt store.
	Reset(ctx context.Context) error
}
