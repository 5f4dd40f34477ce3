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

package selfdestruct

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	lru "github.com/hashicorp/golang-lru"

	"github.com/efchatnet/privchat/backend/events"
	"github.com/efchatnet/privchat/backend/metrics"
	"github.com/efchatnet/privchat/backend/models"
	"github.com/efchatnet/privchat/backend/storage"
)

const (
	// RedactReason is attached to every self-destruct redaction.
	RedactReason = "self-destruct"

	DefaultRedactTimeout = 10 * time.Second
	DefaultTombstones    = 4096
)

// Redactor is the slice of the gateway the executor needs.
type Redactor interface {
	Connected() bool
	RedactEvent(ctx context.Context, roomID, eventID, reason string) error
}

type ExecutorConfig struct {
	RedactTimeout time.Duration
	// TombstoneSize bounds how many destroyed keys are remembered.
	TombstoneSize int
	Metrics       *metrics.Metrics
}

// Executor destroys a message: best-effort server redaction, then local
// cleanup and notification, which never depend on the server.
type Executor struct {
	redactor      Redactor
	store         storage.TimerStore
	publisher     events.Publisher
	handles       *registry
	tombstones    *lru.Cache
	redactTimeout time.Duration
	metrics       *metrics.Metrics
	log           *log.Logger
}

func NewExecutor(redactor Redactor, store storage.TimerStore, publisher events.Publisher, logger *log.Logger, cfg ExecutorConfig) (*Executor, error) {
	if cfg.RedactTimeout <= 0 {
		cfg.RedactTimeout = DefaultRedactTimeout
	}
	if cfg.TombstoneSize <= 0 {
		cfg.TombstoneSize = DefaultTombstones
	}
	if publisher == nil {
		publisher = events.Discard{}
	}
	tombstones, err := lru.New(cfg.TombstoneSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create tombstone cache: %w", err)
	}
	return &Executor{
		redactor:      redactor,
		store:         store,
		publisher:     publisher,
		handles:       newRegistry(),
		tombstones:    tombstones,
		redactTimeout: cfg.RedactTimeout,
		metrics:       cfg.Metrics,
		log:           logger.WithPrefix("[SelfDestruct]"),
	}, nil
}

// Destroy runs the destruction of one message. A message with neither an
// armed timer nor a stored record has nothing left to destroy, so a
// repeated call is a no-op even after its tombstone is evicted. A failure
// to delete the stored timer is returned only after the handle is dropped
// and the event published, and leaves the record for a later retry.
func (e *Executor) Destroy(ctx context.Context, roomID, eventID string) error {
	key := models.TimerKey(roomID, eventID)
	if seen, _ := e.tombstones.ContainsOrAdd(key, struct{}{}); seen {
		e.log.Debug("message already destroyed", "room", roomID, "event", eventID)
		return nil
	}
	if !e.pending(ctx, key) {
		e.tombstones.Remove(key)
		e.log.Debug("no timer for message, nothing to destroy", "room", roomID, "event", eventID)
		return nil
	}

	if e.redactor.Connected() {
		rctx, cancel := context.WithTimeout(ctx, e.redactTimeout)
		err := e.redactor.RedactEvent(rctx, roomID, eventID, RedactReason)
		cancel()
		if err != nil {
			e.metrics.RedactionFailed()
			e.log.Warn("server redaction failed, continuing with local deletion",
				"room", roomID, "event", eventID, "err", err)
		}
	} else {
		e.log.Info("offline, skipping server redaction", "room", roomID, "event", eventID)
	}

	_, storeErr := e.store.Delete(ctx, key)
	if storeErr != nil {
		// The record is still there; let the next Destroy or RestartAll retry.
		e.tombstones.Remove(key)
		e.log.Error("failed to delete timer record", "room", roomID, "event", eventID, "err", storeErr)
	}

	if e.handles.remove(key) {
		e.metrics.AddPendingTimers(-1)
	}
	e.metrics.MessageDestroyed()

	e.publisher.Publish(events.MessageSelfDestructed{RoomID: roomID, EventID: eventID})
	e.log.Info("message destroyed", "room", roomID, "event", eventID)

	if storeErr != nil {
		return fmt.Errorf("failed to delete timer record: %w", storeErr)
	}
	return nil
}

// pending reports whether key has an armed handle or a stored record. An
// unreadable store counts as pending.
func (e *Executor) pending(ctx context.Context, key string) bool {
	if _, ok := e.handles.get(key); ok {
		return true
	}
	_, ok, err := e.store.Get(ctx, key)
	if err != nil {
		e.log.Warn("failed to read timer record", "key", key, "err", err)
		return true
	}
	return ok
}

// Destroyed reports whether Destroy already ran for the message.
func (e *Executor) Destroyed(roomID, eventID string) bool {
	return e.tombstones.Contains(models.TimerKey(roomID, eventID))
}
