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
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/charmbracelet/log"

	"github.com/efchatnet/privchat/backend/metrics"
	"github.com/efchatnet/privchat/backend/models"
	"github.com/efchatnet/privchat/backend/storage"
)

// Scheduler arms one-shot timers for sent messages. Every timer is
// persisted before it is armed, so a crash between the two leaves a record
// that RestartAll replays.
type Scheduler struct {
	mu      sync.Mutex
	ready   bool
	clock   clock.Clock
	store   storage.TimerStore
	exec    *Executor
	handles *registry
	metrics *metrics.Metrics
	log     *log.Logger
}

func NewScheduler(clk clock.Clock, store storage.TimerStore, exec *Executor, logger *log.Logger, m *metrics.Metrics) *Scheduler {
	if clk == nil {
		clk = clock.New()
	}
	return &Scheduler{
		clock:   clk,
		store:   store,
		exec:    exec,
		handles: exec.handles,
		metrics: m,
		log:     logger.WithPrefix("[SelfDestruct]"),
	}
}

// Ready reports whether RestartAll has completed.
func (s *Scheduler) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready
}

// Arm persists and arms a timer destroying the message after timeout.
func (s *Scheduler) Arm(ctx context.Context, roomID, eventID string, timeout time.Duration) error {
	if timeout <= 0 || timeout > models.MaxSelfDestruct {
		return fmt.Errorf("%w: %v", models.ErrInvalidTimeout, timeout)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ready {
		return models.ErrSchedulerNotReady
	}
	key := models.TimerKey(roomID, eventID)
	if _, ok := s.handles.get(key); ok {
		return fmt.Errorf("%w: %s", models.ErrTimerExists, key)
	}

	record := models.SelfDestructTimer{
		RoomID:      roomID,
		EventID:     eventID,
		DestroyTime: s.clock.Now().Add(timeout).UnixMilli(),
		TimeoutMs:   timeout.Milliseconds(),
	}
	if err := s.store.Put(ctx, record); err != nil {
		return fmt.Errorf("failed to persist timer: %w", err)
	}

	s.schedule(record)
	s.metrics.TimerArmed()
	s.log.Debug("timer armed", "room", roomID, "event", eventID, "timeout", timeout)
	return nil
}

func (s *Scheduler) schedule(record models.SelfDestructTimer) {
	delay := record.Deadline().Sub(s.clock.Now())
	if delay < 0 {
		delay = 0
	}
	replaced := s.handles.arm(&handle{record: record}, func(h *handle) *clock.Timer {
		return s.clock.AfterFunc(delay, func() { s.fire(h) })
	})
	if !replaced {
		s.metrics.AddPendingTimers(1)
	}
}

func (s *Scheduler) fire(h *handle) {
	if !s.handles.current(h.record.Key(), h) {
		return
	}
	if err := s.exec.Destroy(context.Background(), h.record.RoomID, h.record.EventID); err != nil {
		s.log.Error("self-destruct failed", "room", h.record.RoomID, "event", h.record.EventID, "err", err)
	}
}

// Remaining returns the time left before the message is destroyed, or
// zero when no timer is armed for it.
func (s *Scheduler) Remaining(roomID, eventID string) time.Duration {
	h, ok := s.handles.get(models.TimerKey(roomID, eventID))
	if !ok {
		return 0
	}
	left := h.record.Deadline().Sub(s.clock.Now())
	if left < 0 {
		return 0
	}
	return left
}

func (s *Scheduler) RemainingMs(roomID, eventID string) int64 {
	return s.Remaining(roomID, eventID).Milliseconds()
}

// RestartAll replays the persisted timers. Entries past their deadline
// are destroyed immediately in deadline order, the rest are re-armed with
// their remaining time. An unreadable store is logged and treated as
// empty. Calling it again re-arms from the store without duplicating
// handles.
func (s *Scheduler) RestartAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.store.Load(ctx)
	if err != nil {
		s.log.Error("failed to load timers, starting empty", "err", err)
		if errors.Is(err, storage.ErrCorrupt) {
			if err := s.store.Reset(ctx); err != nil {
				s.log.Error("failed to reset corrupt timer store", "err", err)
			}
		}
		all = nil
	}

	now := s.clock.Now().UnixMilli()
	var due, pending []models.SelfDestructTimer
	for _, record := range all {
		if record.DestroyTime <= now {
			due = append(due, record)
		} else {
			pending = append(pending, record)
		}
	}
	sortByDeadline(due)
	sortByDeadline(pending)

	for _, record := range due {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.exec.Destroy(ctx, record.RoomID, record.EventID); err != nil {
			s.log.Error("failed to destroy expired message", "room", record.RoomID, "event", record.EventID, "err", err)
		}
	}
	for _, record := range pending {
		s.schedule(record)
	}

	s.ready = true
	s.log.Info("timers restored", "expired", len(due), "armed", len(pending))
	return nil
}

// Pending returns the armed timers ordered by deadline.
func (s *Scheduler) Pending() []models.SelfDestructTimer {
	return s.handles.records()
}

// Stop cancels every in-memory timer without touching the store. The
// scheduler must be restarted with RestartAll before arming again.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.handles.clear()
	s.ready = false
	s.metrics.AddPendingTimers(-n)
}

// Executor returns the executor shared with this scheduler.
func (s *Scheduler) Executor() *Executor {
	return s.exec
}
