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

// Package selfdestruct arms, persists and executes self-destruct timers
// for sent messages.
package selfdestruct

import (
	"sort"
	"sync"

	"github.com/benbjohnson/clock"

	"github.com/efchatnet/privchat/backend/models"
)

// handle is one armed in-memory timer.
type handle struct {
	record models.SelfDestructTimer
	timer  *clock.Timer
}

func (h *handle) stop() {
	if h.timer != nil {
		h.timer.Stop()
	}
}

// registry maps timer keys to their armed handle. At most one handle per
// key exists; replacing a handle stops the old one.
type registry struct {
	mu      sync.Mutex
	handles map[string]*handle
}

func newRegistry() *registry {
	return &registry{handles: make(map[string]*handle)}
}

// arm registers h under its key and starts it through start while the
// registry lock is held, so a callback cannot observe a half-armed handle.
// It reports whether h replaced an existing handle.
func (r *registry) arm(h *handle, start func(h *handle) *clock.Timer) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := h.record.Key()
	prev, replaced := r.handles[key]
	if replaced {
		prev.stop()
	}
	r.handles[key] = h
	h.timer = start(h)
	return replaced
}

func (r *registry) get(key string) (*handle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.handles[key]
	return h, ok
}

func (r *registry) current(key string, h *handle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.handles[key] == h
}

func (r *registry) remove(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.handles[key]
	if ok {
		h.stop()
		delete(r.handles, key)
	}
	return ok
}

// clear stops every handle and returns how many there were.
func (r *registry) clear() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.handles)
	for key, h := range r.handles {
		h.stop()
		delete(r.handles, key)
	}
	return n
}

// records returns the armed timers ordered by deadline.
func (r *registry) records() []models.SelfDestructTimer {
	r.mu.Lock()
	out := make([]models.SelfDestructTimer, 0, len(r.handles))
	for _, h := range r.handles {
		out = append(out, h.record)
	}
	r.mu.Unlock()
	sortByDeadline(out)
	return out
}

func sortByDeadline(timers []models.SelfDestructTimer) {
	sort.Slice(timers, func(i, j int) bool {
		if timers[i].DestroyTime != timers[j].DestroyTime {
			return timers[i].DestroyTime < timers[j].DestroyTime
		}
		return timers[i].Key() < timers[j].Key()
	})
}
