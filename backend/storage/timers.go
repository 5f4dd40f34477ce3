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
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/efchatnet/privchat/backend/models"
)

// TimersKey is the KV key holding the whole timer map.
const TimersKey = "private_chat_timers"

// Timers keeps every timer in one flat record and accesses it
// read-modify-write. The mutex serializes writers within the process.
type Timers struct {
	mu sync.Mutex
	kv KV
}

func NewTimers(kv KV) *Timers {
	return &Timers{kv: kv}
}

func (t *Timers) Load(ctx context.Context) (map[string]models.SelfDestructTimer, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.read(ctx)
}

func (t *Timers) Get(ctx context.Context, key string) (models.SelfDestructTimer, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	all, err := t.read(ctx)
	if err != nil {
		return models.SelfDestructTimer{}, false, err
	}
	timer, ok := all[key]
	return timer, ok, nil
}

func (t *Timers) Put(ctx context.Context, timer models.SelfDestructTimer) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	all, err := t.read(ctx)
	if err != nil {
		return err
	}
	all[timer.Key()] = timer
	return t.write(ctx, all)
}

func (t *Timers) Delete(ctx context.Context, key string) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	all, err := t.read(ctx)
	if err != nil {
		return false, err
	}
	if _, ok := all[key]; !ok {
		return false, nil
	}
	delete(all, key)
	if len(all) == 0 {
		return true, t.kv.Delete(ctx, TimersKey)
	}
	return true, t.write(ctx, all)
}

func (t *Timers) Reset(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.kv.Delete(ctx, TimersKey)
}

func (t *Timers) read(ctx context.Context) (map[string]models.SelfDestructTimer, error) {
	data, err := t.kv.Get(ctx, TimersKey)
	if errors.Is(err, ErrNotFound) {
		return make(map[string]models.SelfDestructTimer), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read timers: %w", err)
	}
	all := make(map[string]models.SelfDestructTimer)
	if len(data) == 0 {
		return all, nil
	}
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return all, nil
}

func (t *Timers) write(ctx context.Context, all map[string]models.SelfDestructTimer) error {
	data, err := json.Marshal(all)
	if err != nil {
		return fmt.Errorf("failed to marshal timers: %w", err)
	}
	if err := t.kv.Set(ctx, TimersKey, data); err != nil {
		return fmt.Errorf("failed to write timers: %w", err)
	}
	return nil
}
