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

package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/charmbracelet/log"
	"github.com/redis/go-redis/v9"
)

const channelPrefix = "privchat:events:" // privchat:events:{userId}

// Envelope is the JSON shape published on the Redis channel.
type Envelope struct {
	Type      string `json:"type"`
	Payload   Event  `json:"payload"`
	Timestamp int64  `json:"timestamp"`
}

// RedisPublisher forwards events to a per-user Redis channel so other
// processes of the same user (tabs, devices behind one bridge) see them.
type RedisPublisher struct {
	rdb     *redis.Client
	userID  string
	timeout time.Duration
	logger  *log.Logger
	now     func() time.Time
}

func NewRedisPublisher(rdb *redis.Client, userID string, logger *log.Logger) *RedisPublisher {
	return &RedisPublisher{
		rdb:     rdb,
		userID:  userID,
		timeout: 2 * time.Second,
		logger:  logger.WithPrefix("[Events]"),
		now:     time.Now,
	}
}

func Channel(userID string) string {
	return channelPrefix + userID
}

func (p *RedisPublisher) Publish(ev Event) {
	data, err := json.Marshal(Envelope{
		Type:      ev.Name(),
		Payload:   ev,
		Timestamp: p.now().UnixMilli(),
	})
	if err != nil {
		p.logger.Error("failed to marshal event", "type", ev.Name(), "err", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	if err := p.rdb.Publish(ctx, Channel(p.userID), data).Err(); err != nil {
		p.logger.Warn("failed to publish event", "type", ev.Name(), "err", err)
	}
}

// Subscribe opens a Redis subscription to the user's event channel.
func Subscribe(ctx context.Context, rdb *redis.Client, userID string) *redis.PubSub {
	return rdb.Subscribe(ctx, Channel(userID))
}
