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
	"io"
	"os"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestEnvelopeJSON(t *testing.T) {
	data, err := json.Marshal(Envelope{
		Type:      MessageSelfDestructedName,
		Payload:   MessageSelfDestructed{RoomID: "!r:hs", EventID: "$e"},
		Timestamp: 42,
	})
	require.NoError(t, err)
	require.JSONEq(t, `{"type":"message-self-destructed","payload":{"roomId":"!r:hs","eventId":"$e"},"timestamp":42}`, string(data))
}

func TestRedisPublisher(t *testing.T) {
	addr := os.Getenv("REDIS_URL")
	if addr == "" {
		t.Skip("REDIS_URL not set")
	}
	require := require.New(t)
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	defer rdb.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sub := Subscribe(ctx, rdb, "@alice:hs")
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(err)

	NewRedisPublisher(rdb, "@alice:hs", log.New(io.Discard)).
		Publish(KeyBackupRestored{Imported: 3, Total: 5})

	msg, err := sub.ReceiveMessage(ctx)
	require.NoError(err)
	require.Equal("privchat:events:@alice:hs", msg.Channel)

	var env struct {
		Type    string         `json:"type"`
		Payload map[string]int `json:"payload"`
	}
	require.NoError(json.Unmarshal([]byte(msg.Payload), &env))
	require.Equal(KeyBackupRestoredName, env.Type)
	require.Equal(map[string]int{"imported": 3, "total": 5}, env.Payload)
}
