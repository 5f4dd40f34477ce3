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

package rooms

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/require"

	"github.com/efchatnet/privchat/backend/encryption"
	"github.com/efchatnet/privchat/backend/gateway"
	"github.com/efchatnet/privchat/backend/gateway/loopback"
	"github.com/efchatnet/privchat/backend/models"
)

const self = "@alice:loopback"

func newFactory(srv *loopback.Server, cfg Config) (*Factory, *encryption.Verifier) {
	logger := log.New(io.Discard)
	client := gateway.NewClient(srv, gateway.NewRetrier(3, 0))
	verifier := encryption.NewVerifier(client, logger)
	return NewFactory(client, verifier, clock.New(), logger, cfg), verifier
}

func state(t *testing.T, srv *loopback.Server, roomID, eventType string) map[string]any {
	t.Helper()
	room, ok := srv.GetRoom(roomID)
	require.True(t, ok)
	content, ok := room.StateEvent(eventType, "")
	require.True(t, ok, "missing %s", eventType)
	return content
}

func TestCreatePrivateRoom(t *testing.T) {
	require := require.New(t)
	srv := loopback.New(self)
	factory, verifier := newFactory(srv, Config{})

	res, err := factory.CreateDetailed(context.Background(), models.CreateOptions{
		Participants:        []string{"@bob:loopback", self, "@carol:loopback", "@bob:loopback"},
		Name:                "secret",
		Topic:               "plans",
		EncryptionLevel:     models.EncryptionHigh,
		SelfDestructDefault: 30 * time.Second,
	})
	require.NoError(err)
	require.Empty(res.FailedInvites)

	roomID := res.Room.RoomID
	require.NotEmpty(roomID)
	require.Equal([]string{"@bob:loopback", "@carol:loopback"}, res.Room.Participants)
	require.Equal([]string{"@bob:loopback", "@carol:loopback"}, srv.Invited(roomID))
	require.Equal(models.EncryptionHigh, res.Room.EncryptionLevel)
	require.Equal(30*time.Second, res.Room.SelfDestructDefault)

	enc := verifier.Status(roomID)
	require.True(enc.Sendable())
	require.EqualValues(100, *enc.RotationPeriodMsgs)
	require.EqualValues(604800000, *enc.RotationPeriodMs)

	require.Equal(models.JoinRuleInvite, state(t, srv, roomID, models.JoinRulesEventType)["join_rule"])
	require.Equal(models.HistoryVisibilityJoined, state(t, srv, roomID, models.HistoryVisibilityEventType)["history_visibility"])

	marker := state(t, srv, roomID, models.PrivateMarkerEventType)
	require.Equal(true, marker["is_private"])
	require.Equal("high", marker["encryption_level"])
	require.EqualValues(30000, marker["self_destruct_default_ms"])

	require.Zero(srv.Calls("SendStateEvent"))
}

func TestCreateReturnsRoomID(t *testing.T) {
	srv := loopback.New(self)
	factory, verifier := newFactory(srv, Config{})

	roomID, err := factory.Create(context.Background(), models.CreateOptions{Participants: []string{"@bob:loopback"}})
	require.NoError(t, err)
	require.True(t, verifier.Verify(roomID))
	require.EqualValues(t, 1000, *verifier.Status(roomID).RotationPeriodMsgs)

	_, hasDefault := state(t, srv, roomID, models.PrivateMarkerEventType)["self_destruct_default_ms"]
	require.False(t, hasDefault)
}

func TestPartialInviteFailure(t *testing.T) {
	require := require.New(t)
	srv := loopback.New(self)
	refused := errors.New("user does not accept invites")
	srv.SetHooks(loopback.Hooks{
		Invite: func(_, userID string) error {
			if userID == "@carol:loopback" {
				return refused
			}
			return nil
		},
	})
	factory, _ := newFactory(srv, Config{})

	res, err := factory.CreateDetailed(context.Background(), models.CreateOptions{
		Participants: []string{"@bob:loopback", "@carol:loopback", "@dave:loopback"},
	})
	require.NoError(err)
	require.Len(res.FailedInvites, 1)
	require.ErrorIs(res.FailedInvites["@carol:loopback"], refused)
	require.Equal([]string{"@bob:loopback", "@dave:loopback"}, srv.Invited(res.Room.RoomID))
	// bob, three attempts for carol, dave
	require.Equal(5, srv.Calls("Invite"))
}

func TestCreateRetriesTransientFailures(t *testing.T) {
	srv := loopback.New(self)
	attempts := 0
	srv.SetHooks(loopback.Hooks{
		CreateRoom: func(gateway.CreateRoomRequest) error {
			attempts++
			if attempts < 3 {
				return errors.New("502 bad gateway")
			}
			return nil
		},
	})
	factory, _ := newFactory(srv, Config{})

	roomID, err := factory.Create(context.Background(), models.CreateOptions{})
	require.NoError(t, err)
	require.NotEmpty(t, roomID)
	require.Equal(t, 3, srv.Calls("CreateRoom"))
}

func TestCreateFailsAfterRetries(t *testing.T) {
	srv := loopback.New(self)
	srv.SetHooks(loopback.Hooks{
		CreateRoom: func(gateway.CreateRoomRequest) error { return errors.New("503") },
	})
	factory, _ := newFactory(srv, Config{})

	_, err := factory.Create(context.Background(), models.CreateOptions{})
	require.ErrorIs(t, err, models.ErrRoomCreationFailed)
	require.Equal(t, 3, srv.Calls("CreateRoom"))
}

func TestCreateAcceptsResponseShapes(t *testing.T) {
	shapes := map[string]func(roomID string) any{
		"string":     func(id string) any { return id },
		"snake map":  func(id string) any { return map[string]any{"room_id": id} },
		"camel map":  func(id string) any { return map[string]string{"roomId": id} },
		"raw json":   func(id string) any { return json.RawMessage(`{"room_id":"` + id + `"}`) },
		"string ptr": func(id string) any { return &id },
	}
	for name, shape := range shapes {
		t.Run(name, func(t *testing.T) {
			srv := loopback.New(self)
			srv.SetHooks(loopback.Hooks{CreateRoomResponse: shape})
			factory, _ := newFactory(srv, Config{})

			roomID, err := factory.Create(context.Background(), models.CreateOptions{})
			require.NoError(t, err)
			require.Contains(t, roomID, ":loopback")
		})
	}
}

func TestCreateWithoutRoomID(t *testing.T) {
	srv := loopback.New(self)
	srv.SetHooks(loopback.Hooks{
		CreateRoomResponse: func(string) any { return map[string]any{"status": "ok"} },
	})
	factory, _ := newFactory(srv, Config{})

	_, err := factory.Create(context.Background(), models.CreateOptions{})
	require.ErrorIs(t, err, models.ErrRoomCreationFailed)
}

func TestEncryptionSelfHeal(t *testing.T) {
	require := require.New(t)
	srv := loopback.New(self)
	srv.SetHooks(loopback.Hooks{DropInitialEncryption: true})
	factory, verifier := newFactory(srv, Config{})

	roomID, err := factory.Create(context.Background(), models.CreateOptions{EncryptionLevel: models.EncryptionHigh})
	require.NoError(err)
	require.Equal(1, srv.Calls("SendStateEvent"))
	require.True(verifier.Verify(roomID))
	require.EqualValues(100, *verifier.Status(roomID).RotationPeriodMsgs)
}

func TestEncryptionSetupFailed(t *testing.T) {
	srv := loopback.New(self)
	srv.SetHooks(loopback.Hooks{RejectEncryptionState: true})
	factory, _ := newFactory(srv, Config{})

	_, err := factory.Create(context.Background(), models.CreateOptions{})
	require.ErrorIs(t, err, models.ErrEncryptionSetupFailed)
	require.Equal(t, 1, srv.Calls("SendStateEvent"))
}

func TestWaitsForSync(t *testing.T) {
	srv := loopback.New(self)
	srv.SetHooks(loopback.Hooks{SyncAfter: 3})
	factory, _ := newFactory(srv, Config{SyncInterval: time.Millisecond})

	_, err := factory.Create(context.Background(), models.CreateOptions{})
	require.NoError(t, err)
	require.GreaterOrEqual(t, srv.Calls("GetRoom"), 4)
}

func TestSyncTimeout(t *testing.T) {
	srv := loopback.New(self)
	srv.SetHooks(loopback.Hooks{SyncAfter: -1})
	factory, _ := newFactory(srv, Config{SyncTimeout: 30 * time.Millisecond, SyncInterval: 5 * time.Millisecond})

	_, err := factory.Create(context.Background(), models.CreateOptions{})
	require.ErrorIs(t, err, models.ErrRoomSyncTimeout)
}

func TestSyncTimeoutWithMockClock(t *testing.T) {
	srv := loopback.New(self)
	srv.SetHooks(loopback.Hooks{SyncAfter: -1})
	logger := log.New(io.Discard)
	client := gateway.NewClient(srv, gateway.NewRetrier(1, 0))
	mock := clock.NewMock()
	factory := NewFactory(client, encryption.NewVerifier(client, logger), mock, logger, Config{})

	done := make(chan error, 1)
	go func() {
		_, err := factory.Create(context.Background(), models.CreateOptions{})
		done <- err
	}()

	var err error
	require.Eventually(t, func() bool {
		select {
		case err = <-done:
			return true
		default:
			mock.Add(DefaultSyncInterval)
			return false
		}
	}, 5*time.Second, time.Millisecond)
	require.ErrorIs(t, err, models.ErrRoomSyncTimeout)
}

func TestRejectsUnknownLevel(t *testing.T) {
	srv := loopback.New(self)
	factory, _ := newFactory(srv, Config{})

	_, err := factory.Create(context.Background(), models.CreateOptions{EncryptionLevel: "paranoid"})
	require.Error(t, err)
	require.Zero(t, srv.Calls("CreateRoom"))
}
