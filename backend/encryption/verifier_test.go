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

package encryption

import (
	"context"
	"io"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/require"

	"github.com/efchatnet/privchat/backend/gateway"
	"github.com/efchatnet/privchat/backend/gateway/loopback"
	"github.com/efchatnet/privchat/backend/models"
)

func newRoom(t *testing.T, srv *loopback.Server, initial ...gateway.StateEvent) string {
	resp, err := srv.CreateRoom(context.Background(), gateway.CreateRoomRequest{InitialState: initial})
	require.NoError(t, err)
	roomID := gateway.NormalizeRoomID(resp)
	require.NotEmpty(t, roomID)
	return roomID
}

func TestStatusOfEncryptedRoom(t *testing.T) {
	require := require.New(t)
	srv := loopback.New("@alice:loopback")
	v := NewVerifier(srv, log.New(io.Discard))

	roomID := newRoom(t, srv, gateway.StateEvent{
		Type:    models.EncryptionEventType,
		Content: models.EncryptionContentFor(models.EncryptionStandard).Map(),
	})

	state := v.Status(roomID)
	require.True(state.IsEncrypted)
	require.True(state.IsCorrectAlgorithm)
	require.Equal(models.ExpectedAlgorithm, state.Algorithm)
	require.NotNil(state.RotationPeriodMsgs)
	require.EqualValues(1000, *state.RotationPeriodMsgs)
	require.NotNil(state.RotationPeriodMs)
	require.EqualValues(604800000, *state.RotationPeriodMs)
	require.True(v.Verify(roomID))

	_, err := v.AssertSendable(roomID)
	require.NoError(err)
}

func TestStatusOfMissingRoomIsEmpty(t *testing.T) {
	require := require.New(t)
	srv := loopback.New("@alice:loopback")
	v := NewVerifier(srv, log.New(io.Discard))

	require.Equal(models.EncryptionState{}, v.Status("!nope:loopback"))
	require.False(v.Verify("!nope:loopback"))

	_, err := v.AssertSendable("!nope:loopback")
	require.ErrorIs(err, models.ErrRoomNotFound)
	require.NotErrorIs(err, models.ErrEncryptionNotConfigured)
}

func TestUnencryptedRoom(t *testing.T) {
	require := require.New(t)
	srv := loopback.New("@alice:loopback")
	v := NewVerifier(srv, log.New(io.Discard))
	roomID := newRoom(t, srv)

	state := v.Status(roomID)
	require.False(state.IsEncrypted)
	require.False(v.Verify(roomID))

	_, err := v.AssertSendable(roomID)
	require.ErrorIs(err, models.ErrEncryptionNotConfigured)
}

func TestAlgorithmDowngradeIsSeenImmediately(t *testing.T) {
	require := require.New(t)
	srv := loopback.New("@alice:loopback")
	v := NewVerifier(srv, log.New(io.Discard))
	roomID := newRoom(t, srv, gateway.StateEvent{
		Type:    models.EncryptionEventType,
		Content: models.EncryptionContentFor(models.EncryptionHigh).Map(),
	})

	_, err := v.AssertSendable(roomID)
	require.NoError(err)

	// Another client swaps the algorithm between two sends.
	require.NoError(srv.SetState(roomID, models.EncryptionEventType, "", map[string]any{
		"algorithm": "m.olm.v1.curve25519-aes-sha2",
	}))

	state, err := v.AssertSendable(roomID)
	require.ErrorIs(err, models.ErrEncryptionAlgorithmMismatch)
	require.True(state.IsEncrypted)
	require.False(state.IsCorrectAlgorithm)
	require.False(v.Verify(roomID))
}

func TestEncryptionEventWithoutAlgorithm(t *testing.T) {
	require := require.New(t)
	srv := loopback.New("@alice:loopback")
	v := NewVerifier(srv, log.New(io.Discard))
	roomID := newRoom(t, srv)

	for _, content := range []map[string]any{
		{"rotation_period_ms": 604800000},
		{"algorithm": ""},
	} {
		require.NoError(srv.SetState(roomID, models.EncryptionEventType, "", content))

		state, err := v.AssertSendable(roomID)
		require.ErrorIs(err, models.ErrEncryptionAlgorithmMismatch)
		require.True(state.IsEncrypted)
		require.False(state.IsCorrectAlgorithm)
		require.Empty(state.Algorithm)
		require.False(v.Verify(roomID))
	}
}

func TestIntFieldAcceptsJSONNumbers(t *testing.T) {
	require := require.New(t)
	content := map[string]any{"a": float64(100), "b": 1.5, "c": "x", "d": int(7)}

	require.EqualValues(100, *intField(content, "a"))
	require.Nil(intField(content, "b"))
	require.Nil(intField(content, "c"))
	require.EqualValues(7, *intField(content, "d"))
	require.Nil(intField(content, "missing"))
}
