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

// Package rooms creates private chat rooms with end-to-end encryption
// enabled from the first event.
package rooms

import (
	"context"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/charmbracelet/log"

	"github.com/efchatnet/privchat/backend/encryption"
	"github.com/efchatnet/privchat/backend/gateway"
	"github.com/efchatnet/privchat/backend/metrics"
	"github.com/efchatnet/privchat/backend/models"
)

const (
	DefaultSyncTimeout  = 10 * time.Second
	DefaultSyncInterval = 100 * time.Millisecond
)

type Config struct {
	SyncTimeout  time.Duration
	SyncInterval time.Duration
	Metrics      *metrics.Metrics
}

// CreateResult describes a created room and the participants whose
// invite could not be delivered.
type CreateResult struct {
	Room          models.PrivateChatRoom
	FailedInvites map[string]error
}

type Factory struct {
	client       *gateway.Client
	verifier     *encryption.Verifier
	clock        clock.Clock
	syncTimeout  time.Duration
	syncInterval time.Duration
	metrics      *metrics.Metrics
	log          *log.Logger
}

func NewFactory(client *gateway.Client, verifier *encryption.Verifier, clk clock.Clock, logger *log.Logger, cfg Config) *Factory {
	if clk == nil {
		clk = clock.New()
	}
	if cfg.SyncTimeout <= 0 {
		cfg.SyncTimeout = DefaultSyncTimeout
	}
	if cfg.SyncInterval <= 0 {
		cfg.SyncInterval = DefaultSyncInterval
	}
	return &Factory{
		client:       client,
		verifier:     verifier,
		clock:        clk,
		syncTimeout:  cfg.SyncTimeout,
		syncInterval: cfg.SyncInterval,
		metrics:      cfg.Metrics,
		log:          logger.WithPrefix("[PrivateRoom]"),
	}
}

// Create creates a private room and returns its identifier.
func (f *Factory) Create(ctx context.Context, opts models.CreateOptions) (string, error) {
	res, err := f.CreateDetailed(ctx, opts)
	if err != nil {
		return "", err
	}
	return res.Room.RoomID, nil
}

// CreateDetailed creates a private room. Encryption, invite-only joins and
// joined-only history are part of the initial state. Invites are sent one
// at a time and a failed invite never fails the creation. The room is
// returned only once encryption is verified on the synced room.
func (f *Factory) CreateDetailed(ctx context.Context, opts models.CreateOptions) (CreateResult, error) {
	level, err := models.ParseEncryptionLevel(string(opts.EncryptionLevel))
	if err != nil {
		return CreateResult{}, err
	}
	if opts.SelfDestructDefault < 0 || opts.SelfDestructDefault > models.MaxSelfDestruct {
		return CreateResult{}, fmt.Errorf("%w: default %v", models.ErrInvalidTimeout, opts.SelfDestructDefault)
	}

	roomID, err := f.client.CreateRoom(ctx, f.buildRequest(opts, level))
	if err != nil {
		f.log.Error("failed to create room", "err", err)
		return CreateResult{}, err
	}
	f.log.Info("room created", "room", roomID, "level", level)

	participants, failed := f.invite(ctx, roomID, opts.Participants)

	if err := f.waitForSync(ctx, roomID); err != nil {
		return CreateResult{}, err
	}
	if err := f.ensureEncryption(ctx, roomID, level); err != nil {
		return CreateResult{}, err
	}

	f.metrics.RoomCreated()
	return CreateResult{
		Room: models.PrivateChatRoom{
			RoomID:              roomID,
			Participants:        participants,
			EncryptionLevel:     level,
			SelfDestructDefault: opts.SelfDestructDefault,
			Name:                opts.Name,
			Topic:               opts.Topic,
		},
		FailedInvites: failed,
	}, nil
}

func (f *Factory) buildRequest(opts models.CreateOptions, level models.EncryptionLevel) gateway.CreateRoomRequest {
	marker := models.PrivateMarker{
		IsPrivate:             true,
		EncryptionLevel:       level,
		SelfDestructDefaultMs: opts.SelfDestructDefault.Milliseconds(),
	}
	return gateway.CreateRoomRequest{
		Name:       opts.Name,
		Topic:      opts.Topic,
		Preset:     models.PresetPrivateChat,
		Visibility: "private",
		InitialState: []gateway.StateEvent{
			{Type: models.EncryptionEventType, Content: models.EncryptionContentFor(level).Map()},
			{Type: models.JoinRulesEventType, Content: map[string]any{"join_rule": models.JoinRuleInvite}},
			{Type: models.HistoryVisibilityEventType, Content: map[string]any{"history_visibility": models.HistoryVisibilityJoined}},
			{Type: models.PrivateMarkerEventType, Content: marker.Map()},
		},
	}
}

// invite sends one invite per participant, skipping the creator and
// duplicates. It returns the participants that were processed and the
// ones that failed.
func (f *Factory) invite(ctx context.Context, roomID string, participants []string) ([]string, map[string]error) {
	self := f.client.UserID()
	seen := make(map[string]bool, len(participants))
	var invited []string
	failed := make(map[string]error)

	for _, userID := range participants {
		if userID == "" || userID == self || seen[userID] {
			continue
		}
		seen[userID] = true
		invited = append(invited, userID)

		if err := f.client.Invite(ctx, roomID, userID); err != nil {
			f.metrics.InviteFailed()
			f.log.Warn("failed to invite participant", "room", roomID, "user", userID, "err", err)
			failed[userID] = err
		}
	}
	return invited, failed
}

func (f *Factory) waitForSync(ctx context.Context, roomID string) error {
	deadline := f.clock.Now().Add(f.syncTimeout)
	for {
		if _, ok := f.client.GetRoom(roomID); ok {
			return nil
		}
		if !f.clock.Now().Before(deadline) {
			f.log.Error("room did not sync in time", "room", roomID, "timeout", f.syncTimeout)
			return fmt.Errorf("%w: room %s after %v", models.ErrRoomSyncTimeout, roomID, f.syncTimeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.clock.After(f.syncInterval):
		}
	}
}

// ensureEncryption verifies the synced room and re-sends the encryption
// event once if the initial state did not take.
func (f *Factory) ensureEncryption(ctx context.Context, roomID string, level models.EncryptionLevel) error {
	if f.verifier.Verify(roomID) {
		return nil
	}

	f.log.Warn("encryption missing after creation, re-sending state event", "room", roomID)
	content := models.EncryptionContentFor(level).Map()
	if err := f.client.SendStateEvent(ctx, roomID, models.EncryptionEventType, content, ""); err != nil {
		f.log.Error("failed to send encryption state", "room", roomID, "err", err)
		return fmt.Errorf("%w: %w", models.ErrEncryptionSetupFailed, err)
	}
	if !f.verifier.Verify(roomID) {
		return fmt.Errorf("%w: room %s", models.ErrEncryptionSetupFailed, roomID)
	}
	return nil
}
