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

// Package messaging sends messages to private rooms behind the encryption
// gate and arms self-destruct timers for them.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/charmbracelet/log"

	"github.com/efchatnet/privchat/backend/encryption"
	"github.com/efchatnet/privchat/backend/gateway"
	"github.com/efchatnet/privchat/backend/metrics"
	"github.com/efchatnet/privchat/backend/models"
)

// Scheduler arms self-destruct timers for sent messages.
type Scheduler interface {
	Arm(ctx context.Context, roomID, eventID string, timeout time.Duration) error
}

type Sender struct {
	client    *gateway.Client
	verifier  *encryption.Verifier
	scheduler Scheduler
	clock     clock.Clock
	metrics   *metrics.Metrics
	log       *log.Logger
}

func NewSender(client *gateway.Client, verifier *encryption.Verifier, scheduler Scheduler, clk clock.Clock, logger *log.Logger, m *metrics.Metrics) *Sender {
	if clk == nil {
		clk = clock.New()
	}
	return &Sender{
		client:    client,
		verifier:  verifier,
		scheduler: scheduler,
		clock:     clk,
		metrics:   m,
		log:       logger.WithPrefix("[PrivateSend]"),
	}
}

// Send delivers body to roomID and returns the message ID. Encryption is
// asserted on every call. With selfDestruct > 0 the message carries both
// self-destruct annotations and a timer is armed once the send succeeds.
// A timer that cannot be armed is logged; the message is already sent.
func (s *Sender) Send(ctx context.Context, roomID string, body any, selfDestruct time.Duration) (string, error) {
	if selfDestruct < 0 || selfDestruct > models.MaxSelfDestruct {
		s.metrics.SendBlocked(metrics.ReasonInvalidInput)
		return "", fmt.Errorf("%w: %v", models.ErrInvalidTimeout, selfDestruct)
	}

	if _, err := s.verifier.AssertSendable(roomID); err != nil {
		s.metrics.SendBlocked(blockReason(err))
		return "", err
	}

	envelope, err := models.NormalizeBody(body)
	if err != nil {
		s.metrics.SendBlocked(metrics.ReasonInvalidInput)
		return "", err
	}
	if selfDestruct > 0 {
		envelope = envelope.WithSelfDestruct(s.clock.Now(), selfDestruct)
	}

	eventID, err := s.client.SendEvent(ctx, roomID, models.MessageEventType, map[string]any(envelope))
	if err != nil {
		s.log.Error("failed to send message", "room", roomID, "err", err)
		return "", err
	}
	s.metrics.MessageSent()

	if selfDestruct > 0 {
		if err := s.scheduler.Arm(ctx, roomID, eventID, selfDestruct); err != nil {
			s.metrics.ArmFailed()
			s.log.Error("message sent but self-destruct timer not armed",
				"room", roomID, "event", eventID, "timeout", selfDestruct, "err", err)
		}
	}
	return eventID, nil
}

func blockReason(err error) string {
	switch {
	case errors.Is(err, models.ErrEncryptionAlgorithmMismatch):
		return metrics.ReasonAlgorithmMismatch
	case errors.Is(err, models.ErrRoomNotFound):
		return metrics.ReasonUnknownRoom
	}
	return metrics.ReasonNotEncrypted
}
