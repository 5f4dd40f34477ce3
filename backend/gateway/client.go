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

package gateway

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/efchatnet/privchat/backend/models"
)

// Client wraps a ProtocolGateway with bounded retries and response
// normalization so the rest of the module only sees canonical IDs.
type Client struct {
	gw    ProtocolGateway
	retry *Retrier
}

func NewClient(gw ProtocolGateway, retry *Retrier) *Client {
	if retry == nil {
		retry = NewRetrier(DefaultRetryAttempts, DefaultRetryDelay)
	}
	return &Client{gw: gw, retry: retry}
}

// CreateRoom creates a room and returns its identifier.
func (c *Client) CreateRoom(ctx context.Context, req CreateRoomRequest) (string, error) {
	resp, err := Retry(ctx, c.retry, func(ctx context.Context) (any, error) {
		return c.gw.CreateRoom(ctx, req)
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", models.ErrRoomCreationFailed, err)
	}
	roomID := NormalizeRoomID(resp)
	if roomID == "" {
		return "", fmt.Errorf("%w: no room identifier in response", models.ErrRoomCreationFailed)
	}
	return roomID, nil
}

func (c *Client) Invite(ctx context.Context, roomID, userID string) error {
	return c.retry.Do(ctx, func(ctx context.Context) error {
		return c.gw.Invite(ctx, roomID, userID)
	})
}

func (c *Client) SendStateEvent(ctx context.Context, roomID, eventType string, content map[string]any, stateKey string) error {
	return c.retry.Do(ctx, func(ctx context.Context) error {
		return c.gw.SendStateEvent(ctx, roomID, eventType, content, stateKey)
	})
}

// SendEvent sends a timeline event and returns its identifier. One
// transaction ID is used for every attempt so the server can deduplicate.
func (c *Client) SendEvent(ctx context.Context, roomID, eventType string, content map[string]any) (string, error) {
	txnID := uuid.New().String()
	resp, err := Retry(ctx, c.retry, func(ctx context.Context) (any, error) {
		return c.gw.SendEvent(ctx, roomID, eventType, content, txnID)
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", models.ErrSendFailed, err)
	}
	eventID := NormalizeEventID(resp)
	if eventID == "" {
		return "", fmt.Errorf("%w: no event identifier in response", models.ErrSendFailed)
	}
	return eventID, nil
}

func (c *Client) RedactEvent(ctx context.Context, roomID, eventID, reason string) error {
	return c.retry.Do(ctx, func(ctx context.Context) error {
		return c.gw.RedactEvent(ctx, roomID, eventID, reason)
	})
}

func (c *Client) GetRoom(roomID string) (RoomHandle, bool) {
	room, ok := c.gw.GetRoom(roomID)
	if !ok || room == nil {
		return nil, false
	}
	return room, true
}

func (c *Client) Crypto() (CryptoHandle, bool) {
	crypto, ok := c.gw.Crypto()
	if !ok || crypto == nil {
		return nil, false
	}
	return crypto, true
}

func (c *Client) Connected() bool { return c.gw.Connected() }

func (c *Client) UserID() string { return c.gw.UserID() }
