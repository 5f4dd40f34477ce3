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

// Package backup manages server-side backup of room session keys.
package backup

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/efchatnet/privchat/backend/events"
	"github.com/efchatnet/privchat/backend/gateway"
	"github.com/efchatnet/privchat/backend/models"
	"github.com/efchatnet/privchat/backend/recoverykey"
)

// CryptoSource exposes the crypto provider of the session, if any.
type CryptoSource interface {
	Crypto() (gateway.CryptoHandle, bool)
}

type Coordinator struct {
	crypto    CryptoSource
	publisher events.Publisher
	log       *log.Logger
}

func NewCoordinator(crypto CryptoSource, publisher events.Publisher, logger *log.Logger) *Coordinator {
	if publisher == nil {
		publisher = events.Discard{}
	}
	return &Coordinator{
		crypto:    crypto,
		publisher: publisher,
		log:       logger.WithPrefix("[KeyBackup]"),
	}
}

// Status reports the current backup. Any failure to reach the provider
// reads as no backup.
func (c *Coordinator) Status(ctx context.Context) models.KeyBackupState {
	crypto, ok := c.crypto.Crypto()
	if !ok {
		return models.KeyBackupState{}
	}
	info, err := crypto.BackupInfo(ctx)
	if err != nil {
		c.log.Warn("failed to read backup info", "err", err)
		return models.KeyBackupState{}
	}
	if info == nil {
		return models.KeyBackupState{}
	}

	state := models.KeyBackupState{
		Enabled:   true,
		Version:   info.Version,
		Algorithm: info.Algorithm,
		KeyCount:  info.KeyCount,
	}
	trust, err := crypto.BackupTrust(ctx, info)
	if err != nil {
		c.log.Warn("failed to read backup trust", "version", info.Version, "err", err)
		return state
	}
	state.Trust = trust
	return state
}

// Create starts a new backup version and returns its recovery key.
func (c *Coordinator) Create(ctx context.Context) (models.BackupCreated, error) {
	crypto, ok := c.crypto.Crypto()
	if !ok {
		return models.BackupCreated{}, fmt.Errorf("%w: crypto is not available", models.ErrKeyBackupCreationFailed)
	}
	created, err := crypto.CreateBackup(ctx)
	if err != nil {
		c.log.Error("failed to create backup", "err", err)
		return models.BackupCreated{}, fmt.Errorf("%w: %w", models.ErrKeyBackupCreationFailed, err)
	}
	if created == nil || created.Version == "" {
		return models.BackupCreated{}, fmt.Errorf("%w: no backup version returned", models.ErrKeyBackupCreationFailed)
	}

	c.log.Info("key backup created", "version", created.Version)
	c.publisher.Publish(events.KeyBackupCreated{
		Version:        created.Version,
		HasRecoveryKey: created.RecoveryKey != "",
	})
	return *created, nil
}

// Restore imports session keys from the backup. The recovery key format
// is checked before the provider is called.
func (c *Coordinator) Restore(ctx context.Context, recoveryKey string) (models.RestoreResult, error) {
	if err := ValidateRecoveryKey(recoveryKey); err != nil {
		return models.RestoreResult{}, err
	}
	crypto, ok := c.crypto.Crypto()
	if !ok {
		return models.RestoreResult{}, fmt.Errorf("%w: crypto is not available", models.ErrKeyBackupRestoreFailed)
	}
	result, err := crypto.RestoreBackup(ctx, recoveryKey)
	if err != nil {
		c.log.Error("failed to restore backup", "err", err)
		return models.RestoreResult{}, fmt.Errorf("%w: %w", models.ErrKeyBackupRestoreFailed, err)
	}
	if result == nil {
		return models.RestoreResult{}, fmt.Errorf("%w: no result returned", models.ErrKeyBackupRestoreFailed)
	}

	c.log.Info("key backup restored", "imported", result.Imported, "total", result.Total)
	c.publisher.Publish(events.KeyBackupRestored(*result))
	return *result, nil
}

// ShouldPrompt reports whether the user should be asked to set up or fix
// key backup.
func (c *Coordinator) ShouldPrompt(ctx context.Context) bool {
	state := c.Status(ctx)
	if !state.Enabled {
		return true
	}
	return state.Trust != nil && !state.Trust.Usable
}

// ValidateRecoveryKey checks the format of a recovery key.
func ValidateRecoveryKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("%w: %w", models.ErrInvalidRecoveryKey, recoverykey.ErrEmpty)
	}
	if _, err := recoverykey.Decode(key); err != nil {
		return fmt.Errorf("%w: %w", models.ErrInvalidRecoveryKey, err)
	}
	return nil
}

// EncodeRecoveryKey renders a 32 byte backup key as a recovery key.
func EncodeRecoveryKey(key []byte) (string, error) {
	return recoverykey.Encode(key)
}
