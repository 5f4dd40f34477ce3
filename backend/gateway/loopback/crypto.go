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

package loopback

import (
	"context"
	"crypto/rand"
	"errors"
	"strconv"
	"strings"
	"sync"

	"github.com/efchatnet/privchat/backend/models"
	"github.com/efchatnet/privchat/backend/recoverykey"
)

const backupAlgorithm = "m.megolm_backup.v1.curve25519-aes-sha2"

var ErrBadRecoveryKey = errors.New("loopback: recovery key does not match backup")

// Crypto is an in-memory key backup provider.
type Crypto struct {
	mu          sync.Mutex
	version     int
	info        *models.BackupInfo
	trust       models.BackupTrust
	recoveryKey string
	sessionKeys int

	// FailCreate makes CreateBackup return no version.
	FailCreate bool
	// FailRestore makes RestoreBackup return no result.
	FailRestore bool
}

func NewCrypto() *Crypto {
	return &Crypto{sessionKeys: 0}
}

// SetSessionKeys sets how many session keys a backup holds.
func (c *Crypto) SetSessionKeys(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessionKeys = n
	if c.info != nil {
		count := n
		c.info.KeyCount = &count
	}
}

// SetTrust overrides the trust reported for the current backup.
func (c *Crypto) SetTrust(trust models.BackupTrust) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.trust = trust
}

// RecoveryKey returns the recovery key of the current backup.
func (c *Crypto) RecoveryKey() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.recoveryKey
}

func (c *Crypto) BackupInfo(ctx context.Context) (*models.BackupInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.info == nil {
		return nil, nil
	}
	info := *c.info
	return &info, nil
}

func (c *Crypto) BackupTrust(ctx context.Context, info *models.BackupInfo) (*models.BackupTrust, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if info == nil || c.info == nil || info.Version != c.info.Version {
		return &models.BackupTrust{}, nil
	}
	trust := c.trust
	return &trust, nil
}

func (c *Crypto) CreateBackup(ctx context.Context) (*models.BackupCreated, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.FailCreate {
		return &models.BackupCreated{}, nil
	}

	key := make([]byte, recoverykey.KeyLength)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}
	encoded, err := recoverykey.Encode(key)
	if err != nil {
		return nil, err
	}

	c.version++
	count := c.sessionKeys
	c.info = &models.BackupInfo{
		Version:   strconv.Itoa(c.version),
		Algorithm: backupAlgorithm,
		KeyCount:  &count,
	}
	c.trust = models.BackupTrust{Usable: true, TrustedLocally: true}
	c.recoveryKey = encoded
	return &models.BackupCreated{Version: c.info.Version, RecoveryKey: encoded}, nil
}

func (c *Crypto) RestoreBackup(ctx context.Context, key string) (*models.RestoreResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.FailRestore || c.info == nil {
		return nil, nil
	}
	if compact(key) != compact(c.recoveryKey) {
		return nil, ErrBadRecoveryKey
	}
	return &models.RestoreResult{Imported: c.sessionKeys, Total: c.sessionKeys}, nil
}

func compact(s string) string {
	return strings.Join(strings.Fields(s), "")
}
