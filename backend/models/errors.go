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

package models

import "errors"

// Encryption gate. Sends are blocked, never downgraded to plaintext.
var (
	ErrEncryptionNotConfigured     = errors.New("room is not encrypted")
	ErrEncryptionAlgorithmMismatch = errors.New("room uses an unexpected encryption algorithm")
)

// Room creation.
var (
	ErrRoomCreationFailed    = errors.New("room creation failed")
	ErrRoomSyncTimeout       = errors.New("timed out waiting for room to sync")
	ErrEncryptionSetupFailed = errors.New("encryption could not be enabled for room")
	ErrRoomNotFound          = errors.New("room not found")
)

// Sending and self-destruct scheduling.
var (
	ErrSendFailed        = errors.New("message send failed")
	ErrInvalidMessage    = errors.New("invalid message content")
	ErrInvalidTimeout    = errors.New("self-destruct timeout is out of range")
	ErrTimerExists       = errors.New("self-destruct timer already armed for message")
	ErrSchedulerNotReady = errors.New("self-destruct timers have not been restored yet")
)

// Key backup.
var (
	ErrKeyBackupCreationFailed = errors.New("key backup creation failed")
	ErrKeyBackupRestoreFailed  = errors.New("key backup restore failed")
	ErrInvalidRecoveryKey      = errors.New("invalid recovery key")
)
