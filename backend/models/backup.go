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

// BackupTrust is what the crypto provider reports about a backup's signatures.
type BackupTrust struct {
	Usable         bool `json:"usable"`
	TrustedLocally bool `json:"trusted_locally"`
}

// KeyBackupState is derived from the crypto provider on every call.
type KeyBackupState struct {
	Enabled   bool         `json:"enabled"`
	Version   string       `json:"version,omitempty"`
	Algorithm string       `json:"algorithm,omitempty"`
	KeyCount  *int         `json:"key_count,omitempty"`
	Trust     *BackupTrust `json:"trust,omitempty"`
}

// BackupInfo is the server side backup version as seen by the crypto provider.
type BackupInfo struct {
	Version   string `json:"version"`
	Algorithm string `json:"algorithm"`
	KeyCount  *int   `json:"count,omitempty"`
}

// BackupCreated is returned once a new backup version exists.
type BackupCreated struct {
	Version     string `json:"version"`
	RecoveryKey string `json:"recovery_key"`
}

// RestoreResult reports how many session keys were imported.
type RestoreResult struct {
	Imported int `json:"imported"`
	Total    int `json:"total"`
}
