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

// Package file stores each key as a blob in its own file.
// Writes go through a temp file and a rename so a crash never leaves a
// half written record behind.
package file

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/efchatnet/privchat/backend/storage"
)

// maxHexKey is the longest key stored under its hex form. Longer keys are
// named by their sha256 so the file name stays under NAME_MAX.
const maxHexKey = 100

type KV struct {
	mu      sync.RWMutex
	BaseDir string
}

func New(baseDir string) (*KV, error) {
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create storage dir: %w", err)
	}
	return &KV{BaseDir: baseDir}, nil
}

func (s *KV) path(key string) string {
	return filepath.Join(s.BaseDir, fileName(key))
}

// fileName maps a key to a safe file name. Room and event IDs carry
// characters that are unsafe in file names. Hashed names start with a
// non-hex letter, so the two forms never collide.
func fileName(key string) string {
	if len(key) <= maxHexKey {
		return hex.EncodeToString([]byte(key)) + ".json"
	}
	sum := sha256.Sum256([]byte(key))
	return "sha256-" + hex.EncodeToString(sum[:]) + ".json"
}

func (s *KV) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, err := os.ReadFile(s.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, storage.ErrNotFound
	}
	return data, err
}

func (s *KV) Set(ctx context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tmp, err := os.CreateTemp(s.BaseDir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(value); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, s.path(key))
}

func (s *KV) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.path(key)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (s *KV) Close() error { return nil }
