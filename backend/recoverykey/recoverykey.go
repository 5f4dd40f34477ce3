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

// Package recoverykey encodes and validates key backup recovery keys:
// base58 of a two byte prefix, a 32 byte key and an XOR parity byte,
// displayed in groups of four characters.
package recoverykey

import (
	"errors"
	"strings"

	"github.com/mr-tron/base58"
)

const KeyLength = 32

var prefix = [2]byte{0x8B, 0x01}

var (
	ErrEmpty     = errors.New("recovery key is empty")
	ErrEncoding  = errors.New("recovery key is not valid base58")
	ErrLength    = errors.New("recovery key has the wrong length")
	ErrPrefix    = errors.New("recovery key has the wrong prefix")
	ErrParity    = errors.New("recovery key parity check failed")
	ErrKeyLength = errors.New("key must be 32 bytes")
)

// Encode formats a 32 byte backup key as a recovery key.
func Encode(key []byte) (string, error) {
	if len(key) != KeyLength {
		return "", ErrKeyLength
	}
	buf := make([]byte, 0, len(prefix)+KeyLength+1)
	buf = append(buf, prefix[:]...)
	buf = append(buf, key...)
	buf = append(buf, parity(buf))

	encoded := base58.Encode(buf)
	var sb strings.Builder
	for i, r := range encoded {
		if i > 0 && i%4 == 0 {
			sb.WriteByte(' ')
		}
		sb.WriteRune(r)
	}
	return sb.String(), nil
}

// Decode validates a recovery key and returns the backup key it carries.
// Whitespace is ignored.
func Decode(s string) ([]byte, error) {
	compact := strings.Join(strings.Fields(s), "")
	if compact == "" {
		return nil, ErrEmpty
	}
	raw, err := base58.Decode(compact)
	if err != nil {
		return nil, ErrEncoding
	}
	if len(raw) != len(prefix)+KeyLength+1 {
		return nil, ErrLength
	}
	if raw[0] != prefix[0] || raw[1] != prefix[1] {
		return nil, ErrPrefix
	}
	if parity(raw[:len(raw)-1]) != raw[len(raw)-1] {
		return nil, ErrParity
	}
	key := make([]byte, KeyLength)
	copy(key, raw[len(prefix):len(prefix)+KeyLength])
	return key, nil
}

// Valid reports whether s decodes.
func Valid(s string) bool {
	_, err := Decode(s)
	return err == nil
}

func parity(b []byte) byte {
	var p byte
	for _, c := range b {
		p ^= c
	}
	return p
}
