// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package security seals small secrets, such as the bearer credential, before
// they are written to the local state store.
//
// Values are encrypted with AES-256-GCM. The key is either derived from a
// passphrase with PBKDF2-SHA-256 or read from a random key file created with
// owner-only permissions next to the state database.
package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/crypto/pbkdf2"

	"github.com/pocketpaw/pawtui/internal/util"
)

// =============================================================================
// CONSTANTS
// =============================================================================

// SealedPrefix marks a sealed value: ENC:base64(nonce|ciphertext|tag).
const SealedPrefix = "ENC:"

const (
	keySize  = 32
	saltSize = 32

	// PBKDF2Iterations follows the OWASP 2023 guidance for PBKDF2-SHA-256.
	PBKDF2Iterations = 600000
)

var (
	// ErrMalformed is returned for values with the prefix but a bad body.
	ErrMalformed = errors.New("sealed value is malformed")
	// ErrOpenFailed means the key is wrong or the value was tampered with.
	ErrOpenFailed = errors.New("sealed value could not be opened")
)

// =============================================================================
// SEALER
// =============================================================================

// Sealer encrypts and decrypts strings with a fixed AEAD key.
type Sealer struct {
	aead cipher.AEAD
}

// NewSealer builds a Sealer from a raw 32-byte key.
func NewSealer(key []byte) (*Sealer, error) {
	if len(key) != keySize {
		return nil, fmt.Errorf("key must be %d bytes, got %d", keySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM cipher: %w", err)
	}
	return &Sealer{aead: gcm}, nil
}

// Seal encrypts plaintext and returns a prefixed base64 string.
func (s *Sealer) Seal(plaintext string) (string, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	out := s.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return SealedPrefix + base64.StdEncoding.EncodeToString(out), nil
}

// Open reverses Seal. Values without the prefix are returned unchanged so
// that state written before sealing was enabled stays readable.
func (s *Sealer) Open(value string) (string, error) {
	if !IsSealed(value) {
		return value, nil
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, SealedPrefix))
	if err != nil {
		return "", ErrMalformed
	}
	n := s.aead.NonceSize()
	if len(data) < n {
		return "", ErrMalformed
	}
	plain, err := s.aead.Open(nil, data[:n], data[n:], nil)
	if err != nil {
		return "", ErrOpenFailed
	}
	return string(plain), nil
}

// IsSealed reports whether value carries the sealed prefix.
func IsSealed(value string) bool {
	return strings.HasPrefix(value, SealedPrefix)
}

// =============================================================================
// KEY MATERIAL
// =============================================================================

// DeriveKey stretches a passphrase into an AES-256 key.
func DeriveKey(passphrase string, salt []byte) []byte {
	return pbkdf2.Key([]byte(passphrase), salt, PBKDF2Iterations, keySize, sha256.New)
}

// LoadOrCreateKey returns the sealing key for keyPath. With a passphrase the
// key is derived from it and a salt stored at keyPath+".salt". Without one a
// random key is stored at keyPath. Missing files are created 0600.
func LoadOrCreateKey(keyPath, passphrase string) ([]byte, error) {
	if passphrase != "" {
		salt, err := loadOrCreateRandom(keyPath+".salt", saltSize)
		if err != nil {
			return nil, fmt.Errorf("salt: %w", err)
		}
		return DeriveKey(passphrase, salt), nil
	}
	key, err := loadOrCreateRandom(keyPath, keySize)
	if err != nil {
		return nil, fmt.Errorf("key: %w", err)
	}
	return key, nil
}

func loadOrCreateRandom(path string, size int) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		if len(data) != size {
			return nil, fmt.Errorf("%s has %d bytes, want %d", path, len(data), size)
		}
		return data, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	data = make([]byte, size)
	if _, err := io.ReadFull(rand.Reader, data); err != nil {
		return nil, fmt.Errorf("failed to generate random bytes: %w", err)
	}
	if err := util.WritePrivateFile(path, data); err != nil {
		return nil, err
	}
	return data, nil
}

// Zero overwrites b. Callers use it on key material they no longer need.
func Zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
