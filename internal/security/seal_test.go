// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package security

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func testKey() []byte {
	return bytes.Repeat([]byte{7}, 32)
}

func TestSealer_RoundTrip(t *testing.T) {
	s, err := NewSealer(testKey())
	if err != nil {
		t.Fatalf("NewSealer: %v", err)
	}

	sealed, err := s.Seal("eyJhbGciOi.token")
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if !IsSealed(sealed) {
		t.Fatalf("sealed value lacks prefix: %q", sealed)
	}
	if strings.Contains(sealed, "token") {
		t.Error("sealed value leaks plaintext")
	}

	got, err := s.Open(sealed)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if got != "eyJhbGciOi.token" {
		t.Errorf("Open = %q", got)
	}
}

func TestSealer_NoncesDiffer(t *testing.T) {
	s, _ := NewSealer(testKey())
	a, _ := s.Seal("same")
	b, _ := s.Seal("same")
	if a == b {
		t.Error("two seals of the same plaintext are identical")
	}
}

func TestSealer_OpenPlaintextPassesThrough(t *testing.T) {
	s, _ := NewSealer(testKey())
	got, err := s.Open("legacy-token")
	if err != nil || got != "legacy-token" {
		t.Errorf("Open(legacy) = %q, %v", got, err)
	}
}

func TestSealer_WrongKey(t *testing.T) {
	a, _ := NewSealer(testKey())
	b, _ := NewSealer(bytes.Repeat([]byte{9}, 32))

	sealed, _ := a.Seal("secret")
	if _, err := b.Open(sealed); err != ErrOpenFailed {
		t.Errorf("Open with wrong key err = %v, want ErrOpenFailed", err)
	}
	if _, err := a.Open(SealedPrefix + "!!!"); err != ErrMalformed {
		t.Errorf("Open malformed err = %v, want ErrMalformed", err)
	}
	if _, err := a.Open(SealedPrefix + "AAAA"); err != ErrMalformed {
		t.Errorf("Open short err = %v, want ErrMalformed", err)
	}
}

func TestNewSealer_BadKeySize(t *testing.T) {
	if _, err := NewSealer([]byte("short")); err == nil {
		t.Error("expected error for short key")
	}
}

func TestLoadOrCreateKey_RandomKeyIsStable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "key")

	k1, err := LoadOrCreateKey(path, "")
	if err != nil {
		t.Fatal(err)
	}
	k2, err := LoadOrCreateKey(path, "")
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(k1, k2) {
		t.Error("key changed between loads")
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("key file not created: %v", err)
	}
}

func TestLoadOrCreateKey_Passphrase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "key")

	k1, err := LoadOrCreateKey(path, "correct horse")
	if err != nil {
		t.Fatal(err)
	}
	k2, _ := LoadOrCreateKey(path, "correct horse")
	k3, _ := LoadOrCreateKey(path, "battery staple")

	if !bytes.Equal(k1, k2) {
		t.Error("same passphrase derived different keys")
	}
	if bytes.Equal(k1, k3) {
		t.Error("different passphrases derived the same key")
	}
	if _, err := os.Stat(path + ".salt"); err != nil {
		t.Errorf("salt file not created: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("random key file should not be created in passphrase mode")
	}
}

func TestLoadOrCreateKey_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "key")
	if err := os.WriteFile(path, []byte("too short"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadOrCreateKey(path, ""); err == nil {
		t.Error("expected error for wrong-size key file")
	}
}

func TestZero(t *testing.T) {
	b := []byte{1, 2, 3}
	Zero(b)
	if !bytes.Equal(b, []byte{0, 0, 0}) {
		t.Errorf("Zero left %v", b)
	}
}
