// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pocketpaw/pawtui/internal/security"
)

// exerciseStore runs the behaviour every Store must share.
func exerciseStore(t *testing.T, s Store) {
	t.Helper()

	_, ok, err := s.Get(KeyToken)
	require.NoError(t, err)
	assert.False(t, ok, "empty store must not report a token")

	require.NoError(t, s.Set(KeyToken, "abc"))
	require.NoError(t, s.Set(KeyAPIURL, "http://localhost:8000/api/v1"))

	v, ok, err := s.Get(KeyToken)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "abc", v)

	require.NoError(t, s.Set(KeyToken, "def"))
	v, _, _ = s.Get(KeyToken)
	assert.Equal(t, "def", v, "Set must overwrite")

	keys, err := s.Keys()
	require.NoError(t, err)
	assert.Equal(t, []string{KeyToken, KeyAPIURL}, keys)

	require.NoError(t, s.Delete(KeyToken))
	require.NoError(t, s.Delete(KeyToken), "deleting a missing key is not an error")
	_, ok, _ = s.Get(KeyToken)
	assert.False(t, ok)
}

func TestMemoryStore(t *testing.T) {
	s := NewMemoryStore()
	exerciseStore(t, s)

	require.NoError(t, s.Close())
	_, _, err := s.Get(KeyToken)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestSQLiteStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.db")
	s, err := OpenSQLite(path)
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, path, s.Path())
	exerciseStore(t, s)
}

func TestSQLiteStore_PersistsAcrossOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")

	s, err := OpenSQLite(path)
	require.NoError(t, err)
	require.NoError(t, s.Set(KeyAPIURL, "http://override/api/v1"))
	require.NoError(t, s.Close())

	s, err = OpenSQLite(path)
	require.NoError(t, err)
	defer s.Close()

	v, ok, err := s.Get(KeyAPIURL)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "http://override/api/v1", v)
}

func TestSealedStore(t *testing.T) {
	sealer, err := security.NewSealer(bytes.Repeat([]byte{1}, 32))
	require.NoError(t, err)

	inner := NewMemoryStore()
	s := NewSealedStore(inner, sealer)

	require.NoError(t, s.Set(KeyToken, "bearer-secret"))
	require.NoError(t, s.Set(KeyAPIURL, "http://plain"))

	raw, _, _ := inner.Get(KeyToken)
	assert.True(t, strings.HasPrefix(raw, security.SealedPrefix))
	assert.NotContains(t, raw, "bearer-secret")

	raw, _, _ = inner.Get(KeyAPIURL)
	assert.Equal(t, "http://plain", raw, "unsealed keys pass through")

	v, ok, err := s.Get(KeyToken)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "bearer-secret", v)

	require.NoError(t, s.Delete(KeyToken))
	_, ok, _ = s.Get(KeyToken)
	assert.False(t, ok)
}

func TestSealedStore_ReadsLegacyPlaintext(t *testing.T) {
	sealer, _ := security.NewSealer(bytes.Repeat([]byte{1}, 32))
	inner := NewMemoryStore()
	require.NoError(t, inner.Set(KeyToken, "legacy"))

	v, ok, err := NewSealedStore(inner, sealer).Get(KeyToken)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "legacy", v)
}

func TestSealedStore_WrongKeyFails(t *testing.T) {
	a, _ := security.NewSealer(bytes.Repeat([]byte{1}, 32))
	b, _ := security.NewSealer(bytes.Repeat([]byte{2}, 32))

	inner := NewMemoryStore()
	require.NoError(t, NewSealedStore(inner, a).Set(KeyToken, "x"))

	_, ok, err := NewSealedStore(inner, b).Get(KeyToken)
	assert.Error(t, err)
	assert.False(t, ok)
}

func TestOpen_Sealed(t *testing.T) {
	dir := t.TempDir()
	opts := Options{
		Path:    filepath.Join(dir, "state.db"),
		Seal:    true,
		KeyPath: filepath.Join(dir, "key"),
	}

	s, err := Open(opts)
	require.NoError(t, err)
	require.NoError(t, s.Set(KeyToken, "tok"))
	require.NoError(t, s.Close())

	raw, err := OpenSQLite(opts.Path)
	require.NoError(t, err)
	v, _, _ := raw.Get(KeyToken)
	assert.True(t, security.IsSealed(v))
	require.NoError(t, raw.Close())

	s, err = Open(opts)
	require.NoError(t, err)
	defer s.Close()
	v, _, err = s.Get(KeyToken)
	require.NoError(t, err)
	assert.Equal(t, "tok", v)
}
