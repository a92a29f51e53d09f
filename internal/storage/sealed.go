// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"fmt"
)

// Sealer is the subset of security.Sealer the store needs.
type Sealer interface {
	Seal(plaintext string) (string, error)
	Open(value string) (string, error)
}

// SealedStore wraps a Store and seals the values of selected keys at rest.
// Other keys pass through untouched.
type SealedStore struct {
	Store
	sealer Sealer
	keys   map[string]bool
}

// NewSealedStore seals the given keys of inner with sealer. With no keys
// listed only KeyToken is sealed.
func NewSealedStore(inner Store, sealer Sealer, keys ...string) *SealedStore {
	if len(keys) == 0 {
		keys = []string{KeyToken}
	}
	set := make(map[string]bool, len(keys))
	for _, k := range keys {
		set[k] = true
	}
	return &SealedStore{Store: inner, sealer: sealer, keys: set}
}

func (s *SealedStore) Get(key string) (string, bool, error) {
	v, ok, err := s.Store.Get(key)
	if err != nil || !ok || !s.keys[key] {
		return v, ok, err
	}
	plain, err := s.sealer.Open(v)
	if err != nil {
		return "", false, fmt.Errorf("storage open %q: %w", key, err)
	}
	return plain, true, nil
}

func (s *SealedStore) Set(key, value string) error {
	if !s.keys[key] {
		return s.Store.Set(key, value)
	}
	sealed, err := s.sealer.Seal(value)
	if err != nil {
		return fmt.Errorf("storage seal %q: %w", key, err)
	}
	return s.Store.Set(key, sealed)
}
