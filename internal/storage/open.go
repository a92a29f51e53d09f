// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"github.com/pocketpaw/pawtui/internal/security"
)

// Options describes how to open the state store.
type Options struct {
	// Path is the SQLite file.
	Path string
	// Seal encrypts the credential at rest.
	Seal bool
	// KeyPath is the random key (or salt prefix) used for sealing.
	KeyPath string
	// Passphrase derives the key instead of a random key file.
	Passphrase string
}

// Open opens the SQLite state store and wraps it for sealing when asked.
func Open(opts Options) (Store, error) {
	db, err := OpenSQLite(opts.Path)
	if err != nil {
		return nil, err
	}
	if !opts.Seal {
		return db, nil
	}

	key, err := security.LoadOrCreateKey(opts.KeyPath, opts.Passphrase)
	if err != nil {
		db.Close()
		return nil, err
	}
	defer security.Zero(key)

	sealer, err := security.NewSealer(key)
	if err != nil {
		db.Close()
		return nil, err
	}
	return NewSealedStore(db, sealer), nil
}
