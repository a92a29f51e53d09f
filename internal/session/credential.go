// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/pocketpaw/pawtui/internal/storage"
)

// Credential is the single bearer token of the process, persisted under
// storage.KeyToken. It implements api.Credentials.
type Credential struct {
	mu     sync.Mutex
	store  storage.Store
	token  string
	loaded bool

	// invalidations counts tokens cleared because the backend rejected them.
	invalidations int
}

// NewCredential creates a Credential backed by store. The token is read
// lazily on first use.
func NewCredential(store storage.Store) *Credential {
	return &Credential{store: store}
}

// Token returns the current token or "".
func (c *Credential) Token() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loadLocked()
	return c.token
}

// Rejected clears the credential after a 401. Several requests that carried
// the same token can fail together; only the first clears it.
func (c *Credential) Rejected(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loadLocked()

	if token == "" || token != c.token {
		return
	}
	c.invalidations++
	log.Info().Int("invalidations", c.invalidations).Msg("credential rejected by server, clearing")
	c.clearLocked()
}

// Set persists a new token.
func (c *Credential) Set(token string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.store.Set(storage.KeyToken, token); err != nil {
		return err
	}
	c.token = token
	c.loaded = true
	return nil
}

// Clear removes the token from memory and storage.
func (c *Credential) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clearLocked()
}

// Invalidations returns how many tokens were cleared after a 401.
func (c *Credential) Invalidations() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.invalidations
}

func (c *Credential) loadLocked() {
	if c.loaded {
		return
	}
	c.loaded = true

	tok, ok, err := c.store.Get(storage.KeyToken)
	if err != nil {
		log.Warn().Err(err).Msg("failed to read stored credential")
		return
	}
	if ok {
		c.token = tok
	}
}

func (c *Credential) clearLocked() {
	c.token = ""
	c.loaded = true
	if err := c.store.Delete(storage.KeyToken); err != nil {
		log.Warn().Err(err).Msg("failed to delete stored credential")
	}
}
