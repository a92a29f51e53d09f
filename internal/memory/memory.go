// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package memory holds the state of the memory bank view: the stored
// memories, the active search and a pending delete confirmation.
package memory

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/pocketpaw/pawtui/internal/model"
	"github.com/pocketpaw/pawtui/internal/session"
	"github.com/pocketpaw/pawtui/internal/util"
)

var (
	// ErrNoPendingDelete is returned by ConfirmDelete without a RequestDelete.
	ErrNoPendingDelete = errors.New("no delete pending")

	// ErrEmptyText is returned by Add for blank text.
	ErrEmptyText = errors.New("memory text is empty")
)

// Backend is the part of the API client used by the memory view.
type Backend interface {
	ListMemories(ctx context.Context) ([]model.Memory, error)
	AddMemory(ctx context.Context, text string) (*model.Memory, error)
	DeleteMemory(ctx context.Context, id model.OpaqueID) error
	SearchMemory(ctx context.Context, query string, limit int) ([]model.MemoryHit, error)
}

// =============================================================================
// SERVICE
// =============================================================================

// Service wraps Backend calls in the session's re-authentication policy.
// It is safe for concurrent use.
type Service struct {
	backend Backend
	sess    *session.Session
	limit   int
	now     func() time.Time
}

// NewService creates a Service. limit is the search result count; sess may
// be nil.
func NewService(backend Backend, sess *session.Session, limit int) *Service {
	return &Service{backend: backend, sess: sess, limit: limit, now: time.Now}
}

func call[T any](ctx context.Context, s *Service, fn func(context.Context) (T, error)) (T, error) {
	if s.sess == nil {
		return fn(ctx)
	}
	return session.Call(ctx, s.sess, fn)
}

// List returns every stored memory.
func (s *Service) List(ctx context.Context) ([]model.Memory, error) {
	return call(ctx, s, s.backend.ListMemories)
}

// Add stores text.
func (s *Service) Add(ctx context.Context, text string) (*model.Memory, error) {
	return call(ctx, s, func(ctx context.Context) (*model.Memory, error) {
		return s.backend.AddMemory(ctx, text)
	})
}

// Delete removes a memory.
func (s *Service) Delete(ctx context.Context, id model.OpaqueID) error {
	_, err := call(ctx, s, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.backend.DeleteMemory(ctx, id)
	})
	return err
}

// Search runs a semantic search and converts the hits to memories. A hit
// without created_at is stamped with the current time.
func (s *Service) Search(ctx context.Context, query string) ([]model.Memory, error) {
	hits, err := call(ctx, s, func(ctx context.Context) ([]model.MemoryHit, error) {
		return s.backend.SearchMemory(ctx, query, s.limit)
	})
	if err != nil {
		return nil, err
	}
	now := s.now()
	out := make([]model.Memory, 0, len(hits))
	for _, h := range hits {
		out = append(out, h.ToMemory(now))
	}
	return out, nil
}

// =============================================================================
// BROWSER
// =============================================================================

// Browser is the memory view state. It is safe for concurrent use: the
// terminal UI runs its operations from background commands while rendering
// reads the state. No lock is held while a request is in flight.
//
// Every failed operation is logged and leaves the displayed items unchanged.
type Browser struct {
	svc *Service

	mu      sync.Mutex
	items   []model.Memory
	query   string
	pending *model.Memory
	loaded  bool
}

// NewBrowser creates an empty browser.
func NewBrowser(svc *Service) *Browser {
	return &Browser{svc: svc}
}

// Service returns the backend service the browser uses.
func (b *Browser) Service() *Service { return b.svc }

// Items returns the displayed memories. The slice is never modified in place.
func (b *Browser) Items() []model.Memory {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.items
}

// Query returns the active search, "" when the full list is shown.
func (b *Browser) Query() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.query
}

// Loaded reports whether a list or search has been applied.
func (b *Browser) Loaded() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.loaded
}

// Pending returns the memory awaiting delete confirmation, or nil.
func (b *Browser) Pending() *model.Memory {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pending
}

// SetItems replaces the displayed memories with a full listing.
func (b *Browser) SetItems(items []model.Memory) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.setLocked("", items)
}

func (b *Browser) setLocked(query string, items []model.Memory) {
	b.items = items
	b.query = query
	b.loaded = true
}

func (b *Browser) removeLocked(id model.OpaqueID) {
	out := make([]model.Memory, 0, len(b.items))
	for _, m := range b.items {
		if m.ID != id {
			out = append(out, m)
		}
	}
	b.items = out
	if b.pending != nil && b.pending.ID == id {
		b.pending = nil
	}
}

// Refresh loads the full list.
func (b *Browser) Refresh(ctx context.Context) error {
	items, err := b.svc.List(ctx)
	if err != nil {
		log.Error().Err(err).Str("op", "memory.list").Msg("failed to fetch memories")
		return err
	}
	b.mu.Lock()
	b.setLocked("", items)
	b.mu.Unlock()
	return nil
}

// Add stores text and shows it first. Blank text returns ErrEmptyText
// without a request.
func (b *Browser) Add(ctx context.Context, text string) (*model.Memory, error) {
	if util.IsBlank(text) {
		return nil, ErrEmptyText
	}
	m, err := b.svc.Add(ctx, text)
	if err != nil {
		log.Error().Err(err).Str("op", "memory.add").Msg("failed to add memory")
		return nil, err
	}
	b.mu.Lock()
	b.items = append([]model.Memory{*m}, b.items...)
	b.mu.Unlock()
	return m, nil
}

// Search shows the results for query. A blank query reloads the full list.
func (b *Browser) Search(ctx context.Context, query string) error {
	query = strings.TrimSpace(query)
	if query == "" {
		return b.Refresh(ctx)
	}
	items, err := b.svc.Search(ctx, query)
	if err != nil {
		log.Error().Err(err).Str("op", "memory.search").Str("query", query).Msg("failed to search memories")
		return err
	}
	b.mu.Lock()
	b.setLocked(query, items)
	b.mu.Unlock()
	return nil
}

// RequestDelete marks a displayed memory for deletion. Nothing is sent until
// ConfirmDelete.
func (b *Browser) RequestDelete(id model.OpaqueID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.items {
		if b.items[i].ID == id {
			m := b.items[i]
			b.pending = &m
			return true
		}
	}
	return false
}

// CancelDelete clears the pending deletion.
func (b *Browser) CancelDelete() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pending = nil
}

// ConfirmDelete deletes the pending memory. Pending is cleared before the
// request; on failure the memory stays displayed.
func (b *Browser) ConfirmDelete(ctx context.Context) error {
	b.mu.Lock()
	if b.pending == nil {
		b.mu.Unlock()
		return ErrNoPendingDelete
	}
	id := b.pending.ID
	b.pending = nil
	b.mu.Unlock()

	if err := b.svc.Delete(ctx, id); err != nil {
		log.Error().Err(err).Str("op", "memory.delete").Str("memory", id.String()).Msg("failed to delete memory")
		return err
	}
	b.mu.Lock()
	b.removeLocked(id)
	b.mu.Unlock()
	return nil
}
