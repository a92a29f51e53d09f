// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"

	"github.com/pocketpaw/pawtui/internal/api"
	"github.com/pocketpaw/pawtui/internal/model"
	"github.com/pocketpaw/pawtui/internal/session"
)

// Backend is the part of the API client used by the chat view.
type Backend interface {
	ChatStream(ctx context.Context, req api.ChatRequest, callback api.StreamCallback) error
	ListConversations(ctx context.Context) ([]model.ConversationSummary, error)
	GetConversation(ctx context.Context, id int) (*model.ConversationDetail, error)
	DeleteConversation(ctx context.Context, id int) error
	ListModels(ctx context.Context) (*model.ModelList, error)
}

// Service wraps Backend calls in the session's re-authentication policy.
// Unlike Controller it is safe for concurrent use.
type Service struct {
	backend Backend
	sess    *session.Session
}

// NewService creates a Service. sess may be nil, in which case a 401 is
// returned to the caller as is.
func NewService(backend Backend, sess *session.Session) *Service {
	return &Service{backend: backend, sess: sess}
}

func call[T any](ctx context.Context, s *Service, fn func(context.Context) (T, error)) (T, error) {
	if s.sess == nil {
		return fn(ctx)
	}
	return session.Call(ctx, s.sess, fn)
}

// Conversations lists the user's conversations.
func (s *Service) Conversations(ctx context.Context) ([]model.ConversationSummary, error) {
	return call(ctx, s, s.backend.ListConversations)
}

// Conversation fetches the messages of one conversation.
func (s *Service) Conversation(ctx context.Context, id int) (*model.ConversationDetail, error) {
	return call(ctx, s, func(ctx context.Context) (*model.ConversationDetail, error) {
		return s.backend.GetConversation(ctx, id)
	})
}

// DeleteConversation deletes a conversation on the server.
func (s *Service) DeleteConversation(ctx context.Context, id int) error {
	_, err := call(ctx, s, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.backend.DeleteConversation(ctx, id)
	})
	return err
}

// Models returns the available model names in server order.
func (s *Service) Models(ctx context.Context) ([]string, error) {
	l, err := call(ctx, s, s.backend.ListModels)
	if err != nil {
		return nil, err
	}
	return l.Names(), nil
}

// ModelInfos returns the installed models with size and modification time.
func (s *Service) ModelInfos(ctx context.Context) ([]model.ModelInfo, error) {
	l, err := call(ctx, s, s.backend.ListModels)
	if err != nil {
		return nil, err
	}
	return l.Models, nil
}

// Stream sends one chat request. A 401 can only arrive before the first
// fragment, so retrying after re-authentication never duplicates text.
func (s *Service) Stream(ctx context.Context, req api.ChatRequest, callback api.StreamCallback) error {
	_, err := call(ctx, s, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.backend.ChatStream(ctx, req, callback)
	})
	return err
}
