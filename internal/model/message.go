// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the PocketPaw domain types: messages, conversations,
// memories, models, tools and the signed-in user. The JSON tags match the
// backend's wire format and every type that crosses the boundary has a
// Validate method.
package model

import (
	"fmt"
	"strings"
	"time"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role is the sender of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is a role the backend accepts.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// DisplayName returns a label for the role.
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "You"
	case RoleAssistant:
		return "PocketPaw"
	default:
		return string(r)
	}
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// Message is one {role, content} entry of a conversation.
//
// An assistant message that is still receiving stream fragments is
// "in progress": fragments accumulate in a builder and Content is only
// assigned by Finalize. Once finalized the message never changes.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`

	// Client-side state, never sent.
	Timestamp time.Time `json:"-"`
	Streaming bool      `json:"-"`
	// Notice marks client-generated assistant text such as inline errors.
	Notice bool `json:"-"`

	stream *strings.Builder
}

// NewMessage creates a finished message.
func NewMessage(role Role, content string) *Message {
	return &Message{Role: role, Content: content, Timestamp: time.Now()}
}

// NewStreamingMessage creates an empty in-progress assistant message.
func NewStreamingMessage() *Message {
	return &Message{
		Role:      RoleAssistant,
		Timestamp: time.Now(),
		Streaming: true,
		stream:    &strings.Builder{},
	}
}

// Append adds a stream fragment. It is a no-op on a finalized message.
func (m *Message) Append(fragment string) {
	if !m.Streaming {
		return
	}
	m.stream.WriteString(fragment)
}

// Finalize freezes the accumulated fragments into Content.
func (m *Message) Finalize() {
	if !m.Streaming {
		return
	}
	m.Content = m.stream.String()
	m.stream = nil
	m.Streaming = false
}

// Text returns the content to display, including fragments received so far.
func (m *Message) Text() string {
	if m.Streaming {
		return m.stream.String()
	}
	return m.Content
}

// IsEmpty reports whether the message has no text yet.
func (m *Message) IsEmpty() bool {
	return m.Text() == ""
}

// Validate checks a message decoded from the backend.
func (m Message) Validate() error {
	if !m.Role.Valid() {
		return fmt.Errorf("unknown role %q", m.Role)
	}
	return nil
}
