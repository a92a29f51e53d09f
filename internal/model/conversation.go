// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"errors"
	"fmt"
)

// =============================================================================
// SERVER-SIDE CONVERSATION SHAPES
// =============================================================================

// ConversationSummary is an entry of GET /conversations/.
type ConversationSummary struct {
	ID    int    `json:"id"`
	Title string `json:"title"`
}

// Validate checks a summary decoded from the backend.
func (c ConversationSummary) Validate() error {
	if c.ID <= 0 {
		return fmt.Errorf("invalid conversation id %d", c.ID)
	}
	return nil
}

// ConversationDetail is the body of GET /conversations/{id}. Only the
// message list is required.
type ConversationDetail struct {
	ID       int       `json:"id"`
	Title    string    `json:"title"`
	Messages []Message `json:"messages"`
}

// Validate checks every message of the detail.
func (c ConversationDetail) Validate() error {
	for i, m := range c.Messages {
		if err := m.Validate(); err != nil {
			return fmt.Errorf("messages[%d]: %w", i, err)
		}
	}
	return nil
}

// =============================================================================
// LOCAL CONVERSATION
// =============================================================================

// ErrStreamInProgress is returned when a second in-progress message is
// started before the first is finalized.
var ErrStreamInProgress = errors.New("an assistant message is already in progress")

// Conversation is the open chat: an optional server id and the ordered
// messages. ID is nil until the backend has persisted the conversation.
//
// At most one message, always the last, is in progress. Everything before it
// is frozen.
type Conversation struct {
	ID       *int
	Title    string
	Messages []*Message
}

// NewConversation returns an empty, unsaved conversation.
func NewConversation() *Conversation {
	return &Conversation{}
}

// FromDetail builds an open conversation from a server detail.
func FromDetail(id int, d *ConversationDetail) *Conversation {
	c := &Conversation{ID: IntPtr(id), Title: d.Title}
	for _, m := range d.Messages {
		c.Messages = append(c.Messages, NewMessage(m.Role, m.Content))
	}
	return c
}

// AddUserMessage appends a finished user message.
func (c *Conversation) AddUserMessage(content string) *Message {
	msg := NewMessage(RoleUser, content)
	c.Messages = append(c.Messages, msg)
	return msg
}

// AddNotice appends a finished client-generated assistant message.
func (c *Conversation) AddNotice(content string) *Message {
	msg := NewMessage(RoleAssistant, content)
	msg.Notice = true
	c.Messages = append(c.Messages, msg)
	return msg
}

// StartAssistant appends the in-progress assistant message.
func (c *Conversation) StartAssistant() (*Message, error) {
	if c.InProgress() != nil {
		return nil, ErrStreamInProgress
	}
	msg := NewStreamingMessage()
	c.Messages = append(c.Messages, msg)
	return msg, nil
}

// InProgress returns the in-progress message, or nil.
func (c *Conversation) InProgress() *Message {
	last := c.Last()
	if last != nil && last.Streaming {
		return last
	}
	return nil
}

// AppendToLast adds a fragment to the in-progress message, if any.
func (c *Conversation) AppendToLast(fragment string) {
	if m := c.InProgress(); m != nil {
		m.Append(fragment)
	}
}

// FinalizeLast freezes the in-progress message, if any.
func (c *Conversation) FinalizeLast() {
	if m := c.InProgress(); m != nil {
		m.Finalize()
	}
}

// DropInProgress removes the in-progress message and reports whether it
// held any text.
func (c *Conversation) DropInProgress() (hadText bool) {
	m := c.InProgress()
	if m == nil {
		return false
	}
	c.Messages = c.Messages[:len(c.Messages)-1]
	return !m.IsEmpty()
}

// Last returns the final message or nil.
func (c *Conversation) Last() *Message {
	if len(c.Messages) == 0 {
		return nil
	}
	return c.Messages[len(c.Messages)-1]
}

// LastAssistantText returns the text of the most recent finished assistant
// reply that is not a client notice.
func (c *Conversation) LastAssistantText() string {
	for i := len(c.Messages) - 1; i >= 0; i-- {
		m := c.Messages[i]
		if m.Role == RoleAssistant && !m.Streaming && !m.Notice {
			return m.Content
		}
	}
	return ""
}

// History returns a wire copy of every finished message, in order.
func (c *Conversation) History() []Message {
	out := make([]Message, 0, len(c.Messages))
	for _, m := range c.Messages {
		if m.Streaming {
			continue
		}
		out = append(out, Message{Role: m.Role, Content: m.Content})
	}
	return out
}

// Len returns the number of messages.
func (c *Conversation) Len() int {
	return len(c.Messages)
}

// IsNew reports whether the conversation has not been saved by the server.
func (c *Conversation) IsNew() bool {
	return c.ID == nil
}

// IsCurrent reports whether id is the open conversation.
func (c *Conversation) IsCurrent(id int) bool {
	return c.ID != nil && *c.ID == id
}

// IntPtr returns a pointer to a copy of v.
func IntPtr(v int) *int {
	return &v
}
