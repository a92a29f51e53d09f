// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"errors"
	"time"

	"github.com/pocketpaw/pawtui/internal/model"
)

// =============================================================================
// TURN STATE
// =============================================================================

// TurnState is the lifecycle of one submitted message.
//
//	Idle -> Sending -> Streaming -> {Completed | Failed | AuthExpired}
//
// Completed and Failed return the controller to Idle. AuthExpired also
// unblocks submission, but the caller is expected to re-bootstrap first.
type TurnState int

const (
	StateIdle TurnState = iota
	StateSending
	StateStreaming
	StateCompleted
	StateFailed
	StateAuthExpired
)

func (s TurnState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSending:
		return "sending"
	case StateStreaming:
		return "streaming"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateAuthExpired:
		return "auth_expired"
	default:
		return "unknown"
	}
}

// InFlight reports whether a new submission must be rejected.
func (s TurnState) InFlight() bool {
	return s == StateSending || s == StateStreaming
}

// Errors returned by the controller.
var (
	ErrEmptyInput   = errors.New("message is empty")
	ErrTurnInFlight = errors.New("a reply is still in progress")
	ErrStaleTurn    = errors.New("turn is no longer active")
)

// =============================================================================
// TURN
// =============================================================================

// Turn is one request/reply exchange. It carries everything the request
// needs so the runner never reads controller state.
type Turn struct {
	ID             uint64
	History        []model.Message
	Model          string
	ConversationID *int
	Started        time.Time

	state TurnState
	reply *model.Message
}

// State returns the turn's current state.
func (t *Turn) State() TurnState {
	return t.state
}

// Reply returns the assistant message of the turn, or nil before Begin.
func (t *Turn) Reply() *model.Message {
	return t.reply
}

// IsNewConversation reports whether the turn was sent without an id.
func (t *Turn) IsNewConversation() bool {
	return t.ConversationID == nil
}
