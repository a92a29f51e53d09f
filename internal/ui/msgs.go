// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ui

import (
	"github.com/pocketpaw/pawtui/internal/chat"
	"github.com/pocketpaw/pawtui/internal/config"
	"github.com/pocketpaw/pawtui/internal/model"
)

// =============================================================================
// SESSION MESSAGES
// =============================================================================

// sessionReadyMsg reports a completed bootstrap.
type sessionReadyMsg struct {
	user *model.User
}

// sessionFailedMsg reports a bootstrap that could not acquire a credential.
type sessionFailedMsg struct {
	err error
}

// SessionResetMsg is sent when the session discards its credential after
// re-authentication fails.
type SessionResetMsg struct{}

// =============================================================================
// DATA MESSAGES
// =============================================================================

type conversationsMsg struct {
	list []model.ConversationSummary
	err  error
}

type conversationLoadedMsg struct {
	id     int
	detail *model.ConversationDetail
	err    error
}

type conversationDeletedMsg struct {
	id  int
	err error
}

type modelsMsg struct {
	models []model.ModelInfo
	err    error
}

type toolsMsg struct {
	tools []model.Tool
	err   error
}

// Memory messages report a finished browser operation. The browser holds
// the resulting state.
type memoriesMsg struct{ err error }

type memoryAddedMsg struct{ err error }

type memoryDeletedMsg struct{ err error }

type overrideSavedMsg struct {
	url string
	err error
}

// ConfigReloadedMsg is sent by the config watcher when the file changes.
type ConfigReloadedMsg struct {
	Config *config.Config
}

// =============================================================================
// TURN MESSAGES
// =============================================================================

type turnStartMsg struct{ turn *chat.Turn }

type turnDoneMsg struct{ turn *chat.Turn }

type turnErrorMsg struct {
	turn *chat.Turn
	err  error
}

type turnExpiredMsg struct{ turn *chat.Turn }

// statusMsg shows a transient line in the status bar.
type statusMsg struct {
	text  string
	isErr bool
}
