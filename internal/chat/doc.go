// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat holds the state of the chat view and drives streaming turns.
//
// The Controller is owned by a single goroutine (the Bubble Tea update loop
// or the REPL). A Runner streams a Turn on another goroutine and reports
// progress through a Sink; the sink forwards events to the owner, which
// applies them with Begin, Append, Complete, Fail and Expire.
package chat
